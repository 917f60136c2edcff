package main

import (
	"encoding/json"
	"errors"
	"os"

	"firebridge/internal/auth"
	"firebridge/internal/httpclient"

	"github.com/spf13/cobra"
)

func init() {
	var (
		email    string
		password string
		create   bool
	)
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password and print the ID token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmdCtx.cfg.APIKey == "" {
				return errors.New("FIREBASE_API_KEY is not set")
			}
			a := auth.New(cmdCtx.cfg.APIKey,
				auth.WithLogger(cmdCtx.log),
				auth.WithEmulatorHost(cmdCtx.cfg.AuthEmulatorHost),
				auth.WithHTTPClient(httpclient.New(
					httpclient.WithLogger(cmdCtx.log),
					httpclient.WithRetryMax(cmdCtx.cfg.HTTPRetryMax),
				)),
			)

			ctx := cmd.Context()
			signIn := a.SignInWithEmailAndPassword
			if create {
				signIn = a.CreateUserWithEmailAndPassword
			}
			cred, err := signIn(ctx, email, password)
			if err != nil {
				return err
			}
			res, err := cred.User.GetIDTokenResult(ctx, false)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"uid":            cred.User.UID,
				"email":          cred.User.Email,
				"operationType":  cred.OperationType,
				"idToken":        res.Token,
				"expirationTime": res.ExpirationTime,
				"claims":         res.Claims.Claims(),
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&create, "create", false, "create the account instead of signing in")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	rootCmd.AddCommand(cmd)
}
