package main

import (
	"encoding/json"
	"fmt"
	"time"

	"firebridge/internal/auth"

	"github.com/spf13/cobra"
)

func init() {
	var (
		uid    string
		claims string
	)
	cmd := &cobra.Command{
		Use:     "set-claims",
		Short:   "Replace the custom claims of a user",
		Example: `  firebridge set-claims --uid abc123 --claims '{"admin":true}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(claims), &parsed); err != nil {
				return fmt.Errorf("--claims must be a JSON object: %w", err)
			}
			parsed["claimsUpdatedAt"] = time.Now().UTC().Format(time.RFC3339)

			ctx := cmd.Context()
			clients, err := cmdCtx.adminClients(ctx)
			if err != nil {
				return err
			}
			if err := auth.NewVerifier(clients.Auth, cmdCtx.log).SetCustomUserClaims(ctx, uid, parsed); err != nil {
				return err
			}
			fmt.Printf("custom claims set for %s; the user must refresh their ID token\n", uid)
			return nil
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "", "user id")
	cmd.Flags().StringVar(&claims, "claims", "{}", "claims as a JSON object")
	_ = cmd.MarkFlagRequired("uid")

	rootCmd.AddCommand(cmd)
}
