package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"firebridge/internal/functions"

	"github.com/spf13/cobra"
)

func init() {
	var (
		data    string
		idToken string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "call NAME",
		Short: "Invoke an HTTPS callable function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req any
			if err := json.Unmarshal([]byte(data), &req); err != nil {
				return fmt.Errorf("--data must be JSON: %w", err)
			}

			opts := []functions.Option{
				functions.WithLogger(cmdCtx.log),
				functions.WithEmulatorHost(cmdCtx.cfg.FunctionsEmulatorHost),
			}
			if idToken != "" {
				opts = append(opts, functions.WithTokenSource(functions.StaticToken(idToken)))
			}
			fns, err := functions.New(cmdCtx.cfg.ProjectID, cmdCtx.cfg.FunctionsRegion, opts...)
			if err != nil {
				return err
			}

			callable := functions.NewHttpsCallable[any, json.RawMessage](fns, args[0], functions.HttpsCallableOptions{Timeout: timeout})
			res, err := callable.Call(cmd.Context(), req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(os.Stdout, string(res))
			return err
		},
	}
	cmd.Flags().StringVar(&data, "data", "null", "request payload as JSON")
	cmd.Flags().StringVar(&idToken, "id-token", "", "Firebase ID token sent as the caller identity")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "call timeout (default 70s)")

	rootCmd.AddCommand(cmd)
}
