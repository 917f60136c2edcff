package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"firebridge/internal/firestore"

	"github.com/spf13/cobra"
)

func init() {
	docCmd := &cobra.Command{
		Use:   "doc",
		Short: "Read and write Firestore documents",
	}

	docCmd.AddCommand(&cobra.Command{
		Use:   "get PATH",
		Short: "Print a document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fs, err := adminFirestore(cmd)
			if err != nil {
				return err
			}
			ref, err := fs.Doc(args[0])
			if err != nil {
				return err
			}
			snap, err := fs.GetDoc(ctx, ref)
			if err != nil {
				return err
			}
			if !snap.Exists() {
				return fmt.Errorf("document %s does not exist", ref.Path())
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"id":         snap.ID(),
				"path":       ref.Path(),
				"updateTime": snap.UpdateTime(),
				"data":       snap.Data(),
			})
		},
	})

	var (
		data  string
		merge bool
	)
	setCmd := &cobra.Command{
		Use:   "set PATH",
		Short: "Write a document from a JSON object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fields map[string]any
			if err := json.Unmarshal([]byte(data), &fields); err != nil {
				return fmt.Errorf("--data must be a JSON object: %w", err)
			}
			if fields == nil {
				return errors.New("--data must be a JSON object")
			}

			fs, err := adminFirestore(cmd)
			if err != nil {
				return err
			}
			ref, err := fs.Doc(args[0])
			if err != nil {
				return err
			}
			if err := fs.SetDocWithOptions(cmd.Context(), ref, fields, firestore.SetDocOptions{Merge: merge}); err != nil {
				return err
			}
			fmt.Println(ref.Path())
			return nil
		},
	}
	setCmd.Flags().StringVar(&data, "data", "", "document fields as a JSON object")
	setCmd.Flags().BoolVar(&merge, "merge", false, "merge into an existing document instead of replacing it")
	_ = setCmd.MarkFlagRequired("data")
	docCmd.AddCommand(setCmd)

	rootCmd.AddCommand(docCmd)
}

func adminFirestore(cmd *cobra.Command) (*firestore.Firestore, error) {
	clients, err := cmdCtx.adminClients(cmd.Context())
	if err != nil {
		return nil, err
	}
	return firestore.New(clients.Firestore,
		firestore.WithLogger(cmdCtx.log),
		firestore.WithMaxAttempts(cmdCtx.cfg.TransactionMaxAttempts),
	), nil
}
