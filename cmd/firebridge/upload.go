package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"firebridge/internal/storage"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	var (
		prefix      string
		contentType string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload local files to the storage bucket",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			clients, err := cmdCtx.adminClients(ctx)
			if err != nil {
				return err
			}
			st := storage.New(clients.Storage, clients.Bucket,
				storage.WithLogger(cmdCtx.log),
				storage.WithChunkSize(cmdCtx.cfg.UploadChunkSize),
				storage.WithEmulatorHost(cmdCtx.cfg.StorageEmulatorHost),
			)

			g, ctx := errgroup.WithContext(ctx)
			g.SetLimit(max(concurrency, 1))
			for _, file := range args {
				g.Go(func() error {
					return uploadFile(ctx, st, file, path.Join(prefix, filepath.Base(file)), contentType)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "object path prefix inside the bucket")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type for every file (sniffed when empty)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "number of files uploaded at once")

	rootCmd.AddCommand(cmd)
}

func uploadFile(ctx context.Context, st *storage.Storage, file, objectPath, contentType string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	ref, err := st.Ref(objectPath)
	if err != nil {
		return err
	}
	meta := storage.NewUploadMetadata()
	if contentType != "" {
		meta.ContentType(contentType)
	}

	task, err := st.UploadReader(ctx, ref, f, info.Size(), meta)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	log := cmdCtx.log.WithField("file", file)
	for snap, err := range task.Progress().All(ctx) {
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		log.WithFields(logrus.Fields{
			"sent":  units.HumanSize(float64(snap.BytesTransferred)),
			"total": units.HumanSize(float64(snap.TotalBytes)),
			"state": snap.State,
		}).Info("upload progress")
	}

	final, err := task.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	url, err := st.GetDownloadURL(ctx, ref)
	if err != nil {
		return fmt.Errorf("%s: download url: %w", file, err)
	}
	fmt.Printf("%s\t%s\t%s\t%s\n", file, ref, units.HumanSize(float64(final.BytesTransferred)), url)
	return nil
}
