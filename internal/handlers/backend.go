package handlers

import (
	"context"
	"io"
	"time"

	"firebridge/internal/storage"
)

// Upload is a running upload: *storage.UploadTask.
type Upload interface {
	storage.Observer
	Wait(ctx context.Context) (*storage.UploadTaskSnapshot, error)
	Cancel() bool
}

// ObjectBackend addresses objects of one bucket by path.
type ObjectBackend interface {
	Upload(ctx context.Context, path string, body io.Reader, size int64, meta *storage.UploadMetadataOptions) (Upload, error)
	Metadata(ctx context.Context, path string) (*storage.FullMetadata, error)
	DownloadURL(ctx context.Context, path string) (string, error)
	Delete(ctx context.Context, path string) error
	SignedUploadURL(ctx context.Context, path, contentType string, expires time.Duration) (string, time.Time, error)
}

type storageBackend struct {
	s *storage.Storage
}

func NewStorageBackend(s *storage.Storage) ObjectBackend {
	return &storageBackend{s: s}
}

func (b *storageBackend) Upload(ctx context.Context, path string, body io.Reader, size int64, meta *storage.UploadMetadataOptions) (Upload, error) {
	ref, err := b.s.Ref(path)
	if err != nil {
		return nil, err
	}
	t, err := b.s.UploadReader(ctx, ref, body, size, meta)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (b *storageBackend) Metadata(ctx context.Context, path string) (*storage.FullMetadata, error) {
	ref, err := b.s.Ref(path)
	if err != nil {
		return nil, err
	}
	return b.s.GetMetadata(ctx, ref)
}

func (b *storageBackend) DownloadURL(ctx context.Context, path string) (string, error) {
	ref, err := b.s.Ref(path)
	if err != nil {
		return "", err
	}
	return b.s.GetDownloadURL(ctx, ref)
}

func (b *storageBackend) Delete(ctx context.Context, path string) error {
	ref, err := b.s.Ref(path)
	if err != nil {
		return err
	}
	return b.s.DeleteObject(ctx, ref)
}

func (b *storageBackend) SignedUploadURL(ctx context.Context, path, contentType string, expires time.Duration) (string, time.Time, error) {
	ref, err := b.s.Ref(path)
	if err != nil {
		return "", time.Time{}, err
	}
	return b.s.SignedUploadURL(ctx, ref, contentType, expires)
}
