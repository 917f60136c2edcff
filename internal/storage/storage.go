package storage

import (
	"context"
	"fmt"
	"io"

	"firebridge/internal/logger"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	credentialspb "cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	gcs "cloud.google.com/go/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

const (
	defaultChunkSize    = 8 * 1024 * 1024
	defaultURLCacheSize = 1024
	defaultDownloadHost = "https://firebasestorage.googleapis.com"
)

// objectWriter is the part of *gcs.Writer an upload needs.
type objectWriter interface {
	io.Writer
	Close() error
	Attrs() *gcs.ObjectAttrs
}

type writerFunc func(ctx context.Context, ref *Ref, meta *UploadMetadataOptions, chunkSize int, progress func(int64)) objectWriter

// SignBytesFunc signs V4 URL payloads on behalf of a service account.
type SignBytesFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Storage is a bucket-scoped handle over a Cloud Storage client.
type Storage struct {
	client       *gcs.Client
	bucket       string
	chunkSize    int
	downloadHost string
	newWriter    writerFunc

	signerEmail string
	sign        SignBytesFunc

	urls *lru.Cache[string, string]
	log  logrus.FieldLogger
}

type Option func(*Storage)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Storage) { s.log = logger.Component(l, "storage") }
}

// WithChunkSize sets the resumable upload chunk size. Zero uploads in a single request,
// which reports no intermediate progress.
func WithChunkSize(n int) Option {
	return func(s *Storage) { s.chunkSize = n }
}

// WithEmulatorHost points download URLs at a local storage emulator ("localhost:9199").
// The Cloud Storage client itself picks up STORAGE_EMULATOR_HOST on its own.
func WithEmulatorHost(host string) Option {
	return func(s *Storage) {
		if host != "" {
			s.downloadHost = "http://" + host
		}
	}
}

func WithDownloadURLCacheSize(n int) Option {
	return func(s *Storage) {
		if n <= 0 {
			s.urls = nil
			return
		}
		s.urls, _ = lru.New[string, string](n)
	}
}

func WithSigner(email string, sign SignBytesFunc) Option {
	return func(s *Storage) {
		s.signerEmail = email
		s.sign = sign
	}
}

// WithIAMSigner signs upload URLs with the IAM credentials SignBlob API.
func WithIAMSigner(iam *credentials.IamCredentialsClient, email string) Option {
	if iam == nil || email == "" {
		return func(*Storage) {}
	}
	return WithSigner(email, func(ctx context.Context, payload []byte) ([]byte, error) {
		resp, err := iam.SignBlob(ctx, &credentialspb.SignBlobRequest{
			Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", email),
			Payload: payload,
		})
		if err != nil {
			return nil, err
		}
		return resp.SignedBlob, nil
	})
}

func withWriterFunc(fn writerFunc) Option {
	return func(s *Storage) { s.newWriter = fn }
}

func New(client *gcs.Client, bucket string, opts ...Option) *Storage {
	s := &Storage{
		client:       client,
		bucket:       bucket,
		chunkSize:    defaultChunkSize,
		downloadHost: defaultDownloadHost,
		log:          logger.Component(nil, "storage"),
	}
	s.urls, _ = lru.New[string, string](defaultURLCacheSize)
	s.newWriter = s.gcsWriter
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) Bucket() string { return s.bucket }

func (s *Storage) object(ref *Ref) *gcs.ObjectHandle {
	return s.client.Bucket(ref.bucket).Object(ref.path)
}

func (s *Storage) gcsWriter(ctx context.Context, ref *Ref, meta *UploadMetadataOptions, chunkSize int, progress func(int64)) objectWriter {
	w := s.object(ref).NewWriter(ctx)
	w.ChunkSize = chunkSize
	w.ProgressFunc = progress
	meta.apply(&w.ObjectAttrs)
	return w
}
