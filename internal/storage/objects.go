package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	defaultSignedURLExpiry = 15 * time.Minute
	maxSignedURLExpiry     = time.Hour
)

func (s *Storage) GetMetadata(ctx context.Context, ref *Ref) (*FullMetadata, error) {
	if ref.IsRoot() {
		return nil, newError(KindInvalidRootOperation, "cannot read metadata of the bucket root", nil)
	}
	attrs, err := s.object(ref).Attrs(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return fullMetadataFrom(attrs, ref), nil
}

// GetDownloadURL returns a long-lived Firebase download URL for the object. Objects
// uploaded without a download token get one.
func (s *Storage) GetDownloadURL(ctx context.Context, ref *Ref) (string, error) {
	if ref.IsRoot() {
		return "", newError(KindInvalidRootOperation, "cannot get a download URL for the bucket root", nil)
	}
	key := ref.String()
	if s.urls != nil {
		if u, ok := s.urls.Get(key); ok {
			return u, nil
		}
	}

	obj := s.object(ref)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return "", classify(err)
	}

	tokens := splitTokens(attrs.Metadata[downloadTokensKey])
	if len(tokens) == 0 {
		token := uuid.NewString()
		// Conditional on metageneration so a concurrent writer is not overwritten.
		_, err := obj.If(gcs.Conditions{MetagenerationMatch: attrs.Metageneration}).Update(ctx, gcs.ObjectAttrsToUpdate{
			Metadata: lo.Assign(attrs.Metadata, map[string]string{downloadTokensKey: token}),
		})
		if err != nil {
			return "", classify(err)
		}
		s.log.WithField("object", key).Debug("minted download token")
		tokens = []string{token}
	}

	u := buildDownloadURL(s.downloadHost, ref.bucket, ref.path, tokens[0])
	if s.urls != nil {
		s.urls.Add(key, u)
	}
	return u, nil
}

func buildDownloadURL(host, bucket, object, token string) string {
	return fmt.Sprintf("%s/v0/b/%s/o/%s?alt=media&token=%s",
		host, url.PathEscape(bucket), url.PathEscape(object), url.QueryEscape(token))
}

func (s *Storage) DeleteObject(ctx context.Context, ref *Ref) error {
	if ref.IsRoot() {
		return newError(KindInvalidRootOperation, "cannot delete the bucket root", nil)
	}
	if s.urls != nil {
		s.urls.Remove(ref.String())
	}
	if err := s.object(ref).Delete(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// SignedUploadURL returns a V4 signed URL that accepts a single PUT of the object.
// expires is clamped to an hour; zero means fifteen minutes.
func (s *Storage) SignedUploadURL(ctx context.Context, ref *Ref, contentType string, expires time.Duration) (string, time.Time, error) {
	if ref.IsRoot() {
		return "", time.Time{}, newError(KindInvalidRootOperation, "cannot sign an upload to the bucket root", nil)
	}
	if s.sign == nil || s.signerEmail == "" {
		return "", time.Time{}, newError(KindUnauthorized, "signed URLs need SIGNED_URL_SERVICE_ACCOUNT_EMAIL and an IAM credentials client", nil)
	}
	switch {
	case expires <= 0:
		expires = defaultSignedURLExpiry
	case expires > maxSignedURLExpiry:
		expires = maxSignedURLExpiry
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	exp := time.Now().Add(expires)

	u, err := gcs.SignedURL(ref.bucket, ref.path, &gcs.SignedURLOptions{
		Scheme:         gcs.SigningSchemeV4,
		Method:         "PUT",
		Expires:        exp,
		ContentType:    contentType,
		GoogleAccessID: s.signerEmail,
		SignBytes: func(b []byte) ([]byte, error) {
			return s.sign(ctx, b)
		},
	})
	if err != nil {
		return "", time.Time{}, newError(KindUnauthorized, "failed to sign url (check service account and permissions)", err)
	}
	return u, exp, nil
}
