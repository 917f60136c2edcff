package storage

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Ref points at an object (or a prefix) in a bucket. The zero path is the bucket root.
type Ref struct {
	storage *Storage
	bucket  string
	path    string
}

// Ref accepts a plain object path resolved against the default bucket, or a
// gs://bucket/path URL.
func (s *Storage) Ref(p string) (*Ref, error) {
	bucket := s.bucket
	if rest, ok := strings.CutPrefix(p, "gs://"); ok {
		b, obj, _ := strings.Cut(rest, "/")
		if b == "" {
			return nil, newError(KindInvalidURL, fmt.Sprintf("invalid storage URL %q", p), nil)
		}
		bucket, p = b, obj
	}
	if bucket == "" {
		return nil, newError(KindNoDefaultBucket, "no default bucket configured", nil)
	}
	return &Ref{storage: s, bucket: bucket, path: cleanPath(p)}, nil
}

// cleanPath drops empty segments and normalizes to NFC, which Cloud Storage expects
// for object names.
func cleanPath(p string) string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return norm.NFC.String(strings.Join(out, "/"))
}

func (r *Ref) Bucket() string   { return r.bucket }
func (r *Ref) FullPath() string { return r.path }
func (r *Ref) IsRoot() bool     { return r.path == "" }

// Name is the last path segment.
func (r *Ref) Name() string {
	if r.path == "" {
		return ""
	}
	return path.Base(r.path)
}

// Parent returns nil for the bucket root.
func (r *Ref) Parent() *Ref {
	if r.path == "" {
		return nil
	}
	dir := path.Dir(r.path)
	if dir == "." {
		dir = ""
	}
	return &Ref{storage: r.storage, bucket: r.bucket, path: dir}
}

func (r *Ref) Root() *Ref {
	return &Ref{storage: r.storage, bucket: r.bucket}
}

func (r *Ref) Child(p string) *Ref {
	return &Ref{storage: r.storage, bucket: r.bucket, path: cleanPath(r.path + "/" + p)}
}

func (r *Ref) String() string {
	return "gs://" + r.bucket + "/" + r.path
}
