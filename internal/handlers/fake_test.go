package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"firebridge/internal/middleware"
	"firebridge/internal/storage"

	"github.com/go-chi/chi/v5"
)

// fakeUpload replays a fixed sequence of notifications to its observer.
type fakeUpload struct {
	snaps    []*storage.UploadTaskSnapshot
	err      error
	final    *storage.UploadTaskSnapshot
	canceled atomic.Bool
}

func (u *fakeUpload) On(_ string, next func(*storage.UploadTaskSnapshot), onError func(error), onComplete func()) (storage.Unsubscribe, error) {
	go func() {
		for _, s := range u.snaps {
			next(s)
		}
		if u.err != nil {
			onError(u.err)
			return
		}
		onComplete()
	}()
	return func() error { return nil }, nil
}

func (u *fakeUpload) Wait(context.Context) (*storage.UploadTaskSnapshot, error) {
	return u.final, u.err
}

func (u *fakeUpload) Cancel() bool { return u.canceled.CompareAndSwap(false, true) }

type fakeObjects struct {
	mu       sync.Mutex
	upload   *fakeUpload
	uploaded map[string][]byte
	objects  map[string]*storage.FullMetadata
	signErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{uploaded: map[string][]byte{}, objects: map[string]*storage.FullMetadata{}}
}

func (f *fakeObjects) Upload(_ context.Context, path string, body io.Reader, _ int64, _ *storage.UploadMetadataOptions) (Upload, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded[path] = raw
	if f.upload == nil {
		return nil, storage.FromCode("storage/invalid-argument", "no upload scripted")
	}
	return f.upload, nil
}

func (f *fakeObjects) Metadata(_ context.Context, path string) (*storage.FullMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.objects[path]; ok {
		return m, nil
	}
	return nil, storage.FromCode("storage/object-not-found", "object does not exist")
}

func (f *fakeObjects) DownloadURL(ctx context.Context, path string) (string, error) {
	if _, err := f.Metadata(ctx, path); err != nil {
		return "", err
	}
	return "https://download.example/" + path + "?token=t1", nil
}

func (f *fakeObjects) Delete(ctx context.Context, path string) error {
	if _, err := f.Metadata(ctx, path); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, path)
	return nil
}

func (f *fakeObjects) SignedUploadURL(_ context.Context, path, contentType string, expires time.Duration) (string, time.Time, error) {
	if f.signErr != nil {
		return "", time.Time{}, f.signErr
	}
	if strings.Contains(path, "fail") {
		return "", time.Time{}, errors.New("boom")
	}
	if expires <= 0 {
		expires = 15 * time.Minute
	}
	return "https://signed.example/" + path + "?ct=" + contentType, time.Unix(1700000000, 0).Add(expires), nil
}

// serve runs a request through a chi router with the caller already authenticated.
func serve(method, pattern string, h http.HandlerFunc, req *http.Request, au *middleware.AuthUser) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	if au != nil {
		req = req.WithContext(middleware.WithAuthUser(req.Context(), au))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

var (
	alice = &middleware.AuthUser{UID: "alice", Email: "alice@example.com", Claims: map[string]any{}}
	admin = &middleware.AuthUser{UID: "root", Claims: map[string]any{"admin": true}}
)
