package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"firebridge/internal/logger"

	gcs "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

type fakeWriter struct {
	ctx      context.Context
	progress func(int64)
	closeErr error

	mu        sync.Mutex
	attrs     gcs.ObjectAttrs
	buf       bytes.Buffer
	closed    bool
	committed bool
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	if err := w.ctx.Err(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	n, _ := w.buf.Write(p)
	total := int64(w.buf.Len())
	w.mu.Unlock()
	if w.progress != nil {
		w.progress(total)
	}
	return n, nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if w.closeErr != nil {
		return w.closeErr
	}
	w.committed = true
	w.attrs.Size = int64(w.buf.Len())
	return nil
}

func (w *fakeWriter) Attrs() *gcs.ObjectAttrs {
	w.mu.Lock()
	defer w.mu.Unlock()
	a := w.attrs
	return &a
}

type fakeBackend struct {
	closeErr error

	mu      sync.Mutex
	writers []*fakeWriter
}

func (b *fakeBackend) newWriter(ctx context.Context, ref *Ref, meta *UploadMetadataOptions, _ int, progress func(int64)) objectWriter {
	w := &fakeWriter{ctx: ctx, progress: progress, closeErr: b.closeErr}
	w.attrs = gcs.ObjectAttrs{Bucket: ref.Bucket(), Name: ref.FullPath(), Generation: 7, Metageneration: 1}
	meta.apply(&w.attrs)
	b.mu.Lock()
	b.writers = append(b.writers, w)
	b.mu.Unlock()
	return w
}

func (b *fakeBackend) writer(t *testing.T) *fakeWriter {
	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.writers, 1)
	return b.writers[0]
}

func newTestStorage(b *fakeBackend) *Storage {
	return New(nil, "demo.appspot.com", withWriterFunc(b.newWriter), WithLogger(logger.Discard()))
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustRef(t *testing.T, s *Storage, p string) *Ref {
	ref, err := s.Ref(p)
	require.NoError(t, err)
	return ref
}

func TestUploadBytes_ProgressToCompletion(t *testing.T) {
	ctx := testContext(t)
	backend := &fakeBackend{}
	s := newTestStorage(backend)
	data := bytes.Repeat([]byte("x"), 100*1024)

	meta := NewUploadMetadata().ContentType("text/plain").AddCustomMetadata("owner", "u1")
	task, err := s.UploadBytes(ctx, mustRef(t, s, "docs/big.txt"), data, meta)
	require.NoError(t, err)

	var last *UploadTaskSnapshot
	var prev uint64
	for snap, err := range task.Progress().All(ctx) {
		require.NoError(t, err)
		assert.GreaterOrEqual(t, snap.BytesTransferred, prev)
		prev = snap.BytesTransferred
		last = snap
	}
	require.NotNil(t, last)
	assert.Equal(t, uint64(len(data)), last.BytesTransferred)
	assert.Equal(t, uint64(len(data)), last.TotalBytes)

	final, err := task.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, TaskSuccess, final.State)
	require.NotNil(t, final.Metadata)
	assert.Equal(t, uint64(len(data)), final.Metadata.Size)
	assert.Equal(t, "text/plain", final.Metadata.ContentType)
	assert.Equal(t, "big.txt", final.Metadata.Name)
	assert.Equal(t, map[string]string{"owner": "u1"}, final.Metadata.CustomMetadata)

	w := backend.writer(t)
	assert.True(t, w.committed)
	assert.Equal(t, data, w.buf.Bytes())
}

func TestUploadReader_UnknownSize(t *testing.T) {
	ctx := testContext(t)
	s := newTestStorage(&fakeBackend{})

	task, err := s.UploadReader(ctx, mustRef(t, s, "notes.txt"), strings.NewReader("hello"), -1, nil)
	require.NoError(t, err)

	final, err := task.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), final.BytesTransferred)
	assert.Equal(t, uint64(5), final.TotalBytes)
}

func TestUpload_RejectsRootAndBadMetadata(t *testing.T) {
	ctx := testContext(t)
	s := newTestStorage(&fakeBackend{})

	_, err := s.UploadBytes(ctx, mustRef(t, s, ""), []byte("x"), nil)
	assert.True(t, IsKind(err, KindInvalidRootOperation))

	_, err = s.UploadBytes(ctx, mustRef(t, s, "a"), []byte("x"), NewUploadMetadata().MD5Hash("not base64!"))
	assert.True(t, IsKind(err, KindInvalidArgument))

	_, err = s.UploadBytes(ctx, mustRef(t, s, "a"), []byte("x"), NewUploadMetadata().AddCustomMetadata(downloadTokensKey, "t"))
	assert.True(t, IsKind(err, KindInvalidArgument))
}

func TestUploadTask_PauseResume(t *testing.T) {
	ctx := testContext(t)
	s := newTestStorage(&fakeBackend{})
	pr, pw := io.Pipe()

	task, err := s.UploadReader(ctx, mustRef(t, s, "p.bin"), pr, 4, nil)
	require.NoError(t, err)

	assert.False(t, task.Resume())
	assert.True(t, task.Pause())
	assert.False(t, task.Pause())
	assert.Equal(t, TaskPaused, task.Snapshot().State)
	assert.True(t, task.Resume())
	assert.False(t, task.Resume())
	assert.Equal(t, TaskRunning, task.Snapshot().State)

	go func() {
		_, _ = pw.Write([]byte("data"))
		_ = pw.Close()
	}()

	final, err := task.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, TaskSuccess, final.State)
	assert.False(t, task.Pause())
	assert.False(t, task.Resume())
	assert.False(t, task.Cancel())
}

func TestUploadTask_Cancel(t *testing.T) {
	ctx := testContext(t)
	backend := &fakeBackend{}
	s := newTestStorage(backend)
	pr, pw := io.Pipe()

	task, err := s.UploadReader(ctx, mustRef(t, s, "c.bin"), pr, 10, nil)
	require.NoError(t, err)
	it := task.Progress()

	assert.True(t, task.Pause())
	assert.True(t, task.Cancel())
	assert.False(t, task.Cancel())
	_ = pw.Close()

	_, err = task.Wait(ctx)
	assert.True(t, IsKind(err, KindCanceled))
	assert.Equal(t, TaskCanceled, task.Snapshot().State)

	var final error
	for final == nil {
		_, final = it.Next(ctx)
	}
	assert.True(t, IsKind(final, KindCanceled))
	_, err = it.Next(ctx)
	assert.Equal(t, iterator.Done, err)

	w := backend.writer(t)
	assert.True(t, w.closed)
	assert.False(t, w.committed)
}

func TestUploadTask_CloseFailure(t *testing.T) {
	ctx := testContext(t)
	s := newTestStorage(&fakeBackend{closeErr: &googleapi.Error{Code: 403, Message: "denied"}})

	task, err := s.UploadBytes(ctx, mustRef(t, s, "f.bin"), []byte("abc"), nil)
	require.NoError(t, err)

	_, err = task.Wait(ctx)
	assert.True(t, IsKind(err, KindUnauthorized))
	assert.Equal(t, TaskError, task.Snapshot().State)
}

func TestUploadTask_LateSubscriberReplay(t *testing.T) {
	ctx := testContext(t)
	s := newTestStorage(&fakeBackend{})

	task, err := s.UploadBytes(ctx, mustRef(t, s, "late.txt"), []byte("late"), nil)
	require.NoError(t, err)
	_, err = task.Wait(ctx)
	require.NoError(t, err)

	it := task.Progress()
	snap, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, TaskSuccess, snap.State)
	assert.Equal(t, uint64(4), snap.BytesTransferred)
	assert.Same(t, task, snap.Task)

	_, err = it.Next(ctx)
	assert.Equal(t, iterator.Done, err)
}

func TestUploadTask_LateSubscriberSeesFailure(t *testing.T) {
	ctx := testContext(t)
	s := newTestStorage(&fakeBackend{closeErr: &googleapi.Error{Code: 429}})

	task, err := s.UploadBytes(ctx, mustRef(t, s, "q.txt"), []byte("q"), nil)
	require.NoError(t, err)
	_, _ = task.Wait(ctx)

	got := make(chan error, 1)
	unsub, err := task.On(EventStateChanged, nil, func(err error) { got <- err }, nil)
	require.NoError(t, err)
	defer unsub()

	select {
	case err := <-got:
		assert.True(t, IsKind(err, KindQuotaExceeded))
	case <-ctx.Done():
		t.Fatal("no error delivered")
	}
}

func TestUploadTask_ObserverSequence(t *testing.T) {
	ctx := testContext(t)
	s := newTestStorage(&fakeBackend{})
	pr, pw := io.Pipe()

	task, err := s.UploadReader(ctx, mustRef(t, s, "seq.bin"), pr, 6, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []uint64
	var errs, completes int
	done := make(chan struct{})
	unsub, err := task.On(EventStateChanged,
		func(s *UploadTaskSnapshot) {
			mu.Lock()
			seen = append(seen, s.BytesTransferred)
			mu.Unlock()
		},
		func(error) {
			mu.Lock()
			errs++
			mu.Unlock()
		},
		func() {
			mu.Lock()
			completes++
			mu.Unlock()
			close(done)
		})
	require.NoError(t, err)

	go func() {
		_, _ = pw.Write([]byte("abc"))
		_, _ = pw.Write([]byte("def"))
		_ = pw.Close()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("upload never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, completes)
	assert.Zero(t, errs)
	require.NotEmpty(t, seen)
	assert.Equal(t, uint64(6), seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}

	assert.NoError(t, unsub())
	assert.NoError(t, unsub())
}

func TestUploadTask_RejectsUnknownEvent(t *testing.T) {
	ctx := testContext(t)
	s := newTestStorage(&fakeBackend{})

	task, err := s.UploadBytes(ctx, mustRef(t, s, "e.txt"), []byte("e"), nil)
	require.NoError(t, err)

	_, err = task.On("progress", nil, nil, nil)
	assert.True(t, IsKind(err, KindInvalidEventName))
	_, _ = task.Wait(ctx)
}
