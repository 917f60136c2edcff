package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventStateChanged is the only event an UploadTask accepts observers for.
const EventStateChanged = "state_changed"

type TaskState string

const (
	TaskRunning  TaskState = "running"
	TaskPaused   TaskState = "paused"
	TaskSuccess  TaskState = "success"
	TaskCanceled TaskState = "canceled"
	TaskError    TaskState = "error"
)

func (s TaskState) terminal() bool {
	return s == TaskSuccess || s == TaskCanceled || s == TaskError
}

// UploadTaskSnapshot is one observation of an upload. TotalBytes is zero while the
// size of a streamed upload is unknown.
type UploadTaskSnapshot struct {
	BytesTransferred uint64
	TotalBytes       uint64
	State            TaskState
	// Metadata is set once the upload succeeded.
	Metadata *FullMetadata
	Ref      *Ref
	Task     *UploadTask
}

type taskObserver struct {
	// after is the last broadcast queued before the observer registered; it has been
	// replayed to the observer already.
	after      uint64
	next       func(*UploadTaskSnapshot)
	onError    func(error)
	onComplete func()
}

// UploadTask is a resumable upload running in the background. Observers registered with
// On are notified one at a time, in order, from a goroutine that holds no task lock.
type UploadTask struct {
	id  string
	ref *Ref
	log logrus.FieldLogger

	mu          sync.Mutex
	state       TaskState
	transferred uint64
	total       uint64
	metadata    *FullMetadata
	err         error
	resumed     chan struct{} // non-nil while paused
	cancel      context.CancelFunc
	observers   map[uint64]*taskObserver
	nextID      uint64
	seq         uint64

	done   chan struct{}
	events dispatcher
}

// UploadBytes starts a resumable upload of data to ref.
func (s *Storage) UploadBytes(ctx context.Context, ref *Ref, data []byte, meta *UploadMetadataOptions) (*UploadTask, error) {
	return s.UploadReader(ctx, ref, bytes.NewReader(data), int64(len(data)), meta)
}

// UploadReader starts a resumable upload reading from r. A negative size means the
// length is not known up front. The upload lives until it finishes, is canceled, or ctx
// ends.
func (s *Storage) UploadReader(ctx context.Context, ref *Ref, r io.Reader, size int64, meta *UploadMetadataOptions) (*UploadTask, error) {
	if ref == nil || ref.IsRoot() {
		return nil, newError(KindInvalidRootOperation, "cannot upload to the root of a bucket", nil)
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &UploadTask{
		id:        uuid.NewString(),
		ref:       ref,
		state:     TaskRunning,
		cancel:    cancel,
		observers: map[uint64]*taskObserver{},
		done:      make(chan struct{}),
	}
	if size >= 0 {
		t.total = uint64(size)
	}
	t.log = s.log.WithFields(logrus.Fields{"upload": t.id, "object": ref.String()})

	w := s.newWriter(ctx, ref, meta, s.chunkSize, t.onProgress)
	go t.run(ctx, w, &pausableReader{r: r, task: t, ctx: ctx})

	t.log.Debug("upload started")
	return t, nil
}

func (t *UploadTask) ID() string { return t.id }
func (t *UploadTask) Ref() *Ref  { return t.ref }

func (t *UploadTask) run(ctx context.Context, w objectWriter, r io.Reader) {
	defer close(t.done)
	defer t.cancel()

	_, err := io.Copy(w, r)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		// Cancel before Close so a partial object is never committed.
		t.cancel()
		_ = w.Close()
		t.fail(err)
		return
	}
	if err := w.Close(); err != nil {
		t.fail(err)
		return
	}
	t.succeed(fullMetadataFrom(w.Attrs(), t.ref))
}

func (t *UploadTask) onProgress(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.terminal() || n < 0 {
		return
	}
	t.transferred = uint64(n)
	if t.total != 0 && t.transferred > t.total {
		t.total = t.transferred
	}
	t.emitLocked(0, t.snapshotLocked(), nil, false)
}

func (t *UploadTask) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.terminal() {
		return
	}
	t.state = TaskError
	t.err = classify(err)
	t.log.WithError(err).Warn("upload failed")
	t.emitLocked(0, nil, t.err, false)
}

func (t *UploadTask) succeed(meta *FullMetadata) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.terminal() {
		return
	}
	final := t.transferred
	if meta != nil && meta.Size > final {
		final = meta.Size
	}
	if t.total > final {
		final = t.total
	}
	if final != t.transferred || t.total == 0 {
		t.transferred, t.total = final, final
		t.emitLocked(0, t.snapshotLocked(), nil, false)
	}
	t.state = TaskSuccess
	t.metadata = meta
	t.log.WithField("bytes", final).Info("upload finished")
	t.emitLocked(0, nil, nil, true)
}

// Pause reports whether the task was running and is now paused.
func (t *UploadTask) Pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskRunning {
		return false
	}
	t.state = TaskPaused
	t.resumed = make(chan struct{})
	t.emitLocked(0, t.snapshotLocked(), nil, false)
	return true
}

// Resume reports whether the task was paused and is now running again.
func (t *UploadTask) Resume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskPaused {
		return false
	}
	t.state = TaskRunning
	close(t.resumed)
	t.resumed = nil
	t.emitLocked(0, t.snapshotLocked(), nil, false)
	return true
}

// Cancel aborts a running or paused upload; observers receive a storage/canceled error.
func (t *UploadTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskRunning && t.state != TaskPaused {
		return false
	}
	t.state = TaskCanceled
	t.err = newError(KindCanceled, "user canceled the upload", nil)
	if t.resumed != nil {
		close(t.resumed)
		t.resumed = nil
	}
	t.cancel()
	t.log.Info("upload canceled")
	t.emitLocked(0, nil, t.err, false)
	return true
}

func (t *UploadTask) Snapshot() *UploadTaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Wait blocks until the upload reached a terminal state and returns the final snapshot,
// with the task's error if it did not succeed.
func (t *UploadTask) Wait(ctx context.Context) (*UploadTaskSnapshot, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(), t.err
}

// On registers observers for event. next, onError and onComplete may each be nil. A new
// observer is sent the current snapshot right away, followed by the terminal
// notification if the task already finished.
func (t *UploadTask) On(event string, next func(*UploadTaskSnapshot), onError func(error), onComplete func()) (Unsubscribe, error) {
	if event != EventStateChanged {
		return nil, newError(KindInvalidEventName, fmt.Sprintf("invalid event name %q, expected %q", event, EventStateChanged), nil)
	}

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.observers[id] = &taskObserver{after: t.seq, next: next, onError: onError, onComplete: onComplete}
	switch t.state {
	case TaskSuccess:
		t.emitLocked(id, t.snapshotLocked(), nil, false)
		t.emitLocked(id, nil, nil, true)
	case TaskCanceled, TaskError:
		t.emitLocked(id, nil, t.err, false)
	default:
		t.emitLocked(id, t.snapshotLocked(), nil, false)
	}
	t.mu.Unlock()

	var once sync.Once
	return func() error {
		once.Do(func() {
			t.mu.Lock()
			delete(t.observers, id)
			t.mu.Unlock()
		})
		return nil
	}, nil
}

// Progress returns a pull based view of this task's notifications.
func (t *UploadTask) Progress() *UploadTaskIterator {
	return NewUploadTaskIterator(t, t.log)
}

func (t *UploadTask) snapshotLocked() *UploadTaskSnapshot {
	return &UploadTaskSnapshot{
		BytesTransferred: t.transferred,
		TotalBytes:       t.total,
		State:            t.state,
		Metadata:         t.metadata,
		Ref:              t.ref,
		Task:             t,
	}
}

// emitLocked queues one notification for observer target, or every observer when target
// is zero. Exactly one of snap, err and complete is set. Queueing under t.mu keeps the
// delivery order equal to the order of state changes.
func (t *UploadTask) emitLocked(target uint64, snap *UploadTaskSnapshot, err error, complete bool) {
	var seq uint64
	if target == 0 {
		t.seq++
		seq = t.seq
	}
	t.events.enqueue(func() {
		for _, o := range t.observersFor(target, seq) {
			switch {
			case snap != nil:
				if o.next != nil {
					o.next(snap)
				}
			case err != nil:
				if o.onError != nil {
					o.onError(err)
				}
			case complete:
				if o.onComplete != nil {
					o.onComplete()
				}
			}
		}
	})
}

func (t *UploadTask) observersFor(target, seq uint64) []*taskObserver {
	t.mu.Lock()
	defer t.mu.Unlock()
	if target != 0 {
		if o, ok := t.observers[target]; ok {
			return []*taskObserver{o}
		}
		return nil
	}
	ids := make([]uint64, 0, len(t.observers))
	for id := range t.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*taskObserver, 0, len(ids))
	for _, id := range ids {
		if o := t.observers[id]; seq > o.after {
			out = append(out, o)
		}
	}
	return out
}

// dispatcher runs queued functions one at a time, in order, on a goroutine that exists
// only while the queue is non-empty.
type dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (d *dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()
	go d.drain()
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()
		fn()
	}
}

// pausableReader blocks reads while the task is paused.
type pausableReader struct {
	r    io.Reader
	task *UploadTask
	ctx  context.Context
}

func (p *pausableReader) Read(b []byte) (int, error) {
	for {
		p.task.mu.Lock()
		resumed := p.task.resumed
		p.task.mu.Unlock()
		if resumed == nil {
			break
		}
		select {
		case <-resumed:
		case <-p.ctx.Done():
			return 0, p.ctx.Err()
		}
	}
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	return p.r.Read(b)
}
