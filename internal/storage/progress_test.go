package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"firebridge/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

// fakeObserver stands in for an upload task. It keeps the last registered sinks even after
// unsubscribe so tests can simulate a late callback from the backend.
type fakeObserver struct {
	mu           sync.Mutex
	event        string
	next         func(*UploadTaskSnapshot)
	onError      func(error)
	onComplete   func()
	attached     bool
	unsubscribed int
	unsubErr     error
	refuse       error
}

func (f *fakeObserver) On(event string, next func(*UploadTaskSnapshot), onError func(error), onComplete func()) (Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse != nil {
		return nil, f.refuse
	}
	f.event = event
	f.next, f.onError, f.onComplete = next, onError, onComplete
	f.attached = true
	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubscribed++
		f.attached = false
		return f.unsubErr
	}, nil
}

func (f *fakeObserver) progress(done, total uint64) {
	f.mu.Lock()
	next := f.next
	f.mu.Unlock()
	next(&UploadTaskSnapshot{BytesTransferred: done, TotalBytes: total, State: TaskRunning})
}

func (f *fakeObserver) fail(err error) {
	f.mu.Lock()
	onError := f.onError
	f.mu.Unlock()
	onError(err)
}

func (f *fakeObserver) complete() {
	f.mu.Lock()
	onComplete := f.onComplete
	f.mu.Unlock()
	onComplete()
}

func (f *fakeObserver) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

func noWake() {}

func newTestIterator(obs Observer) *UploadTaskIterator {
	return NewUploadTaskIterator(obs, logger.Discard())
}

func TestUploadTaskIterator_SubscribesToStateChanged(t *testing.T) {
	obs := &fakeObserver{}
	newTestIterator(obs)
	assert.Equal(t, EventStateChanged, obs.event)
	assert.True(t, obs.attached)
}

func TestUploadTaskIterator_ProgressThenComplete(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)

	obs.progress(500, 1000)
	s, err := it.poll(noWake)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), s.BytesTransferred)
	assert.Equal(t, uint64(1000), s.TotalBytes)
	assert.Equal(t, TaskRunning, s.State)

	obs.progress(1000, 1000)
	obs.complete()

	s, err = it.poll(noWake)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), s.BytesTransferred)

	_, err = it.poll(noWake)
	assert.Equal(t, iterator.Done, err)
}

func TestUploadTaskIterator_ErrorThenExhausted(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)
	backendErr := errors.New("network-failure")

	obs.fail(backendErr)

	_, err := it.poll(noWake)
	assert.Equal(t, backendErr, err)

	_, err = it.poll(noWake)
	assert.Equal(t, iterator.Done, err)
}

func TestUploadTaskIterator_KeepsOnlyLatestSnapshot(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)

	obs.progress(100, 1000)
	obs.progress(200, 1000)
	obs.progress(300, 1000)

	s, err := it.poll(noWake)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), s.BytesTransferred)

	_, err = it.poll(noWake)
	assert.Equal(t, errPending, err)
}

func TestUploadTaskIterator_StopWithoutPolling(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)

	require.NoError(t, it.Stop())
	assert.Equal(t, 1, obs.unsubscribeCount())
	assert.False(t, obs.attached)

	// A callback racing the teardown must not reach the iterator.
	obs.progress(10, 100)
	obs.complete()
	_, err := it.poll(noWake)
	assert.Equal(t, iterator.Done, err)

	require.NoError(t, it.Stop())
	assert.Equal(t, 1, obs.unsubscribeCount())
}

func TestUploadTaskIterator_SingleSlotForManyEvents(t *testing.T) {
	for _, n := range []int{1, 2, 17, 1000} {
		obs := &fakeObserver{}
		it := newTestIterator(obs)
		for i := 1; i <= n; i++ {
			obs.progress(uint64(i), uint64(n))
		}

		it.mu.Lock()
		buffered := it.snapshot
		it.mu.Unlock()
		require.NotNil(t, buffered)

		s, err := it.poll(noWake)
		require.NoError(t, err)
		assert.Equal(t, uint64(n), s.BytesTransferred)
		_, err = it.poll(noWake)
		assert.Equal(t, errPending, err)
	}
}

func TestUploadTaskIterator_ErrorWinsOverBufferedSnapshot(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)
	backendErr := errors.New("storage/unauthorized")

	obs.progress(700, 1000)
	obs.fail(backendErr)

	_, err := it.poll(noWake)
	assert.Equal(t, backendErr, err)
	s, err := it.poll(noWake)
	assert.Nil(t, s)
	assert.Equal(t, iterator.Done, err)
}

func TestUploadTaskIterator_SecondTerminalIgnored(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)

	obs.complete()
	obs.fail(errors.New("late"))
	obs.progress(1, 1)

	_, err := it.poll(noWake)
	assert.Equal(t, iterator.Done, err)
}

func TestUploadTaskIterator_ExhaustionIsIdempotent(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)
	obs.complete()

	for i := 0; i < 5; i++ {
		s, err := it.poll(noWake)
		assert.Nil(t, s)
		assert.Equal(t, iterator.Done, err)
	}
}

func TestUploadTaskIterator_PendingPollOnlyRecordsWaker(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)

	var first, second int
	_, err := it.poll(func() { first++ })
	assert.Equal(t, errPending, err)
	_, err = it.poll(func() { second++ })
	assert.Equal(t, errPending, err)

	it.mu.Lock()
	assert.Nil(t, it.snapshot)
	assert.Nil(t, it.err)
	assert.False(t, it.completed)
	it.mu.Unlock()

	obs.progress(1, 2)
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestUploadTaskIterator_NextWaitsForProgress(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)

	go func() {
		time.Sleep(10 * time.Millisecond)
		obs.progress(42, 100)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), s.BytesTransferred)
}

func TestUploadTaskIterator_NextReleasesOnExhaustion(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)
	obs.progress(5, 5)
	obs.complete()

	ctx := context.Background()
	s, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), s.BytesTransferred)

	_, err = it.Next(ctx)
	assert.Equal(t, iterator.Done, err)
	assert.Equal(t, 1, obs.unsubscribeCount())

	_, err = it.Next(ctx)
	assert.Equal(t, iterator.Done, err)
	require.NoError(t, it.Stop())
	assert.Equal(t, 1, obs.unsubscribeCount())
}

func TestUploadTaskIterator_NextReleasesOnError(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)
	backendErr := errors.New("boom")
	obs.fail(backendErr)

	_, err := it.Next(context.Background())
	assert.Equal(t, backendErr, err)
	assert.Equal(t, 1, obs.unsubscribeCount())
}

func TestUploadTaskIterator_NextHonoursContext(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := it.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, obs.unsubscribeCount())

	obs.progress(1, 1)
	s, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.BytesTransferred)
	require.NoError(t, it.Stop())
}

func TestUploadTaskIterator_AllBreakReleases(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)
	obs.progress(1, 10)

	for s, err := range it.All(context.Background()) {
		require.NoError(t, err)
		assert.Equal(t, uint64(1), s.BytesTransferred)
		break
	}
	assert.Equal(t, 1, obs.unsubscribeCount())
}

func TestUploadTaskIterator_AllYieldsTrailingError(t *testing.T) {
	obs := &fakeObserver{}
	it := newTestIterator(obs)
	backendErr := errors.New("quota")

	go func() {
		obs.progress(1, 3)
		time.Sleep(5 * time.Millisecond)
		obs.fail(backendErr)
	}()

	var errs []error
	for _, err := range it.All(context.Background()) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	assert.Equal(t, []error{backendErr}, errs)
	assert.Equal(t, 1, obs.unsubscribeCount())
}

func TestUploadTaskIterator_UnsubscribeFailureIsReported(t *testing.T) {
	unsubErr := errors.New("listener registry gone")
	obs := &fakeObserver{unsubErr: unsubErr}
	it := newTestIterator(obs)
	obs.complete()

	_, err := it.Next(context.Background())
	assert.ErrorIs(t, err, iterator.Done)
	assert.ErrorIs(t, err, unsubErr)

	_, err = it.Next(context.Background())
	assert.Equal(t, iterator.Done, err)
}

func TestUploadTaskIterator_StopReturnsUnsubscribeError(t *testing.T) {
	unsubErr := errors.New("nope")
	it := newTestIterator(&fakeObserver{unsubErr: unsubErr})

	assert.ErrorIs(t, it.Stop(), unsubErr)
	assert.NoError(t, it.Stop())
}

func TestUploadTaskIterator_RefusedSubscription(t *testing.T) {
	refusal := newError(KindInvalidEventName, "bad event", nil)
	it := newTestIterator(&fakeObserver{refuse: refusal})

	_, err := it.Next(context.Background())
	assert.True(t, IsKind(err, KindInvalidEventName))
	_, err = it.Next(context.Background())
	assert.Equal(t, iterator.Done, err)
}
