package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"firebridge/internal/logger"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
)

// Observer is the push side of an upload: it delivers progress, error and completion
// notifications for an event until the returned Unsubscribe is called.
type Observer interface {
	On(event string, next func(*UploadTaskSnapshot), onError func(error), onComplete func()) (Unsubscribe, error)
}

// Unsubscribe detaches previously registered observers. Calling it again is a no-op.
type Unsubscribe func() error

var errPending = errors.New("storage: no upload progress available yet")

// UploadTaskIterator is a pull view over an Observer. It keeps only the latest
// unconsumed snapshot: progress that arrives faster than Next is called collapses to
// the newest value. Terminal notifications are never dropped.
//
// Callers must call Stop when they are done with the iterator unless Next has already
// returned a terminal result.
type UploadTaskIterator struct {
	log logrus.FieldLogger

	mu        sync.Mutex
	snapshot  *UploadTaskSnapshot
	err       error
	completed bool
	stopped   bool
	wake      func()

	unsub    Unsubscribe
	stopOnce sync.Once
}

// NewUploadTaskIterator subscribes to obs right away. If the subscription is refused,
// the refusal is the iterator's only result.
func NewUploadTaskIterator(obs Observer, log logrus.FieldLogger) *UploadTaskIterator {
	it := &UploadTaskIterator{log: logger.Component(log, "upload-progress")}
	unsub, err := obs.On(EventStateChanged, it.onNext, it.onError, it.onComplete)
	if err != nil {
		it.mu.Lock()
		it.err, it.completed = err, true
		it.mu.Unlock()
		return it
	}
	it.unsub = unsub
	return it
}

func (it *UploadTaskIterator) onNext(s *UploadTaskSnapshot) {
	it.mu.Lock()
	if it.stopped || it.completed {
		it.mu.Unlock()
		return
	}
	it.snapshot = s
	wake := it.wake
	it.mu.Unlock()
	if wake != nil {
		wake()
	}
}

func (it *UploadTaskIterator) onError(err error) {
	it.mu.Lock()
	if it.stopped || it.completed {
		it.mu.Unlock()
		return
	}
	it.err = err
	it.completed = true
	wake := it.wake
	it.mu.Unlock()
	if wake != nil {
		wake()
	}
}

func (it *UploadTaskIterator) onComplete() {
	it.mu.Lock()
	if it.stopped || it.completed {
		it.mu.Unlock()
		return
	}
	it.completed = true
	wake := it.wake
	it.mu.Unlock()
	if wake != nil {
		wake()
	}
}

// poll records wake as the function to call when something changes and reports the
// current result without blocking: a snapshot, a terminal error, iterator.Done, or
// errPending when nothing is ready.
//
// A terminal error wins over a buffered snapshot. A clean completion still hands out the
// last buffered snapshot before reporting iterator.Done.
func (it *UploadTaskIterator) poll(wake func()) (*UploadTaskSnapshot, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.wake = wake
	if it.stopped {
		return nil, iterator.Done
	}
	if it.completed && it.err != nil {
		err := it.err
		it.err = nil
		it.snapshot = nil
		return nil, err
	}
	if s := it.snapshot; s != nil {
		it.snapshot = nil
		return s, nil
	}
	if it.completed {
		return nil, iterator.Done
	}
	return nil, errPending
}

// Next blocks until the next snapshot is available. At the end of the upload it returns
// iterator.Done, or the upload's error once followed by iterator.Done on later calls.
// Either way the subscription has been released by then. If ctx ends first, Next returns
// ctx.Err() and the iterator stays usable.
func (it *UploadTaskIterator) Next(ctx context.Context) (*UploadTaskSnapshot, error) {
	ready := make(chan struct{}, 1)
	wake := func() {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	for {
		s, err := it.poll(wake)
		switch {
		case err == nil:
			return s, nil
		case err == errPending:
			select {
			case <-ready:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		default:
			if stopErr := it.Stop(); stopErr != nil {
				return nil, errors.Join(err, stopErr)
			}
			return nil, err
		}
	}
}

// All ranges over the remaining snapshots. A non-nil error is always the last element.
// Breaking out of the loop releases the subscription.
func (it *UploadTaskIterator) All(ctx context.Context) iter.Seq2[*UploadTaskSnapshot, error] {
	return func(yield func(*UploadTaskSnapshot, error) bool) {
		defer it.Stop()
		for {
			s, err := it.Next(ctx)
			if err == iterator.Done {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(s, nil) {
				return
			}
		}
	}
}

// Stop releases the subscription. Only the first call does any work; a failing
// unsubscribe is logged and returned from that call.
func (it *UploadTaskIterator) Stop() error {
	var err error
	it.stopOnce.Do(func() {
		it.mu.Lock()
		it.stopped = true
		it.snapshot = nil
		it.wake = nil
		unsub := it.unsub
		it.mu.Unlock()

		if unsub == nil {
			return
		}
		if uerr := unsub(); uerr != nil {
			it.log.WithError(uerr).Error("unsubscribe from upload task failed, observers may still be attached")
			err = fmt.Errorf("storage: unsubscribe: %w", uerr)
		}
	})
	return err
}
