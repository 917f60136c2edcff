package firestore

import (
	"context"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ListenerUnsubscribe stops a listener. No callback starts after it returns, though one
// already running on the listener goroutine finishes. Calling it again is a no-op.
type ListenerUnsubscribe func()

// OnSnapshotDoc calls onNext with the current state of ref and again on every change,
// from a single goroutine. onError is called at most once, after which the listener is
// done. A missing document is delivered as a snapshot with Exists() == false.
func (f *Firestore) OnSnapshotDoc(ctx context.Context, ref *DocumentReference, onNext func(*DocumentSnapshot), onError func(error)) ListenerUnsubscribe {
	ctx, cancel := context.WithCancel(ctx)
	it := ref.ref.Snapshots(ctx)
	l := &listener{cancel: cancel, stop: it.Stop}

	go func() {
		defer l.close()
		for {
			snap, err := it.Next()
			if err != nil {
				l.fail(ctx, err, onError)
				return
			}
			if !l.deliver(func() { onNext(&DocumentSnapshot{snap: snap, ref: ref}) }) {
				return
			}
		}
	}()

	f.log.WithField("doc", ref.Path()).Debug("document listener started")
	return l.unsubscribe
}

// OnSnapshotQuery is OnSnapshotDoc for the result set of q. Snapshots carry the
// document changes since the previous one.
func (f *Firestore) OnSnapshotQuery(ctx context.Context, q Queryable, onNext func(*QuerySnapshot), onError func(error)) ListenerUnsubscribe {
	query, err := q.gcfsQuery()
	if err != nil {
		if onError != nil {
			go onError(err)
		}
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	it := query.Snapshots(ctx)
	l := &listener{cancel: cancel, stop: it.Stop}

	go func() {
		defer l.close()
		for {
			qs, err := it.Next()
			if err != nil {
				l.fail(ctx, err, onError)
				return
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				l.fail(ctx, err, onError)
				return
			}
			out := &QuerySnapshot{ReadTime: qs.ReadTime, Changes: changesFrom(qs.Changes)}
			for _, d := range docs {
				out.Docs = append(out.Docs, newDocumentSnapshot(d))
			}
			if !l.deliver(func() { onNext(out) }) {
				return
			}
		}
	}()

	return l.unsubscribe
}

type listener struct {
	cancel  context.CancelFunc
	stop    func()
	stopped atomic.Bool
}

func (l *listener) deliver(cb func()) bool {
	if l.stopped.Load() {
		return false
	}
	cb()
	return !l.stopped.Load()
}

func (l *listener) fail(ctx context.Context, err error, onError func(error)) {
	if onError == nil || ctx.Err() != nil || status.Code(err) == codes.Canceled {
		return
	}
	l.deliver(func() { onError(classify(err)) })
}

func (l *listener) unsubscribe() {
	l.stopped.Store(true)
	l.cancel()
}

func (l *listener) close() {
	l.cancel()
	l.stop()
}
