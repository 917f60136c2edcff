package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gcfs "cloud.google.com/go/firestore"
)

type TransactionErrorKind int

const (
	// TransactionFailed means the backend gave up: contention past the attempt budget,
	// a commit error, an unavailable service.
	TransactionFailed TransactionErrorKind = iota
	// TransactionAborted means the transaction function returned an error.
	TransactionAborted
)

func (k TransactionErrorKind) String() string {
	if k == TransactionAborted {
		return "aborted by caller"
	}
	return "failed"
}

// TransactionError is returned by RunTransaction. For TransactionAborted, Err is the
// error the transaction function returned, unchanged. For TransactionFailed it is a
// classified *Error.
type TransactionError struct {
	Kind TransactionErrorKind
	Err  error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("firestore: transaction %s: %v", e.Kind, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// userAbort carries an error out of the transaction function through the client's retry
// loop. It deliberately does not unwrap, so the retry loop never mistakes a caller error
// for a retryable conflict.
type userAbort struct {
	err error
}

func (u *userAbort) Error() string { return "transaction function: " + u.err.Error() }

type TransactionOption = gcfs.TransactionOption

// MaxAttempts bounds how often the transaction function may run.
func MaxAttempts(n int) TransactionOption { return gcfs.MaxAttempts(n) }

// ReadOnly runs the transaction without locks; writes fail.
var ReadOnly TransactionOption = gcfs.ReadOnly

// Transaction is the handle passed to a transaction function. Reads must happen before
// writes.
type Transaction struct {
	tx *gcfs.Transaction
}

// Get reads ref inside the transaction. A missing document yields Exists() == false.
func (t *Transaction) Get(ref *DocumentReference) (*DocumentSnapshot, error) {
	snap, err := t.tx.Get(ref.ref)
	if err != nil {
		if isNotFound(err) {
			return &DocumentSnapshot{snap: snap, ref: ref}, nil
		}
		return nil, classify(err)
	}
	return &DocumentSnapshot{snap: snap, ref: ref}, nil
}

func (t *Transaction) Set(ref *DocumentReference, data any) error {
	return t.SetWithOptions(ref, data, SetDocOptions{})
}

func (t *Transaction) SetWithOptions(ref *DocumentReference, data any, opts SetDocOptions) error {
	return classify(t.tx.Set(ref.ref, data, opts.setOptions()...))
}

func (t *Transaction) Update(ref *DocumentReference, fields map[string]any) error {
	return classify(t.tx.Update(ref.ref, toUpdates(fields)))
}

func (t *Transaction) Delete(ref *DocumentReference) error {
	return classify(t.tx.Delete(ref.ref))
}

// txRunner drives body the way the client retry loop does: sequentially, as many times
// as it takes to commit or give up.
type txRunner[H any] func(ctx context.Context, body func(context.Context, H) error) error

// RunTransaction runs fn in a transaction and returns the value of the invocation that
// committed. fn may run several times and must not have side effects outside the
// transaction.
func RunTransaction[T any](ctx context.Context, f *Firestore, fn func(context.Context, *Transaction) (T, error), opts ...TransactionOption) (T, error) {
	if f.maxAttempts > 0 {
		opts = append([]TransactionOption{gcfs.MaxAttempts(f.maxAttempts)}, opts...)
	}

	attempts := 0
	run := func(ctx context.Context, body func(context.Context, *gcfs.Transaction) error) error {
		return f.client.RunTransaction(ctx, func(ctx context.Context, tx *gcfs.Transaction) error {
			attempts++
			return body(ctx, tx)
		}, opts...)
	}

	v, err := runBridged(ctx, run, func(ctx context.Context, tx *gcfs.Transaction) (T, error) {
		return fn(ctx, &Transaction{tx: tx})
	})
	entry := f.log.WithField("attempts", attempts)
	if err != nil {
		entry.WithError(err).Debug("transaction did not commit")
		return v, err
	}
	entry.Debug("transaction committed")
	return v, nil
}

func runBridged[H, T any](ctx context.Context, run txRunner[H], fn func(context.Context, H) (T, error)) (T, error) {
	var (
		mu    sync.Mutex
		value T
	)
	runErr := run(ctx, func(ctx context.Context, h H) error {
		v, err := fn(ctx, h)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			var zero T
			value = zero
			return &userAbort{err: err}
		}
		value = v
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	var zero T
	if runErr != nil {
		var ua *userAbort
		if errors.As(runErr, &ua) {
			return zero, &TransactionError{Kind: TransactionAborted, Err: ua.err}
		}
		return zero, &TransactionError{Kind: TransactionFailed, Err: classify(runErr)}
	}
	return value, nil
}
