package firestore

import (
	"context"
	"errors"

	"firebridge/internal/firebase"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is a classified Firestore failure. Kind is CodeOther when the backend reported
// a code this package does not know; Source keeps it.
type Error struct {
	Kind   firebase.Code
	Source *firebase.Error
}

func (e *Error) Error() string { return e.Source.Error() }
func (e *Error) Unwrap() error { return e.Source }

func (e *Error) Code() string { return e.Source.Code }

func newError(kind firebase.Code, msg string, cause error) *Error {
	return &Error{Kind: kind, Source: &firebase.Error{Code: kind.String(), Message: msg, Err: cause}}
}

func IsCode(err error, kind firebase.Code) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return newError(firebase.CodeCancelled, "operation cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(firebase.CodeDeadlineExceeded, "deadline exceeded", err)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		kind := firebase.CodeFromGRPC(st.Code())
		code := kind.String()
		if kind == firebase.CodeOther {
			code = st.Code().String()
		}
		return &Error{Kind: kind, Source: &firebase.Error{Code: code, Message: st.Message(), Err: err}}
	}
	return newError(firebase.CodeUnknown, err.Error(), err)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
