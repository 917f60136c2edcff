package functions

import (
	"encoding/json"
	"errors"
	"net/http"

	"firebridge/internal/firebase"
)

// Error is a failed callable. Kind is CodeOther for statuses outside the canonical set;
// Source.Code still carries what the server sent, prefixed with "functions/".
type Error struct {
	Kind    firebase.Code
	Source  *firebase.Error
	Details json.RawMessage
}

func (e *Error) Error() string { return e.Source.Error() }
func (e *Error) Unwrap() error { return e.Source }

func (e *Error) Code() string { return e.Source.Code }

// DecodeDetails decodes the details payload the function attached to its error. It
// reports false when there is none.
func (e *Error) DecodeDetails(v any) (bool, error) {
	if len(e.Details) == 0 || string(e.Details) == "null" {
		return false, nil
	}
	return true, json.Unmarshal(e.Details, v)
}

func newError(kind firebase.Code, msg string, cause error) *Error {
	return &Error{Kind: kind, Source: &firebase.Error{Code: "functions/" + kind.String(), Message: msg, Err: cause}}
}

func IsCode(err error, kind firebase.Code) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}

type errorBody struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func (b errorBody) toError(cause error) *Error {
	kind := firebase.ParseCode(b.Status)
	code := "functions/" + kind.String()
	if kind == firebase.CodeOther && b.Status != "" {
		code = "functions/" + b.Status
	}
	msg := b.Message
	if msg == "" {
		msg = kind.String()
	}
	return &Error{Kind: kind, Source: &firebase.Error{Code: code, Message: msg, Err: cause}, Details: b.Details}
}

// codeForHTTPStatus maps a response without a usable error body.
func codeForHTTPStatus(status int) firebase.Code {
	switch status {
	case http.StatusBadRequest:
		return firebase.CodeInvalidArgument
	case http.StatusUnauthorized:
		return firebase.CodeUnauthenticated
	case http.StatusForbidden:
		return firebase.CodePermissionDenied
	case http.StatusNotFound:
		return firebase.CodeNotFound
	case http.StatusConflict:
		return firebase.CodeAborted
	case http.StatusTooManyRequests:
		return firebase.CodeResourceExhausted
	case 499:
		return firebase.CodeCancelled
	case http.StatusInternalServerError:
		return firebase.CodeInternal
	case http.StatusNotImplemented:
		return firebase.CodeUnimplemented
	case http.StatusServiceUnavailable:
		return firebase.CodeUnavailable
	case http.StatusGatewayTimeout:
		return firebase.CodeDeadlineExceeded
	}
	return firebase.CodeUnknown
}
