package storage

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"firebridge/internal/firebase"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ErrorKind classifies storage failures using the Firebase storage error codes.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindUnknown
	KindObjectNotFound
	KindBucketNotFound
	KindProjectNotFound
	KindQuotaExceeded
	KindUnauthenticated
	KindUnauthorized
	KindRetryLimitExceeded
	KindInvalidChecksum
	KindCanceled
	KindInvalidEventName
	KindInvalidURL
	KindInvalidArgument
	KindNoDefaultBucket
	KindServerFileWrongSize
	KindInvalidRootOperation
)

var kindCodes = map[ErrorKind]string{
	KindUnknown:              "storage/unknown",
	KindObjectNotFound:       "storage/object-not-found",
	KindBucketNotFound:       "storage/bucket-not-found",
	KindProjectNotFound:      "storage/project-not-found",
	KindQuotaExceeded:        "storage/quota-exceeded",
	KindUnauthenticated:      "storage/unauthenticated",
	KindUnauthorized:         "storage/unauthorized",
	KindRetryLimitExceeded:   "storage/retry-limit-exceeded",
	KindInvalidChecksum:      "storage/invalid-checksum",
	KindCanceled:             "storage/canceled",
	KindInvalidEventName:     "storage/invalid-event-name",
	KindInvalidURL:           "storage/invalid-url",
	KindInvalidArgument:      "storage/invalid-argument",
	KindNoDefaultBucket:      "storage/no-default-bucket",
	KindServerFileWrongSize:  "storage/server-file-wrong-size",
	KindInvalidRootOperation: "storage/invalid-root-operation",
}

var kindsByCode = func() map[string]ErrorKind {
	m := make(map[string]ErrorKind, len(kindCodes))
	for k, c := range kindCodes {
		m[c] = k
	}
	return m
}()

// Code returns the "storage/..." code, or "" for KindOther.
func (k ErrorKind) Code() string { return kindCodes[k] }

func (k ErrorKind) String() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return "other"
}

// ParseErrorKind never fails; unrecognized codes are KindOther.
func ParseErrorKind(code string) ErrorKind {
	if k, ok := kindsByCode[strings.TrimSpace(code)]; ok {
		return k
	}
	return KindOther
}

type Error struct {
	Kind   ErrorKind
	Source *firebase.Error
}

func (e *Error) Error() string { return e.Source.Error() }
func (e *Error) Unwrap() error { return e.Source }

// Code is the raw code string, preserved even when Kind is KindOther.
func (e *Error) Code() string { return e.Source.Code }

func newError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Source: &firebase.Error{Code: kind.Code(), Message: msg, Err: cause}}
}

// FromCode builds an Error from a code reported by some other party, keeping the raw code.
func FromCode(code, msg string) *Error {
	return &Error{Kind: ParseErrorKind(code), Source: &firebase.Error{Code: code, Message: msg}}
}

func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}

// classify maps Cloud Storage client errors onto the storage taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return newError(KindCanceled, "operation canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindRetryLimitExceeded, "max retry time for operation exceeded", err)
	case errors.Is(err, gcs.ErrObjectNotExist):
		return newError(KindObjectNotFound, "object does not exist", err)
	case errors.Is(err, gcs.ErrBucketNotExist):
		return newError(KindBucketNotFound, "bucket does not exist", err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		switch gerr.Code {
		case http.StatusUnauthorized:
			return newError(KindUnauthenticated, msg, err)
		case http.StatusForbidden:
			return newError(KindUnauthorized, msg, err)
		case http.StatusNotFound:
			return newError(KindObjectNotFound, msg, err)
		case http.StatusTooManyRequests:
			return newError(KindQuotaExceeded, msg, err)
		case http.StatusBadRequest:
			lower := strings.ToLower(msg)
			if strings.Contains(lower, "checksum") || strings.Contains(lower, "md5") || strings.Contains(lower, "crc32c") {
				return newError(KindInvalidChecksum, msg, err)
			}
			return newError(KindInvalidArgument, msg, err)
		}
	}

	return newError(KindUnknown, err.Error(), err)
}
