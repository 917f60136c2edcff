package handlers

import (
	"errors"
	"net/http"

	"firebridge/internal/auth"
	"firebridge/internal/httpjson"
	"firebridge/internal/storage"
)

// statusClientClosed is reported when the caller went away mid-request.
const statusClientClosed = 499

func mapStorageError(err error) (int, string, string) {
	var se *storage.Error
	if !errors.As(err, &se) {
		return http.StatusInternalServerError, "", err.Error()
	}
	msg := se.Source.Message
	switch se.Kind {
	case storage.KindObjectNotFound, storage.KindBucketNotFound, storage.KindProjectNotFound:
		return http.StatusNotFound, se.Code(), msg
	case storage.KindUnauthenticated:
		return http.StatusUnauthorized, se.Code(), msg
	case storage.KindUnauthorized:
		return http.StatusForbidden, se.Code(), msg
	case storage.KindQuotaExceeded:
		return http.StatusTooManyRequests, se.Code(), msg
	case storage.KindInvalidArgument, storage.KindInvalidRootOperation, storage.KindInvalidURL,
		storage.KindInvalidChecksum, storage.KindInvalidEventName:
		return http.StatusBadRequest, se.Code(), msg
	case storage.KindCanceled:
		return statusClientClosed, se.Code(), msg
	default:
		return http.StatusInternalServerError, se.Code(), msg
	}
}

func mapAuthError(err error) (int, string, string) {
	var ae *auth.Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError, "", err.Error()
	}
	msg := ae.Source.Message
	switch ae.Kind {
	case auth.KindArgumentError, auth.KindInvalidEmail:
		return http.StatusBadRequest, ae.Code(), msg
	case auth.KindUserNotFound:
		return http.StatusNotFound, ae.Code(), msg
	case auth.KindInvalidUserToken, auth.KindUserTokenExpired:
		return http.StatusUnauthorized, ae.Code(), msg
	default:
		return http.StatusInternalServerError, ae.Code(), msg
	}
}

func writeStorageError(w http.ResponseWriter, err error) {
	status, code, msg := mapStorageError(err)
	httpjson.CodedError(w, status, code, msg)
}

func errorBody(err error) *httpjson.ErrorBody {
	_, code, msg := mapStorageError(err)
	return &httpjson.ErrorBody{Code: code, Message: msg}
}
