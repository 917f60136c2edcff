package httpjson

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxRequestBytes = 1 << 20

type ErrorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func Write(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Read decodes a JSON request body of at most 1 MiB, rejecting unknown fields.
func Read(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func Error(w http.ResponseWriter, status int, msg string) {
	CodedError(w, status, "", msg)
}

func CodedError(w http.ResponseWriter, status int, code, msg string) {
	Write(w, status, map[string]interface{}{"error": ErrorBody{Code: code, Message: msg}})
}

// Lines writes newline delimited JSON, flushing after every value. The 200 status
// goes out with the first value.
type Lines struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	enc     *json.Encoder
	started bool
}

func NewLines(w http.ResponseWriter) *Lines {
	return &Lines{w: w, rc: http.NewResponseController(w), enc: json.NewEncoder(w)}
}

func (l *Lines) Write(v interface{}) error {
	if !l.started {
		l.w.Header().Set("Content-Type", "application/x-ndjson")
		l.w.Header().Set("X-Content-Type-Options", "nosniff")
		l.w.WriteHeader(http.StatusOK)
		l.started = true
	}
	if err := l.enc.Encode(v); err != nil {
		return err
	}
	if err := l.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
