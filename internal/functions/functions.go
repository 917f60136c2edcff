package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"firebridge/internal/firebase"
	"firebridge/internal/httpclient"
	"firebridge/internal/logger"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRegion  = "us-central1"
	defaultTimeout = 70 * time.Second
)

// TokenSource returns the ID token sent as a bearer token with every call. An empty
// token sends the call unauthenticated.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Functions calls HTTPS callable functions of one project and region.
type Functions struct {
	projectID    string
	region       string
	emulatorHost string
	tokens       TokenSource
	http         *retryablehttp.Client
	log          logrus.FieldLogger
}

type Option func(*Functions)

// WithEmulatorHost sends calls to a Functions emulator ("localhost:5001").
func WithEmulatorHost(host string) Option {
	return func(f *Functions) { f.emulatorHost = strings.TrimSuffix(host, "/") }
}

// WithHTTPClient replaces the default client, which does not retry: a callable is not
// assumed to be idempotent.
func WithHTTPClient(c *retryablehttp.Client) Option {
	return func(f *Functions) { f.http = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Functions) { f.log = logger.Component(l, "functions") }
}

func WithTokenSource(ts TokenSource) Option {
	return func(f *Functions) { f.tokens = ts }
}

func New(projectID, region string, opts ...Option) (*Functions, error) {
	if projectID == "" {
		return nil, newError(firebase.CodeInvalidArgument, "project ID is required", nil)
	}
	if region == "" {
		region = DefaultRegion
	}
	f := &Functions{
		projectID: projectID,
		region:    region,
		log:       logger.Component(nil, "functions"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.http == nil {
		f.http = httpclient.New(httpclient.WithLogger(f.log), httpclient.WithRetryMax(0))
	}
	return f, nil
}

// URL is the endpoint of the named function.
func (f *Functions) URL(name string) string {
	name = url.PathEscape(name)
	if f.emulatorHost != "" {
		return fmt.Sprintf("http://%s/%s/%s/%s", f.emulatorHost, f.projectID, f.region, name)
	}
	return fmt.Sprintf("https://%s-%s.cloudfunctions.net/%s", f.region, f.projectID, name)
}

type HttpsCallableOptions struct {
	// Timeout bounds a single call; zero means 70 seconds.
	Timeout time.Duration
}

// HttpsCallable is a typed handle on one callable function. Req must encode to JSON and
// Res must decode from the function's result.
type HttpsCallable[Req, Res any] struct {
	f       *Functions
	name    string
	timeout time.Duration
}

func NewHttpsCallable[Req, Res any](f *Functions, name string, opts HttpsCallableOptions) *HttpsCallable[Req, Res] {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HttpsCallable[Req, Res]{f: f, name: name, timeout: timeout}
}

type callResponse struct {
	Result json.RawMessage `json:"result"`
	// Data is what older function runtimes answer with.
	Data  json.RawMessage `json:"data"`
	Error *errorBody      `json:"error"`
}

// Call invokes the function with req and decodes its result. Failures are *Error.
func (c *HttpsCallable[Req, Res]) Call(ctx context.Context, req Req) (Res, error) {
	var zero Res
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header := http.Header{}
	if c.f.tokens != nil {
		token, err := c.f.tokens(ctx)
		if err != nil {
			return zero, newError(firebase.CodeUnauthenticated, "could not get an ID token", err)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	log := c.f.log.WithField("function", c.name)
	started := time.Now()

	var resp callResponse
	err := httpclient.DoJSON(ctx, c.f.http, http.MethodPost, c.f.URL(c.name), header, map[string]any{"data": req}, &resp)
	if err != nil {
		fe := callError(ctx, err)
		log.WithError(fe).WithField("code", fe.Code()).Warn("callable failed")
		return zero, fe
	}
	if resp.Error != nil {
		return zero, resp.Error.toError(nil)
	}

	raw := resp.Result
	if len(raw) == 0 {
		raw = resp.Data
	}
	if len(raw) == 0 {
		return zero, newError(firebase.CodeInternal, "response is missing data field", nil)
	}
	var out Res
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, newError(firebase.CodeInternal, "response does not match the expected result type", err)
	}
	log.WithField("took", time.Since(started)).Debug("callable returned")
	return out, nil
}

func callError(ctx context.Context, err error) *Error {
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		var body struct {
			Error *errorBody `json:"error"`
		}
		if json.Unmarshal(se.Body, &body) == nil && body.Error != nil {
			return body.Error.toError(err)
		}
		kind := codeForHTTPStatus(se.StatusCode)
		return newError(kind, http.StatusText(se.StatusCode), err)
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return newError(firebase.CodeDeadlineExceeded, "deadline-exceeded", err)
	case errors.Is(ctx.Err(), context.Canceled):
		return newError(firebase.CodeCancelled, "call was canceled", err)
	}
	return newError(firebase.CodeInternal, "internal", err)
}
