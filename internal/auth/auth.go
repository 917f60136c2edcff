package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"firebridge/internal/firebase"
	"firebridge/internal/httpclient"
	"firebridge/internal/logger"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

const (
	identityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	secureTokenURL     = "https://securetoken.googleapis.com/v1"

	// ID tokens are refreshed this long before they expire.
	tokenRefreshMargin = 5 * time.Minute

	providerPassword = "password"
	operationSignIn  = "signIn"
)

// Auth is a client side session over the Identity Toolkit REST API: it signs users in
// with an API key and tracks the current user.
type Auth struct {
	apiKey       string
	tenantID     string
	identityBase string
	tokenBase    string
	http         *retryablehttp.Client
	log          logrus.FieldLogger
	now          func() time.Time

	mu        sync.Mutex
	current   *User
	listeners map[uint64]func(*User)
	nextID    uint64
}

type Option func(*Auth)

func WithHTTPClient(c *retryablehttp.Client) Option {
	return func(a *Auth) { a.http = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Auth) { a.log = logger.Component(l, "auth") }
}

// WithEmulatorHost sends every request to an Auth emulator ("localhost:9099").
func WithEmulatorHost(host string) Option {
	return func(a *Auth) {
		if host == "" {
			return
		}
		base := "http://" + strings.TrimSuffix(host, "/")
		a.identityBase = base + "/identitytoolkit.googleapis.com/v1"
		a.tokenBase = base + "/securetoken.googleapis.com/v1"
	}
}

func WithTenantID(id string) Option {
	return func(a *Auth) { a.tenantID = id }
}

func New(apiKey string, opts ...Option) *Auth {
	a := &Auth{
		apiKey:       apiKey,
		identityBase: identityToolkitURL,
		tokenBase:    secureTokenURL,
		log:          logger.Component(nil, "auth"),
		now:          time.Now,
		listeners:    map[uint64]func(*User){},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.http == nil {
		a.http = httpclient.New(httpclient.WithLogger(a.log))
	}
	return a
}

type UserCredential struct {
	User          *User
	ProviderID    string
	OperationType string
}

type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
	TenantID          string `json:"tenantId,omitempty"`
}

type oobCodeRequest struct {
	OobCode     string `json:"oobCode"`
	Email       string `json:"email,omitempty"`
	NewPassword string `json:"newPassword,omitempty"`
	TenantID    string `json:"tenantId,omitempty"`
}

func (a *Auth) CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (*UserCredential, error) {
	return a.signIn(ctx, "signUp", passwordRequest{Email: email, Password: password, ReturnSecureToken: true, TenantID: a.tenantID})
}

func (a *Auth) SignInWithEmailAndPassword(ctx context.Context, email, password string) (*UserCredential, error) {
	return a.signIn(ctx, "signInWithPassword", passwordRequest{Email: email, Password: password, ReturnSecureToken: true, TenantID: a.tenantID})
}

// SendSignInLinkToEmail mails a sign-in link. settings.HandleCodeInApp must be true.
func (a *Auth) SendSignInLinkToEmail(ctx context.Context, email string, settings ActionCodeSettings) error {
	if err := settings.validate(); err != nil {
		return err
	}
	if settings.HandleCodeInApp == nil || !*settings.HandleCodeInApp {
		return newError(KindArgumentError, "handleCodeInApp must be true for email link sign-in", nil)
	}
	req := oobRequest{RequestType: "EMAIL_SIGNIN", Email: email, TenantID: a.tenantID}
	settings.applyTo(&req)
	return a.call(ctx, "sendOobCode", req, nil)
}

// IsSignInWithEmailLink reports whether link is an email sign-in link, directly or
// wrapped in a dynamic link.
func (a *Auth) IsSignInWithEmailLink(link string) bool {
	_, ok := emailLinkCode(link)
	return ok
}

func emailLinkCode(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	q := u.Query()
	if q.Get("mode") == "signIn" && q.Get("oobCode") != "" {
		return q.Get("oobCode"), true
	}
	for _, key := range []string{"link", "deep_link_id"} {
		if nested := q.Get(key); nested != "" && nested != link {
			if code, ok := emailLinkCode(nested); ok {
				return code, true
			}
		}
	}
	return "", false
}

func (a *Auth) SignInWithEmailLink(ctx context.Context, email, link string) (*UserCredential, error) {
	code, ok := emailLinkCode(link)
	if !ok {
		return nil, newError(KindArgumentError, "not a sign-in email link", nil)
	}
	return a.signIn(ctx, "signInWithEmailLink", oobCodeRequest{Email: email, OobCode: code, TenantID: a.tenantID})
}

// SendPasswordResetEmail mails a password reset link; settings may be nil.
func (a *Auth) SendPasswordResetEmail(ctx context.Context, email string, settings *ActionCodeSettings) error {
	if settings != nil {
		if err := settings.validate(); err != nil {
			return err
		}
	}
	req := oobRequest{RequestType: "PASSWORD_RESET", Email: email, TenantID: a.tenantID}
	settings.applyTo(&req)
	return a.call(ctx, "sendOobCode", req, nil)
}

// VerifyPasswordResetCode returns the email address the reset code was sent to.
func (a *Auth) VerifyPasswordResetCode(ctx context.Context, code string) (string, error) {
	var resp struct {
		Email       string `json:"email"`
		RequestType string `json:"requestType"`
	}
	if err := a.call(ctx, "resetPassword", oobCodeRequest{OobCode: code, TenantID: a.tenantID}, &resp); err != nil {
		return "", err
	}
	return resp.Email, nil
}

func (a *Auth) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	return a.call(ctx, "resetPassword", oobCodeRequest{OobCode: code, NewPassword: newPassword, TenantID: a.tenantID}, nil)
}

// SignOut forgets the current user. Tokens already handed out stay valid until they
// expire.
func (a *Auth) SignOut() {
	a.setCurrent(nil)
}

func (a *Auth) CurrentUser() *User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// OnAuthStateChanged calls fn with the current user (nil when signed out) right away and
// again after every sign-in and sign-out. Callbacks run on the goroutine that changed
// the state.
func (a *Auth) OnAuthStateChanged(fn func(*User)) (unsubscribe func()) {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.listeners[id] = fn
	current := a.current
	a.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

func (a *Auth) setCurrent(u *User) {
	a.transition(nil, u)
}

// signOutUser signs out only if u is still the current user.
func (a *Auth) signOutUser(u *User) {
	a.transition(func(cur *User) bool { return cur == u }, nil)
}

// transition replaces the current user and notifies listeners, unless only is set and
// rejects the current user.
func (a *Auth) transition(only func(*User) bool, u *User) {
	a.mu.Lock()
	if (only != nil && !only(a.current)) || (a.current == nil && u == nil) {
		a.mu.Unlock()
		return
	}
	a.current = u
	ids := make([]uint64, 0, len(a.listeners))
	for id := range a.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(*User), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, a.listeners[id])
	}
	a.mu.Unlock()

	if u != nil {
		a.log.WithField("uid", u.UID).Info("signed in")
	} else {
		a.log.Info("signed out")
	}
	for _, fn := range fns {
		fn(u)
	}
}

func (a *Auth) signIn(ctx context.Context, method string, body any) (*UserCredential, error) {
	var resp signInResponse
	if err := a.call(ctx, method, body, &resp); err != nil {
		return nil, err
	}

	u := &User{auth: a}
	u.UID = resp.LocalID
	u.Email = resp.Email
	u.ProviderID = "firebase"
	if err := u.setTokens(resp.IDToken, resp.RefreshToken, resp.ExpiresIn); err != nil {
		return nil, err
	}
	if err := u.Reload(ctx); err != nil {
		return nil, err
	}

	a.setCurrent(u)
	return &UserCredential{User: u, ProviderID: providerPassword, OperationType: operationSignIn}, nil
}

func (a *Auth) call(ctx context.Context, method string, in, out any) error {
	endpoint := a.identityBase + "/accounts:" + method + "?key=" + url.QueryEscape(a.apiKey)
	return restError(httpclient.DoJSON(ctx, a.http, http.MethodPost, endpoint, nil, in, out))
}

func (a *Auth) refresh(ctx context.Context, refreshToken string, out any) error {
	endpoint := a.tokenBase + "/token?key=" + url.QueryEscape(a.apiKey)
	body := map[string]string{"grant_type": "refresh_token", "refresh_token": refreshToken}
	return restError(httpclient.DoJSON(ctx, a.http, http.MethodPost, endpoint, nil, body, out))
}

// restError maps transport and Identity Toolkit failures onto *Error.
func restError(err error) error {
	if err == nil {
		return nil
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		var body struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(se.Body, &body) == nil && body.Error.Message != "" {
			ae := fromREST(body.Error.Message)
			ae.Source.Err = err
			return ae
		}
		return &Error{Kind: KindOther, Source: &firebase.Error{Code: "auth/internal-error", Message: se.Error(), Err: err}}
	}
	return newError(KindNetworkRequestFailed, err.Error(), err)
}
