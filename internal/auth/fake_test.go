package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"firebridge/internal/httpclient"
	"firebridge/internal/logger"

	"github.com/golang-jwt/jwt/v5"
)

const testAPIKey = "test-key"

type fakeAccount struct {
	uid      string
	email    string
	password string
	verified bool
}

// fakeIdentity is a small in-memory stand-in for the Identity Toolkit and Secure Token
// endpoints, shaped like the Auth emulator.
type fakeIdentity struct {
	t *testing.T

	mu        sync.Mutex
	accounts  map[string]*fakeAccount // by email
	nextUID   int
	refreshes int
	oob       []map[string]any
}

func newFakeIdentity(t *testing.T) (*fakeIdentity, *Auth) {
	f := &fakeIdentity{t: t, accounts: map[string]*fakeAccount{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	a := New(testAPIKey,
		WithEmulatorHost(strings.TrimPrefix(srv.URL, "http://")),
		WithLogger(logger.Discard()),
		WithHTTPClient(httpclient.New(httpclient.WithLogger(logger.Discard()), httpclient.WithRetryMax(0))),
	)
	return f, a
}

func (f *fakeIdentity) mint(acc *fakeAccount) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":       acc.uid,
		"email":     acc.email,
		"iat":       now.Unix(),
		"exp":       now.Add(time.Hour).Unix(),
		"auth_time": now.Unix(),
		"role":      "coach",
		"firebase": map[string]any{
			"sign_in_provider": "password",
			"identities":       map[string][]string{"email": {acc.email}},
		},
		"nonce": fmt.Sprint(now.UnixNano()),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("fake-secret"))
	if err != nil {
		f.t.Fatalf("mint token: %v", err)
	}
	return tok
}

func (f *fakeIdentity) tokens(acc *fakeAccount) map[string]any {
	return map[string]any{
		"idToken":      f.mint(acc),
		"refreshToken": "rt-" + acc.uid,
		"expiresIn":    "3600",
		"localId":      acc.uid,
		"email":        acc.email,
	}
}

func (f *fakeIdentity) account(uid string) *fakeAccount {
	for _, acc := range f.accounts {
		if acc.uid == uid {
			return acc
		}
	}
	return nil
}

func (f *fakeIdentity) uidFromToken(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}

func fail(w http.ResponseWriter, message string) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 400, "message": message}})
}

func (f *fakeIdentity) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("key") != testAPIKey {
		fail(w, "API key not valid. Please pass a valid API key.")
		return
	}

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	str := func(k string) string {
		s, _ := body[k].(string)
		return s
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	reply := func(v any) { _ = json.NewEncoder(w).Encode(v) }

	switch {
	case strings.HasSuffix(r.URL.Path, "/securetoken.googleapis.com/v1/token"):
		rt := str("refresh_token")
		acc := f.account(strings.TrimPrefix(rt, "rt-"))
		if str("grant_type") != "refresh_token" || acc == nil {
			fail(w, "INVALID_REFRESH_TOKEN")
			return
		}
		f.refreshes++
		reply(map[string]any{"id_token": f.mint(acc), "refresh_token": rt, "expires_in": "3600", "user_id": acc.uid})

	case strings.HasSuffix(r.URL.Path, "/accounts:signUp"):
		if _, ok := f.accounts[str("email")]; ok {
			fail(w, "EMAIL_EXISTS")
			return
		}
		if len(str("password")) < 6 {
			fail(w, "WEAK_PASSWORD : Password should be at least 6 characters")
			return
		}
		f.nextUID++
		acc := &fakeAccount{uid: fmt.Sprintf("uid-%d", f.nextUID), email: str("email"), password: str("password")}
		f.accounts[acc.email] = acc
		reply(f.tokens(acc))

	case strings.HasSuffix(r.URL.Path, "/accounts:signInWithPassword"):
		acc, ok := f.accounts[str("email")]
		switch {
		case !ok:
			fail(w, "EMAIL_NOT_FOUND")
		case acc.password != str("password"):
			fail(w, "INVALID_PASSWORD")
		default:
			reply(f.tokens(acc))
		}

	case strings.HasSuffix(r.URL.Path, "/accounts:lookup"):
		acc := f.account(f.uidFromToken(str("idToken")))
		if acc == nil {
			fail(w, "USER_NOT_FOUND")
			return
		}
		reply(map[string]any{"users": []map[string]any{{
			"localId":       acc.uid,
			"email":         acc.email,
			"emailVerified": acc.verified,
			"createdAt":     "1700000000000",
			"lastLoginAt":   "1700000500000",
			"providerUserInfo": []map[string]any{
				{"providerId": "password", "rawId": acc.email, "email": acc.email},
			},
		}}})

	case strings.HasSuffix(r.URL.Path, "/accounts:sendOobCode"):
		f.oob = append(f.oob, body)
		reply(map[string]any{"email": str("email")})

	case strings.HasSuffix(r.URL.Path, "/accounts:signInWithEmailLink"):
		if str("oobCode") != "good-code" {
			fail(w, "INVALID_OOB_CODE")
			return
		}
		acc, ok := f.accounts[str("email")]
		if !ok {
			f.nextUID++
			acc = &fakeAccount{uid: fmt.Sprintf("uid-%d", f.nextUID), email: str("email")}
			f.accounts[acc.email] = acc
		}
		acc.verified = true
		reply(f.tokens(acc))

	case strings.HasSuffix(r.URL.Path, "/accounts:resetPassword"):
		if str("oobCode") != "reset-code" {
			fail(w, "EXPIRED_OOB_CODE")
			return
		}
		acc := f.accounts["reset@example.com"]
		if pw := str("newPassword"); pw != "" && acc != nil {
			acc.password = pw
		}
		reply(map[string]any{"email": "reset@example.com", "requestType": "PASSWORD_RESET"})

	case strings.HasSuffix(r.URL.Path, "/accounts:delete"):
		acc := f.account(f.uidFromToken(str("idToken")))
		if acc == nil {
			fail(w, "USER_NOT_FOUND")
			return
		}
		delete(f.accounts, acc.email)
		reply(map[string]any{})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeIdentity) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeIdentity) oobRequests() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.oob...)
}
