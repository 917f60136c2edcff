package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"firebridge/internal/auth"
	"firebridge/internal/httpjson"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const authUserKey ctxKey = "authUser"

// TokenVerifier is satisfied by *auth.Verifier.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type AuthUser struct {
	UID    string
	Email  string
	Claims map[string]any
}

// WithAuth rejects requests without a valid Firebase ID token in
// "Authorization: Bearer <token>" and stores the caller as an *AuthUser.
func WithAuth(v TokenVerifier, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
				httpjson.CodedError(w, http.StatusUnauthorized, "auth/argument-error", "missing Authorization: Bearer <token>")
				return
			}
			idToken := strings.TrimSpace(h[len("Bearer "):])

			tok, err := v.VerifyIDToken(r.Context(), idToken)
			if err != nil {
				code := "auth/invalid-user-token"
				var ae *auth.Error
				if errors.As(err, &ae) {
					code = ae.Code()
				}
				log.WithError(err).Debug("rejected ID token")
				httpjson.CodedError(w, http.StatusUnauthorized, code, "invalid token")
				return
			}

			au := &AuthUser{
				UID:    tok.UID,
				Claims: tok.Claims,
			}
			if v, ok := tok.Claims["email"].(string); ok {
				au.Email = v
			}

			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), au)))
		})
	}
}

func WithAuthUser(ctx context.Context, au *AuthUser) context.Context {
	return context.WithValue(ctx, authUserKey, au)
}

func GetAuthUser(ctx context.Context) (*AuthUser, bool) {
	v := ctx.Value(authUserKey)
	if v == nil {
		return nil, false
	}
	au, ok := v.(*AuthUser)
	return au, ok
}

// IsAdmin checks the admin flag, the role field and the roles list or map.
func IsAdmin(claims map[string]any) bool {
	if claims == nil {
		return false
	}
	if admin, ok := claims["admin"].(bool); ok && admin {
		return true
	}
	if role, ok := claims["role"].(string); ok && role == "admin" {
		return true
	}
	switch roles := claims["roles"].(type) {
	case map[string]any:
		b, _ := roles["admin"].(bool)
		return b
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok && s == "admin" {
				return true
			}
		}
	}
	return false
}
