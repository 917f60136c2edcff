package auth

import (
	"context"
	"fmt"

	"firebridge/internal/firebase"
	"firebridge/internal/logger"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/sirupsen/logrus"
)

// Token is a verified ID token.
type Token = fbauth.Token

// Verifier checks ID tokens and manages custom claims with the Admin SDK.
type Verifier struct {
	client *fbauth.Client
	log    logrus.FieldLogger
}

func NewVerifier(client *fbauth.Client, log logrus.FieldLogger) *Verifier {
	return &Verifier{client: client, log: logger.Component(log, "auth-verifier")}
}

func (v *Verifier) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	tok, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, adminError(err, KindInvalidUserToken)
	}
	return tok, nil
}

// VerifyIDTokenAndCheckRevoked also rejects tokens minted before the user's refresh
// tokens were revoked.
func (v *Verifier) VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*Token, error) {
	tok, err := v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if err != nil {
		return nil, adminError(err, KindInvalidUserToken)
	}
	return tok, nil
}

// SetCustomUserClaims replaces the custom claims of uid. A nil map clears them. Users
// see the new claims after their next token refresh.
func (v *Verifier) SetCustomUserClaims(ctx context.Context, uid string, claims map[string]any) error {
	if uid == "" {
		return newError(KindArgumentError, "uid is required", nil)
	}
	if err := v.client.SetCustomUserClaims(ctx, uid, claims); err != nil {
		return adminError(err, KindOther)
	}
	v.log.WithFields(logrus.Fields{"uid": uid, "claims": len(claims)}).Info("custom claims updated")
	return nil
}

func adminError(err error, fallback AuthErrorKind) error {
	switch {
	case fbauth.IsIDTokenExpired(err):
		return newError(KindUserTokenExpired, "ID token has expired", err)
	case fbauth.IsIDTokenRevoked(err):
		return newError(KindUserTokenExpired, "ID token has been revoked", err)
	case fbauth.IsUserNotFound(err):
		return newError(KindUserNotFound, "no user record for the given identifier", err)
	}
	if fallback == KindOther {
		return &Error{Kind: KindOther, Source: &firebase.Error{Code: "auth/internal-error", Message: err.Error(), Err: err}}
	}
	return newError(fallback, fmt.Sprintf("rejected: %v", err), err)
}
