package auth

import (
	"errors"
	"strings"

	"firebridge/internal/firebase"
)

// AuthErrorKind is one of the Firebase "auth/..." error codes.
type AuthErrorKind int

const (
	KindOther AuthErrorKind = iota
	KindAppDeleted
	KindAppNotAuthorized
	KindArgumentError
	KindInvalidAPIKey
	KindInvalidUserToken
	KindInvalidTenantID
	KindNetworkRequestFailed
	KindOperationNotAllowed
	KindRequiresRecentLogin
	KindTooManyRequests
	KindUnauthorizedDomain
	KindUserDisabled
	KindUserTokenExpired
	KindWebStorageUnsupported
	KindInvalidEmail
	KindUserNotFound
	KindWrongPassword
	KindEmailAlreadyInUse
	KindWeakPassword
	KindMissingAndroidPkgName
	KindMissingContinueURI
	KindMissingIOSBundleID
	KindInvalidContinueURI
	KindUnauthorizedContinueURI
	KindExpiredActionCode
)

var kindCodes = map[AuthErrorKind]string{
	KindAppDeleted:              "auth/app-deleted",
	KindAppNotAuthorized:        "auth/app-not-authorized",
	KindArgumentError:           "auth/argument-error",
	KindInvalidAPIKey:           "auth/invalid-api-key",
	KindInvalidUserToken:        "auth/invalid-user-token",
	KindInvalidTenantID:         "auth/invalid-tenant-id",
	KindNetworkRequestFailed:    "auth/network-request-failed",
	KindOperationNotAllowed:     "auth/operation-not-allowed",
	KindRequiresRecentLogin:     "auth/requires-recent-login",
	KindTooManyRequests:         "auth/too-many-requests",
	KindUnauthorizedDomain:      "auth/unauthorized-domain",
	KindUserDisabled:            "auth/user-disabled",
	KindUserTokenExpired:        "auth/user-token-expired",
	KindWebStorageUnsupported:   "auth/web-storage-unsupported",
	KindInvalidEmail:            "auth/invalid-email",
	KindUserNotFound:            "auth/user-not-found",
	KindWrongPassword:           "auth/wrong-password",
	KindEmailAlreadyInUse:       "auth/email-already-in-use",
	KindWeakPassword:            "auth/weak-password",
	KindMissingAndroidPkgName:   "auth/missing-android-pkg-name",
	KindMissingContinueURI:      "auth/missing-continue-uri",
	KindMissingIOSBundleID:      "auth/missing-ios-bundle-id",
	KindInvalidContinueURI:      "auth/invalid-continue-uri",
	KindUnauthorizedContinueURI: "auth/unauthorized-continue-uri",
	KindExpiredActionCode:       "auth/expired-action-code",
}

var kindsByCode = func() map[string]AuthErrorKind {
	m := make(map[string]AuthErrorKind, len(kindCodes))
	for k, c := range kindCodes {
		m[c] = k
	}
	return m
}()

func (k AuthErrorKind) Code() string { return kindCodes[k] }

func (k AuthErrorKind) String() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return "other"
}

// ParseAuthErrorKind never fails; codes outside the list are KindOther.
func ParseAuthErrorKind(code string) AuthErrorKind {
	if k, ok := kindsByCode[strings.TrimSpace(code)]; ok {
		return k
	}
	return KindOther
}

// Error keeps the raw code in Source even when Kind is KindOther, e.g.
// "auth/invalid-action-code".
type Error struct {
	Kind   AuthErrorKind
	Source *firebase.Error
}

func (e *Error) Error() string { return e.Source.Error() }
func (e *Error) Unwrap() error { return e.Source }

func (e *Error) Code() string { return e.Source.Code }

func newError(kind AuthErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Source: &firebase.Error{Code: kind.Code(), Message: msg, Err: cause}}
}

func FromCode(code, msg string) *Error {
	return &Error{Kind: ParseAuthErrorKind(code), Source: &firebase.Error{Code: code, Message: msg}}
}

func IsKind(err error, kind AuthErrorKind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// restCodes maps Identity Toolkit error messages to client error codes.
var restCodes = map[string]string{
	"EMAIL_EXISTS":                   "auth/email-already-in-use",
	"OPERATION_NOT_ALLOWED":          "auth/operation-not-allowed",
	"PASSWORD_LOGIN_DISABLED":        "auth/operation-not-allowed",
	"TOO_MANY_ATTEMPTS_TRY_LATER":    "auth/too-many-requests",
	"EMAIL_NOT_FOUND":                "auth/user-not-found",
	"USER_NOT_FOUND":                 "auth/user-not-found",
	"INVALID_PASSWORD":               "auth/wrong-password",
	"INVALID_LOGIN_CREDENTIALS":      "auth/invalid-credential",
	"USER_DISABLED":                  "auth/user-disabled",
	"INVALID_EMAIL":                  "auth/invalid-email",
	"MISSING_EMAIL":                  "auth/argument-error",
	"MISSING_PASSWORD":               "auth/argument-error",
	"WEAK_PASSWORD":                  "auth/weak-password",
	"EXPIRED_OOB_CODE":               "auth/expired-action-code",
	"INVALID_OOB_CODE":               "auth/invalid-action-code",
	"TOKEN_EXPIRED":                  "auth/user-token-expired",
	"INVALID_ID_TOKEN":               "auth/invalid-user-token",
	"INVALID_REFRESH_TOKEN":          "auth/invalid-user-token",
	"CREDENTIAL_TOO_OLD_LOGIN_AGAIN": "auth/requires-recent-login",
	"MISSING_CONTINUE_URI":           "auth/missing-continue-uri",
	"INVALID_CONTINUE_URI":           "auth/invalid-continue-uri",
	"UNAUTHORIZED_DOMAIN":            "auth/unauthorized-continue-uri",
	"MISSING_ANDROID_PACKAGE_NAME":   "auth/missing-android-pkg-name",
	"MISSING_IOS_BUNDLE_ID":          "auth/missing-ios-bundle-id",
	"INVALID_TENANT_ID":              "auth/invalid-tenant-id",
	"INVALID_API_KEY":                "auth/invalid-api-key",
	"API_KEY_INVALID":                "auth/invalid-api-key",
}

var codeReplacer = strings.NewReplacer("_", "-", " ", "-")

// fromREST turns an Identity Toolkit error message such as
// "WEAK_PASSWORD : Password should be at least 6 characters" into an *Error.
func fromREST(message string) *Error {
	reason, detail, _ := strings.Cut(message, " : ")
	reason = strings.TrimSpace(reason)
	if detail == "" {
		detail = reason
	}
	if strings.HasPrefix(reason, "API key not valid") {
		reason = "API_KEY_INVALID"
	}

	code, ok := restCodes[reason]
	if !ok {
		code = "auth/" + strings.ToLower(codeReplacer.Replace(reason))
	}
	return FromCode(code, detail)
}
