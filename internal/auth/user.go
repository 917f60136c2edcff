package auth

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"
)

type UserInfo struct {
	UID         string
	DisplayName string
	Email       string
	PhoneNumber string
	PhotoURL    string
	ProviderID  string
}

type UserMetadata struct {
	CreationTime   time.Time
	LastSignInTime time.Time
}

// User is a signed-in account. Profile fields are refreshed by Reload, which must not
// run concurrently with readers of those fields.
type User struct {
	UserInfo
	EmailVerified bool
	IsAnonymous   bool
	Metadata      UserMetadata
	ProviderData  []UserInfo
	TenantID      string

	auth *Auth

	mu           sync.Mutex
	idToken      string
	refreshToken string
	expiresAt    time.Time
}

func (u *User) RefreshToken() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.refreshToken
}

// GetIDToken returns a cached ID token, refreshing it when it expires within five
// minutes or when forceRefresh is set. A refresh token the backend rejects signs the
// user out.
func (u *User) GetIDToken(ctx context.Context, forceRefresh bool) (string, error) {
	token, err := u.idTokenLocked(ctx, forceRefresh)
	if err != nil && (IsKind(err, KindUserDisabled) || IsKind(err, KindUserNotFound) || IsKind(err, KindInvalidUserToken)) {
		u.auth.log.WithField("uid", u.UID).WithError(err).Warn("refresh token rejected, signing out")
		u.auth.signOutUser(u)
	}
	return token, err
}

func (u *User) idTokenLocked(ctx context.Context, forceRefresh bool) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !forceRefresh && u.idToken != "" && u.auth.now().Before(u.expiresAt.Add(-tokenRefreshMargin)) {
		return u.idToken, nil
	}

	var resp struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
	}
	if err := u.auth.refresh(ctx, u.refreshToken, &resp); err != nil {
		return "", err
	}
	if err := u.setTokensLocked(resp.IDToken, resp.RefreshToken, resp.ExpiresIn); err != nil {
		return "", err
	}
	return u.idToken, nil
}

func (u *User) GetIDTokenResult(ctx context.Context, forceRefresh bool) (*IdTokenResult, error) {
	token, err := u.GetIDToken(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}
	return tokenResult(token)
}

type lookupProvider struct {
	ProviderID  string `json:"providerId"`
	RawID       string `json:"rawId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	PhotoURL    string `json:"photoUrl"`
}

type lookupUser struct {
	LocalID          string           `json:"localId"`
	Email            string           `json:"email"`
	EmailVerified    bool             `json:"emailVerified"`
	DisplayName      string           `json:"displayName"`
	PhoneNumber      string           `json:"phoneNumber"`
	PhotoURL         string           `json:"photoUrl"`
	ProviderUserInfo []lookupProvider `json:"providerUserInfo"`
	CreatedAt        string           `json:"createdAt"`
	LastLoginAt      string           `json:"lastLoginAt"`
	TenantID         string           `json:"tenantId"`
}

// Reload fetches the profile of the user again.
func (u *User) Reload(ctx context.Context) error {
	token, err := u.GetIDToken(ctx, false)
	if err != nil {
		return err
	}
	var resp struct {
		Users []lookupUser `json:"users"`
	}
	if err := u.auth.call(ctx, "lookup", map[string]string{"idToken": token}, &resp); err != nil {
		return err
	}
	if len(resp.Users) == 0 {
		return newError(KindUserNotFound, "user no longer exists", nil)
	}
	u.apply(resp.Users[0])
	return nil
}

func (u *User) apply(l lookupUser) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.UID = l.LocalID
	u.Email = l.Email
	u.EmailVerified = l.EmailVerified
	u.DisplayName = l.DisplayName
	u.PhoneNumber = l.PhoneNumber
	u.PhotoURL = l.PhotoURL
	u.ProviderID = "firebase"
	u.TenantID = l.TenantID
	u.Metadata = UserMetadata{CreationTime: millis(l.CreatedAt), LastSignInTime: millis(l.LastLoginAt)}
	u.ProviderData = lo.Map(l.ProviderUserInfo, func(p lookupProvider, _ int) UserInfo {
		return UserInfo{
			UID:         p.RawID,
			DisplayName: p.DisplayName,
			Email:       p.Email,
			PhoneNumber: p.PhoneNumber,
			PhotoURL:    p.PhotoURL,
			ProviderID:  p.ProviderID,
		}
	})
	u.IsAnonymous = l.Email == "" && len(l.ProviderUserInfo) == 0
}

// Delete removes the account and signs it out if it is the current user.
func (u *User) Delete(ctx context.Context) error {
	token, err := u.GetIDToken(ctx, false)
	if err != nil {
		return err
	}
	if err := u.auth.call(ctx, "delete", map[string]string{"idToken": token}, nil); err != nil {
		return err
	}
	u.auth.log.WithField("uid", u.UID).Info("user deleted")
	u.auth.signOutUser(u)
	return nil
}

func (u *User) setTokens(idToken, refreshToken, expiresIn string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.setTokensLocked(idToken, refreshToken, expiresIn)
}

func (u *User) setTokensLocked(idToken, refreshToken, expiresIn string) error {
	if idToken == "" {
		return newError(KindInvalidUserToken, "token endpoint returned no ID token", nil)
	}
	expiresAt := time.Time{}
	if secs, err := strconv.Atoi(expiresIn); err == nil {
		expiresAt = u.auth.now().Add(time.Duration(secs) * time.Second)
	} else if p, err := parseIDToken(idToken); err == nil {
		expiresAt = p.Exp
	}
	u.idToken = idToken
	if refreshToken != "" {
		u.refreshToken = refreshToken
	}
	u.expiresAt = expiresAt
	return nil
}

func millis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
