package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ParsedToken is the decoded payload of a Firebase ID token.
type ParsedToken struct {
	Subject  string
	Exp      time.Time
	IssuedAt time.Time
	AuthTime time.Time
	Firebase *FirebaseClaims

	raw jwt.MapClaims
}

type FirebaseClaims struct {
	SignInProvider     string              `json:"sign_in_provider"`
	SignInSecondFactor string              `json:"sign_in_second_factor,omitempty"`
	Tenant             string              `json:"tenant,omitempty"`
	Identities         map[string][]string `json:"identities,omitempty"`
}

// Claims returns every claim of the token, registered and custom.
func (p *ParsedToken) Claims() map[string]any {
	out := make(map[string]any, len(p.raw))
	for k, v := range p.raw {
		out[k] = v
	}
	return out
}

// CustomClaims decodes the token payload into v, which usually declares only the
// custom claims it cares about.
func (p *ParsedToken) CustomClaims(v any) error {
	raw, err := json.Marshal(p.raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

type IdTokenResult struct {
	Token              string
	AuthTime           time.Time
	ExpirationTime     time.Time
	IssuedAtTime       time.Time
	SignInProvider     string
	SignInSecondFactor string
	Claims             *ParsedToken
}

// parseIDToken decodes an ID token without verifying its signature. The token came
// straight from the token endpoint; servers must use Verifier instead.
func parseIDToken(token string) (*ParsedToken, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, newError(KindInvalidUserToken, "malformed ID token", err)
	}

	p := &ParsedToken{raw: claims}
	p.Subject, _ = claims.GetSubject()
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		p.Exp = exp.Time
	}
	if iat, _ := claims.GetIssuedAt(); iat != nil {
		p.IssuedAt = iat.Time
	}
	if at, ok := claims["auth_time"].(float64); ok {
		p.AuthTime = time.Unix(int64(at), 0)
	}
	if fb, ok := claims["firebase"]; ok {
		raw, err := json.Marshal(fb)
		if err != nil {
			return nil, newError(KindInvalidUserToken, "malformed firebase claim", err)
		}
		p.Firebase = &FirebaseClaims{}
		if err := json.Unmarshal(raw, p.Firebase); err != nil {
			return nil, newError(KindInvalidUserToken, fmt.Sprintf("malformed firebase claim: %v", err), err)
		}
	}
	return p, nil
}

func tokenResult(token string) (*IdTokenResult, error) {
	p, err := parseIDToken(token)
	if err != nil {
		return nil, err
	}
	res := &IdTokenResult{
		Token:          token,
		AuthTime:       p.AuthTime,
		ExpirationTime: p.Exp,
		IssuedAtTime:   p.IssuedAt,
		Claims:         p,
	}
	if p.Firebase != nil {
		res.SignInProvider = p.Firebase.SignInProvider
		res.SignInSecondFactor = p.Firebase.SignInSecondFactor
	}
	return res, nil
}
