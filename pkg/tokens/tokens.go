// Package tokens reads claims out of the session JWTs held in cookies.
//
// The gateway never holds the signing key: signature validity is the
// backend's job (GET /auth/verify-token). Everything here decodes the
// payload without verification and fails closed on malformed input.
package tokens

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authority is a single granted authority as the backend encodes it.
type Authority struct {
	Authority string `json:"authority"`
}

// AuthorityList accepts both shapes the backend emits: a JSON array of
// authority objects, or that same array serialized again into a string.
type AuthorityList []Authority

func (l *AuthorityList) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*l = nil
			return nil
		}
		var arr []Authority
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return err
		}
		*l = arr
		return nil
	}

	var arr []Authority
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	*l = arr
	return nil
}

// Claims is the access-token payload.
type Claims struct {
	Username    string        `json:"username"`
	Authorities AuthorityList `json:"authorities"`
	jwt.RegisteredClaims
}

// Roles maps backend authority names onto the application's role
// identifiers. Unrecognized authorities are dropped.
func (c *Claims) Roles() []string {
	var roles []string
	for _, a := range c.Authorities {
		switch a.Authority {
		case "ROLE_USER":
			roles = append(roles, "user")
		case "ROLE_DRIVER":
			roles = append(roles, "driver")
		}
	}
	return roles
}

// Decode parses the token's payload without verifying the signature.
// Returns nil on any malformed input: wrong segment count, bad
// base64url, bad JSON.
func Decode(tokenStr string) *Claims {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &claims); err != nil {
		return nil
	}
	return &claims
}

// IsExpired reports whether the token's exp claim has passed. Anything
// that cannot be decoded counts as expired: this predicate gates
// access, so it must not fail open.
func IsExpired(tokenStr string) bool {
	claims := Decode(tokenStr)
	if claims == nil || claims.ExpiresAt == nil {
		return true
	}
	return !claims.ExpiresAt.After(time.Now())
}
