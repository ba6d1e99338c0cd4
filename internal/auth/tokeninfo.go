package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt reads the exp claim of a JWT bearer token without verifying
// its signature. Opaque tokens, or tokens without exp, report false.
func ExpiresAt(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}

// ExpiresAt reports the expiry of the current token, if it carries one.
func (s *Session) ExpiresAt() (time.Time, bool) {
	return ExpiresAt(s.Token())
}
