// ABOUTME: Session identity and bearer token inspection for the realtime client.
// ABOUTME: Reads JWT claims without verification to catch expired or malformed tokens early.

package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Identity is the opaque user reference the channel is addressed by.
type Identity struct {
	UserID      string
	Username    string
	DisplayName string
}

// String returns a label suitable for logs.
func (i Identity) String() string {
	if i.Username != "" {
		return i.Username + "(" + i.UserID + ")"
	}
	return i.UserID
}

// Token is a parsed bearer token.
type Token struct {
	Raw       string
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// Expired reports whether the token is past its expiry at now.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// ParseToken decodes the claims of a bearer token without checking its
// signature. It fails if the token is malformed, lacks a "sub" claim, or is
// expired at now.
func ParseToken(raw string, now time.Time) (Token, error) {
	if raw == "" {
		return Token{}, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if sub == "" {
		return Token{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	tok := Token{Raw: raw, Subject: sub}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if exp != nil {
		tok.ExpiresAt = exp.Time
	}

	if tok.Expired(now) {
		return Token{}, fmt.Errorf("%w: expired at %s", ErrExpiredToken, tok.ExpiresAt.Format(time.RFC3339))
	}

	return tok, nil
}
