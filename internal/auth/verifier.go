// Package auth validates bearer tokens issued by the external identity
// service. Registration, login and OAuth flows live outside this repository;
// the API only needs the validated subject to attribute ratings to a user.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret required")
	ErrMissingToken         = errors.New("auth: token required")
	ErrInvalidToken         = errors.New("auth: invalid token")
	ErrMissingSubject       = errors.New("auth: subject required")
)

// UserClaims carries the validated identity attached to a request.
type UserClaims struct {
	UserEmail string `json:"user_email"`
	jwt.RegisteredClaims
}

// VerifierConfig describes how to validate identity-service JWTs.
type VerifierConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	Clock         func() time.Time
}

// Verifier validates HS256 bearer tokens from the identity service.
type Verifier struct {
	signingSecret []byte
	issuer        string
	audience      string
	clock         func() time.Time
}

// NewVerifier constructs a validator with the provided configuration.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{
		signingSecret: cfg.SigningSecret,
		issuer:        strings.TrimSpace(cfg.Issuer),
		audience:      strings.TrimSpace(cfg.Audience),
		clock:         clock,
	}, nil
}

// VerifyToken parses and validates the token, returning its claims. The
// subject claim identifies the user.
func (v *Verifier) VerifyToken(tokenString string) (UserClaims, error) {
	trimmed := strings.TrimSpace(tokenString)
	if trimmed == "" {
		return UserClaims{}, ErrMissingToken
	}

	options := []jwt.ParserOption{jwt.WithTimeFunc(v.clock)}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}

	claims := &UserClaims{}
	_, err := jwt.ParseWithClaims(
		trimmed,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return v.signingSecret, nil
		},
		options...,
	)
	if err != nil {
		return UserClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return UserClaims{}, ErrMissingSubject
	}
	return *claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
