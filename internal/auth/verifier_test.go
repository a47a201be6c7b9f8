package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-signing-secret")

func signToken(t *testing.T, secret []byte, method jwt.SigningMethod, claims UserClaims) string {
	t.Helper()

	signed, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func testClaims(now time.Time) UserClaims {
	return UserClaims{
		UserEmail: "rater@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			Issuer:    "ocena-identity",
			Audience:  jwt.ClaimStrings{"ocena-api"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func newTestVerifier(t *testing.T, clock func() time.Time) *Verifier {
	t.Helper()

	verifier, err := NewVerifier(VerifierConfig{
		SigningSecret: testSecret,
		Issuer:        "ocena-identity",
		Audience:      "ocena-api",
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}
	return verifier
}

func TestVerifyTokenAcceptsValidToken(t *testing.T) {
	now := time.Now()
	verifier := newTestVerifier(t, func() time.Time { return now })
	token := signToken(t, testSecret, jwt.SigningMethodHS256, testClaims(now))

	claims, err := verifier.VerifyToken(token)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("expected subject user-42, got %q", claims.Subject)
	}
	if claims.UserEmail != "rater@example.com" {
		t.Fatalf("expected email claim carried, got %q", claims.UserEmail)
	}
}

func TestVerifyTokenRejectsExpiredToken(t *testing.T) {
	issued := time.Now().Add(-3 * time.Hour)
	verifier := newTestVerifier(t, time.Now)
	token := signToken(t, testSecret, jwt.SigningMethodHS256, testClaims(issued))

	if _, err := verifier.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	verifier := newTestVerifier(t, func() time.Time { return now })
	token := signToken(t, []byte("other-secret"), jwt.SigningMethodHS256, testClaims(now))

	if _, err := verifier.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestVerifyTokenRejectsWrongIssuer(t *testing.T) {
	now := time.Now()
	verifier := newTestVerifier(t, func() time.Time { return now })
	claims := testClaims(now)
	claims.Issuer = "someone-else"
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	if _, err := verifier.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}
}

func TestVerifyTokenRequiresSubject(t *testing.T) {
	now := time.Now()
	verifier := newTestVerifier(t, func() time.Time { return now })
	claims := testClaims(now)
	claims.Subject = ""
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	if _, err := verifier.VerifyToken(token); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestVerifyTokenRejectsEmptyToken(t *testing.T) {
	verifier := newTestVerifier(t, nil)
	if _, err := verifier.VerifyToken("   "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(VerifierConfig{}); !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected ErrMissingSigningSecret, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"Bearer   spaced  ", "spaced", true},
		{"bearer abc", "", false},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		token, ok := BearerToken(tc.header)
		if ok != tc.ok || token != tc.token {
			t.Fatalf("BearerToken(%q) = %q, %v; want %q, %v", tc.header, token, ok, tc.token, tc.ok)
		}
	}
}
