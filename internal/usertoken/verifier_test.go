package usertoken

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key"

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims() jwt.RegisteredClaims {
	now := time.Now().UTC()
	return jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    defaultIssuer,
		Audience:  jwt.ClaimStrings{defaultAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func TestVerifySubject(t *testing.T) {
	v, err := NewVerifier(Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	subject, err := v.VerifySubject(signToken(t, testSecret, validClaims()))
	if err != nil {
		t.Fatalf("VerifySubject: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("subject = %q, want user-1", subject)
	}
}

func TestVerifySubjectRejectsBadSignature(t *testing.T) {
	v, _ := NewVerifier(Config{Secret: testSecret})
	if _, err := v.VerifySubject(signToken(t, "other-secret", validClaims())); err == nil {
		t.Fatal("expected error for wrong signing key")
	}
}

func TestVerifySubjectRejectsExpired(t *testing.T) {
	v, _ := NewVerifier(Config{Secret: testSecret})
	claims := validClaims()
	claims.IssuedAt = jwt.NewNumericDate(time.Now().UTC().Add(-2 * time.Hour))
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().UTC().Add(-time.Hour))
	if _, err := v.VerifySubject(signToken(t, testSecret, claims)); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestVerifySubjectRejectsWrongIssuer(t *testing.T) {
	v, _ := NewVerifier(Config{Secret: testSecret})
	claims := validClaims()
	claims.Issuer = "someone-else"
	if _, err := v.VerifySubject(signToken(t, testSecret, claims)); err == nil {
		t.Fatal("expected error for wrong issuer")
	}
}

func TestVerifySubjectRejectsMissingSubject(t *testing.T) {
	v, _ := NewVerifier(Config{Secret: testSecret})
	claims := validClaims()
	claims.Subject = ""
	if _, err := v.VerifySubject(signToken(t, testSecret, claims)); err == nil {
		t.Fatal("expected error for missing subject")
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Fatal("expected error for missing secret")
	}
}
