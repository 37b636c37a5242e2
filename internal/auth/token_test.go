package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signHS256(t *testing.T, secret, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := NewHS256Verifier("secret")
	if err := v.Verify(signHS256(t, "secret", "u1"), "u1"); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	v := NewHS256Verifier("secret")
	if err := v.Verify(signHS256(t, "other", "u1"), "u1"); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}

func TestVerifySubjectMismatch(t *testing.T) {
	v := NewHS256Verifier("secret")
	if err := v.Verify(signHS256(t, "secret", "u1"), "u2"); err == nil {
		t.Fatal("token for another user must be rejected")
	}
}

func TestVerifyGarbage(t *testing.T) {
	v := NewHS256Verifier("secret")
	if err := v.Verify("not-a-token", "u1"); err == nil {
		t.Fatal("garbage must be rejected")
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	v := NewHS256Verifier("secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if err := v.Verify(signed, "u1"); err == nil {
		t.Fatal("expired token must be rejected")
	}
}
