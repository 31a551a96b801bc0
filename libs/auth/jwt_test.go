package auth

import (
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	signer := NewSigner("test-secret", time.Hour)

	token, err := signer.Sign("user-1", "host@example.com")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected sub user-1, got %q", claims.Subject)
	}
	if claims.Email != "host@example.com" {
		t.Fatalf("expected email claim, got %q", claims.Email)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewSigner("secret-a", time.Hour).Sign("user-1", "")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := NewSigner("secret-b", time.Hour).Verify(token); err == nil {
		t.Fatal("expected verification to fail with wrong secret")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	token, err := NewSigner("secret", -time.Minute).Sign("user-1", "")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, err := NewSigner("secret", time.Hour).Verify(token); err == nil {
		t.Fatal("expected verification to fail for expired token")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	if _, err := NewSigner("secret", time.Hour).Verify("not.a.jwt"); err == nil {
		t.Fatal("expected verification to fail")
	}
}
