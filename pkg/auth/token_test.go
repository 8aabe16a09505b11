package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndValidateToken_RoundTripsIdentity(t *testing.T) {
	secret := []byte("test-secret")

	token, expiresAt, err := IssueToken("user-1", "estate-1", "ADMIN", "admin@example.com", "estate-billing", time.Hour, secret)
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected expiry in the future, got %s", expiresAt)
	}

	claims, err := ValidateToken(token, secret, "estate-billing")
	if err != nil {
		t.Fatalf("ValidateToken returned error: %v", err)
	}
	if claims.UserID() != "user-1" || claims.EstateID != "estate-1" || claims.Role != "ADMIN" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateToken_RejectsWrongSecretAndIssuer(t *testing.T) {
	token, _, err := IssueToken("user-1", "estate-1", "USER", "", "estate-billing", time.Hour, []byte("secret-a"))
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}

	if _, err := ValidateToken(token, []byte("secret-b"), ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
	if _, err := ValidateToken(token, []byte("secret-a"), "someone-else"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}
}

func TestValidateToken_ReportsExpiry(t *testing.T) {
	token, _, err := IssueToken("user-1", "estate-1", "USER", "", "", -time.Minute, []byte("secret"))
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}

	if _, err := ValidateToken(token, []byte("secret"), ""); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestHashPassword_ChecksOriginalOnly(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !CheckPassword("correct horse", hash) {
		t.Fatal("expected original password to match")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("expected different password to be rejected")
	}
}
