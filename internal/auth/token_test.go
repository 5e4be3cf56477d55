package auth

import (
	"testing"
	"time"
)

func TestIssueAndParseTokenRoundtrip(t *testing.T) {
	secret := []byte("test-secret")
	expires := time.Now().Add(time.Hour)

	token, err := IssueToken(secret, "user-1", "Ana", "ana@x.com", "jti-1", expires)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	claims, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject user-1, got %q", claims.Subject)
	}
	if claims.Name != "Ana" {
		t.Fatalf("expected name Ana, got %q", claims.Name)
	}
	if claims.Email != "ana@x.com" {
		t.Fatalf("expected email ana@x.com, got %q", claims.Email)
	}
	if claims.ID != "jti-1" {
		t.Fatalf("expected jti-1, got %q", claims.ID)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken([]byte("secret-a"), "user-1", "Ana", "ana@x.com", "jti-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := ParseToken([]byte("secret-b"), token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueToken(secret, "user-1", "Ana", "ana@x.com", "jti-1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := ParseToken(secret, token); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	if _, err := ParseToken([]byte("test-secret"), "definitely-not-a-token"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatal("expected identical hashes for identical input")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatal("expected different hashes for different input")
	}
}
