package auth

import (
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := GenerateToken("alice@acme.io", "Engineering", "Admin", secret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := ParseToken(token, secret)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "alice@acme.io" {
		t.Fatalf("expected subject=alice@acme.io, got %s", claims.Subject)
	}
	if claims.Department != "Engineering" {
		t.Fatalf("expected department=Engineering, got %s", claims.Department)
	}
	if claims.Classification != "Admin" {
		t.Fatalf("expected classification=Admin, got %s", claims.Classification)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("alice@acme.io", "Engineering", "Admin", "right-secret")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := ParseToken(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification failure with wrong secret")
	}
}

func TestParseToken_Garbage(t *testing.T) {
	if _, err := ParseToken("not-a-token", "secret"); err == nil {
		t.Fatal("expected parse failure for malformed token")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatal("expected matching password to verify")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("expected mismatched password to fail")
	}
}
