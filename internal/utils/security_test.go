package utils

import (
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("user-1", "owner@example.com", "business_user", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	claims, err := ValidateJWT(token, testSecret)
	if err != nil {
		t.Fatalf("validating token: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "owner@example.com" || claims.Role != "business_user" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.SessionID == "" {
		t.Error("missing session id")
	}
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := GenerateJWT("user-1", "owner@example.com", "business_user", testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ValidateJWT(token, "ffffffffffffffffffffffffffffffff"); err == nil {
		t.Error("token validated with wrong secret")
	}
}

func TestJWTRejectsExpired(t *testing.T) {
	token, err := GenerateJWT("user-1", "owner@example.com", "business_user", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("generation with past validity: %v", err)
	}
	if _, err := ValidateJWT(token, testSecret); err == nil {
		t.Error("expired token validated")
	}
}

func TestGenerateJWTRequiresInputs(t *testing.T) {
	if _, err := GenerateJWT("", "a@b.c", "business_user", testSecret, time.Hour); err == nil {
		t.Error("empty user id accepted")
	}
	if _, err := GenerateJWT("user-1", "a@b.c", "business_user", "short", time.Hour); err == nil {
		t.Error("short secret accepted")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("Sup3rSecret!")
	if err != nil {
		t.Fatal(err)
	}

	if !VerifyPassword("Sup3rSecret!", hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("wrong", hash) {
		t.Error("wrong password accepted")
	}

	other, err := HashPassword("Sup3rSecret!")
	if err != nil {
		t.Fatal(err)
	}
	if string(hash) == string(other) {
		t.Error("two hashes of the same password are identical, salt missing")
	}
}

func TestPINHashing(t *testing.T) {
	hash, err := HashPIN("4821")
	if err != nil {
		t.Fatal(err)
	}

	if !VerifyPIN("4821", hash) {
		t.Error("correct pin rejected")
	}
	if VerifyPIN("0000", hash) {
		t.Error("wrong pin accepted")
	}
	if VerifyPIN("4821", nil) {
		t.Error("nil hash verified")
	}
}

func TestIsValidBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"Bearer eyJhbGciOiJIUzI1NiJ9.payload.signature", true},
		{"bearer eyJhbGciOiJIUzI1NiJ9.payload.signature", false},
		{"Basic abc", false},
		{"Bearer ", false},
		{"", false},
	}
	for _, tt := range tests {
		if _, ok := IsValidBearerToken(tt.header); ok != tt.want {
			t.Errorf("IsValidBearerToken(%q) = %v, want %v", tt.header, ok, tt.want)
		}
	}
}
