package auth

import (
	"testing"
	"time"

	"watchgate/internal/config"
)

func getTestConfig() *config.Config {
	return &config.Config{
		JWTSecret: []byte("test-secret-key-for-testing"),
	}
}

func TestGenerateAndValidateJWT(t *testing.T) {
	cfg := getTestConfig()

	token, expTime, err := GenerateJWT("ops", cfg)
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}
	if token == "" {
		t.Error("GenerateJWT() returned empty token")
	}
	if expTime <= time.Now().Unix() {
		t.Error("GenerateJWT() expiration time is in the past")
	}

	subject, err := ValidateJWT(token, cfg)
	if err != nil {
		t.Fatalf("ValidateJWT() error = %v", err)
	}
	if subject != "ops" {
		t.Errorf("ValidateJWT() subject = %q, want %q", subject, "ops")
	}
}

func TestValidateJWTRejectsGarbage(t *testing.T) {
	cfg := getTestConfig()

	if _, err := ValidateJWT("not-a-token", cfg); err == nil {
		t.Error("ValidateJWT() error = nil for malformed token, want error")
	}
}

func TestValidateJWTRejectsWrongSecret(t *testing.T) {
	token, _, err := GenerateJWT("ops", getTestConfig())
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}

	other := &config.Config{JWTSecret: []byte("a-different-secret")}
	if _, err := ValidateJWT(token, other); err == nil {
		t.Error("ValidateJWT() error = nil for wrong secret, want error")
	}
}
