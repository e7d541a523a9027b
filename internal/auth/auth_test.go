package auth

import (
	"errors"
	"testing"
	"time"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash equals plaintext")
	}

	if !CheckPassword("correct horse battery staple", hash) {
		t.Error("correct password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Error("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	playerID := int64(42)
	token, err := svc.GenerateToken(7, "leka", true, &playerID)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "leka" || !claims.IsAdmin {
		t.Errorf("claims = %+v", claims)
	}
	if claims.PlayerID == nil || *claims.PlayerID != 42 {
		t.Errorf("player id = %v, want 42", claims.PlayerID)
	}
}

func TestTokenWithoutPlayerID(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.GenerateToken(1, "plain", false, nil)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.IsAdmin {
		t.Error("non-admin token validated as admin")
	}
	if claims.PlayerID != nil {
		t.Errorf("player id = %v, want nil", claims.PlayerID)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewService("secret-a", time.Hour).GenerateToken(1, "leka", false, nil)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := NewService("secret-b", time.Hour).ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenExpired(t *testing.T) {
	svc := NewService("test-secret", -time.Minute)

	token, err := svc.GenerateToken(1, "leka", false, nil)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := svc.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken for expired token", err)
	}
}

func TestTokenGarbage(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	if _, err := svc.ValidateToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}
