package auth

import (
	"testing"
	"time"
)

func newTestAuth(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService("local-pairing-key", "test-secret", 2*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestPairRefreshLogout(t *testing.T) {
	svc := newTestAuth(t)

	tokens, err := svc.Pair("local-pairing-key", "clipy-ui")
	if err != nil {
		t.Fatalf("pair failed: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("tokens must not be empty")
	}

	claims, err := svc.ParseAccess(tokens.AccessToken)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Name != "clipy-ui" || claims.ClientID == "" {
		t.Fatalf("claims = %+v", claims)
	}

	newTokens, err := svc.Refresh(tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if newTokens.AccessToken == "" || newTokens.RefreshToken == "" {
		t.Fatalf("new tokens must not be empty")
	}

	if err := svc.Logout(newTokens.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := svc.Refresh(newTokens.RefreshToken); err == nil {
		t.Fatalf("refresh should fail after logout")
	}
}

func TestPairRejectsWrongKey(t *testing.T) {
	svc := newTestAuth(t)
	if _, err := svc.Pair("wrong-key", "x"); err != ErrUnauthorized {
		t.Fatalf("pair with wrong key = %v, want ErrUnauthorized", err)
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	svc := newTestAuth(t)
	tokens, err := svc.Pair("local-pairing-key", "ui")
	if err != nil {
		t.Fatalf("pair: %v", err)
	}

	rotated, err := svc.Refresh(tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	// Replaying the consumed token must fail; the rotated one works.
	if _, err := svc.Refresh(tokens.RefreshToken); err == nil {
		t.Fatal("replayed refresh token accepted")
	}
	if _, err := svc.Refresh(rotated.RefreshToken); err != nil {
		t.Fatalf("rotated token rejected: %v", err)
	}
}

func TestParseAccessRejectsGarbage(t *testing.T) {
	svc := newTestAuth(t)
	if _, err := svc.ParseAccess("not.a.token"); err != ErrUnauthorized {
		t.Fatalf("garbage token = %v, want ErrUnauthorized", err)
	}
}
