// Package auth pairs the UI shell with the host over a shared pairing key
// and issues short-lived JWT access tokens with rotating refresh tokens.
// The host binds to loopback; tokens keep other local processes from
// driving it.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrTokenExpired = errors.New("token expired")
)

type Claims struct {
	ClientID string `json:"cid"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresInSec int64  `json:"expires_in_sec"`
}

type refreshToken struct {
	ID        string
	ClientID  string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

type Service struct {
	pairingHash []byte
	secret      []byte
	accessTTL   time.Duration
	refreshTTL  time.Duration
	now         func() time.Time

	mu       sync.Mutex
	refreshs map[string]*refreshToken
}

// NewService hashes the pairing key up front so the clear text is gone
// after startup.
func NewService(pairingKey, secret string, accessTTL, refreshTTL time.Duration) (*Service, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pairingKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash pairing key: %w", err)
	}
	return &Service{
		pairingHash: hash,
		secret:      []byte(secret),
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		now:         time.Now,
		refreshs:    map[string]*refreshToken{},
	}, nil
}

// Pair exchanges the pairing key for a token pair. The client name is
// informational and lands in the access claims.
func (s *Service) Pair(pairingKey, clientName string) (Tokens, error) {
	if err := bcrypt.CompareHashAndPassword(s.pairingHash, []byte(pairingKey)); err != nil {
		return Tokens{}, ErrUnauthorized
	}
	return s.issueTokens(uuid.NewString(), clientName)
}

func (s *Service) ParseAccess(tokenString string) (Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, ErrUnauthorized
	}
	return *claims, nil
}

// Refresh rotates the refresh token: the presented one is revoked and a
// fresh pair comes back. A replayed token fails.
func (s *Service) Refresh(raw string) (Tokens, error) {
	tokenID, ok := parseRefreshTokenID(raw)
	if !ok {
		return Tokens{}, ErrUnauthorized
	}
	now := s.now().UTC()

	s.mu.Lock()
	stored, found := s.refreshs[tokenID]
	if !found || stored.RevokedAt != nil {
		s.mu.Unlock()
		return Tokens{}, ErrUnauthorized
	}
	if stored.ExpiresAt.Before(now) {
		s.mu.Unlock()
		return Tokens{}, ErrTokenExpired
	}
	if !equalHash(stored.TokenHash, hashToken(raw)) {
		s.mu.Unlock()
		return Tokens{}, ErrUnauthorized
	}
	stored.RevokedAt = &now
	clientID := stored.ClientID
	s.mu.Unlock()

	return s.issueTokens(clientID, "")
}

func (s *Service) Logout(raw string) error {
	tokenID, ok := parseRefreshTokenID(raw)
	if !ok {
		return ErrUnauthorized
	}
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, found := s.refreshs[tokenID]
	if !found || stored.RevokedAt != nil {
		return ErrUnauthorized
	}
	stored.RevokedAt = &now
	return nil
}

func (s *Service) issueTokens(clientID, clientName string) (Tokens, error) {
	now := s.now().UTC()
	claims := Claims{
		ClientID: clientID,
		Name:     clientName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "clipy-host",
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Tokens{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshID := uuid.NewString()
	secretPart := strings.ReplaceAll(uuid.NewString(), "-", "")
	raw := "rt_" + refreshID + "_" + secretPart

	s.mu.Lock()
	s.refreshs[refreshID] = &refreshToken{
		ID:        refreshID,
		ClientID:  clientID,
		TokenHash: hashToken(raw),
		ExpiresAt: now.Add(s.refreshTTL),
	}
	s.mu.Unlock()

	return Tokens{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresInSec: int64(s.accessTTL.Seconds()),
	}, nil
}

func parseRefreshTokenID(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "rt_") {
		return "", false
	}
	parts := strings.Split(raw, "_")
	if len(parts) < 3 {
		return "", false
	}
	return parts[1], true
}

func hashToken(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func equalHash(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
