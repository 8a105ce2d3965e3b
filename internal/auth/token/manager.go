// Package token issues and validates the bearer tokens used by the
// admin HTTP boundary.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

type Config struct {
	// TokenExpiration bounds the lifetime of issued tokens.
	TokenExpiration time.Duration
	// SecretKey signs tokens; it must be non-empty and stable across
	// restarts.
	SecretKey string
}

type Manager struct {
	config Config
}

func NewManager(config Config) (*Manager, error) {
	if config.SecretKey == "" {
		return nil, fmt.Errorf("token manager requires a secret key")
	}
	if config.TokenExpiration == 0 {
		config.TokenExpiration = 24 * time.Hour
	}
	return &Manager{config: config}, nil
}

// GenerateToken issues a signed token for the named subject.
func (m *Manager) GenerateToken(subject string) (string, error) {
	now := time.Now()
	claims := jwt.StandardClaims{
		Subject:   subject,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(m.config.TokenExpiration).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature and expiry and returns the subject.
func (m *Manager) ValidateToken(tokenStr string) (string, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(m.config.SecretKey), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Subject, nil
}
