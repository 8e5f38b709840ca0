// Package auth provides password hashing and the JWT access/refresh token
// pair used for cookie authentication.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types embedded in the "type" claim. A token presented for the
// wrong purpose is rejected even when its signature verifies.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ErrInvalidToken covers every token rejection reason. Callers surface a
// generic unauthorized response and never tell the client why.
var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer creates and validates the signed tokens for one deployment.
// Constructed once at startup from config.
type TokenIssuer struct {
	secretKey        []byte
	refreshSecretKey []byte
	accessTTL        time.Duration
	refreshTTL       time.Duration
}

// NewTokenIssuer builds a TokenIssuer. refreshSecret may equal secret.
func NewTokenIssuer(secret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("JWT secret key is not configured")
	}
	if refreshSecret == "" {
		refreshSecret = secret
	}
	return &TokenIssuer{
		secretKey:        []byte(secret),
		refreshSecretKey: []byte(refreshSecret),
		accessTTL:        accessTTL,
		refreshTTL:       refreshTTL,
	}, nil
}

// AccessTTL returns the access token lifetime.
func (i *TokenIssuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (i *TokenIssuer) RefreshTTL() time.Duration { return i.refreshTTL }

type tokenClaims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

func (i *TokenIssuer) create(subject, tokenType string, ttl time.Duration, key []byte) (string, error) {
	now := time.Now().UTC()
	claims := tokenClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// AccessToken generates a short-lived access token for subject.
func (i *TokenIssuer) AccessToken(subject string) (string, error) {
	return i.create(subject, TokenTypeAccess, i.accessTTL, i.secretKey)
}

// RefreshToken generates a long-lived refresh token for subject.
func (i *TokenIssuer) RefreshToken(subject string) (string, error) {
	return i.create(subject, TokenTypeRefresh, i.refreshTTL, i.refreshSecretKey)
}

func (i *TokenIssuer) parse(token, expectedType string, key []byte) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || claims.TokenType != expectedType || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// ParseAccessToken validates an access token and returns its subject.
func (i *TokenIssuer) ParseAccessToken(token string) (string, error) {
	return i.parse(token, TokenTypeAccess, i.secretKey)
}

// ParseRefreshToken validates a refresh token and returns its subject.
func (i *TokenIssuer) ParseRefreshToken(token string) (string, error) {
	return i.parse(token, TokenTypeRefresh, i.refreshSecretKey)
}
