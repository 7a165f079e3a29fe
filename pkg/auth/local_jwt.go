// Package auth mints and verifies dashboard access tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "roomwatch"

// Viewer identifies whoever a dashboard token was minted for
type Viewer struct {
	Subject string   `json:"sub"`
	Rooms   []string `json:"rooms,omitempty"` // Empty means every room
}

// ExtractToken extracts the JWT token from an Authorization header value.
// Supports "Bearer <token>" format.
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("empty authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}

	return token, nil
}

// LocalJWTAuth signs and checks HS256 dashboard tokens with a shared secret
type LocalJWTAuth struct {
	SecretKey   []byte
	TokenExpiry time.Duration // Default: 30 days
}

// NewLocalJWTAuth creates a new local JWT auth instance
func NewLocalJWTAuth(secretKey string, expiry time.Duration) (*LocalJWTAuth, error) {
	if secretKey == "" {
		return nil, errors.New("JWT secret key cannot be empty")
	}

	if expiry <= 0 {
		expiry = 30 * 24 * time.Hour
	}

	return &LocalJWTAuth{
		SecretKey:   []byte(secretKey),
		TokenExpiry: expiry,
	}, nil
}

// JWTClaims represents the JWT token claims
type JWTClaims struct {
	Rooms []string `json:"rooms,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken mints an access token for subject, optionally limited to some rooms
func (a *LocalJWTAuth) GenerateToken(subject string, rooms []string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("token subject cannot be empty")
	}

	now := time.Now()
	expiresAt := now.Add(a.TokenExpiry)
	claims := JWTClaims{
		Rooms: rooms,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.SecretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// VerifyAccessToken verifies a token and returns the viewer it was minted for
func (a *LocalJWTAuth) VerifyAccessToken(tokenString string) (*Viewer, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.SecretKey, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return &Viewer{Subject: claims.Subject, Rooms: claims.Rooms}, nil
	}

	return nil, errors.New("invalid token")
}

// CanView reports whether the viewer may see room
func (v *Viewer) CanView(room string) bool {
	if len(v.Rooms) == 0 {
		return true
	}
	for _, r := range v.Rooms {
		if r == room {
			return true
		}
	}
	return false
}
