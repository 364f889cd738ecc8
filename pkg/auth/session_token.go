package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

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

// SessionTokenAuth signs and verifies the per-session bearer tokens handed
// out at authentication time
type SessionTokenAuth struct {
	SecretKey   []byte
	TokenExpiry time.Duration
}

// NewSessionTokenAuth creates a session token signer. Token lifetime
// defaults to the session TTL when zero.
func NewSessionTokenAuth(secretKey string, tokenExpiry time.Duration) (*SessionTokenAuth, error) {
	if secretKey == "" {
		return nil, errors.New("JWT secret key cannot be empty")
	}
	if tokenExpiry == 0 {
		tokenExpiry = 3 * time.Hour
	}

	return &SessionTokenAuth{
		SecretKey:   []byte(secretKey),
		TokenExpiry: tokenExpiry,
	}, nil
}

// SessionClaims are the claims carried by a session token
type SessionClaims struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	OrgID     string `json:"org_id"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token binding the caller to one session
func (a *SessionTokenAuth) GenerateToken(sessionID, userID, orgID string) (string, error) {
	claims := SessionClaims{
		SessionID: sessionID,
		UserID:    userID,
		OrgID:     orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "fundpilot",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.SecretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// VerifyToken parses and validates a session token
func (a *SessionTokenAuth) VerifyToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.SecretKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		if claims.SessionID == "" {
			return nil, errors.New("token missing session id")
		}
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
