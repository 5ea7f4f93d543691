package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	Issuer   = "gap-reversion-bot"
	Audience = "gap-reversion-bot-api"

	DefaultTokenDuration = 30 * 24 * time.Hour
)

// JWTManager signs and verifies operator tokens for the status API
type JWTManager struct {
	secret        []byte
	tokenDuration time.Duration
	now           func() time.Time
}

// Claims represents the JWT claims
type Claims struct {
	jwt.RegisteredClaims
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, tokenDuration time.Duration) (*JWTManager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if tokenDuration <= 0 {
		tokenDuration = DefaultTokenDuration
	}
	return &JWTManager{
		secret:        []byte(secret),
		tokenDuration: tokenDuration,
		now:           time.Now,
	}, nil
}

// GenerateToken issues a token for subject (an operator or service name)
func (m *JWTManager) GenerateToken(subject string) (string, error) {
	now := m.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Audience:  []string{Audience},
		},
	})

	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates a token and returns its claims
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// TokenDuration returns how long issued tokens stay valid
func (m *JWTManager) TokenDuration() time.Duration {
	return m.tokenDuration
}
