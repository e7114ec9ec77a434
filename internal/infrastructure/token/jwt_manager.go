package token

import (
	"errors"
	"fmt"
	"time"

	"accounts/backend/internal/domain/account"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTManager issues and validates access tokens.
type JWTManager struct {
	secret     []byte
	expiration time.Duration
	issuer     string
	nowFunc    func() time.Time
}

// NewJWTManager constructs a manager with the provided secret and expiration.
func NewJWTManager(secret string, expiration time.Duration, issuer string) *JWTManager {
	return &JWTManager{
		secret:     []byte(secret),
		expiration: expiration,
		issuer:     issuer,
		nowFunc:    time.Now,
	}
}

// Generate creates a signed JWT whose subject is the identity's email.
func (m *JWTManager) Generate(subject string) (string, error) {
	now := m.nowFunc().UTC()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses the token and returns its subject. Every failure wraps account.ErrTokenInvalid.
func (m *JWTManager) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.nowFunc),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", account.ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: invalid token claims", account.ErrTokenInvalid)
	}
	return claims.Subject, nil
}
