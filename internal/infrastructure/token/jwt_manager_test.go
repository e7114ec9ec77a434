package token

import (
	"testing"
	"time"

	"accounts/backend/internal/domain/account"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, "accounts")

	signed, err := m.Generate("a@example.com")
	require.NoError(t, err)

	subject, err := m.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", subject)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour, "accounts")
	signed, err := m.Generate("a@example.com")
	require.NoError(t, err)

	tests := []struct {
		name  string
		mgr   *JWTManager
		token string
	}{
		{name: "garbage", mgr: m, token: "not-a-token"},
		{name: "wrong secret", mgr: NewJWTManager("other", time.Hour, "accounts"), token: signed},
		{name: "wrong issuer", mgr: NewJWTManager("secret", time.Hour, "elsewhere"), token: signed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.mgr.Validate(tt.token)
			assert.ErrorIs(t, err, account.ErrTokenInvalid)
		})
	}
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager("secret", time.Minute, "accounts")
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return issued }

	signed, err := m.Generate("a@example.com")
	require.NoError(t, err)

	m.nowFunc = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = m.Validate(signed)
	assert.ErrorIs(t, err, account.ErrTokenInvalid)
}
