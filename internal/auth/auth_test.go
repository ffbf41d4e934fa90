package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPassword("hunter2", hash))
	assert.False(t, CheckPassword("hunter3", hash))
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("secret", time.Hour)
	token, err := svc.GenerateToken(7, "alice", true)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Identity)
	assert.Equal(t, int64(7), claims.UserID)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, "alice", claims.Subject)
}

func TestRejectsBadTokens(t *testing.T) {
	svc := NewService("secret", time.Hour)
	other := NewService("other-secret", time.Hour)
	expired := NewService("secret", -time.Minute)

	foreign, err := other.GenerateToken(1, "alice", false)
	require.NoError(t, err)
	stale, err := expired.GenerateToken(1, "alice", false)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-jwt",
		"wrong secret": foreign,
		"expired":      stale,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestClaimsContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{Identity: "bob"})
	claims, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "bob", claims.Identity)
}
