package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tasknest.io/tasknest/internal/config"
)

func TestJWTRoundTrip(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"

	token, err := GenerateJWT("user-123", "u@example.com", "Uma")
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "u@example.com", claims.Email)
	assert.Equal(t, "Uma", claims.Name)
}

func TestValidateJWTRejectsBadTokens(t *testing.T) {
	config.AppConfig.JWTSecret = "test-secret"

	_, err := ValidateJWT("not-a-token")
	assert.Error(t, err)

	// Token signed with a different secret.
	config.AppConfig.JWTSecret = "other-secret"
	token, err := GenerateJWT("user-123", "u@example.com", "Uma")
	require.NoError(t, err)

	config.AppConfig.JWTSecret = "test-secret"
	_, err = ValidateJWT(token)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.True(t, CheckPasswordHash("hunter2", hash))
	assert.False(t, CheckPasswordHash("hunter3", hash))
}
