package credentials_test

import (
	"testing"

	"potatoauth/internal/credentials"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	hash, err := credentials.HashPassword("s3cur3")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cur3", hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, credentials.Cost, cost)

	// Salted: hashing twice yields different strings.
	again, err := credentials.HashPassword("s3cur3")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again)
}

func TestCheckPassword(t *testing.T) {
	hash, err := credentials.HashPassword("s3cur3")
	require.NoError(t, err)

	assert.True(t, credentials.CheckPassword("s3cur3", hash))
	assert.False(t, credentials.CheckPassword("wrong", hash))
	assert.False(t, credentials.CheckPassword("s3cur3", "not-a-bcrypt-hash"))
	assert.False(t, credentials.CheckPassword("", ""))
}

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name  string
		bytes int
	}{
		{"password identifier", credentials.PasswordIdentifierBytes},
		{"verify token", credentials.VerifyTokenBytes},
		{"reset token", credentials.ResetTokenBytes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := credentials.GenerateToken(tt.bytes)
			require.NoError(t, err)
			assert.Len(t, token, tt.bytes*2)
			assert.Regexp(t, "^[0-9a-f]+$", token)
		})
	}

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		token, err := credentials.GenerateToken(credentials.ResetTokenBytes)
		require.NoError(t, err)
		seen[token] = struct{}{}
	}
	assert.Greater(t, len(seen), 45)
}
