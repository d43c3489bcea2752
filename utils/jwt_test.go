package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenPair(t *testing.T) {
	pair, err := GenerateTokenPair(7, "dave")
	require.NoError(t, err)

	access, err := ParseToken(pair.Access)
	require.NoError(t, err)
	refresh, err := ParseToken(pair.Refresh)
	require.NoError(t, err)

	assert.Equal(t, AccessToken, access.TokenType)
	assert.Equal(t, RefreshToken, refresh.TokenType)
	assert.EqualValues(t, 7, access.UserID)
	assert.Equal(t, "dave", refresh.Username)
	assert.NotEqual(t, access.ID, refresh.ID)
	assert.True(t, refresh.ExpiresAt.After(access.ExpiresAt.Time))
}

func TestParseTokenRejectsExpiredAndForeign(t *testing.T) {
	expired, err := GenerateToken(1, "erin", AccessToken, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired)
	assert.Error(t, err)

	_, err = ParseToken("not.a.jwt")
	assert.Error(t, err)
}
