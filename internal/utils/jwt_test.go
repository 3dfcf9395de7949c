package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, "BUSINESS", 3, time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), tok.Exp, 5*time.Second)

	claims, err := ParseAccessToken("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "BUSINESS", claims.Role)
	assert.Equal(t, uint64(3), claims.BranchID)
}

func TestParseRejectsWrongSecretAndExpired(t *testing.T) {
	tok, err := NewAccessToken("secret", 1, "CLIENT", 0, time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken("other", tok.Token)
	assert.Error(t, err)

	expired, err := NewAccessToken("secret", 1, "CLIENT", 0, -time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken("secret", expired.Token)
	assert.Error(t, err)
}
