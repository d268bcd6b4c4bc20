package crypto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndCheckAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	require.Len(t, key, 64)

	hash, err := HashAPIKey(key)
	require.NoError(t, err)
	require.NotEqual(t, key, hash)

	require.True(t, CheckAPIKey(key, hash))
	require.False(t, CheckAPIKey("wrong-key", hash))
}

func TestGenerateRandomToken_Length(t *testing.T) {
	token, err := GenerateRandomToken(16)
	require.NoError(t, err)
	require.Len(t, token, 32)

	other, err := GenerateRandomToken(16)
	require.NoError(t, err)
	require.NotEqual(t, token, other)
}

func TestHashAPIKey_Failure(t *testing.T) {
	original := bcryptGenerateFromPassword
	defer func() { bcryptGenerateFromPassword = original }()
	bcryptGenerateFromPassword = func(_ []byte, _ int) ([]byte, error) {
		return nil, errors.New("boom")
	}

	_, err := HashAPIKey("key")
	require.Error(t, err)
}

func TestGenerateRandomToken_Failure(t *testing.T) {
	original := randomRead
	defer func() { randomRead = original }()
	randomRead = func(_ []byte) (int, error) {
		return 0, errors.New("entropy exhausted")
	}

	_, err := GenerateRandomToken(16)
	require.Error(t, err)
}
