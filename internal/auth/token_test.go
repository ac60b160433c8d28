package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestHashAndVerify(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)

	hash := HashToken(key)
	assert.NotEqual(t, key, hash)
	assert.Equal(t, hash, HashToken(key))
	assert.True(t, VerifyToken(key, hash))
	assert.False(t, VerifyToken(key+"x", hash))
	assert.False(t, VerifyToken(key, ""))
}

func TestMatchAny(t *testing.T) {
	hashes := []string{HashToken("one"), HashToken("two")}

	assert.True(t, MatchAny("one", hashes))
	assert.True(t, MatchAny("two", hashes))
	assert.False(t, MatchAny("three", hashes))
	assert.False(t, MatchAny("one", nil))
}
