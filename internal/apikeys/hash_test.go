package apikeys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePlaintext(t *testing.T) {
	a, err := generatePlaintext()
	require.NoError(t, err)
	assert.Len(t, a, 64)

	b, err := generatePlaintext()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashPlaintextIsDeterministic(t *testing.T) {
	plaintext := "abc123"

	h1 := hashPlaintext(plaintext)
	h2 := hashPlaintext(plaintext)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashPlaintextDiffersPerInput(t *testing.T) {
	assert.NotEqual(t, hashPlaintext("a"), hashPlaintext("b"))
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, secureCompare("abc", "abc"))
	assert.False(t, secureCompare("abc", "abd"))
	assert.False(t, secureCompare("abc", "abcd"))
}

func TestMaskKey(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"

	masked := maskKey(key)

	assert.True(t, len(masked) == len(key))
	assert.Equal(t, key[:8], masked[:8])
	assert.Equal(t, key[len(key)-4:], masked[len(masked)-4:])
	assert.NotContains(t, masked[8:len(masked)-4], "9")
}

func TestMaskKeyShortInput(t *testing.T) {
	assert.Equal(t, "****", maskKey("short"))
}
