package id

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Unique(t *testing.T) {
	a, b := New(), New()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

func TestCode_SixDigits(t *testing.T) {
	re := regexp.MustCompile(`^[0-9]{6}$`)
	for i := 0; i < 50; i++ {
		c, err := Code(6)
		require.NoError(t, err)
		assert.Regexp(t, re, c)
	}
}

func TestToken_HexLength(t *testing.T) {
	tok, err := Token(16)
	require.NoError(t, err)
	assert.Len(t, tok, 32)
}
