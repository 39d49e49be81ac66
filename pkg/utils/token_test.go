package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLinkToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := NewLinkToken()
		require.NoError(t, err)
		assert.Len(t, tok, 43) // 32 bytes, unpadded base64url
		assert.False(t, seen[tok], "token collision")
		seen[tok] = true

		// Must survive a URL path segment untouched.
		assert.Equal(t, tok, url.PathEscape(tok))
	}
}
