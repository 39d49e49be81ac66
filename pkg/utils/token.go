package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewLinkToken returns an unguessable URL-safe token for single-use meeting links.
func NewLinkToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
