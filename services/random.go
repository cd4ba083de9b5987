package services

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// generateRandomString returns length secure random bytes, hex encoded.
func generateRandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// generateCompactToken returns a shorter base64url token, used for rotation
// identifiers where hex would be needlessly long.
func generateCompactToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
