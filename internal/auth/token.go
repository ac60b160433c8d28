package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	keyLength = 32 // 32 bytes = 256 bits
)

// GenerateAPIKey generates a random API key
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, keyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}

	// Encode to base64 for easier transmission
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// HashToken hashes a key for storage
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.RawStdEncoding.EncodeToString(hash[:])
}

// VerifyToken verifies a key against its hash using constant-time comparison
func VerifyToken(token, storedHash string) bool {
	actualHash := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(actualHash), []byte(storedHash)) == 1
}

// MatchAny reports whether the key matches one of the stored hashes
func MatchAny(token string, storedHashes []string) bool {
	// Compare against every hash; no early return so timing does not
	// reveal which entry matched.
	matched := false
	for _, h := range storedHashes {
		if VerifyToken(token, h) {
			matched = true
		}
	}
	return matched
}
