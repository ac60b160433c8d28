// Package certutil computes the content-derived identifiers of stored
// certificates.
package certutil

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Fingerprints holds the hex SHA1 and SHA256 digests of DER bytes
type Fingerprints struct {
	SHA1   string
	SHA256 string
}

// GetFingerprints calculates the lowercase hex fingerprints of a DER certificate
func GetFingerprints(der []byte) Fingerprints {
	s1 := sha1.Sum(der)
	s256 := sha256.Sum256(der)
	return Fingerprints{
		SHA1:   hex.EncodeToString(s1[:]),
		SHA256: hex.EncodeToString(s256[:]),
	}
}

// GetFingerprintsBase64 decodes a standard base64 payload and fingerprints it
func GetFingerprintsBase64(raw string) (Fingerprints, error) {
	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Fingerprints{}, fmt.Errorf("failed to decode certificate payload: %w", err)
	}
	if len(der) == 0 {
		return Fingerprints{}, fmt.Errorf("certificate payload is empty")
	}
	return GetFingerprints(der), nil
}

// FingerprintMatches compares a stored fingerprint against a computed one,
// ignoring case and colon separators.
func FingerprintMatches(stored, computed string) bool {
	stored = strings.ToLower(strings.ReplaceAll(stored, ":", ""))
	return stored == computed
}

// NewID generates a 24 hex character record id: a big-endian seconds
// timestamp followed by 8 random bytes.
func NewID(now time.Time) (string, error) {
	var b [12]byte
	binary.BigEndian.PutUint32(b[:4], uint32(now.Unix()))
	if _, err := rand.Read(b[4:]); err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
