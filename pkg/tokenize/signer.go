package tokenize

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrSignatureMismatch is returned when a token map fails verification
var ErrSignatureMismatch = errors.New("token map signature verification failed")

// Signer authenticates token maps that leave the process
type Signer interface {
	// Sign returns a signature over the map's identity and contents
	Sign(m *TokenMap) (string, error)

	// Verify checks signature against the map
	Verify(m *TokenMap, signature string) error
}

// hmacSigner implements the Signer interface using HMAC-SHA256.
type hmacSigner struct {
	key []byte
}

// NewHMACSigner creates a new HMAC-SHA256 signer with the given key.
func NewHMACSigner(key []byte) (Signer, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key is empty")
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &hmacSigner{key: k}, nil
}

// Sign creates an HMAC-SHA256 signature for the token map.
func (s *hmacSigner) Sign(m *TokenMap) (string, error) {
	if m == nil {
		return "", ErrNilTokenMap
	}

	mac := hmac.New(sha256.New, s.key)
	if _, err := mac.Write([]byte(canonicalString(m))); err != nil {
		return "", fmt.Errorf("failed to compute HMAC: %w", err)
	}
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify verifies the signature using constant-time comparison.
func (s *hmacSigner) Verify(m *TokenMap, signature string) error {
	expected, err := s.Sign(m)
	if err != nil {
		return fmt.Errorf("failed to compute expected signature: %w", err)
	}

	expectedBytes, err := hex.DecodeString(expected)
	if err != nil {
		return fmt.Errorf("failed to decode expected signature: %w", err)
	}
	actualBytes, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("failed to decode token map signature: %w", err)
	}

	if !hmac.Equal(expectedBytes, actualBytes) {
		return ErrSignatureMismatch
	}
	return nil
}

// canonicalString is id|prefix|created_unix|entry_count|digest
func canonicalString(m *TokenMap) string {
	return fmt.Sprintf("%s|%s|%d|%d|%s",
		m.ID,
		m.Prefix,
		m.CreatedAt.Unix(),
		m.Len(),
		m.Digest(),
	)
}
