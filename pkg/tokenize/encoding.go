package tokenize

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

type envelope struct {
	Map       *TokenMap `json:"map"`
	Signature string    `json:"signature,omitempty"`
}

// Encode serializes a token map to base64-encoded JSON for handing to
// external storage. With a non-nil signer the envelope carries a
// signature.
func Encode(m *TokenMap, signer Signer) (string, error) {
	if m == nil {
		return "", ErrNilTokenMap
	}

	env := envelope{Map: m}
	if signer != nil {
		sig, err := signer.Sign(m)
		if err != nil {
			return "", fmt.Errorf("failed to sign token map: %w", err)
		}
		env.Signature = sig
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token map: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode reverses Encode. With a non-nil signer the signature must be
// present and valid.
func Decode(s string, signer Signer) (*TokenMap, error) {
	if s == "" {
		return nil, errors.New("encoded token map is empty")
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 token map: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token map: %w", err)
	}
	if env.Map == nil {
		return nil, ErrNilTokenMap
	}

	if signer != nil {
		if env.Signature == "" {
			return nil, ErrSignatureMismatch
		}
		if err := signer.Verify(env.Map, env.Signature); err != nil {
			return nil, err
		}
	}
	return env.Map, nil
}
