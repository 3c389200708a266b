package tokenize

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDetokenizeKeyMissing is matched when text holds placeholders the
	// map cannot resolve
	ErrDetokenizeKeyMissing = errors.New("detokenize key missing")
	// ErrNilTokenMap is returned when detokenizing without a map
	ErrNilTokenMap = errors.New("token map is nil")
	// ErrDigestMismatch means a decoded map does not match its digest
	ErrDigestMismatch = errors.New("token map digest mismatch")
)

// MissingKeyError lists placeholders with no map entry
type MissingKeyError struct {
	Placeholders []string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%v: %d unresolved placeholder(s): %s",
		ErrDetokenizeKeyMissing, len(e.Placeholders), strings.Join(e.Placeholders, ", "))
}

// Is matches ErrDetokenizeKeyMissing
func (e *MissingKeyError) Is(target error) bool {
	return target == ErrDetokenizeKeyMissing
}

// DetokenizeOption configures Detokenize
type DetokenizeOption func(*detokenizeConfig)

type detokenizeConfig struct {
	tolerateMissing bool
}

// TolerateMissing leaves unresolved placeholders in place instead of failing
func TolerateMissing() DetokenizeOption {
	return func(c *detokenizeConfig) { c.tolerateMissing = true }
}

// Detokenize replaces every placeholder in text with its mapped value.
//
// Text is walked once, so restored values are never rescanned. Any
// placeholder without an entry fails the call with *MissingKeyError
// unless TolerateMissing is given.
func Detokenize(text string, m *TokenMap, opts ...DetokenizeOption) (string, error) {
	if m == nil {
		return "", ErrNilTokenMap
	}
	var cfg detokenizeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	locs := placeholderPattern(m.Prefix).FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	var missing []string
	last := 0
	for _, loc := range locs {
		b.WriteString(text[last:loc[0]])
		placeholder := text[loc[0]:loc[1]]
		if v, ok := m.Get(placeholder); ok {
			b.WriteString(v)
		} else {
			missing = append(missing, placeholder)
			b.WriteString(placeholder)
		}
		last = loc[1]
	}
	b.WriteString(text[last:])

	if len(missing) > 0 && !cfg.tolerateMissing {
		return "", &MissingKeyError{Placeholders: missing}
	}
	return b.String(), nil
}
