package verify

import (
	"math"
	"strings"
)

const (
	// DefaultEntropyThreshold is the minimum Shannon entropy in bits per
	// character for a high-entropy token
	DefaultEntropyThreshold = 4.0

	// DefaultEntropyMinLength is the shortest candidate the entropy
	// verifier accepts
	DefaultEntropyMinLength = 20

	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-+/=."
)

// Entropy returns the Shannon entropy of s in bits per character,
// computed over its rune distribution
func Entropy(s string) float64 {
	if s == "" {
		return 0
	}

	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}

	n := float64(total)
	var h float64
	for _, c := range counts {
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// EntropyVerifier accepts secret-like tokens: long enough, drawn from the
// base64/base64url/JWT alphabet, free of whitespace, and at or above the
// entropy threshold
type EntropyVerifier struct {
	Threshold float64
	MinLength int
}

// Verify implements Verifier
func (e *EntropyVerifier) Verify(candidate string) bool {
	threshold := e.Threshold
	if threshold <= 0 {
		threshold = DefaultEntropyThreshold
	}

	if len(candidate) < e.MinLength {
		return false
	}
	for i := 0; i < len(candidate); i++ {
		if strings.IndexByte(tokenAlphabet, candidate[i]) < 0 {
			return false
		}
	}

	return Entropy(candidate) >= threshold
}

// HighEntropy checks candidate with the default threshold and length
func HighEntropy(candidate string) bool {
	v := EntropyVerifier{Threshold: DefaultEntropyThreshold, MinLength: DefaultEntropyMinLength}
	return v.Verify(candidate)
}
