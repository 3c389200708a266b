// Package verify holds the verification functions applied to regex
// candidates after matching: checksums, entropy thresholds and
// caller-supplied business rules.
package verify

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Names of the built-in verifiers
const (
	NameLuhn          = "luhn"
	NameIBANMod97     = "iban_mod97"
	NameHighEntropy   = "high_entropy_token"
	NameDMSCoordinate = "dms_coordinate"
)

var (
	// ErrEmptyName is returned when registering a verifier without a name
	ErrEmptyName = errors.New("verifier name is empty")
	// ErrNilVerifier is returned when registering a nil verifier
	ErrNilVerifier = errors.New("verifier is nil")
)

// Verifier confirms a regex candidate.
//
// Implementations must be pure and must not block. Malformed input yields
// false, never a panic.
type Verifier interface {
	Verify(candidate string) bool
}

// VerifierFunc adapts a plain function to the Verifier interface
type VerifierFunc func(candidate string) bool

// Verify calls f(candidate)
func (f VerifierFunc) Verify(candidate string) bool {
	return f(candidate)
}

// Registry maps verifier names to implementations.
//
// Lookups are resolved once when a pattern is compiled, so changes made
// after a pattern catalog has been built only affect later builds.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]Verifier
}

// NewRegistry creates an empty verifier registry
func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

// Default creates a registry holding the built-in verifiers
func Default(opts ...Option) *Registry {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	r := NewRegistry()
	r.verifiers[NameLuhn] = VerifierFunc(Luhn)
	r.verifiers[NameIBANMod97] = VerifierFunc(IBANMod97)
	r.verifiers[NameHighEntropy] = &EntropyVerifier{
		Threshold: cfg.entropyThreshold,
		MinLength: cfg.entropyMinLength,
	}
	r.verifiers[NameDMSCoordinate] = VerifierFunc(DMSCoordinate)
	return r
}

// Register adds or replaces a verifier
func (r *Registry) Register(name string, v Verifier) error {
	if name == "" {
		return ErrEmptyName
	}
	if v == nil {
		return fmt.Errorf("registering %q: %w", name, ErrNilVerifier)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[name] = v
	return nil
}

// RegisterFunc is shorthand for Register(name, VerifierFunc(fn))
func (r *Registry) RegisterFunc(name string, fn func(string) bool) error {
	if fn == nil {
		return fmt.Errorf("registering %q: %w", name, ErrNilVerifier)
	}
	return r.Register(name, VerifierFunc(fn))
}

// Unregister removes a verifier and reports whether it was present
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.verifiers[name]; !ok {
		return false
	}
	delete(r.verifiers, name)
	return true
}

// Lookup returns the verifier registered under name
func (r *Registry) Lookup(name string) (Verifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.verifiers[name]
	return v, ok
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Safe wraps v so that a panic inside Verify is reported as false
func Safe(v Verifier) Verifier {
	if v == nil {
		return nil
	}
	if _, ok := v.(safeVerifier); ok {
		return v
	}
	return safeVerifier{inner: v}
}

type safeVerifier struct {
	inner Verifier
}

func (s safeVerifier) Verify(candidate string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return s.inner.Verify(candidate)
}

// Option configures the built-in verifiers created by Default
type Option func(*options)

type options struct {
	entropyThreshold float64
	entropyMinLength int
}

func defaultOptions() options {
	return options{
		entropyThreshold: DefaultEntropyThreshold,
		entropyMinLength: DefaultEntropyMinLength,
	}
}

// WithEntropyThreshold sets the bits-per-character threshold of the
// high_entropy_token verifier. Non-positive values keep the default.
func WithEntropyThreshold(bits float64) Option {
	return func(o *options) {
		if bits > 0 {
			o.entropyThreshold = bits
		}
	}
}

// WithEntropyMinLength sets the minimum candidate length accepted by the
// high_entropy_token verifier
func WithEntropyMinLength(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.entropyMinLength = n
		}
	}
}
