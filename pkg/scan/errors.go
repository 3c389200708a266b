package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPatternSpec is matched by every error that rejects a spec
	ErrInvalidPatternSpec = errors.New("invalid pattern spec")
	// ErrVerificationFunctionMissing means a spec names an unregistered verifier
	ErrVerificationFunctionMissing = errors.New("verification function missing")
	// ErrDuplicatePattern means two specs share a namespace/id
	ErrDuplicatePattern = errors.New("duplicate pattern id")
	// ErrEmptyRegistry means no pattern survived compilation
	ErrEmptyRegistry = errors.New("no patterns compiled")
	// ErrUnknownNamespace is returned for namespaces absent from the registry
	ErrUnknownNamespace = errors.New("unknown namespace")
	// ErrUnknownPatternID is returned for full ids absent from the registry
	ErrUnknownPatternID = errors.New("unknown pattern id")
)

// PatternError records why one spec was rejected
type PatternError struct {
	PatternID string
	Err       error
}

func (e *PatternError) Error() string {
	if e.PatternID == "" {
		return fmt.Sprintf("invalid pattern spec: %v", e.Err)
	}
	return fmt.Sprintf("invalid pattern spec %s: %v", e.PatternID, e.Err)
}

// Unwrap returns the specific cause
func (e *PatternError) Unwrap() error {
	return e.Err
}

// Is lets every PatternError match ErrInvalidPatternSpec
func (e *PatternError) Is(target error) bool {
	return target == ErrInvalidPatternSpec
}

func specError(id string, format string, args ...any) *PatternError {
	return &PatternError{PatternID: id, Err: fmt.Errorf(format, args...)}
}
