package scan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Tributary-ai-services/datadetector/pkg/verify"
)

// DefaultPriority is assigned to specs that do not declare one
const DefaultPriority = 100

// PatternSpec is one detector declaration as read from a catalog file
type PatternSpec struct {
	ID           string         `yaml:"id" json:"id"`
	Namespace    string         `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Location     string         `yaml:"location,omitempty" json:"location,omitempty"`
	Category     string         `yaml:"category" json:"category"`
	Description  string         `yaml:"description,omitempty" json:"description,omitempty"`
	Pattern      string         `yaml:"pattern" json:"pattern"`
	Flags        []string       `yaml:"flags,omitempty" json:"flags,omitempty"`
	Mask         string         `yaml:"mask,omitempty" json:"mask,omitempty"`
	Verification string         `yaml:"verification,omitempty" json:"verification,omitempty"`
	Priority     *int           `yaml:"priority,omitempty" json:"priority,omitempty"`
	Examples     Examples       `yaml:"examples,omitempty" json:"examples,omitempty"`
	Policy       Policy         `yaml:"policy,omitempty" json:"policy,omitempty"`
	Metadata     map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Examples are sample inputs a pattern must and must not detect
type Examples struct {
	Match   []string `yaml:"match,omitempty" json:"match,omitempty"`
	NoMatch []string `yaml:"nomatch,omitempty" json:"nomatch,omitempty"`
}

// Policy controls how matches of a pattern may be surfaced
type Policy struct {
	StoreRaw      bool   `yaml:"store_raw" json:"store_raw"`
	ActionOnMatch string `yaml:"action_on_match,omitempty" json:"action_on_match,omitempty"`
	Severity      string `yaml:"severity,omitempty" json:"severity,omitempty"`
}

// NamespaceName returns the namespace, falling back to location
func (s PatternSpec) NamespaceName() string {
	if s.Namespace != "" {
		return s.Namespace
	}
	return s.Location
}

// FullID returns namespace/id
func (s PatternSpec) FullID() string {
	return s.NamespaceName() + "/" + s.ID
}

// VerifierLookup resolves verification function names
type VerifierLookup interface {
	Lookup(name string) (verify.Verifier, bool)
}

// Pattern is a compiled, immutable detector
type Pattern struct {
	id          string
	namespace   string
	fullID      string
	category    Category
	description string
	source      string
	flags       Flags
	re          *regexp.Regexp
	anchored    *regexp.Regexp
	mask        string
	verifyName  string
	verifier    verify.Verifier
	priority    int
	severity    Severity
	storeRaw    bool
	action      Action
	examples    Examples
	metadata    map[string]any
}

// Compile validates spec and compiles it against the verifier lookup.
// A nil lookup rejects any spec that names a verifier.
func Compile(spec PatternSpec, verifiers VerifierLookup) (*Pattern, error) {
	ns := spec.NamespaceName()
	fullID := spec.FullID()

	if err := checkIdentifier("id", spec.ID); err != nil {
		return nil, &PatternError{PatternID: fullID, Err: err}
	}
	if err := checkIdentifier("namespace", ns); err != nil {
		return nil, &PatternError{PatternID: fullID, Err: err}
	}
	if strings.TrimSpace(spec.Pattern) == "" {
		return nil, specError(fullID, "pattern is empty")
	}

	category, err := ParseCategory(spec.Category)
	if err != nil {
		return nil, &PatternError{PatternID: fullID, Err: err}
	}
	severity, err := ParseSeverity(spec.Policy.Severity)
	if err != nil {
		return nil, &PatternError{PatternID: fullID, Err: err}
	}
	action, err := ParseAction(spec.Policy.ActionOnMatch)
	if err != nil {
		return nil, &PatternError{PatternID: fullID, Err: err}
	}
	flags, err := ParseFlags(spec.Flags)
	if err != nil {
		return nil, &PatternError{PatternID: fullID, Err: err}
	}

	src := spec.Pattern
	if flags.Has(FlagVerbose) {
		src = stripVerbose(src)
	}
	re, err := regexp.Compile(flags.inline() + src)
	if err != nil {
		return nil, specError(fullID, "compiling regex: %w", err)
	}
	anchored, err := regexp.Compile(flags.inline() + `\A(?:` + src + `)\z`)
	if err != nil {
		return nil, specError(fullID, "compiling anchored regex: %w", err)
	}

	var verifier verify.Verifier
	if spec.Verification != "" {
		var ok bool
		if verifiers != nil {
			verifier, ok = verifiers.Lookup(spec.Verification)
		}
		if !ok || verifier == nil {
			return nil, specError(fullID, "%w: %q", ErrVerificationFunctionMissing, spec.Verification)
		}
		verifier = verify.Safe(verifier)
	}

	priority := DefaultPriority
	if spec.Priority != nil {
		priority = *spec.Priority
	}

	return &Pattern{
		id:          spec.ID,
		namespace:   ns,
		fullID:      fullID,
		category:    category,
		description: spec.Description,
		source:      spec.Pattern,
		flags:       flags,
		re:          re,
		anchored:    anchored,
		mask:        spec.Mask,
		verifyName:  spec.Verification,
		verifier:    verifier,
		priority:    priority,
		severity:    severity,
		storeRaw:    spec.Policy.StoreRaw,
		action:      action,
		examples:    spec.Examples,
		metadata:    copyMetadata(spec.Metadata),
	}, nil
}

// checkIdentifier rejects values that would break full ids or token
// placeholders
func checkIdentifier(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is empty", field)
	}
	if i := strings.IndexAny(value, "/:[] \t\r\n"); i >= 0 {
		return fmt.Errorf("%s %q contains reserved character %q", field, value, value[i])
	}
	return nil
}

func copyMetadata(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ID returns the id within the namespace
func (p *Pattern) ID() string { return p.id }

// Namespace returns the namespace
func (p *Pattern) Namespace() string { return p.namespace }

// FullID returns namespace/id
func (p *Pattern) FullID() string { return p.fullID }

// Category returns the category
func (p *Pattern) Category() Category { return p.category }

// Description returns the human-readable description
func (p *Pattern) Description() string { return p.description }

// Source returns the regex as declared
func (p *Pattern) Source() string { return p.source }

// Flags returns the declared regex flags
func (p *Pattern) Flags() Flags { return p.flags }

// Regexp returns the compiled expression
func (p *Pattern) Regexp() *regexp.Regexp { return p.re }

// Mask returns the mask template, empty when none was declared
func (p *Pattern) Mask() string { return p.mask }

// VerificationName returns the declared verifier name
func (p *Pattern) VerificationName() string { return p.verifyName }

// Priority returns the priority; lower values win
func (p *Pattern) Priority() int { return p.priority }

// Severity returns the severity
func (p *Pattern) Severity() Severity { return p.severity }

// StoreRaw reports whether matched text may be surfaced
func (p *Pattern) StoreRaw() bool { return p.storeRaw }

// Action returns the action on match
func (p *Pattern) Action() Action { return p.action }

// Examples returns the declared examples
func (p *Pattern) Examples() Examples { return p.examples }

// Metadata returns a copy of the free-form metadata
func (p *Pattern) Metadata() map[string]any { return copyMetadata(p.metadata) }

// accepts applies the attached verifier, if any
func (p *Pattern) accepts(candidate string) bool {
	return p.verifier == nil || p.verifier.Verify(candidate)
}

// MatchesExactly reports whether the whole of text matches the pattern and
// passes verification
func (p *Pattern) MatchesExactly(text string) bool {
	return p.anchored.MatchString(text) && p.accepts(text)
}

// less orders patterns by priority, then full id
func (p *Pattern) less(o *Pattern) bool {
	if p.priority != o.priority {
		return p.priority < o.priority
	}
	return p.fullID < o.fullID
}

// newMatch builds a match for text[start:end]
func (p *Pattern) newMatch(text string, start, end int, includeText bool) Match {
	m := Match{
		PatternID: p.fullID,
		Namespace: p.namespace,
		Category:  p.category,
		Severity:  p.severity,
		Priority:  p.priority,
		Start:     start,
		End:       end,
		pattern:   p,
	}
	if includeText && p.storeRaw {
		m.MatchedText = text[start:end]
	}
	return m
}

// IsSpecError reports whether err rejected a single spec rather than the
// whole build
func IsSpecError(err error) bool {
	var pe *PatternError
	return errors.As(err, &pe)
}
