package scan

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/Tributary-ai-services/datadetector/pkg/tokenize"
)

// Engine runs registry snapshots over text. It keeps no per-call state,
// so one Engine may serve any number of goroutines.
type Engine struct {
	source       Source
	logger       *zap.Logger
	keywords     KeywordIndex
	maskChar     rune
	hashPrefix   string
	tokenPrefix  string
	stableTokens bool
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the engine logger
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaskChar sets the character used when a pattern has no mask template
func WithMaskChar(c rune) EngineOption {
	return func(e *Engine) {
		if c != 0 {
			e.maskChar = c
		}
	}
}

// WithHashPrefix sets the tag written in hash replacements
func WithHashPrefix(prefix string) EngineOption {
	return func(e *Engine) {
		if prefix != "" {
			e.hashPrefix = prefix
		}
	}
}

// WithTokenPrefix sets the tag written in token placeholders
func WithTokenPrefix(prefix string) EngineOption {
	return func(e *Engine) {
		if prefix != "" {
			e.tokenPrefix = prefix
		}
	}
}

// WithStableTokens derives placeholders from the value so equal values
// share one placeholder
func WithStableTokens(stable bool) EngineOption {
	return func(e *Engine) { e.stableTokens = stable }
}

// WithKeywords replaces the keyword table used by context hints
func WithKeywords(k KeywordIndex) EngineOption {
	return func(e *Engine) {
		if k != nil {
			e.keywords = k
		}
	}
}

// NewEngine creates an engine reading registries from src, which is either
// a *Registry or a *Handle
func NewEngine(src Source, opts ...EngineOption) *Engine {
	e := &Engine{
		source:      src,
		logger:      zap.NewNop(),
		keywords:    DefaultKeywords(),
		maskChar:    '*',
		hashPrefix:  "HASH",
		tokenPrefix: tokenize.DefaultPrefix,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FindOptions controls a Find call
type FindOptions struct {
	// Namespaces restricts the search; empty means every namespace
	Namespaces []string
	// AllowOverlaps skips overlap resolution
	AllowOverlaps bool
	// StopOnFirstMatch returns as soon as one match is confirmed
	StopOnFirstMatch bool
	// IncludeMatchedText surfaces matched values for store_raw patterns
	IncludeMatchedText bool
	// Context narrows the candidate patterns
	Context *ContextHint
}

// Registry returns the snapshot the next call would use
func (e *Engine) Registry() (*Registry, error) {
	if e.source == nil {
		return nil, ErrEmptyRegistry
	}
	r := e.source.Current()
	if r == nil {
		return nil, ErrEmptyRegistry
	}
	return r, nil
}

// Find scans text and returns confirmed matches sorted by start offset
func (e *Engine) Find(text string, opts FindOptions) (*FindResult, error) {
	reg, err := e.Registry()
	if err != nil {
		return nil, err
	}

	candidates, searched, err := reg.resolve(opts.Namespaces)
	if err != nil {
		return nil, err
	}
	candidates = opts.Context.filter(candidates, e.keywords)

	matches := collect(text, candidates, opts.StopOnFirstMatch, opts.IncludeMatchedText)
	if !opts.AllowOverlaps && len(matches) > 1 {
		matches = resolveOverlaps(matches)
	}
	sortByPosition(matches)

	return &FindResult{
		Text:       text,
		Namespaces: searched,
		Matches:    matches,
	}, nil
}

// Validate reports whether the whole of text matches the pattern named by
// fullID and passes its verification
func (e *Engine) Validate(text, fullID string) (*ValidationResult, error) {
	reg, err := e.Registry()
	if err != nil {
		return nil, err
	}

	p, ok := reg.Lookup(fullID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPatternID, fullID)
	}

	result := &ValidationResult{Text: text, PatternID: fullID}
	if p.MatchesExactly(text) {
		m := p.newMatch(text, 0, len(text), true)
		result.Valid = true
		result.Match = &m
	}
	return result, nil
}

// collect runs every candidate pattern in order and keeps the regex hits
// that pass verification. With stopOnFirst the first confirmed hit ends
// the scan.
func collect(text string, candidates []*Pattern, stopOnFirst, includeText bool) []Match {
	var matches []Match
	for _, p := range candidates {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if start == end {
				continue
			}
			if !p.accepts(text[start:end]) {
				continue
			}
			matches = append(matches, p.newMatch(text, start, end, includeText))
			if stopOnFirst {
				return matches
			}
		}
	}
	return matches
}

// beats reports whether a wins an overlap against b: lower priority value,
// then more severe, then earlier start, then full id
func beats(a, b Match) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
		return ra < rb
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	if a.PatternID != b.PatternID {
		return a.PatternID < b.PatternID
	}
	return a.End < b.End
}

// resolveOverlaps reduces matches to a disjoint set.
//
// Candidates are visited from strongest to weakest. The kept set stays
// sorted by start and disjoint, so a candidate only needs comparing with
// the kept spans immediately before and after its insertion point.
func resolveOverlaps(matches []Match) []Match {
	ordered := make([]Match, len(matches))
	copy(ordered, matches)
	sort.Slice(ordered, func(i, j int) bool { return beats(ordered[i], ordered[j]) })

	kept := make([]Match, 0, len(ordered))
	for _, m := range ordered {
		i := sort.Search(len(kept), func(i int) bool { return kept[i].Start >= m.Start })
		if i < len(kept) && kept[i].Start < m.End {
			continue
		}
		if i > 0 && kept[i-1].End > m.Start {
			continue
		}
		kept = append(kept, Match{})
		copy(kept[i+1:], kept[i:])
		kept[i] = m
	}
	return kept
}

func sortByPosition(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.PatternID < b.PatternID
	})
}
