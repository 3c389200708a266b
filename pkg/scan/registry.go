package scan

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/Tributary-ai-services/datadetector/pkg/verify"
)

// Registry is an immutable set of compiled patterns indexed by namespace
// and by full id. Replace it wholesale through a Handle to reload.
type Registry struct {
	patterns    []*Pattern
	byID        map[string]*Pattern
	byNamespace map[string][]*Pattern
	namespaces  []string
	skipped     []*PatternError
	fingerprint uint64
}

// BuildOption configures Build
type BuildOption func(*buildConfig)

type buildConfig struct {
	verifiers VerifierLookup
	logger    *zap.Logger
}

// WithVerifiers sets the verifier lookup used to resolve verification
// names. The default is verify.Default().
func WithVerifiers(v VerifierLookup) BuildOption {
	return func(c *buildConfig) { c.verifiers = v }
}

// WithBuildLogger sets the logger that reports rejected specs
func WithBuildLogger(l *zap.Logger) BuildOption {
	return func(c *buildConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Build compiles specs into a registry.
//
// A spec that fails to compile is skipped and recorded; the remaining specs
// still load. Duplicate full ids keep the first occurrence. Build fails
// only when no spec compiles.
func Build(specs []PatternSpec, opts ...BuildOption) (*Registry, error) {
	cfg := buildConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.verifiers == nil {
		cfg.verifiers = verify.Default()
	}

	r := &Registry{
		byID:        make(map[string]*Pattern, len(specs)),
		byNamespace: make(map[string][]*Pattern),
	}

	for _, spec := range specs {
		p, err := Compile(spec, cfg.verifiers)
		if err != nil {
			var pe *PatternError
			if !errors.As(err, &pe) {
				pe = &PatternError{PatternID: spec.FullID(), Err: err}
			}
			r.skip(cfg.logger, pe)
			continue
		}
		if _, dup := r.byID[p.fullID]; dup {
			r.skip(cfg.logger, specError(p.fullID, "%w", ErrDuplicatePattern))
			continue
		}

		r.byID[p.fullID] = p
		r.patterns = append(r.patterns, p)
		r.byNamespace[p.namespace] = append(r.byNamespace[p.namespace], p)
	}

	if len(r.patterns) == 0 {
		errs := []error{fmt.Errorf("%w: %d specs given", ErrEmptyRegistry, len(specs))}
		for _, pe := range r.skipped {
			errs = append(errs, pe)
		}
		return nil, errors.Join(errs...)
	}

	sortPatterns(r.patterns)
	for ns, list := range r.byNamespace {
		sortPatterns(list)
		r.namespaces = append(r.namespaces, ns)
	}
	sort.Strings(r.namespaces)
	r.fingerprint = fingerprint(r.patterns)

	cfg.logger.Debug("pattern registry built",
		zap.Int("patterns", len(r.patterns)),
		zap.Int("namespaces", len(r.namespaces)),
		zap.Int("skipped", len(r.skipped)))

	return r, nil
}

func (r *Registry) skip(logger *zap.Logger, pe *PatternError) {
	r.skipped = append(r.skipped, pe)
	logger.Warn("pattern spec rejected",
		zap.String("pattern_id", pe.PatternID),
		zap.Error(pe.Err))
}

func sortPatterns(ps []*Pattern) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].less(ps[j]) })
}

// fingerprint hashes everything that affects matching so reloads can tell
// whether a catalog actually changed
func fingerprint(ps []*Pattern) uint64 {
	d := xxhash.New()
	for _, p := range ps {
		for _, field := range []string{
			p.fullID, p.source, strconv.Itoa(int(p.flags)), string(p.category),
			p.mask, p.verifyName, strconv.Itoa(p.priority), string(p.severity),
			strconv.FormatBool(p.storeRaw), string(p.action),
		} {
			_, _ = d.WriteString(field)
			_, _ = d.Write([]byte{0})
		}
	}
	return d.Sum64()
}

// Current returns r itself so a Registry can be used wherever a Source is
// expected
func (r *Registry) Current() *Registry {
	return r
}

// Lookup returns the pattern with the given namespace/id
func (r *Registry) Lookup(fullID string) (*Pattern, bool) {
	p, ok := r.byID[fullID]
	return p, ok
}

// ByNamespace returns the patterns of ns sorted by priority then id
func (r *Registry) ByNamespace(ns string) ([]*Pattern, error) {
	list, ok := r.byNamespace[ns]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}
	out := make([]*Pattern, len(list))
	copy(out, list)
	return out, nil
}

// Patterns returns every pattern sorted by priority then full id
func (r *Registry) Patterns() []*Pattern {
	out := make([]*Pattern, len(r.patterns))
	copy(out, r.patterns)
	return out
}

// Namespaces returns the namespace names in sorted order
func (r *Registry) Namespaces() []string {
	out := make([]string, len(r.namespaces))
	copy(out, r.namespaces)
	return out
}

// Len returns the number of compiled patterns
func (r *Registry) Len() int {
	return len(r.patterns)
}

// Skipped returns the specs rejected during Build
func (r *Registry) Skipped() []*PatternError {
	out := make([]*PatternError, len(r.skipped))
	copy(out, r.skipped)
	return out
}

// Fingerprint identifies the compiled catalog contents
func (r *Registry) Fingerprint() uint64 {
	return r.fingerprint
}

// resolve returns the candidate patterns for the requested namespaces in
// priority order, and the namespaces actually searched
func (r *Registry) resolve(namespaces []string) ([]*Pattern, []string, error) {
	if len(namespaces) == 0 {
		return r.patterns, r.Namespaces(), nil
	}

	seen := make(map[string]bool, len(namespaces))
	var searched []string
	var out []*Pattern
	for _, ns := range namespaces {
		if seen[ns] {
			continue
		}
		seen[ns] = true

		list, ok := r.byNamespace[ns]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
		}
		searched = append(searched, ns)
		out = append(out, list...)
	}

	if len(searched) > 1 {
		sortPatterns(out)
	}
	return out, searched, nil
}
