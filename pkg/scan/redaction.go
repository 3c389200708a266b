package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Tributary-ai-services/datadetector/pkg/tokenize"
)

// RedactOptions controls a Redact call
type RedactOptions struct {
	// Namespaces restricts the search; empty means every namespace
	Namespaces []string
	// Strategy selects the replacement; empty means mask
	Strategy Strategy
	// AllowOverlaps keeps intersecting matches and replaces their union
	AllowOverlaps bool
	// Context narrows the candidate patterns
	Context *ContextHint
}

// span is one region of the text to rewrite, attributed to the match that
// won it
type span struct {
	start, end int
	winner     Match
}

// Redact finds matches and rewrites them in a single left-to-right pass.
// Matches of report or ignore patterns are returned but left in place.
func (e *Engine) Redact(text string, opts RedactOptions) (*RedactionResult, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyMask
	}
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}

	found, err := e.Find(text, FindOptions{
		Namespaces:    opts.Namespaces,
		AllowOverlaps: opts.AllowOverlaps,
		Context:       opts.Context,
	})
	if err != nil {
		return nil, err
	}

	var spans []span
	if opts.AllowOverlaps {
		spans = coalesce(found.Matches)
	} else {
		spans = make([]span, len(found.Matches))
		for i, m := range found.Matches {
			spans[i] = span{start: m.Start, end: m.End, winner: m}
		}
	}

	r := e.newReplacer(strategy, text)

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	count := 0
	for _, s := range spans {
		b.WriteString(text[last:s.start])
		value := text[s.start:s.end]
		if s.winner.pattern != nil && !s.winner.pattern.action.rewrites() {
			b.WriteString(value)
		} else {
			b.WriteString(r.replace(s.winner, value))
			count++
		}
		last = s.end
	}
	b.WriteString(text[last:])

	e.logger.Debug("text redacted",
		zap.String("strategy", string(strategy)),
		zap.Int("matches", len(found.Matches)),
		zap.Int("redacted", count))

	return &RedactionResult{
		Original:   text,
		Redacted:   b.String(),
		Strategy:   strategy,
		Namespaces: found.Namespaces,
		Matches:    found.Matches,
		Count:      count,
		Tokens:     r.tokens,
	}, nil
}

// coalesce merges intersecting matches, sorted by start, into union spans
// attributed to the strongest member
func coalesce(matches []Match) []span {
	var spans []span
	for _, m := range matches {
		if n := len(spans); n > 0 && m.Start < spans[n-1].end {
			cur := &spans[n-1]
			if m.End > cur.end {
				cur.end = m.End
			}
			if beats(m, cur.winner) {
				cur.winner = m
			}
			continue
		}
		spans = append(spans, span{start: m.Start, end: m.End, winner: m})
	}
	return spans
}

// replacer holds the state of one Redact call
type replacer struct {
	engine   *Engine
	strategy Strategy
	tokens   *tokenize.TokenMap
	ordinal  int
	synth    *synthesizer
}

// stableOrdinalLen is the number of hex digits a stable token starts with
const stableOrdinalLen = 8

func (e *Engine) newReplacer(strategy Strategy, text string) *replacer {
	r := &replacer{engine: e, strategy: strategy}
	switch strategy {
	case StrategyTokenize:
		r.tokens = tokenize.NewTokenMap(e.tokenPrefix)
		// Placeholder-shaped text already in the input maps to itself, so
		// detokenize leaves it alone and no generated token can reuse it
		for _, literal := range tokenize.FindPlaceholders(text, r.tokens.Prefix) {
			r.tokens.Add(literal, literal)
		}
	case StrategySynthetic:
		r.synth = newSynthesizer()
	}
	return r
}

func (r *replacer) replace(m Match, value string) string {
	switch r.strategy {
	case StrategyHash:
		return r.hash(value)
	case StrategyTokenize:
		return r.token(m, value)
	case StrategySynthetic:
		if fake, ok := r.synth.generate(m.Category, value); ok {
			return fake
		}
		return r.mask(m, value)
	default:
		return r.mask(m, value)
	}
}

// mask uses the pattern's template, or one mask character per rune
func (r *replacer) mask(m Match, value string) string {
	if m.pattern != nil && m.pattern.mask != "" {
		return m.pattern.mask
	}
	return strings.Repeat(string(r.engine.maskChar), utf8.RuneCountInString(value))
}

// hash writes [PREFIX:first 16 hex digits of sha256]
func (r *replacer) hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("[%s:%s]", r.engine.hashPrefix, hex.EncodeToString(sum[:])[:16])
}

// token writes a placeholder and records it in the call's token map. A
// placeholder already bound to a different value is never reused: counters
// move on, stable digests grow until unique.
func (r *replacer) token(m Match, value string) string {
	category := string(m.Category)
	if !r.engine.stableTokens {
		for {
			placeholder := tokenize.Placeholder(r.tokens.Prefix, m.Namespace, category, strconv.Itoa(r.ordinal))
			r.ordinal++
			if _, taken := r.tokens.Get(placeholder); !taken {
				r.tokens.Add(placeholder, value)
				return placeholder
			}
		}
	}

	sum := sha256.Sum256([]byte(value))
	digest := hex.EncodeToString(sum[:])
	ordinal := digest[:stableOrdinalLen]
	for n, suffix := stableOrdinalLen, 1; ; {
		placeholder := tokenize.Placeholder(r.tokens.Prefix, m.Namespace, category, ordinal)
		if prev, taken := r.tokens.Get(placeholder); !taken || prev == value {
			r.tokens.Add(placeholder, value)
			return placeholder
		}
		if n < len(digest) {
			n += 4
			ordinal = digest[:n]
		} else {
			ordinal = digest + "-" + strconv.Itoa(suffix)
			suffix++
		}
	}
}
