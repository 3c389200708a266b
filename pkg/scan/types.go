// Package scan compiles declarative pattern catalogs and runs them over
// text: matching with verification, overlap resolution by priority, and
// redaction by mask, hash, token or synthetic replacement.
package scan

import (
	"fmt"
	"strings"

	"github.com/Tributary-ai-services/datadetector/pkg/tokenize"
)

// Category classifies what kind of sensitive value a pattern detects
type Category string

const (
	CategoryPhone       Category = "phone"
	CategoryNationalID  Category = "national-id"
	CategoryEmail       Category = "email"
	CategoryBankAccount Category = "bank-account"
	CategoryPassport    Category = "passport"
	CategoryAddress     Category = "address"
	CategoryPaymentCard Category = "payment-card"
	CategoryIP          Category = "ip"
	CategoryIBAN        Category = "iban"
	CategoryName        Category = "name"
	CategoryOther       Category = "other"
)

// Categories lists every valid category
var Categories = []Category{
	CategoryPhone, CategoryNationalID, CategoryEmail, CategoryBankAccount,
	CategoryPassport, CategoryAddress, CategoryPaymentCard, CategoryIP,
	CategoryIBAN, CategoryName, CategoryOther,
}

// categoryAliases accepts the labels used by older catalogs
var categoryAliases = map[string]Category{
	"ssn":          CategoryNationalID,
	"rrn":          CategoryNationalID,
	"national_id":  CategoryNationalID,
	"bank":         CategoryBankAccount,
	"bank_account": CategoryBankAccount,
	"credit_card":  CategoryPaymentCard,
	"payment_card": CategoryPaymentCard,
	"location":     CategoryOther,
	"token":        CategoryOther,
}

// ParseCategory resolves a category label, accepting legacy aliases
func ParseCategory(s string) (Category, error) {
	label := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == label {
			return c, nil
		}
	}
	if c, ok := categoryAliases[label]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Severity represents the sensitivity of what a pattern detects
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Value returns numeric value for severity comparison
func (s Severity) Value() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Rank orders severities for overlap tie-breaks; lower ranks win, so the
// more severe detection is kept
func (s Severity) Rank() int {
	return SeverityCritical.Value() - s.Value()
}

// ParseSeverity resolves a severity label; empty means medium
func ParseSeverity(s string) (Severity, error) {
	if strings.TrimSpace(s) == "" {
		return SeverityMedium, nil
	}
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Value() == 0 {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// Action is what a caller should do with matches of a pattern
type Action string

const (
	ActionRedact   Action = "redact"
	ActionReport   Action = "report"
	ActionTokenize Action = "tokenize"
	ActionIgnore   Action = "ignore"
)

// ParseAction resolves an action label; empty means redact
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return ActionRedact, nil
	case ActionRedact, ActionReport, ActionTokenize, ActionIgnore:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action_on_match %q", s)
	}
}

// rewrites reports whether redaction replaces matches of this action
func (a Action) rewrites() bool {
	return a == ActionRedact || a == ActionTokenize
}

// Strategy defines how matches are replaced during redaction
type Strategy string

const (
	StrategyMask      Strategy = "mask"      // ****************
	StrategyHash      Strategy = "hash"      // [HASH:9f86d081884c7d65]
	StrategyTokenize  Strategy = "tokenize"  // [TOKEN:comm:email:0]
	StrategySynthetic Strategy = "synthetic" // fabricated value of the same category
)

// ParseStrategy resolves a strategy label; "fake" is accepted for synthetic
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyMask, nil
	case "fake":
		return StrategySynthetic, nil
	case StrategyMask, StrategyHash, StrategyTokenize, StrategySynthetic:
		return st, nil
	default:
		return "", fmt.Errorf("unknown redaction strategy %q", s)
	}
}

// Match is a confirmed detection.
// Start and End are half-open byte offsets into the scanned text.
type Match struct {
	PatternID   string   `json:"pattern_id"`
	Namespace   string   `json:"namespace"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Priority    int      `json:"priority"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	MatchedText string   `json:"matched_text,omitempty"`

	pattern *Pattern
}

// Pattern returns the pattern that produced the match
func (m Match) Pattern() *Pattern {
	return m.pattern
}

// Len returns the span length in bytes
func (m Match) Len() int {
	return m.End - m.Start
}

// Overlaps reports whether the two spans intersect
func (m Match) Overlaps(o Match) bool {
	return m.Start < o.End && o.Start < m.End
}

// FindResult bundles the matches of one Find call
type FindResult struct {
	Text       string   `json:"text"`
	Namespaces []string `json:"namespaces_searched"`
	Matches    []Match  `json:"matches"`
}

// HasMatches reports whether anything was found
func (r *FindResult) HasMatches() bool {
	return len(r.Matches) > 0
}

// ValidationResult is the outcome of validating text against one pattern
type ValidationResult struct {
	Text      string `json:"text"`
	PatternID string `json:"pattern_id"`
	Valid     bool   `json:"is_valid"`
	Match     *Match `json:"match,omitempty"`
}

// RedactionResult is the outcome of one Redact call.
// Tokens is set only for the tokenize strategy and belongs to the caller.
type RedactionResult struct {
	Original   string             `json:"original"`
	Redacted   string             `json:"redacted"`
	Strategy   Strategy           `json:"strategy"`
	Namespaces []string           `json:"namespaces_searched"`
	Matches    []Match            `json:"matches"`
	Count      int                `json:"redaction_count"`
	Tokens     *tokenize.TokenMap `json:"-"`
}
