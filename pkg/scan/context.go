package scan

import (
	"path"
	"regexp"
	"strings"
)

// ContextStrategy decides what happens when a hint selects nothing
type ContextStrategy string

const (
	// ContextLoose falls back to every pattern when the hint selects none
	ContextLoose ContextStrategy = "loose"
	// ContextStrict searches only the patterns the hint selects
	ContextStrict ContextStrategy = "strict"
	// ContextNone ignores the hint
	ContextNone ContextStrategy = "none"
)

// ContextHint narrows the candidate patterns using what the caller knows
// about the text, such as the column or field it came from
type ContextHint struct {
	Keywords   []string        `json:"keywords,omitempty"`
	Categories []Category      `json:"categories,omitempty"`
	PatternIDs []string        `json:"pattern_ids,omitempty"`
	Exclude    []string        `json:"exclude_patterns,omitempty"`
	Strategy   ContextStrategy `json:"strategy,omitempty"`
}

var fieldSeparators = regexp.MustCompile(`[_\-\s.]+`)

// ContextFromFieldName derives keywords from a field name such as
// "billing_zip_code"
func ContextFromFieldName(field string, strategy ContextStrategy) *ContextHint {
	var keywords []string
	for _, kw := range fieldSeparators.Split(strings.ToLower(field), -1) {
		if len(kw) > 1 {
			keywords = append(keywords, kw)
		}
	}
	return &ContextHint{Keywords: keywords, Strategy: strategy}
}

// KeywordIndex maps normalized keywords to the categories they suggest
type KeywordIndex map[string][]Category

// DefaultKeywords returns the built-in keyword table
func DefaultKeywords() KeywordIndex {
	return KeywordIndex{
		"ssn":             {CategoryNationalID},
		"social security": {CategoryNationalID},
		"national id":     {CategoryNationalID},
		"rrn":             {CategoryNationalID},
		"resident":        {CategoryNationalID},
		"email":           {CategoryEmail},
		"mail":            {CategoryEmail},
		"phone":           {CategoryPhone},
		"mobile":          {CategoryPhone},
		"tel":             {CategoryPhone},
		"cell":            {CategoryPhone},
		"fax":             {CategoryPhone},
		"address":         {CategoryAddress},
		"street":          {CategoryAddress},
		"zip":             {CategoryAddress},
		"postal":          {CategoryAddress},
		"card":            {CategoryPaymentCard},
		"credit":          {CategoryPaymentCard},
		"payment":         {CategoryPaymentCard, CategoryIBAN, CategoryBankAccount},
		"iban":            {CategoryIBAN},
		"bank":            {CategoryBankAccount, CategoryIBAN},
		"account":         {CategoryBankAccount},
		"passport":        {CategoryPassport},
		"ip":              {CategoryIP},
		"host":            {CategoryIP},
		"name":            {CategoryName},
		"token":           {CategoryOther},
		"secret":          {CategoryOther},
		"key":             {CategoryOther},
	}
}

// normalizeKeyword lowercases and turns separators into single spaces
func normalizeKeyword(s string) string {
	return strings.Join(fieldSeparators.Split(strings.ToLower(strings.TrimSpace(s)), -1), " ")
}

// categoriesFor returns the categories whose registered keyword equals kw
// or appears in it as a whole word sequence
func (k KeywordIndex) categoriesFor(kw string) []Category {
	norm := normalizeKeyword(kw)
	padded := " " + norm + " "

	var out []Category
	for registered, cats := range k {
		reg := normalizeKeyword(registered)
		if reg == norm || strings.Contains(padded, " "+reg+" ") {
			out = append(out, cats...)
		}
	}
	return out
}

// matchesID reports whether the selector names p, by full id or bare id,
// with path-style wildcards
func matchesID(selector string, p *Pattern) bool {
	if selector == p.fullID || selector == p.id {
		return true
	}
	if ok, _ := path.Match(selector, p.fullID); ok {
		return true
	}
	ok, _ := path.Match(selector, p.id)
	return ok
}

// filter narrows candidates, preserving their order
func (h *ContextHint) filter(candidates []*Pattern, keywords KeywordIndex) []*Pattern {
	if h == nil || h.Strategy == ContextNone {
		return candidates
	}

	wanted := make(map[Category]bool)
	for _, c := range h.Categories {
		wanted[c] = true
	}
	for _, kw := range h.Keywords {
		for _, c := range keywords.categoriesFor(kw) {
			wanted[c] = true
		}
	}

	excluded := func(p *Pattern) bool {
		for _, sel := range h.Exclude {
			if matchesID(sel, p) {
				return true
			}
		}
		return false
	}
	selected := func(p *Pattern) bool {
		if wanted[p.category] {
			return true
		}
		for _, sel := range h.PatternIDs {
			if matchesID(sel, p) {
				return true
			}
		}
		return false
	}

	var out []*Pattern
	for _, p := range candidates {
		if selected(p) && !excluded(p) {
			out = append(out, p)
		}
	}

	if len(out) == 0 && h.Strategy != ContextStrict {
		for _, p := range candidates {
			if !excluded(p) {
				out = append(out, p)
			}
		}
	}
	return out
}
