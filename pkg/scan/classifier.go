package scan

import (
	"path"
	"sort"
	"strings"
	"sync"
)

// Framework is a compliance regime a detection can fall under
type Framework string

const (
	FrameworkGDPR     Framework = "GDPR"
	FrameworkCCPA     Framework = "CCPA"
	FrameworkHIPAA    Framework = "HIPAA"
	FrameworkPCIDSS   Framework = "PCI-DSS"
	FrameworkSOX      Framework = "SOX"
	FrameworkPIPA     Framework = "PIPA"
	FrameworkSecurity Framework = "SECURITY"
	FrameworkISO27001 Framework = "ISO27001"
)

// ClassificationContext describes where the scanned text came from
type ClassificationContext struct {
	IsHealthcare bool `json:"is_healthcare,omitempty"`
	IsEUData     bool `json:"is_eu_data,omitempty"`
	IsKoreanData bool `json:"is_korean_data,omitempty"`
}

// FrameworkRule maps a category, or a set of pattern ids, to a framework
// requirement
type FrameworkRule struct {
	Framework   Framework `json:"framework"`
	RuleID      string    `json:"rule_id"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`

	// Condition gates the rule on the classification context; nil always applies
	Condition func(ClassificationContext) bool `json:"-"`
}

// FrameworkMatch is one rule triggered by a set of matches
type FrameworkMatch struct {
	FrameworkRule
	Matches int `json:"matches"`
}

// Classification summarizes the matches of one scan
type Classification struct {
	HighestSeverity Severity         `json:"highest_severity,omitempty"`
	Categories      map[Category]int `json:"categories"`
	Frameworks      []FrameworkMatch `json:"frameworks"`
}

// FrameworkNames lists the distinct frameworks in the classification
func (c *Classification) FrameworkNames() []Framework {
	seen := make(map[Framework]bool)
	var out []Framework
	for _, fm := range c.Frameworks {
		if !seen[fm.Framework] {
			seen[fm.Framework] = true
			out = append(out, fm.Framework)
		}
	}
	return out
}

type selectorRule struct {
	selector string
	rule     FrameworkRule
}

// Classifier maps matches to compliance framework rules
type Classifier struct {
	mu         sync.RWMutex
	byCategory map[Category][]FrameworkRule
	byPattern  []selectorRule
}

// NewClassifier creates a classifier holding the default rules
func NewClassifier() *Classifier {
	c := &Classifier{byCategory: make(map[Category][]FrameworkRule)}
	c.loadDefaultRules()
	return c
}

// credentialPatterns selects the built-in secret and credential patterns
var credentialPatterns = []string{
	"aws_access_key_*",
	"github_token_*",
	"google_api_key_*",
	"private_key_*",
	"jwt_*",
	"connection_string_*",
	"secret_token_*",
}

func (c *Classifier) loadDefaultRules() {
	// PCI-DSS
	c.addRule(CategoryPaymentCard, FrameworkRule{
		Framework:   FrameworkPCIDSS,
		RuleID:      "PCI-DSS-3.4",
		Severity:    SeverityCritical,
		Description: "Card numbers must be rendered unreadable wherever stored",
	})
	c.addRule(CategoryBankAccount, FrameworkRule{
		Framework:   FrameworkPCIDSS,
		RuleID:      "PCI-DSS-3.2",
		Severity:    SeverityHigh,
		Description: "Bank account data must be protected",
	})

	// SOX
	c.addRule(CategoryBankAccount, FrameworkRule{
		Framework:   FrameworkSOX,
		RuleID:      "SOX-302",
		Severity:    SeverityHigh,
		Description: "Financial account data is subject to disclosure controls",
	})
	c.addRule(CategoryIBAN, FrameworkRule{
		Framework:   FrameworkSOX,
		RuleID:      "SOX-302",
		Severity:    SeverityHigh,
		Description: "Financial account data is subject to disclosure controls",
	})
	c.addRule(CategoryPaymentCard, FrameworkRule{
		Framework:   FrameworkSOX,
		RuleID:      "SOX-404",
		Severity:    SeverityHigh,
		Description: "Payment data is subject to internal control assessment",
	})

	// GDPR; unconditional for direct identifiers, EU data only for the rest
	for _, cat := range []Category{CategoryEmail, CategoryName, CategoryPhone, CategoryAddress} {
		c.addRule(cat, FrameworkRule{
			Framework:   FrameworkGDPR,
			RuleID:      "GDPR-4.1",
			Severity:    SeverityMedium,
			Description: "Personal data relating to an identifiable natural person",
		})
	}
	c.addRule(CategoryIP, FrameworkRule{
		Framework:   FrameworkGDPR,
		RuleID:      "GDPR-4.1-IP",
		Severity:    SeverityLow,
		Description: "Online identifiers are personal data for EU data subjects",
		Condition:   func(ctx ClassificationContext) bool { return ctx.IsEUData },
	})
	c.addRule(CategoryIBAN, FrameworkRule{
		Framework:   FrameworkGDPR,
		RuleID:      "GDPR-4.1-IBAN",
		Severity:    SeverityHigh,
		Description: "Bank identifiers are personal data for EU data subjects",
		Condition:   func(ctx ClassificationContext) bool { return ctx.IsEUData },
	})
	c.addRule(CategoryNationalID, FrameworkRule{
		Framework:   FrameworkGDPR,
		RuleID:      "GDPR-87",
		Severity:    SeverityCritical,
		Description: "National identification numbers require member state safeguards",
		Condition:   func(ctx ClassificationContext) bool { return ctx.IsEUData },
	})

	// CCPA
	c.addRule(CategoryNationalID, FrameworkRule{
		Framework:   FrameworkCCPA,
		RuleID:      "CCPA-1798.140",
		Severity:    SeverityCritical,
		Description: "Government identifiers are personal information under CCPA",
	})
	c.addRule(CategoryEmail, FrameworkRule{
		Framework:   FrameworkCCPA,
		RuleID:      "CCPA-1798.140-EMAIL",
		Severity:    SeverityMedium,
		Description: "Email addresses are personal information under CCPA",
	})
	c.addRule(CategoryPassport, FrameworkRule{
		Framework:   FrameworkCCPA,
		RuleID:      "CCPA-1798.140-PASSPORT",
		Severity:    SeverityHigh,
		Description: "Passport numbers are personal information under CCPA",
	})

	// HIPAA, only for healthcare data
	for _, cat := range []Category{CategoryNationalID, CategoryName, CategoryAddress, CategoryPhone, CategoryEmail} {
		sev := SeverityMedium
		if cat == CategoryNationalID {
			sev = SeverityCritical
		}
		c.addRule(cat, FrameworkRule{
			Framework:   FrameworkHIPAA,
			RuleID:      "HIPAA-164.514",
			Severity:    sev,
			Description: "Identifier is protected health information in a healthcare context",
			Condition:   func(ctx ClassificationContext) bool { return ctx.IsHealthcare },
		})
	}

	// PIPA (Korea), for resident registration and contact data of Korean subjects
	for _, cat := range []Category{CategoryNationalID, CategoryPhone, CategoryName, CategoryAddress} {
		sev := SeverityMedium
		ruleID := "PIPA-23"
		if cat == CategoryNationalID {
			sev = SeverityCritical
			ruleID = "PIPA-24-2"
		}
		c.addRule(cat, FrameworkRule{
			Framework:   FrameworkPIPA,
			RuleID:      ruleID,
			Severity:    sev,
			Description: "Personal information of Korean data subjects",
			Condition:   func(ctx ClassificationContext) bool { return ctx.IsKoreanData },
		})
	}

	// Credentials
	for _, sel := range credentialPatterns {
		c.addPatternRule(sel, FrameworkRule{
			Framework:   FrameworkSecurity,
			RuleID:      "SEC-CREDENTIAL",
			Severity:    SeverityCritical,
			Description: "Credential or secret exposed in content",
		})
		c.addPatternRule(sel, FrameworkRule{
			Framework:   FrameworkISO27001,
			RuleID:      "ISO27001-A.9.4",
			Severity:    SeverityCritical,
			Description: "Credential exposure violates access control",
		})
	}
	for _, cat := range []Category{CategoryNationalID, CategoryPaymentCard, CategoryBankAccount, CategoryIBAN} {
		c.addRule(cat, FrameworkRule{
			Framework:   FrameworkISO27001,
			RuleID:      "ISO27001-A.8.2",
			Severity:    SeverityHigh,
			Description: "Data requires information classification",
		})
	}
}

func (c *Classifier) addRule(cat Category, rule FrameworkRule) {
	c.byCategory[cat] = append(c.byCategory[cat], rule)
}

func (c *Classifier) addPatternRule(selector string, rule FrameworkRule) {
	c.byPattern = append(c.byPattern, selectorRule{selector: selector, rule: rule})
}

// AddRule registers a rule for every match of category
func (c *Classifier) AddRule(cat Category, rule FrameworkRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addRule(cat, rule)
}

// AddPatternRule registers a rule for matches of patterns named by
// selector: a full id, a bare id, or a path-style wildcard of either
func (c *Classifier) AddPatternRule(selector string, rule FrameworkRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addPatternRule(selector, rule)
}

// Rules returns the rules that apply to a single match under ctx
func (c *Classifier) Rules(m Match, ctx ClassificationContext) []FrameworkRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []FrameworkRule
	for _, r := range c.byCategory[m.Category] {
		if r.Condition == nil || r.Condition(ctx) {
			out = append(out, r)
		}
	}
	for _, sr := range c.byPattern {
		if selectsPatternID(sr.selector, m.PatternID) && (sr.rule.Condition == nil || sr.rule.Condition(ctx)) {
			out = append(out, sr.rule)
		}
	}
	return out
}

// Classify summarizes matches: the highest severity, counts per category
// and the framework rules they trigger, most severe first
func (c *Classifier) Classify(matches []Match, ctx ClassificationContext) *Classification {
	out := &Classification{Categories: make(map[Category]int)}

	type ruleKey struct {
		fw     Framework
		ruleID string
	}
	triggered := make(map[ruleKey]*FrameworkMatch)

	for _, m := range matches {
		out.Categories[m.Category]++
		if m.Severity.Value() > out.HighestSeverity.Value() {
			out.HighestSeverity = m.Severity
		}
		for _, r := range c.Rules(m, ctx) {
			k := ruleKey{r.Framework, r.RuleID}
			fm, ok := triggered[k]
			if !ok {
				fm = &FrameworkMatch{FrameworkRule: r}
				triggered[k] = fm
			} else if r.Severity.Value() > fm.Severity.Value() {
				fm.Severity = r.Severity
			}
			fm.Matches++
		}
	}

	for _, fm := range triggered {
		out.Frameworks = append(out.Frameworks, *fm)
	}
	sort.Slice(out.Frameworks, func(i, j int) bool {
		a, b := out.Frameworks[i], out.Frameworks[j]
		if a.Severity != b.Severity {
			return a.Severity.Value() > b.Severity.Value()
		}
		if a.Framework != b.Framework {
			return a.Framework < b.Framework
		}
		return a.RuleID < b.RuleID
	})
	return out
}

// Frameworks lists every framework the classifier has rules for
func (c *Classifier) Frameworks() []Framework {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[Framework]bool)
	for _, rules := range c.byCategory {
		for _, r := range rules {
			seen[r.Framework] = true
		}
	}
	for _, sr := range c.byPattern {
		seen[sr.rule.Framework] = true
	}
	out := make([]Framework, 0, len(seen))
	for fw := range seen {
		out = append(out, fw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// selectsPatternID applies matchesID semantics to a full id string
func selectsPatternID(selector, fullID string) bool {
	id := fullID
	if i := strings.IndexByte(fullID, '/'); i >= 0 {
		id = fullID[i+1:]
	}
	if selector == fullID || selector == id {
		return true
	}
	if ok, _ := path.Match(selector, fullID); ok {
		return true
	}
	ok, _ := path.Match(selector, id)
	return ok
}
