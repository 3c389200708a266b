package scan

// ExampleFailure is one declared example the pattern got wrong
type ExampleFailure struct {
	PatternID string `json:"pattern_id"`
	Example   string `json:"example"`
	// WantMatch is true for examples.match entries
	WantMatch bool `json:"want_match"`
}

// detects reports whether p finds a verified match anywhere in text
func (p *Pattern) detects(text string) bool {
	for _, loc := range p.re.FindAllStringIndex(text, -1) {
		if loc[0] != loc[1] && p.accepts(text[loc[0]:loc[1]]) {
			return true
		}
	}
	return false
}

// CheckExamples runs a pattern's declared examples: every match example
// must be detected and no nomatch example may be
func CheckExamples(p *Pattern) []ExampleFailure {
	var failures []ExampleFailure
	for _, ex := range p.examples.Match {
		if !p.detects(ex) {
			failures = append(failures, ExampleFailure{PatternID: p.fullID, Example: ex, WantMatch: true})
		}
	}
	for _, ex := range p.examples.NoMatch {
		if p.detects(ex) {
			failures = append(failures, ExampleFailure{PatternID: p.fullID, Example: ex})
		}
	}
	return failures
}

// CheckExamples runs CheckExamples over every pattern in priority order
func (r *Registry) CheckExamples() []ExampleFailure {
	var failures []ExampleFailure
	for _, p := range r.patterns {
		failures = append(failures, CheckExamples(p)...)
	}
	return failures
}
