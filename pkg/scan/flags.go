package scan

import (
	"fmt"
	"strings"
)

// Flags are regex compilation flags declared on a spec
type Flags uint8

const (
	FlagIgnoreCase Flags = 1 << iota
	FlagMultiline
	FlagDotAll
	FlagUnicode
	FlagVerbose
	FlagUngreedy
)

var flagNames = map[string]Flags{
	"IGNORECASE": FlagIgnoreCase,
	"I":          FlagIgnoreCase,
	"MULTILINE":  FlagMultiline,
	"M":          FlagMultiline,
	"DOTALL":     FlagDotAll,
	"S":          FlagDotAll,
	"UNICODE":    FlagUnicode,
	"VERBOSE":    FlagVerbose,
	"X":          FlagVerbose,
	"UNGREEDY":   FlagUngreedy,
}

// ParseFlags resolves flag names case-insensitively
func ParseFlags(names []string) (Flags, error) {
	var f Flags
	for _, name := range names {
		flag, ok := flagNames[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown regex flag %q", name)
		}
		f |= flag
	}
	return f, nil
}

// Has reports whether all of want are set
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// inline renders the flags as an RE2 group prefix such as "(?is)".
// Unicode is always on in RE2 and verbose is handled before compilation.
func (f Flags) inline() string {
	var b strings.Builder
	if f.Has(FlagIgnoreCase) {
		b.WriteByte('i')
	}
	if f.Has(FlagMultiline) {
		b.WriteByte('m')
	}
	if f.Has(FlagDotAll) {
		b.WriteByte('s')
	}
	if f.Has(FlagUngreedy) {
		b.WriteByte('U')
	}
	if b.Len() == 0 {
		return ""
	}
	return "(?" + b.String() + ")"
}

// Names returns the canonical names of the set flags
func (f Flags) Names() []string {
	var names []string
	for _, n := range []struct {
		flag Flags
		name string
	}{
		{FlagIgnoreCase, "IGNORECASE"},
		{FlagMultiline, "MULTILINE"},
		{FlagDotAll, "DOTALL"},
		{FlagUnicode, "UNICODE"},
		{FlagVerbose, "VERBOSE"},
		{FlagUngreedy, "UNGREEDY"},
	} {
		if f.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return names
}

// stripVerbose removes whitespace and #-comments outside character
// classes, keeping escaped characters intact
func stripVerbose(src string) string {
	var b strings.Builder
	b.Grow(len(src))

	inClass := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			b.WriteByte(c)
			b.WriteByte(src[i+1])
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
			b.WriteByte(c)
		case c == '[':
			inClass = true
			b.WriteByte(c)
			// a leading ] or ^] is literal
			if i+1 < len(src) && src[i+1] == '^' {
				b.WriteByte('^')
				i++
			}
			if i+1 < len(src) && src[i+1] == ']' {
				b.WriteByte(']')
				i++
			}
		case c == '#':
			for i+1 < len(src) && src[i+1] != '\n' {
				i++
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
