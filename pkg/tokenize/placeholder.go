package tokenize

import (
	"regexp"
	"strings"
	"sync"
)

// DefaultPrefix tags placeholders such as [TOKEN:comm:email:0]
const DefaultPrefix = "TOKEN"

// Placeholder formats [prefix:namespace:category:ordinal]
func Placeholder(prefix, namespace, category, ordinal string) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(namespace) + len(category) + len(ordinal) + 5)
	b.WriteByte('[')
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(namespace)
	b.WriteByte(':')
	b.WriteString(category)
	b.WriteByte(':')
	b.WriteString(ordinal)
	b.WriteByte(']')
	return b.String()
}

var placeholderPatterns sync.Map // prefix -> *regexp.Regexp

// placeholderPattern matches placeholders written with prefix
func placeholderPattern(prefix string) *regexp.Regexp {
	if re, ok := placeholderPatterns.Load(prefix); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`\[` + regexp.QuoteMeta(prefix) + `:[^\[\]:\s]+:[^\[\]:\s]+:[^\[\]:\s]+\]`)
	actual, _ := placeholderPatterns.LoadOrStore(prefix, re)
	return actual.(*regexp.Regexp)
}

// FindPlaceholders returns the placeholders with prefix found in text, in
// order of appearance
func FindPlaceholders(text, prefix string) []string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return placeholderPattern(prefix).FindAllString(text, -1)
}
