// Package tokenize holds the reversible side of redaction: token maps,
// placeholder parsing, detokenization, and helpers for handing maps to
// external storage.
package tokenize

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// TokenMap maps placeholders written by the tokenize strategy back to the
// values they replaced. The engine hands it to the caller and keeps no
// reference.
type TokenMap struct {
	ID        string
	Prefix    string
	CreatedAt time.Time

	values map[string]string
	order  []string
}

// NewTokenMap creates an empty map for placeholders using prefix
func NewTokenMap(prefix string) *TokenMap {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &TokenMap{
		ID:        uuid.New().String(),
		Prefix:    prefix,
		CreatedAt: time.Now().UTC(),
		values:    make(map[string]string),
	}
}

// Add records placeholder -> value. Re-adding a placeholder keeps the
// first value.
func (m *TokenMap) Add(placeholder, value string) {
	if _, ok := m.values[placeholder]; ok {
		return
	}
	m.values[placeholder] = value
	m.order = append(m.order, placeholder)
}

// Get returns the value behind placeholder
func (m *TokenMap) Get(placeholder string) (string, bool) {
	v, ok := m.values[placeholder]
	return v, ok
}

// Len returns the number of placeholders
func (m *TokenMap) Len() int {
	return len(m.order)
}

// Placeholders returns the placeholders in insertion order
func (m *TokenMap) Placeholders() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Digest is a SHA-256 over the sorted entries, stable across insertion
// order
func (m *TokenMap) Digest() string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(m.values[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is one placeholder and its value
type Entry struct {
	Placeholder string `json:"placeholder"`
	Value       string `json:"value"`
}

type tokenMapJSON struct {
	ID        string    `json:"id"`
	Prefix    string    `json:"prefix"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
	Digest    string    `json:"digest"`
}

// MarshalJSON keeps entries in insertion order
func (m *TokenMap) MarshalJSON() ([]byte, error) {
	out := tokenMapJSON{
		ID:        m.ID,
		Prefix:    m.Prefix,
		CreatedAt: m.CreatedAt,
		Entries:   make([]Entry, 0, len(m.order)),
		Digest:    m.Digest(),
	}
	for _, k := range m.order {
		out.Entries = append(out.Entries, Entry{Placeholder: k, Value: m.values[k]})
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a map and checks its digest
func (m *TokenMap) UnmarshalJSON(data []byte) error {
	var in tokenMapJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	m.ID = in.ID
	m.Prefix = in.Prefix
	if m.Prefix == "" {
		m.Prefix = DefaultPrefix
	}
	m.CreatedAt = in.CreatedAt
	m.values = make(map[string]string, len(in.Entries))
	m.order = nil
	for _, e := range in.Entries {
		m.Add(e.Placeholder, e.Value)
	}

	if in.Digest != "" && in.Digest != m.Digest() {
		return ErrDigestMismatch
	}
	return nil
}
