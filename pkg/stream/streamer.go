// Package stream publishes detection findings to Kafka topics so that
// downstream consumers can audit what was detected without ever seeing the
// detected values.
package stream

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/Tributary-ai-services/datadetector/pkg/config"
	"github.com/Tributary-ai-services/datadetector/pkg/scan"
)

// Streamer publishes findings
type Streamer interface {
	// Stream publishes findings to their routed topics
	Stream(ctx context.Context, findings []Finding) error

	// Close flushes pending messages and closes the connection
	Close() error
}

// Finding is the event emitted for one match. It never carries the
// matched text, only a digest of it.
type Finding struct {
	ID        string    `json:"id"`
	BatchID   string    `json:"batch_id,omitempty"`
	ItemID    string    `json:"item_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	PatternID string        `json:"pattern_id"`
	Namespace string        `json:"namespace"`
	Category  scan.Category `json:"category"`
	Severity  scan.Severity `json:"severity"`

	Start int `json:"start"`
	End   int `json:"end"`

	// ValueHash is a keyed HMAC-SHA256 of the value when a key is set,
	// a plain SHA-256 otherwise
	ValueHash    string `json:"value_hash"`
	ValueHashAlg string `json:"value_hash_alg"`
	Redacted     bool   `json:"redacted"`
}

// Digest algorithms reported in ValueHashAlg
const (
	HashSHA256     = "sha256"
	HashHMACSHA256 = "hmac-sha256"
)

// FindingOption configures NewFinding
type FindingOption func(*findingConfig)

type findingConfig struct {
	key []byte
}

// WithValueKey keys the value digest with HMAC-SHA256. An empty key keeps
// the plain digest.
func WithValueKey(key []byte) FindingOption {
	return func(c *findingConfig) {
		c.key = key
	}
}

func (c *findingConfig) digest(value string) (string, string) {
	if len(c.key) == 0 {
		sum := sha256.Sum256([]byte(value))
		return hex.EncodeToString(sum[:]), HashSHA256
	}
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil)), HashHMACSHA256
}

// StreamerConfig configures the streamer
type StreamerConfig struct {
	Brokers []string `json:"brokers"`
	Topics  Topics   `json:"topics"`

	BatchSize     int           `json:"batch_size"`
	FlushInterval time.Duration `json:"flush_interval"`
	Compression   string        `json:"compression"`   // "none", "gzip", "snappy", "lz4", "zstd"
	RequiredAcks  string        `json:"required_acks"` // "none", "local", "all"

	MaxRetries   int           `json:"max_retries"`
	RetryBackoff time.Duration `json:"retry_backoff"`
}

// Topics defines Kafka topics per routing class. An empty topic disables
// that route.
type Topics struct {
	Findings  string `json:"findings"`  // every finding
	Critical  string `json:"critical"`  // critical severity only
	Financial string `json:"financial"` // cards, IBANs, bank accounts
	Identity  string `json:"identity"`  // national ids, passports
}

// DefaultStreamerConfig returns default streamer configuration
func DefaultStreamerConfig() *StreamerConfig {
	return NewStreamerConfig(config.Default().Streaming.Kafka)
}

// NewStreamerConfig converts the kafka section of the service config
func NewStreamerConfig(k config.KafkaConfig) *StreamerConfig {
	return &StreamerConfig{
		Brokers: k.Brokers,
		Topics: Topics{
			Findings:  k.Topics.Findings,
			Critical:  k.Topics.Critical,
			Financial: k.Topics.Financial,
			Identity:  k.Topics.Identity,
		},
		BatchSize:     k.Producer.BatchSize,
		FlushInterval: k.Producer.FlushInterval,
		Compression:   k.Producer.Compression,
		RequiredAcks:  k.Producer.RequiredAcks,
		MaxRetries:    k.Producer.MaxRetries,
		RetryBackoff:  k.Producer.RetryBackoff,
	}
}

// NewFinding builds the event for m, a match found in text
func NewFinding(m scan.Match, text, batchID, itemID string, redacted bool, opts ...FindingOption) Finding {
	var cfg findingConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var digest, alg string
	if m.Start >= 0 && m.End <= len(text) && m.Start <= m.End {
		digest, alg = cfg.digest(text[m.Start:m.End])
	}
	return Finding{
		ID:        uuid.NewString(),
		BatchID:   batchID,
		ItemID:    itemID,
		Timestamp: time.Now().UTC(),
		PatternID: m.PatternID,
		Namespace: m.Namespace,
		Category:  m.Category,
		Severity:  m.Severity,
		Start:     m.Start,
		End:       m.End,
		ValueHash:    digest,
		ValueHashAlg: alg,
		Redacted:     redacted,
	}
}

// NewFindings converts every match of one scanned item
func NewFindings(matches []scan.Match, text, batchID, itemID string, redacted bool, opts ...FindingOption) []Finding {
	out := make([]Finding, 0, len(matches))
	for _, m := range matches {
		out = append(out, NewFinding(m, text, batchID, itemID, redacted, opts...))
	}
	return out
}

// key partitions a finding's messages by the item it came from
func (f Finding) key() string {
	return f.BatchID + ":" + f.ItemID
}
