// Package pipeline runs the detection engine over batches of independent
// inputs with bounded parallelism.
package pipeline

import (
	"errors"
	"time"

	"github.com/Tributary-ai-services/datadetector/pkg/config"
	"github.com/Tributary-ai-services/datadetector/pkg/scan"
)

// ErrMalformedInput is reported for an item whose text is not valid UTF-8
var ErrMalformedInput = errors.New("malformed input")

// Finder is the part of the engine used by ScanBatch
type Finder interface {
	Find(text string, opts scan.FindOptions) (*scan.FindResult, error)
}

// Redactor is the part of the engine used by RedactBatch
type Redactor interface {
	Redact(text string, opts scan.RedactOptions) (*scan.RedactionResult, error)
}

// Engine is satisfied by *scan.Engine
type Engine interface {
	Finder
	Redactor
}

// Item is one independent input of a batch
type Item struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
	// Context overrides the batch-wide hint for this item
	Context *scan.ContextHint `json:"context,omitempty"`
}

// Items wraps plain strings, using their index as the id
func Items(texts ...string) []Item {
	items := make([]Item, len(texts))
	for i, t := range texts {
		items[i] = Item{Text: t}
	}
	return items
}

// ItemResult is the outcome of scanning one item. Exactly one of Result
// and Err is set.
type ItemResult struct {
	Index  int              `json:"index"`
	ItemID string           `json:"item_id,omitempty"`
	Result *scan.FindResult `json:"result,omitempty"`
	Err    error            `json:"-"`
}

// RedactItemResult is the outcome of redacting one item
type RedactItemResult struct {
	Index  int                   `json:"index"`
	ItemID string                `json:"item_id,omitempty"`
	Result *scan.RedactionResult `json:"result,omitempty"`
	Err    error                 `json:"-"`
}

// BatchMetrics summarizes one batch
type BatchMetrics struct {
	Items     int           `json:"items"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Matches   int           `json:"matches"`
	Duration  time.Duration `json:"duration"`
}

// BatchResult holds per-item results in input order
type BatchResult struct {
	BatchID string       `json:"batch_id"`
	Items   []ItemResult `json:"items"`
	Metrics BatchMetrics `json:"metrics"`
}

// RedactBatchResult holds per-item redactions in input order
type RedactBatchResult struct {
	BatchID string             `json:"batch_id"`
	Items   []RedactItemResult `json:"items"`
	Metrics BatchMetrics       `json:"metrics"`
}

// ProcessorConfig configures the processor
type ProcessorConfig struct {
	// MaxConcurrency is used when a call passes a non-positive limit
	MaxConcurrency int `json:"max_concurrency"`

	// RatePerSecond throttles dispatch; zero disables throttling
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`

	// StreamFindings publishes every match through the streamer
	StreamFindings bool `json:"stream_findings"`
}

// DefaultProcessorConfig returns default processor configuration
func DefaultProcessorConfig() *ProcessorConfig {
	return NewProcessorConfig(config.Default())
}

// NewProcessorConfig derives processor settings from the service config
func NewProcessorConfig(cfg *config.Config) *ProcessorConfig {
	return &ProcessorConfig{
		MaxConcurrency: cfg.Batch.MaxConcurrency,
		RatePerSecond:  cfg.Batch.RatePerSecond,
		Burst:          cfg.Batch.Burst,
		StreamFindings: cfg.Streaming.Enabled,
	}
}
