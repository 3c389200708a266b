// Package config provides configuration loading and validation for the
// datadetector engine. It supports YAML configuration files with
// environment variable substitution, and parses pattern catalog files into
// specs for the scan package.
package config

import "time"

// Config is the top-level configuration structure mirroring datadetector.yaml.
type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	Patterns     PatternsConfig     `yaml:"patterns"`
	Verification VerificationConfig `yaml:"verification"`
	Redaction    RedactionConfig    `yaml:"redaction"`
	Context      ContextConfig      `yaml:"context"`
	Batch        BatchConfig        `yaml:"batch"`
	TokenStore   TokenStoreConfig   `yaml:"token_store"`
	Streaming    StreamingConfig    `yaml:"streaming"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServiceConfig holds service identification metadata.
type ServiceConfig struct {
	ID          string `yaml:"id"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// PatternsConfig says where pattern catalogs come from.
type PatternsConfig struct {
	// Paths are files, directories or doublestar globs of catalog files
	Paths []string `yaml:"paths"`
	// IncludeDefaults adds the embedded catalog
	IncludeDefaults bool `yaml:"include_defaults"`
	// Watch reloads the registry when catalog files change
	Watch bool `yaml:"watch"`
	// Debounce coalesces bursts of file events
	Debounce time.Duration `yaml:"debounce"`
}

// VerificationConfig tunes the built-in verifiers.
type VerificationConfig struct {
	EntropyThreshold float64 `yaml:"entropy_threshold"`
	EntropyMinLength int     `yaml:"entropy_min_length"`
}

// RedactionConfig holds redaction defaults.
type RedactionConfig struct {
	Strategy              string `yaml:"strategy"`
	MaskChar              string `yaml:"mask_char"`
	HashPrefix            string `yaml:"hash_prefix"`
	TokenPrefix           string `yaml:"token_prefix"`
	StableTokens          bool   `yaml:"stable_tokens"`
	TolerateMissingTokens bool   `yaml:"tolerate_missing_tokens"`
}

// ContextConfig overrides the keyword table used by context hints.
// Keys are keywords, values are category labels.
type ContextConfig struct {
	Keywords map[string][]string `yaml:"keywords"`
}

// BatchConfig holds batch wrapper settings.
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
	// RatePerSecond limits item dispatch; zero disables the limit
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// TokenStoreConfig selects where token maps are kept between calls.
type TokenStoreConfig struct {
	Backend    string        `yaml:"backend"` // memory | redis
	TTL        time.Duration `yaml:"ttl"`
	SigningKey string        `yaml:"signing_key"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	KeyPrefix   string        `yaml:"key_prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// StreamingConfig holds Kafka streaming settings.
type StreamingConfig struct {
	Enabled bool        `yaml:"enabled"`
	Kafka   KafkaConfig `yaml:"kafka"`
}

// KafkaConfig holds Kafka connection and producer settings.
type KafkaConfig struct {
	Brokers  []string            `yaml:"brokers"`
	Topics   KafkaTopicsConfig   `yaml:"topics"`
	Producer KafkaProducerConfig `yaml:"producer"`
}

// KafkaTopicsConfig maps topic names to Kafka topic strings.
type KafkaTopicsConfig struct {
	Findings  string `yaml:"findings"`
	Critical  string `yaml:"critical"`
	Financial string `yaml:"financial"`
	Identity  string `yaml:"identity"`
}

// KafkaProducerConfig holds Kafka producer settings.
type KafkaProducerConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Compression   string        `yaml:"compression"`
	RequiredAcks  string        `yaml:"required_acks"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:          "datadetector",
			Version:     "1.0.0",
			Environment: "development",
		},
		Patterns: PatternsConfig{
			IncludeDefaults: true,
			Debounce:        250 * time.Millisecond,
		},
		Verification: VerificationConfig{
			EntropyThreshold: 4.0,
			EntropyMinLength: 20,
		},
		Redaction: RedactionConfig{
			Strategy:    "mask",
			MaskChar:    "*",
			HashPrefix:  "HASH",
			TokenPrefix: "TOKEN",
		},
		Batch: BatchConfig{
			MaxConcurrency: 8,
		},
		TokenStore: TokenStoreConfig{
			Backend: "memory",
			TTL:     time.Hour,
		},
		Streaming: StreamingConfig{
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: KafkaTopicsConfig{
					Findings:  "datadetector.findings",
					Critical:  "datadetector.findings.critical",
					Financial: "datadetector.findings.financial",
					Identity:  "datadetector.findings.identity",
				},
				Producer: KafkaProducerConfig{
					BatchSize:     100,
					FlushInterval: 100 * time.Millisecond,
					Compression:   "snappy",
					RequiredAcks:  "local",
					MaxRetries:    3,
					RetryBackoff:  100 * time.Millisecond,
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
