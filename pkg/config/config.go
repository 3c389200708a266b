package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/Tributary-ai-services/datadetector/pkg/scan"
)

// envVarPattern matches ${VAR} and ${VAR:-default} expressions.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// LoadConfig reads a YAML config file, performs environment variable
// substitution on the raw bytes, then unmarshals over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig is LoadConfig for bytes already in memory. source names the
// origin in error messages.
func ParseConfig(data []byte, source string) (*Config, error) {
	data = substituteEnvVars(data)

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", source, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns in content
// with the corresponding environment variable values. If a variable is not
// set and no default is provided, the expression is replaced with an empty
// string.
func substituteEnvVars(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		if groups == nil {
			return match
		}

		varName := string(groups[1])
		hasDefault := len(groups) > 2 && groups[2] != nil

		val, ok := os.LookupEnv(varName)
		if !ok || val == "" {
			if hasDefault {
				return groups[2]
			}
			return []byte("")
		}
		return []byte(val)
	})
}

// KeywordIndex merges the configured keywords over the built-in table.
// Unknown category labels are reported rather than dropped.
func (c *Config) KeywordIndex() (scan.KeywordIndex, error) {
	idx := scan.DefaultKeywords()
	for kw, labels := range c.Context.Keywords {
		cats := make([]scan.Category, 0, len(labels))
		for _, label := range labels {
			cat, err := scan.ParseCategory(label)
			if err != nil {
				return nil, fmt.Errorf("context.keywords[%q]: %w", kw, err)
			}
			cats = append(cats, cat)
		}
		idx[strings.ToLower(kw)] = cats
	}
	return idx, nil
}

// MaskRune returns the configured mask character.
func (c *Config) MaskRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Redaction.MaskChar)
	if r == utf8.RuneError {
		return '*'
	}
	return r
}

// Validate performs basic validation on a loaded Config. It checks that
// required fields are set and that values are within expected ranges.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Service.ID == "" {
		return fmt.Errorf("service.id is required")
	}

	if len(cfg.Patterns.Paths) == 0 && !cfg.Patterns.IncludeDefaults {
		return fmt.Errorf("patterns.paths is empty and patterns.include_defaults is false; no catalog to load")
	}
	if cfg.Patterns.Debounce < 0 {
		return fmt.Errorf("patterns.debounce must be non-negative, got %v", cfg.Patterns.Debounce)
	}

	if cfg.Verification.EntropyThreshold < 0 {
		return fmt.Errorf("verification.entropy_threshold must be non-negative, got %f", cfg.Verification.EntropyThreshold)
	}
	if cfg.Verification.EntropyMinLength < 0 {
		return fmt.Errorf("verification.entropy_min_length must be non-negative, got %d", cfg.Verification.EntropyMinLength)
	}

	if _, err := scan.ParseStrategy(cfg.Redaction.Strategy); err != nil {
		return fmt.Errorf("redaction.strategy: %w", err)
	}
	if cfg.Redaction.MaskChar != "" && utf8.RuneCountInString(cfg.Redaction.MaskChar) != 1 {
		return fmt.Errorf("redaction.mask_char %q must be a single character", cfg.Redaction.MaskChar)
	}
	if strings.ContainsAny(cfg.Redaction.TokenPrefix, "[]:") {
		return fmt.Errorf("redaction.token_prefix %q must not contain brackets or colons", cfg.Redaction.TokenPrefix)
	}

	if _, err := cfg.KeywordIndex(); err != nil {
		return err
	}

	if cfg.Batch.MaxConcurrency < 0 {
		return fmt.Errorf("batch.max_concurrency must be non-negative, got %d", cfg.Batch.MaxConcurrency)
	}
	if cfg.Batch.RatePerSecond < 0 {
		return fmt.Errorf("batch.rate_per_second must be non-negative, got %f", cfg.Batch.RatePerSecond)
	}

	switch cfg.TokenStore.Backend {
	case "", "memory":
	case "redis":
		if cfg.TokenStore.Redis.Addr == "" {
			return fmt.Errorf("token_store.redis.addr is required when token_store.backend is redis")
		}
	default:
		return fmt.Errorf("token_store.backend %q is not valid; must be memory or redis", cfg.TokenStore.Backend)
	}

	if cfg.Streaming.Enabled && len(cfg.Streaming.Kafka.Brokers) == 0 {
		return fmt.Errorf("streaming.kafka.brokers is required when streaming is enabled")
	}

	level := cfg.Logging.Level
	if level != "" {
		validLevels := map[string]bool{
			"debug": true, "info": true, "warn": true, "error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("logging.level %q is not valid; must be one of: debug, info, warn, error", level)
		}
	}

	format := cfg.Logging.Format
	if format != "" {
		if format != "json" && format != "text" && format != "console" {
			return fmt.Errorf("logging.format %q is not valid; must be json, console or text", format)
		}
	}

	return nil
}
