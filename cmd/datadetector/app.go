package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Tributary-ai-services/datadetector/patterns"
	"github.com/Tributary-ai-services/datadetector/pkg/config"
	"github.com/Tributary-ai-services/datadetector/pkg/logging"
	"github.com/Tributary-ai-services/datadetector/pkg/scan"
	"github.com/Tributary-ai-services/datadetector/pkg/stream"
	"github.com/Tributary-ai-services/datadetector/pkg/tokenize"
	"github.com/Tributary-ai-services/datadetector/pkg/verify"
)

// app is the wired component graph behind every subcommand
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	verifiers *verify.Registry
	handle    *scan.Handle
	engine    *scan.Engine

	// created on first use
	store  tokenize.Store
	signer tokenize.Signer
	redis  *redis.Client
	kafka  *stream.KafkaStreamer
}

func newApp(v *viper.Viper) (*app, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger = logger.With(
		zap.String("service", cfg.Service.ID),
		zap.String("version", cfg.Service.Version),
	)

	verifiers := verify.Default(
		verify.WithEntropyThreshold(cfg.Verification.EntropyThreshold),
		verify.WithEntropyMinLength(cfg.Verification.EntropyMinLength),
	)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		verifiers: verifiers,
	}

	specs, err := a.loadSpecs()
	if err != nil {
		return nil, err
	}
	reg, err := scan.Build(specs, a.buildOptions()...)
	if err != nil {
		return nil, fmt.Errorf("building pattern registry: %w", err)
	}
	a.handle = scan.NewHandle(reg)

	keywords, err := cfg.KeywordIndex()
	if err != nil {
		return nil, err
	}
	a.engine = scan.NewEngine(a.handle,
		scan.WithLogger(logging.WithComponent(logger, "engine")),
		scan.WithMaskChar(cfg.MaskRune()),
		scan.WithHashPrefix(cfg.Redaction.HashPrefix),
		scan.WithTokenPrefix(cfg.Redaction.TokenPrefix),
		scan.WithStableTokens(cfg.Redaction.StableTokens),
		scan.WithKeywords(keywords),
	)

	logger.Debug("datadetector ready",
		zap.Int("patterns", reg.Len()),
		zap.Strings("namespaces", reg.Namespaces()),
		zap.Int("skipped", len(reg.Skipped())))

	return a, nil
}

// loadConfig reads the config file, if any, then applies flag and
// environment overrides
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.Patterns.Paths = append(cfg.Patterns.Paths, v.GetStringSlice("patterns")...)
	if v.GetBool("no_defaults") {
		cfg.Patterns.IncludeDefaults = false
	}
	if level := v.GetString("log_level"); level != "" {
		cfg.Logging.Level = level
	}
	if format := v.GetString("log_format"); format != "" {
		cfg.Logging.Format = format
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) loadSpecs() ([]scan.PatternSpec, error) {
	return patterns.Load(a.cfg.Patterns.IncludeDefaults, a.cfg.Patterns.Paths)
}

func (a *app) buildOptions() []scan.BuildOption {
	return []scan.BuildOption{
		scan.WithVerifiers(a.verifiers),
		scan.WithBuildLogger(logging.WithComponent(a.logger, "registry")),
	}
}

// tokenStore returns the configured token map store
func (a *app) tokenStore() tokenize.Store {
	if a.store != nil {
		return a.store
	}
	switch a.cfg.TokenStore.Backend {
	case "redis":
		rc := a.cfg.TokenStore.Redis
		a.redis = redis.NewClient(&redis.Options{
			Addr:        rc.Addr,
			Password:    rc.Password,
			DB:          rc.DB,
			DialTimeout: rc.DialTimeout,
		})
		a.store = tokenize.NewRedisStore(a.redis, rc.KeyPrefix, a.tokenSigner())
	default:
		a.store = tokenize.NewMemoryStore()
	}
	return a.store
}

// tokenSigner returns the HMAC signer for token maps, or nil when no
// signing key is configured
func (a *app) tokenSigner() tokenize.Signer {
	if a.signer != nil || a.cfg.TokenStore.SigningKey == "" {
		return a.signer
	}
	signer, err := tokenize.NewHMACSigner([]byte(a.cfg.TokenStore.SigningKey))
	if err != nil {
		a.logger.Warn("token maps will not be signed", zap.Error(err))
		return nil
	}
	a.signer = signer
	return signer
}

// streamer returns the Kafka streamer, creating it on first use
func (a *app) streamer() (stream.Streamer, error) {
	if a.kafka != nil {
		return a.kafka, nil
	}
	ks, err := stream.NewKafkaStreamer(
		stream.NewStreamerConfig(a.cfg.Streaming.Kafka),
		logging.WithComponent(a.logger, "stream"),
	)
	if err != nil {
		return nil, err
	}
	a.kafka = ks
	return ks, nil
}

// findingRecord is one line written by the local streamer
type findingRecord struct {
	Topic   string         `json:"topic"`
	Finding stream.Finding `json:"finding"`
}

// localStreamer routes findings like the Kafka streamer but writes them to
// w as JSON lines
func (a *app) localStreamer(w io.Writer) *stream.LocalStreamer {
	ls := stream.NewLocalStreamer(stream.NewStreamerConfig(a.cfg.Streaming.Kafka))
	enc := json.NewEncoder(w)
	var mu sync.Mutex
	ls.OnPublish(func(topic string, f stream.Finding) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(findingRecord{Topic: topic, Finding: f}); err != nil {
			a.logger.Warn("writing finding", zap.String("topic", topic), zap.Error(err))
		}
	})
	return ls
}

func (a *app) close() {
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Warn("closing kafka streamer", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis client", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
