package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// KafkaStreamer is a Kafka-backed implementation of Streamer.
// It uses sarama's AsyncProducer for non-blocking publishing.
type KafkaStreamer struct {
	producer sarama.AsyncProducer
	router   *TopicRouter
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
	errCh    chan error
	wg       sync.WaitGroup
}

var _ Streamer = (*KafkaStreamer)(nil)

// NewKafkaStreamer connects to the configured brokers and starts an async
// producer.
func NewKafkaStreamer(config *StreamerConfig, logger *zap.Logger) (*KafkaStreamer, error) {
	if config == nil {
		config = DefaultStreamerConfig()
	}

	if len(config.Brokers) == 0 {
		return nil, errors.New("at least one Kafka broker is required")
	}

	producer, err := sarama.NewAsyncProducer(config.Brokers, buildSaramaConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewKafkaStreamerWithProducer(producer, config, logger), nil
}

// NewKafkaStreamerWithProducer creates a KafkaStreamer with an injected producer,
// such as one from sarama/mocks.
func NewKafkaStreamerWithProducer(producer sarama.AsyncProducer, config *StreamerConfig, logger *zap.Logger) *KafkaStreamer {
	if config == nil {
		config = DefaultStreamerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ks := &KafkaStreamer{
		producer: producer,
		router:   NewTopicRouter(config.Topics),
		logger:   logger,
		errCh:    make(chan error, 100),
	}

	ks.wg.Add(2)
	go ks.handleSuccesses()
	go ks.handleErrors()

	return ks
}

// Stream publishes findings to Kafka topics based on routing rules.
func (ks *KafkaStreamer) Stream(ctx context.Context, findings []Finding) error {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if ks.closed {
		return ErrStreamerClosed
	}

	for _, finding := range findings {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := json.Marshal(finding)
		if err != nil {
			return fmt.Errorf("failed to marshal finding %s: %w", finding.ID, err)
		}

		for _, topic := range ks.router.Route(finding) {
			msg := &sarama.ProducerMessage{
				Topic: topic,
				Key:   sarama.StringEncoder(finding.key()),
				Value: sarama.ByteEncoder(data),
			}

			select {
			case ks.producer.Input() <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return nil
}

// Close flushes pending messages and closes the Kafka producer.
func (ks *KafkaStreamer) Close() error {
	ks.mu.Lock()
	if ks.closed {
		ks.mu.Unlock()
		return nil
	}
	ks.closed = true
	ks.mu.Unlock()

	ks.producer.AsyncClose()
	ks.wg.Wait()

	return nil
}

// Errors returns a channel of non-fatal errors encountered during publishing.
func (ks *KafkaStreamer) Errors() <-chan error {
	return ks.errCh
}

func (ks *KafkaStreamer) handleSuccesses() {
	defer ks.wg.Done()
	for range ks.producer.Successes() {
	}
}

// handleErrors drains the producer's error channel and forwards errors.
func (ks *KafkaStreamer) handleErrors() {
	defer ks.wg.Done()
	for err := range ks.producer.Errors() {
		if err == nil {
			continue
		}
		wrapped := fmt.Errorf("kafka produce error on topic %s: %w", err.Msg.Topic, err.Err)
		select {
		case ks.errCh <- wrapped:
		default:
			// channel full; drop rather than block the producer
			ks.logger.Warn("dropping kafka error", zap.Error(wrapped))
		}
	}
}

// buildSaramaConfig creates a sarama configuration from our StreamerConfig.
func buildSaramaConfig(config *StreamerConfig) *sarama.Config {
	sc := sarama.NewConfig()

	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true

	if config.FlushInterval > 0 {
		sc.Producer.Flush.Frequency = config.FlushInterval
	}
	if config.BatchSize > 0 {
		sc.Producer.Flush.Messages = config.BatchSize
	}

	switch config.Compression {
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
		sc.Version = sarama.V2_1_0_0
	default:
		sc.Producer.Compression = sarama.CompressionNone
	}

	switch config.RequiredAcks {
	case "none":
		sc.Producer.RequiredAcks = sarama.NoResponse
	case "local", "leader":
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	default:
		sc.Producer.RequiredAcks = sarama.WaitForAll
	}

	if config.MaxRetries > 0 {
		sc.Producer.Retry.Max = config.MaxRetries
	}
	if config.RetryBackoff > 0 {
		sc.Producer.Retry.Backoff = config.RetryBackoff
	}

	return sc
}
