package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrStreamerClosed is returned when attempting to stream to a closed streamer.
var ErrStreamerClosed = errors.New("streamer is closed")

// StreamCallback is called for each finding published to a topic.
type StreamCallback func(topic string, finding Finding)

// LocalStreamer is an in-memory implementation of Streamer for library mode.
// It routes findings to topics and invokes callbacks for each published message.
type LocalStreamer struct {
	router    *TopicRouter
	callbacks []StreamCallback
	mu        sync.RWMutex
	closed    bool
}

var _ Streamer = (*LocalStreamer)(nil)

// NewLocalStreamer creates a new local streamer with the given configuration.
// If config is nil, DefaultStreamerConfig() is used.
func NewLocalStreamer(config *StreamerConfig) *LocalStreamer {
	if config == nil {
		config = DefaultStreamerConfig()
	}
	return &LocalStreamer{
		router: NewTopicRouter(config.Topics),
	}
}

// OnPublish registers a callback that will be invoked for each finding
// published to a topic, in registration order.
func (s *LocalStreamer) OnPublish(cb StreamCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Stream publishes findings to the appropriate topics based on routing rules.
func (s *LocalStreamer) Stream(ctx context.Context, findings []Finding) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStreamerClosed
	}

	for _, finding := range findings {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, topic := range s.router.Route(finding) {
			for _, cb := range s.callbacks {
				cb(topic, finding)
			}
		}
	}

	return nil
}

// Close marks the streamer as closed. Subsequent calls to Stream
// will return ErrStreamerClosed.
func (s *LocalStreamer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
