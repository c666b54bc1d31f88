package mqtt

import (
	"context"
	"fmt"

	"github.com/nerrad567/countrelay/internal/infrastructure/config"
)

// defaultStreamBuffer is the inbound queue depth of a Session.
const defaultStreamBuffer = 256

// Session is a connected client already subscribed to the configured
// device topic filter.
type Session struct {
	*Client
	messages <-chan Message
}

// Dial connects and subscribes to cfg.Topic.
func Dial(ctx context.Context, cfg config.MQTTConfig, logger Logger) (*Session, error) {
	client, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		client.SetLogger(logger)
	}

	messages, err := client.Stream(cfg.Topic, byte(cfg.QoS), defaultStreamBuffer)
	if err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("subscribing to %s: %w", cfg.Topic, err)
	}

	return &Session{Client: client, messages: messages}, nil
}

// Messages returns the inbound message stream.
func (s *Session) Messages() <-chan Message {
	return s.messages
}

// PublishJSON publishes an encoded JSON payload at the configured QoS.
func (s *Session) PublishJSON(topic string, payload []byte) error {
	return s.Publish(topic, payload, byte(s.cfg.QoS), false)
}
