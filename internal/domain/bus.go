package domain

import (
	"context"
	"time"
)

// EventBus carries resolution events off the request path.
// Supports Go channels (community) or NATS (pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (community tier)
	ChannelBufferSize int

	// NATS settings (pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topic names for the resolution pipeline.
const (
	TopicTurnResolved         = "tariff.turn.resolved"
	TopicDisambiguationOpened = "tariff.disambiguation.opened"
	TopicRulesReloaded        = "tariff.rules.reloaded"
)

// ResolutionEvent is published on every answered turn and consumed by the
// audit worker.
type ResolutionEvent struct {
	ID              string    `json:"id"`
	ConversationKey string    `json:"conversationKey"`
	ChargeID        string    `json:"chargeId"`
	RuleID          string    `json:"ruleId,omitempty"`
	Outcome         string    `json:"outcome"`
	AnswerText      string    `json:"answerText,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
