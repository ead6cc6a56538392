package domain

import (
	"context"
)

// EventBus carries pipeline events between the API and the async worker.
// Backed by Go channels (Community) or NATS (Pro).
// Every publish and subscribe is scoped to a tenant.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic. tenantID may be AllTenants.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// AllTenants subscribes to a topic across every tenant.
const AllTenants = "*"

// MetaTraceID is the message metadata key carrying the originating trace ID.
const MetaTraceID = "traceId"

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is an event envelope.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `mapstructure:"type"`

	ChannelBufferSize int `mapstructure:"channelBufferSize"`

	NATSUrl           string `mapstructure:"natsUrl"`
	NATSToken         string `mapstructure:"natsToken"`
	NATSMaxReconnects int    `mapstructure:"natsMaxReconnects"`
	NATSReconnectWait int    `mapstructure:"natsReconnectWait"` // seconds
}

// Topics of the monitoring pipeline.
const (
	TopicReadingIngested    = "mechasense.reading.ingested"
	TopicInspection         = "mechasense.inspection"
	TopicAlert              = "mechasense.alert"
	TopicDiagnosisCompleted = "mechasense.diagnosis.completed"
)
