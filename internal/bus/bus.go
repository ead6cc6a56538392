// Package bus provides event bus implementations for the monitoring pipeline.
package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/mechasense/mechasense/internal/domain"
)

// New creates a new event bus based on configuration.
// Community tier gets a ChannelBus, Pro tier a NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// newMessage builds the envelope for a publish, carrying the caller's trace ID.
func newMessage(ctx context.Context, tenantID, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata[domain.MetaTraceID] = sc.TraceID().String()
	}
	return msg
}

// checkTenant rejects tenant IDs that would escape their subject token on NATS.
// AllTenants is only valid for subscriptions.
func checkTenant(tenantID string, subscribe bool) error {
	switch {
	case tenantID == "":
		return fmt.Errorf("tenantID is required")
	case tenantID == domain.AllTenants:
		if !subscribe {
			return fmt.Errorf("cannot publish to all tenants")
		}
		return nil
	case strings.ContainsAny(tenantID, ".*> \t\r\n"):
		return fmt.Errorf("invalid tenantID %q", tenantID)
	}
	return nil
}
