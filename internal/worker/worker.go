// Package worker runs the inspection pipeline asynchronously for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mechasense/mechasense/internal/domain"
	"github.com/mechasense/mechasense/internal/inspect"
)

// Worker consumes ingested readings from the EventBus.
type Worker struct {
	bus       domain.EventBus
	processor *inspect.Processor

	mu            sync.Mutex
	subscriptions []domain.Subscription
	stopped       bool
	inflight      sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs to consume. Empty subscribes across all tenants.
	TenantIDs []string
}

// ReadingMessage is the payload published on TopicReadingIngested.
type ReadingMessage struct {
	TraceID string                `json:"traceId,omitempty"`
	Reading *domain.SensorReading `json:"reading"`
	Raw     json.RawMessage       `json:"raw,omitempty"`
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, processor *inspect.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to ingested readings for the configured tenants.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.AllTenants}
	}

	started := 0
	for _, tenantID := range tenants {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicReadingIngested, w.handle)
		if err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
		started++
	}

	if started == 0 {
		return fmt.Errorf("no worker subscriptions could be started")
	}

	slog.Info("workers started",
		"tenant_count", started,
		"topic", domain.TopicReadingIngested,
	)
	return nil
}

func (w *Worker) handle(ctx context.Context, msg *domain.Message) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.inflight.Add(1)
	w.mu.Unlock()
	defer w.inflight.Done()
	return w.processReading(ctx, msg)
}

// processReading inspects one reading and publishes the outcome.
func (w *Worker) processReading(ctx context.Context, msg *domain.Message) error {
	start := time.Now()
	tenantID := msg.TenantID

	var rm ReadingMessage
	if err := json.Unmarshal(msg.Payload, &rm); err != nil {
		slog.Error("failed to parse reading message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if rm.Reading == nil {
		return fmt.Errorf("message %s carries no reading", msg.ID)
	}
	rm.Reading.RawPayload = rm.Raw

	traceID := rm.TraceID
	if traceID == "" {
		traceID = msg.Metadata[domain.MetaTraceID]
	}
	if traceID == "" {
		traceID = msg.ID
	}

	inspection, err := w.processor.Run(ctx, &inspect.Input{
		TenantID:  tenantID,
		Reading:   rm.Reading,
		TraceID:   traceID,
		StartTime: start,
	})
	if err != nil {
		slog.Error("inspection failed",
			"tenant_id", tenantID,
			"motor_id", rm.Reading.MotorID,
			"reading_id", rm.Reading.ID,
			"error", err,
		)
		return err
	}

	payload, _ := json.Marshal(inspection)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicInspection, payload); err != nil {
		slog.Error("failed to publish inspection",
			"reading_id", rm.Reading.ID,
			"error", err,
		)
	}

	for _, alert := range inspection.Alerts {
		data, _ := json.Marshal(alert)
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, data); err != nil {
			slog.Error("failed to publish alert",
				"alert_id", alert.ID,
				"error", err,
			)
		}
	}

	slog.Info("reading processed",
		"tenant_id", tenantID,
		"motor_id", rm.Reading.MotorID,
		"reading_id", rm.Reading.ID,
		"status", inspection.Status,
		"alerts", len(inspection.Alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop unsubscribes and waits for in-flight readings to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.stopped = true
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.inflight.Wait()
	w.cancel()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
