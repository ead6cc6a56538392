// Package inspect runs a sensor reading through threshold classification,
// alert raising, and CEL sensor rules, and aggregates the outcome.
package inspect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mechasense/mechasense/internal/domain"
	"github.com/mechasense/mechasense/internal/recurrence"
	"github.com/mechasense/mechasense/internal/rules"
	"github.com/mechasense/mechasense/internal/thresholds"
)

var tracer = otel.Tracer("mechasense-inspect")

// DefaultLatestTTL is how long the latest reading snapshot stays cached.
const DefaultLatestTTL = 24 * time.Hour

// Processor inspects readings and persists the outcome.
type Processor struct {
	repo       domain.Repository
	cache      domain.Cache
	engine     *rules.Engine
	recurrence *recurrence.Service

	// Cooldown suppresses repeat alerts for the same motor, parameter and severity.
	Cooldown time.Duration

	// RecurrenceWindow is the look-back of the recent_alert_count rule variable.
	RecurrenceWindow time.Duration

	LatestTTL time.Duration
}

// NewProcessor creates a processor. Any dependency may be nil; the matching
// stage is then skipped.
func NewProcessor(repo domain.Repository, cache domain.Cache, engine *rules.Engine, rec *recurrence.Service, cfg domain.AlertingConfig) *Processor {
	return &Processor{
		repo:             repo,
		cache:            cache,
		engine:           engine,
		recurrence:       rec,
		Cooldown:         cfg.Cooldown,
		RecurrenceWindow: cfg.RecurrenceWindow,
		LatestTTL:        DefaultLatestTTL,
	}
}

// Input contains the reading to inspect.
type Input struct {
	TenantID  string
	Reading   *domain.SensorReading
	TraceID   string
	StartTime time.Time
}

// Inspect classifies the reading, raises alerts and evaluates sensor rules.
// Nothing is persisted.
func (p *Processor) Inspect(ctx context.Context, in *Input) (*domain.Inspection, error) {
	if in == nil || in.Reading == nil {
		return nil, fmt.Errorf("reading is required")
	}
	start := in.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	rd := in.Reading

	ctx, span := tracer.Start(ctx, "inspect.Inspect",
		trace.WithAttributes(
			attribute.String("tenant.id", in.TenantID),
			attribute.String("motor.id", rd.MotorID),
			attribute.String("reading.id", rd.ID),
		),
	)
	defer span.End()

	params := thresholds.Evaluate(rd)
	alerts, suppressed := p.raiseAlerts(ctx, in.TenantID, rd, params)

	var findings []domain.RuleFinding
	if p.engine != nil {
		var err error
		findings, err = p.engine.EvaluateAll(ctx, &rules.EvaluateInput{
			TenantID:         in.TenantID,
			Reading:          rd,
			RecurrenceWindow: int(p.RecurrenceWindow.Seconds()),
		})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("rule evaluation failed: %w", err)
		}
	}

	status := thresholds.Worst(params)
	triggered := 0
	for _, f := range findings {
		if !f.Triggered {
			continue
		}
		triggered++
		if lvl := f.Severity.Status(); lvl.Rank() > status.Rank() {
			status = lvl
		}
	}

	inspection := &domain.Inspection{
		ID:        uuid.New().String(),
		TenantID:  in.TenantID,
		MotorID:   rd.MotorID,
		ReadingID: rd.ID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Params:    params,
		Findings:  findings,
		Alerts:    alerts,
		Metadata: domain.InspectionMeta{
			TraceID:          in.TraceID,
			RulesEvaluated:   len(findings),
			RulesTriggered:   triggered,
			AlertsRaised:     len(alerts),
			AlertsSuppressed: suppressed,
			TotalMs:          time.Since(start).Milliseconds(),
		},
	}

	span.SetAttributes(
		attribute.String("inspection.status", string(status)),
		attribute.Int("inspection.alerts", len(alerts)),
		attribute.Int("inspection.rules_triggered", triggered),
	)

	return inspection, nil
}

// raiseAlerts creates an alert for every parameter outside its normal band,
// unless the same alert fired within the cooldown.
func (p *Processor) raiseAlerts(ctx context.Context, tenantID string, rd *domain.SensorReading, params []domain.ParameterStatus) ([]*domain.Alert, int) {
	alerts := []*domain.Alert{}
	suppressed := 0
	ts := rd.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	for _, ps := range params {
		severity := thresholds.AlertSeverity(ps.Parameter, ps.Value)
		if severity == "" {
			continue
		}

		if p.inCooldown(ctx, tenantID, rd.MotorID, ps.Parameter, severity) {
			suppressed++
			continue
		}

		alerts = append(alerts, &domain.Alert{
			ID:        uuid.New().String(),
			TenantID:  tenantID,
			MotorID:   rd.MotorID,
			ReadingID: rd.ID,
			Parameter: ps.Parameter,
			Value:     ps.Value,
			Severity:  severity,
			Message:   thresholds.AlertMessage(ps.Parameter, ps.Value, severity),
			Status:    domain.AlertOpen,
			Timestamp: ts,
		})
	}
	return alerts, suppressed
}

func (p *Processor) inCooldown(ctx context.Context, tenantID, motorID string, param domain.Parameter, severity domain.Severity) bool {
	if p.cache == nil || p.Cooldown <= 0 {
		return false
	}
	n, err := p.cache.IncrementCounter(ctx, tenantID, cooldownKey(motorID, param, severity), p.Cooldown)
	if err != nil {
		slog.Warn("cooldown counter unavailable",
			"tenant_id", tenantID,
			"motor_id", motorID,
			"error", err,
		)
		return false
	}
	return n > 1
}

func cooldownKey(motorID string, param domain.Parameter, severity domain.Severity) string {
	return fmt.Sprintf("cooldown:%s:%s:%s", motorID, param, severity)
}

// releaseCooldowns lets alerts that were never stored fire again on the next
// reading.
func (p *Processor) releaseCooldowns(ctx context.Context, tenantID string, alerts []*domain.Alert) {
	if p.cache == nil || p.Cooldown <= 0 {
		return
	}
	for _, a := range alerts {
		if err := p.cache.ResetCounter(ctx, tenantID, cooldownKey(a.MotorID, a.Parameter, a.Severity)); err != nil {
			slog.Warn("failed to release alert cooldown",
				"tenant_id", tenantID,
				"motor_id", a.MotorID,
				"error", err,
			)
		}
	}
}

// Run inspects a reading and persists the reading, its alerts and the
// inspection, then refreshes the cached latest reading.
func (p *Processor) Run(ctx context.Context, in *Input) (*domain.Inspection, error) {
	if p.repo == nil {
		return nil, fmt.Errorf("repository not available")
	}
	if in == nil || in.Reading == nil {
		return nil, fmt.Errorf("reading is required")
	}

	ctx, span := tracer.Start(ctx, "inspect.Run")
	defer span.End()

	rd := in.Reading
	if err := p.repo.SaveReading(ctx, in.TenantID, rd); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to save reading: %w", err)
	}

	inspection, err := p.Inspect(ctx, in)
	if err != nil {
		return nil, err
	}

	for i, a := range inspection.Alerts {
		if err := p.repo.SaveAlert(ctx, in.TenantID, a); err != nil {
			span.RecordError(err)
			p.releaseCooldowns(ctx, in.TenantID, inspection.Alerts[i:])
			return nil, fmt.Errorf("failed to save alert: %w", err)
		}
	}
	if len(inspection.Alerts) > 0 && p.recurrence != nil {
		p.recurrence.Invalidate(ctx, in.TenantID, rd.MotorID, int(p.RecurrenceWindow.Seconds()))
	}

	if err := p.repo.SaveInspection(ctx, in.TenantID, inspection); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to save inspection: %w", err)
	}

	if p.cache != nil {
		latest := &domain.LatestReading{Reading: rd, Status: inspection.Status}
		if err := p.cache.SetLatestReading(ctx, in.TenantID, rd.MotorID, latest, p.LatestTTL); err != nil {
			slog.Warn("failed to cache latest reading",
				"tenant_id", in.TenantID,
				"motor_id", rd.MotorID,
				"error", err,
			)
		}
	}

	return inspection, nil
}

// ShouldNotify returns true if the inspection raised alerts or found faults.
func ShouldNotify(in *domain.Inspection) bool {
	return len(in.Alerts) > 0 || in.Metadata.RulesTriggered > 0
}
