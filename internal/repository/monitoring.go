package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mechasense/mechasense/internal/domain"
)

// SaveAlert stores an alert with tenant isolation.
func (r *SQLRepository) SaveAlert(ctx context.Context, tenantID string, a *domain.Alert) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if a.Status == "" {
		a.Status = domain.AlertOpen
	}

	query := `
		INSERT INTO alerts (
			id, tenant_id, motor_id, reading_id, parameter, value, severity, message, status, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.MotorID, a.ReadingID, string(a.Parameter), a.Value,
		string(a.Severity), a.Message, string(a.Status), a.Timestamp,
	)
	return err
}

// ListAlerts returns alerts matching the filter, newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, tenantID string, filter domain.AlertFilter) ([]*domain.Alert, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	where := []string{"tenant_id = ?"}
	args := []any{tenantID}
	if filter.MotorID != "" {
		where = append(where, "motor_id = ?")
		args = append(args, filter.MotorID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := `
		SELECT id, tenant_id, motor_id, reading_id, parameter, value, severity, message, status, timestamp
		FROM alerts
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY timestamp DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []*domain.Alert{}
	for rows.Next() {
		var a domain.Alert
		var readingID sql.NullString
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.MotorID, &readingID, &a.Parameter, &a.Value,
			&a.Severity, &a.Message, &a.Status, &a.Timestamp,
		); err != nil {
			return nil, err
		}
		a.ReadingID = readingID.String
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// CountAlertsSince counts the alerts of a motor raised at or after since.
func (r *SQLRepository) CountAlertsSince(ctx context.Context, tenantID string, motorID string, since time.Time) (int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM alerts WHERE tenant_id = ? AND motor_id = ? AND timestamp >= ?`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, motorID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

// UpdateAlertStatus moves an alert through the operator workflow.
func (r *SQLRepository) UpdateAlertStatus(ctx context.Context, tenantID string, alertID string, status domain.AlertStatus) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	switch status {
	case domain.AlertOpen, domain.AlertAcknowledged, domain.AlertClosed:
	default:
		return fmt.Errorf("%w: unknown alert status %q", ErrInvalidInput, status)
	}

	query := `UPDATE alerts SET status = ? WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), string(status), tenantID, alertID)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveSensorRule stores a sensor rule version with tenant isolation.
func (r *SQLRepository) SaveSensorRule(ctx context.Context, tenantID string, rule *domain.SensorRule) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO sensor_rules (
			id, tenant_id, name, description, version, expression, severity,
			diagnosis, recommendation, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			diagnosis = excluded.diagnosis,
			recommendation = excluded.recommendation,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Version, rule.Expression,
		string(rule.Severity), rule.Diagnosis, rule.Recommendation, enabled,
		now, now,
	)
	return err
}

const sensorRuleColumns = `id, tenant_id, name, description, version, expression, severity, diagnosis, recommendation, enabled`

// GetSensorRule retrieves the most recently updated version of a rule.
func (r *SQLRepository) GetSensorRule(ctx context.Context, tenantID string, ruleID string) (*domain.SensorRule, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + sensorRuleColumns + `
		FROM sensor_rules
		WHERE tenant_id = ? AND id = ?
		ORDER BY updated_at DESC
		LIMIT 1`

	rule, err := scanSensorRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListSensorRules returns the most recently updated version of every rule, by ID.
func (r *SQLRepository) ListSensorRules(ctx context.Context, tenantID string) ([]*domain.SensorRule, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + sensorRuleColumns + `
		FROM sensor_rules
		WHERE tenant_id = ?
		ORDER BY id, updated_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []*domain.SensorRule{}
	for rows.Next() {
		rule, err := scanSensorRule(rows)
		if err != nil {
			return nil, err
		}
		if n := len(rules); n > 0 && rules[n-1].ID == rule.ID {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanSensorRule(s scanner) (*domain.SensorRule, error) {
	var rule domain.SensorRule
	var description sql.NullString
	var enabled int
	err := s.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description, &rule.Version,
		&rule.Expression, &rule.Severity, &rule.Diagnosis, &rule.Recommendation, &enabled,
	)
	if err != nil {
		return nil, err
	}
	rule.Description = description.String
	rule.Enabled = enabled == 1
	return &rule, nil
}

// SaveInspection stores an inspection result with tenant isolation.
func (r *SQLRepository) SaveInspection(ctx context.Context, tenantID string, in *domain.Inspection) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	params, err := json.Marshal(in.Params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	findings, err := json.Marshal(in.Findings)
	if err != nil {
		return fmt.Errorf("encode findings: %w", err)
	}
	alerts, err := json.Marshal(in.Alerts)
	if err != nil {
		return fmt.Errorf("encode alerts: %w", err)
	}
	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query := `
		INSERT INTO inspections (
			id, tenant_id, motor_id, reading_id, status, timestamp, parameters, findings, alerts, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		in.ID, tenantID, in.MotorID, in.ReadingID, string(in.Status), in.Timestamp,
		string(params), string(findings), string(alerts), string(metadata),
	)
	return err
}

// GetLatestInspection returns the newest inspection of a motor.
func (r *SQLRepository) GetLatestInspection(ctx context.Context, tenantID string, motorID string) (*domain.Inspection, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, motor_id, reading_id, status, timestamp, parameters, findings, alerts, metadata
		FROM inspections
		WHERE tenant_id = ? AND motor_id = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var in domain.Inspection
	var params, findings, alerts, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, motorID).Scan(
		&in.ID, &in.TenantID, &in.MotorID, &in.ReadingID, &in.Status, &in.Timestamp,
		&params, &findings, &alerts, &metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := errors.Join(
		json.Unmarshal([]byte(params), &in.Params),
		json.Unmarshal([]byte(findings), &in.Findings),
		json.Unmarshal([]byte(alerts), &in.Alerts),
		json.Unmarshal([]byte(metadata), &in.Metadata),
	); err != nil {
		return nil, fmt.Errorf("failed to decode inspection %s: %w", in.ID, err)
	}
	return &in, nil
}

// SaveDiagnosis stores a questionnaire diagnosis with tenant isolation.
func (r *SQLRepository) SaveDiagnosis(ctx context.Context, tenantID string, d *domain.Diagnosis) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	answers, err := json.Marshal(d.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	results, err := json.Marshal(d.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	query := `
		INSERT INTO diagnoses (id, tenant_id, motor_id, answers, results, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		d.ID, tenantID, d.MotorID, string(answers), string(results), d.Timestamp,
	)
	return err
}

const diagnosisColumns = `id, tenant_id, motor_id, answers, results, timestamp`

// GetDiagnosis retrieves a diagnosis by ID with tenant isolation.
func (r *SQLRepository) GetDiagnosis(ctx context.Context, tenantID string, diagnosisID string) (*domain.Diagnosis, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + diagnosisColumns + ` FROM diagnoses WHERE tenant_id = ? AND id = ?`

	d, err := scanDiagnosis(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, diagnosisID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDiagnoses returns the newest diagnoses, optionally for one motor.
func (r *SQLRepository) ListDiagnoses(ctx context.Context, tenantID string, motorID string, limit int) ([]*domain.Diagnosis, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + diagnosisColumns + ` FROM diagnoses WHERE tenant_id = ?`
	args := []any{tenantID}
	if motorID != "" {
		query += ` AND motor_id = ?`
		args = append(args, motorID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Diagnosis{}
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDiagnosis(s scanner) (*domain.Diagnosis, error) {
	var d domain.Diagnosis
	var answers, results string
	if err := s.Scan(&d.ID, &d.TenantID, &d.MotorID, &answers, &results, &d.Timestamp); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(answers), &d.Answers); err != nil {
		return nil, fmt.Errorf("failed to decode answers of %s: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(results), &d.Results); err != nil {
		return nil, fmt.Errorf("failed to decode results of %s: %w", d.ID, err)
	}
	return &d, nil
}
