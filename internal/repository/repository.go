// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mechasense/mechasense/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	return nil
}

// SaveMotor creates or updates a motor with tenant isolation.
func (r *SQLRepository) SaveMotor(ctx context.Context, tenantID string, m *domain.Motor) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if m.ID == "" || m.Name == "" {
		return fmt.Errorf("%w: motor id and name are required", ErrInvalidInput)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO motors (
			id, tenant_id, name, location, rated_power_kw, rated_current_a, rated_voltage_v, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			location = excluded.location,
			rated_power_kw = excluded.rated_power_kw,
			rated_current_a = excluded.rated_current_a,
			rated_voltage_v = excluded.rated_voltage_v
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		m.ID, tenantID, m.Name, m.Location,
		m.RatedPowerKW, m.RatedCurrentA, m.RatedVoltageV, m.CreatedAt,
	)
	return err
}

const motorColumns = `id, tenant_id, name, location, rated_power_kw, rated_current_a, rated_voltage_v, created_at`

// GetMotor retrieves a motor by ID with tenant isolation.
func (r *SQLRepository) GetMotor(ctx context.Context, tenantID string, motorID string) (*domain.Motor, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + motorColumns + ` FROM motors WHERE tenant_id = ? AND id = ?`

	m, err := scanMotor(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, motorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// ListMotors retrieves every motor of a tenant ordered by name.
func (r *SQLRepository) ListMotors(ctx context.Context, tenantID string) ([]*domain.Motor, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + motorColumns + ` FROM motors WHERE tenant_id = ? ORDER BY name`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	motors := []*domain.Motor{}
	for rows.Next() {
		m, err := scanMotor(rows)
		if err != nil {
			return nil, err
		}
		motors = append(motors, m)
	}
	return motors, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMotor(s scanner) (*domain.Motor, error) {
	var m domain.Motor
	var location sql.NullString
	err := s.Scan(
		&m.ID, &m.TenantID, &m.Name, &location,
		&m.RatedPowerKW, &m.RatedCurrentA, &m.RatedVoltageV, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Location = location.String
	return &m, nil
}

// SaveReading stores a sensor reading with tenant isolation.
func (r *SQLRepository) SaveReading(ctx context.Context, tenantID string, rd *domain.SensorReading) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if rd.ID == "" || rd.MotorID == "" {
		return fmt.Errorf("%w: reading id and motorId are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO sensor_readings (
			id, tenant_id, motor_id,
			grid_voltage, motor_current, power_consumption, power_factor, daily_energy_kwh, grid_frequency,
			vibration_rms, fault_frequency, rotor_unbalance_score, bearing_health_score,
			motor_surface_temp, thermal_anomaly_index, panel_temp, bearing_temp,
			dust_density, soiling_loss_percent,
			timestamp, created_at, raw_payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rd.ID, tenantID, rd.MotorID,
		rd.GridVoltage, rd.MotorCurrent, rd.PowerConsumption, rd.PowerFactor, rd.DailyEnergyKWh, rd.GridFrequency,
		rd.VibrationRms, nullFloat(rd.FaultFrequency), rd.RotorUnbalanceScore, rd.BearingHealthScore,
		rd.MotorSurfaceTemp, nullFloat(rd.ThermalAnomalyIndex), nullFloat(rd.PanelTemp), rd.BearingTemp,
		rd.DustDensity, rd.SoilingLossPercent,
		rd.Timestamp, rd.CreatedAt, string(rd.RawPayload),
	)
	return err
}

const readingColumns = `
	id, tenant_id, motor_id,
	grid_voltage, motor_current, power_consumption, power_factor, daily_energy_kwh, grid_frequency,
	vibration_rms, fault_frequency, rotor_unbalance_score, bearing_health_score,
	motor_surface_temp, thermal_anomaly_index, panel_temp, bearing_temp,
	dust_density, soiling_loss_percent,
	timestamp, created_at`

// GetReading retrieves a reading by ID with tenant isolation.
func (r *SQLRepository) GetReading(ctx context.Context, tenantID string, readingID string) (*domain.SensorReading, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + readingColumns + `, raw_payload FROM sensor_readings WHERE tenant_id = ? AND id = ?`

	var raw sql.NullString
	rd, err := scanReading(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, readingID), &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if raw.Valid && raw.String != "" {
		rd.RawPayload = []byte(raw.String)
	}
	return rd, nil
}

// ListRecentReadings returns the newest readings of a motor, newest first.
func (r *SQLRepository) ListRecentReadings(ctx context.Context, tenantID string, motorID string, limit int) ([]*domain.SensorReading, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + readingColumns + `
		FROM sensor_readings
		WHERE tenant_id = ? AND motor_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, motorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := []*domain.SensorReading{}
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}
	return readings, rows.Err()
}

// scanReading scans readingColumns followed by any extra columns.
func scanReading(s scanner, extra ...any) (*domain.SensorReading, error) {
	var rd domain.SensorReading
	var fault, thermal, panel sql.NullFloat64
	dest := []any{
		&rd.ID, &rd.TenantID, &rd.MotorID,
		&rd.GridVoltage, &rd.MotorCurrent, &rd.PowerConsumption, &rd.PowerFactor, &rd.DailyEnergyKWh, &rd.GridFrequency,
		&rd.VibrationRms, &fault, &rd.RotorUnbalanceScore, &rd.BearingHealthScore,
		&rd.MotorSurfaceTemp, &thermal, &panel, &rd.BearingTemp,
		&rd.DustDensity, &rd.SoilingLossPercent,
		&rd.Timestamp, &rd.CreatedAt,
	}
	err := s.Scan(append(dest, extra...)...)
	if err != nil {
		return nil, err
	}
	rd.FaultFrequency = floatPtr(fault)
	rd.ThermalAnomalyIndex = floatPtr(thermal)
	rd.PanelTemp = floatPtr(panel)
	return &rd, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
