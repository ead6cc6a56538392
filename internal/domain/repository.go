// Package domain defines the core interfaces and types for Mechasense.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Motor operations
	SaveMotor(ctx context.Context, tenantID string, motor *Motor) error
	GetMotor(ctx context.Context, tenantID string, motorID string) (*Motor, error)
	ListMotors(ctx context.Context, tenantID string) ([]*Motor, error)

	// Sensor reading operations
	SaveReading(ctx context.Context, tenantID string, reading *SensorReading) error
	GetReading(ctx context.Context, tenantID string, readingID string) (*SensorReading, error)
	ListRecentReadings(ctx context.Context, tenantID string, motorID string, limit int) ([]*SensorReading, error)

	// Alert operations
	SaveAlert(ctx context.Context, tenantID string, alert *Alert) error
	ListAlerts(ctx context.Context, tenantID string, filter AlertFilter) ([]*Alert, error)
	CountAlertsSince(ctx context.Context, tenantID string, motorID string, since time.Time) (int64, error)
	UpdateAlertStatus(ctx context.Context, tenantID string, alertID string, status AlertStatus) error

	// Sensor rule configuration operations
	SaveSensorRule(ctx context.Context, tenantID string, rule *SensorRule) error
	GetSensorRule(ctx context.Context, tenantID string, ruleID string) (*SensorRule, error)
	ListSensorRules(ctx context.Context, tenantID string) ([]*SensorRule, error)

	// Inspection results
	SaveInspection(ctx context.Context, tenantID string, inspection *Inspection) error
	GetLatestInspection(ctx context.Context, tenantID string, motorID string) (*Inspection, error)

	// Questionnaire diagnoses
	SaveDiagnosis(ctx context.Context, tenantID string, diagnosis *Diagnosis) error
	GetDiagnosis(ctx context.Context, tenantID string, diagnosisID string) (*Diagnosis, error)
	ListDiagnoses(ctx context.Context, tenantID string, motorID string, limit int) ([]*Diagnosis, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgresHost"`
	PostgresPort     int    `mapstructure:"postgresPort"`
	PostgresUser     string `mapstructure:"postgresUser"`
	PostgresPassword string `mapstructure:"postgresPassword"`
	PostgresDB       string `mapstructure:"postgresDb"`
	PostgresSSLMode  string `mapstructure:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}
