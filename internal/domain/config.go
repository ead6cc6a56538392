package domain

import (
	"time"
)

// Config holds the complete Mechasense configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Tier determines which backing services are used
	Tier Tier `json:"tier" mapstructure:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"eventBus"`

	// Monitoring and diagnosis
	Expert   ExpertConfig   `json:"expert" mapstructure:"expert"`
	Alerting AlertingConfig `json:"alerting" mapstructure:"alerting"`
	Ingest   IngestConfig   `json:"ingest" mapstructure:"ingest"`
	Rules    RulesConfig    `json:"rules" mapstructure:"rules"`

	// Observability
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	ReadTimeout  int    `json:"readTimeout" mapstructure:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" mapstructure:"writeTimeout"` // seconds
}

// ExpertConfig configures the questionnaire diagnosis engine.
type ExpertConfig struct {
	// KnowledgePath overrides the embedded knowledge base with a YAML file.
	KnowledgePath string `json:"knowledgePath" mapstructure:"knowledgePath"`

	// StrictAnswers rejects unknown fuzzy levels and symptom IDs at the HTTP
	// surface instead of treating them as "No".
	StrictAnswers bool `json:"strictAnswers" mapstructure:"strictAnswers"`
}

// AlertingConfig configures threshold alert generation.
type AlertingConfig struct {
	// Cooldown suppresses repeated alerts for the same motor, parameter and severity.
	Cooldown time.Duration `json:"cooldown" mapstructure:"cooldown"`

	// RecurrenceWindow is the lookback for the recent_alert_count rule variable.
	RecurrenceWindow time.Duration `json:"recurrenceWindow" mapstructure:"recurrenceWindow"`
}

// IngestConfig configures the telemetry ingest path.
type IngestConfig struct {
	// Token bucket per tenant and motor
	RatePerSecond float64 `json:"ratePerSecond" mapstructure:"ratePerSecond"`
	Burst         int     `json:"burst" mapstructure:"burst"`

	// AsyncWorker hands readings to the worker through the event bus.
	AsyncWorker bool     `json:"asyncWorker" mapstructure:"asyncWorker"`
	Tenants     []string `json:"tenants" mapstructure:"tenants"`
}

// RulesConfig configures sensor rule management.
type RulesConfig struct {
	// AdminTenant is the only tenant allowed to create or reload the shared
	// sensor rules. Empty leaves rule writes open to every tenant.
	AdminTenant string `json:"adminTenant" mapstructure:"adminTenant"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" mapstructure:"serviceName"`
	Endpoint    string `json:"endpoint" mapstructure:"endpoint"` // OTLP gRPC collector, host:port
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + in-memory cache + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./mechasense.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Expert: ExpertConfig{
			StrictAnswers: false,
		},
		Alerting: AlertingConfig{
			Cooldown:         5 * time.Minute,
			RecurrenceWindow: time.Hour,
		},
		Ingest: IngestConfig{
			RatePerSecond: 5,
			Burst:         10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "mechasense",
			Endpoint:    "localhost:4317",
		},
	}
}

// ProConfig returns a configuration for the Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "mechasense",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Ingest.AsyncWorker = true
	cfg.Tracing.Enabled = true
	return cfg
}
