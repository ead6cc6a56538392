package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mechasense/mechasense/internal/domain"
)

// envKeys are the configuration keys that can be overridden by MECHASENSE_*
// variables, e.g. MECHASENSE_SERVER_PORT or MECHASENSE_ALERTING_COOLDOWN.
var envKeys = []string{
	"tier",
	"server.host",
	"server.port",
	"server.readTimeout",
	"server.writeTimeout",
	"repository.driver",
	"repository.sqlitePath",
	"repository.postgresHost",
	"repository.postgresPort",
	"repository.postgresUser",
	"repository.postgresPassword",
	"repository.postgresDb",
	"repository.postgresSslMode",
	"cache.type",
	"cache.redisAddr",
	"cache.redisPassword",
	"cache.redisDb",
	"eventBus.type",
	"eventBus.natsUrl",
	"eventBus.natsToken",
	"expert.knowledgePath",
	"expert.strictAnswers",
	"alerting.cooldown",
	"alerting.recurrenceWindow",
	"ingest.ratePerSecond",
	"ingest.burst",
	"rules.adminTenant",
	"logging.level",
	"logging.format",
	"tracing.enabled",
	"tracing.serviceName",
	"tracing.endpoint",
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("MECHASENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	// Short names for the switches operators set most often.
	_ = v.BindEnv("ingest.asyncWorker", "MECHASENSE_ASYNC_WORKER", "MECHASENSE_INGEST_ASYNCWORKER")
	_ = v.BindEnv("ingest.tenants", "MECHASENSE_TENANTS", "MECHASENSE_INGEST_TENANTS")
}

// loadConfig layers the config file, environment and flags over the tier
// defaults. MECHASENSE_TIER=pro (or tier: pro in the file) starts from ProConfig.
func loadConfig(v *viper.Viper) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if strings.EqualFold(v.GetString("tier"), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}
	base := *cfg

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Unset flags decode as empty strings.
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = base.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = base.Logging.Format
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = base.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = base.Server.Port
	}
	if cfg.Repository.SQLitePath == "" {
		cfg.Repository.SQLitePath = base.Repository.SQLitePath
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = base.Tracing.ServiceName
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = base.Tracing.Endpoint
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Ingest.RatePerSecond < 0 {
		return nil, fmt.Errorf("ingest.ratePerSecond must not be negative")
	}
	return cfg, nil
}

// setupLogging installs the default slog logger.
func setupLogging(cfg domain.LoggingConfig, w io.Writer) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

const redacted = "********"

// redact returns a copy of cfg with credentials masked.
func redact(cfg *domain.Config) *domain.Config {
	out := *cfg
	if out.Repository.PostgresPassword != "" {
		out.Repository.PostgresPassword = redacted
	}
	if out.Cache.RedisPassword != "" {
		out.Cache.RedisPassword = redacted
	}
	if out.EventBus.NATSToken != "" {
		out.EventBus.NATSToken = redacted
	}
	return &out
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect Mechasense configuration",
	Long: `Inspect Mechasense configuration.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (MECHASENSE_*)
3. Config file (~/.mechasense/config.yaml)
4. Tier defaults (MECHASENSE_TIER=community|pro)`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}

		if configFile := viper.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		data, err := yaml.Marshal(redact(cfg))
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
