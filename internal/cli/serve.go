package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mechasense/mechasense/internal/api"
	"github.com/mechasense/mechasense/internal/bus"
	"github.com/mechasense/mechasense/internal/cache"
	"github.com/mechasense/mechasense/internal/domain"
	"github.com/mechasense/mechasense/internal/expert"
	"github.com/mechasense/mechasense/internal/inspect"
	"github.com/mechasense/mechasense/internal/recurrence"
	"github.com/mechasense/mechasense/internal/repository"
	"github.com/mechasense/mechasense/internal/rules"
	"github.com/mechasense/mechasense/internal/telemetry"
	"github.com/mechasense/mechasense/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitoring API server",
	Long: `Run the HTTP API: telemetry ingest, alerts, CEL sensor rules and the
questionnaire diagnosis engine.

The community tier runs on SQLite, an in-memory cache and in-process channels.
MECHASENSE_TIER=pro switches to PostgreSQL, Redis and NATS.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		setupLogging(cfg.Logging, os.Stdout)
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().String("host", "", "listen host")
	serveCmd.Flags().Int("port", 0, "listen port")
	serveCmd.Flags().String("db", "", "SQLite database path")
	serveCmd.Flags().String("knowledge", "", "knowledge base YAML file (default: embedded)")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("repository.sqlitePath", serveCmd.Flags().Lookup("db"))
	_ = viper.BindPFlag("expert.knowledgePath", serveCmd.Flags().Lookup("knowledge"))

	rootCmd.AddCommand(serveCmd)
}

func serve(cfg *domain.Config) error {
	slog.Info("starting mechasense",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"tracing", cfg.Tracing.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Error("failed to flush traces", "error", err)
		}
	}()
	if cfg.Tracing.Enabled {
		slog.Info("tracing initialized", "service", cfg.Tracing.ServiceName, "endpoint", cfg.Tracing.Endpoint)
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	rec := recurrence.NewService(repo, cacheImpl)

	engine, err := rules.NewEngine(rec.GetRecurrenceGetter(), 100)
	if err != nil {
		return fmt.Errorf("failed to initialize rule engine: %w", err)
	}
	if err := loadSensorRules(ctx, repo, engine); err != nil {
		return fmt.Errorf("failed to load sensor rules: %w", err)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	kb, err := loadKnowledgeBase(cfg.Expert.KnowledgePath)
	if err != nil {
		return err
	}
	slog.Info("knowledge base loaded",
		"symptoms", len(kb.Symptoms()),
		"rules", len(kb.Rules()),
		"source", knowledgeSource(cfg.Expert.KnowledgePath),
	)

	processor := inspect.NewProcessor(repo, cacheImpl, engine, rec, cfg.Alerting)

	var asyncWorker *worker.Worker
	if cfg.Ingest.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, processor)
		if err := asyncWorker.Start(worker.Config{TenantIDs: cfg.Ingest.Tenants}); err != nil {
			return fmt.Errorf("failed to start async worker: %w", err)
		}
		slog.Info("async worker started", "tenants", cfg.Ingest.Tenants)
	}

	srv := api.NewServer(cfg.Server, api.Options{
		Repo:          repo,
		Cache:         cacheImpl,
		Bus:           busImpl,
		Rules:         engine,
		Expert:        expert.NewEngine(kb),
		Processor:     processor,
		Limiter:       api.NewIngestLimiter(cfg.Ingest.RatePerSecond, cfg.Ingest.Burst),
		Version:       Version,
		AsyncIngest:   asyncWorker != nil,
		StrictAnswers: cfg.Expert.StrictAnswers,

		RuleAdminTenant: cfg.Rules.AdminTenant,
	})

	if err := srv.Listen(); err != nil {
		stopWorker(asyncWorker)
		return fmt.Errorf("failed to start server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("mechasense is ready", "addr", srv.Addr())
	printBanner(cfg, srv.Addr())

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case serveErr = <-errCh:
		slog.Error("server failed", "error", serveErr)
		cancel()
	}

	// Stop consuming before the server and stores go away.
	stopWorker(asyncWorker)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if serveErr != nil {
		return fmt.Errorf("server failed: %w", serveErr)
	}
	slog.Info("mechasense shutdown complete")
	return nil
}

func stopWorker(w *worker.Worker) {
	if w == nil {
		return
	}
	if err := w.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}
}

// loadSensorRules loads the global sensor rules, seeding the builtin set
// into an empty table first.
func loadSensorRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	stored, err := repo.ListSensorRules(ctx, rules.GlobalTenantID)
	if err != nil {
		return err
	}

	if len(stored) == 0 {
		stored = rules.BuiltinRules()
		for _, rule := range stored {
			if err := repo.SaveSensorRule(ctx, rules.GlobalTenantID, rule); err != nil {
				return fmt.Errorf("seed rule %s: %w", rule.ID, err)
			}
		}
		slog.Info("seeded builtin sensor rules", "count", len(stored))
	}

	return engine.LoadRules(stored)
}

func loadKnowledgeBase(path string) (*expert.KnowledgeBase, error) {
	if path == "" {
		return expert.DefaultKnowledgeBase()
	}
	return expert.LoadKnowledgeBase(path)
}

func knowledgeSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

func printBanner(cfg *domain.Config, addr string) {
	fmt.Println()
	fmt.Println("  MECHASENSE - motor condition monitoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s\n", addr)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /ingest                 - Ingest a sensor reading")
	fmt.Println("    GET  /latest?motorId=        - Latest reading, history and alerts")
	fmt.Println("    GET  /motors                 - List motors")
	fmt.Println("    POST /motors                 - Register a motor")
	fmt.Println("    POST /motors/{id}/check      - Run sensor rules on the latest reading")
	fmt.Println("    GET  /alerts                 - List alerts")
	fmt.Println("    POST /alerts/{id}/ack        - Acknowledge an alert")
	fmt.Println("    GET  /sensor-rules           - List sensor rules")
	fmt.Println("    POST /sensor-rules/reload    - Hot-reload sensor rules")
	fmt.Println("    GET  /diagnosis/symptoms     - Questionnaire")
	fmt.Println("    POST /diagnosis              - Diagnose from answers")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
