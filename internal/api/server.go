package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mechasense/mechasense/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router   *chi.Mux
	handler  *Handler
	server   *http.Server
	listener net.Listener
	config   domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, opts Options) *Server {
	handler := NewHandler(opts)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Telemetry
		r.Post("/ingest", handler.Ingest)
		r.Get("/latest", handler.Latest)

		// Motors
		r.Get("/motors", handler.ListMotors)
		r.Post("/motors", handler.CreateMotor)
		r.Get("/motors/{id}", handler.GetMotor)
		r.Post("/motors/{id}/check", handler.CheckMotor)

		// Alerts
		r.Get("/alerts", handler.ListAlerts)
		r.Post("/alerts/{id}/ack", handler.AcknowledgeAlert)
		r.Post("/alerts/{id}/close", handler.CloseAlert)

		// Sensor rule management
		r.Get("/sensor-rules", handler.ListSensorRules)
		r.Get("/sensor-rules/{id}", handler.GetSensorRule)
		r.Post("/sensor-rules", handler.CreateSensorRule)
		r.Post("/sensor-rules/reload", handler.ReloadSensorRules)

		// Questionnaire diagnosis
		r.Get("/diagnosis/symptoms", handler.ListSymptoms)
		r.Get("/diagnosis/rules", handler.ListDiagnosticRules)
		r.Post("/diagnosis", handler.Diagnose)
		r.Get("/diagnoses", handler.ListDiagnoses)
		r.Get("/diagnoses/{id}", handler.GetDiagnosis)
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(cfg.ReadTimeout) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		router:  router,
		handler: handler,
		server:  httpServer,
		config:  cfg,
	}
}

// Listen binds the listen address without serving, so bind errors surface
// before the server reports itself ready. Start calls it when needed.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	s.listener = ln
	return nil
}

// Start serves HTTP on the bound listener, binding first if Listen was not
// called. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.server.Serve(s.listener)
}

// Addr returns the listen address, resolved to the bound port once Listen
// has succeeded.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Shutdown gracefully shuts down the server. It is safe to call before or
// without Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	if s.listener != nil {
		// Serve closes the listener itself; this covers Listen without Start.
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
	}
	return nil
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
