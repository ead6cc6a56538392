package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mechasense/mechasense/internal/domain"
	"github.com/mechasense/mechasense/internal/expert"
	"github.com/mechasense/mechasense/internal/inspect"
	"github.com/mechasense/mechasense/internal/repository"
	"github.com/mechasense/mechasense/internal/rules"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Options wires the handler's dependencies. Only Rules and Expert are
// required; a nil Repo answers persistence routes with 503.
type Options struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Rules     *rules.Engine
	Expert    *expert.Engine
	Processor *inspect.Processor
	Limiter   *IngestLimiter
	Version   string

	// AsyncIngest publishes readings for the worker instead of inspecting inline.
	AsyncIngest bool

	// StrictAnswers rejects unknown symptom IDs and levels on POST /diagnosis.
	StrictAnswers bool

	// RuleAdminTenant is the only tenant allowed to create or reload sensor
	// rules. Empty allows every tenant.
	RuleAdminTenant string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo          domain.Repository
	cache         domain.Cache
	bus           domain.EventBus
	engine        *rules.Engine
	expert        *expert.Engine
	processor     *inspect.Processor
	limiter       *IngestLimiter
	version       string
	asyncIngest   bool
	strictAnswers bool
	ruleAdmin     string
}

// NewHandler creates a new API handler.
func NewHandler(opts Options) *Handler {
	proc := opts.Processor
	if proc == nil {
		proc = inspect.NewProcessor(opts.Repo, opts.Cache, opts.Rules, nil, domain.AlertingConfig{})
	}
	return &Handler{
		repo:          opts.Repo,
		cache:         opts.Cache,
		bus:           opts.Bus,
		engine:        opts.Rules,
		expert:        opts.Expert,
		processor:     proc,
		limiter:       opts.Limiter,
		version:       opts.Version,
		asyncIngest:   opts.AsyncIngest,
		strictAnswers: opts.StrictAnswers,
		ruleAdmin:     opts.RuleAdminTenant,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	components := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			components[name] = "unavailable"
			status = "degraded"
			slog.Warn("health check failed", "component", name, "error", err)
			return
		}
		components[name] = "ok"
	}

	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		check("eventBus", func() error { return h.bus.Ping(ctx) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
		"rules":      h.engine.RulesCount(),
	})
}

// Ready returns whether the server can accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON decodes a size-limited request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// requireRepo answers 503 when no repository is configured.
func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return false
	}
	return true
}

// writeRepoError maps repository errors to HTTP responses.
func writeRepoError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("repository error", "entity", what, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to access "+what)
	}
}

// queryLimit parses the limit query parameter, capped at ceiling.
func queryLimit(r *http.Request, def, ceiling int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, ceiling)
}
