package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mechasense/mechasense/internal/domain"
	"github.com/mechasense/mechasense/internal/rules"
)

// ListSensorRules returns the rules currently loaded in the engine.
// Rules are loaded from the database at startup and refreshed by
// POST /sensor-rules/reload.
func (h *Handler) ListSensorRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GetSensorRule retrieves a loaded rule by ID.
func (h *Handler) GetSensorRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")
	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}
	writeError(w, http.StatusNotFound, "rule not found")
}

// CreateSensorRuleRequest is the request body for POST /sensor-rules.
type CreateSensorRuleRequest struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Version        string          `json:"version,omitempty"`
	Expression     string          `json:"expression"`
	Severity       domain.Severity `json:"severity"`
	Diagnosis      string          `json:"diagnosis"`
	Recommendation string          `json:"recommendation"`
	Enabled        bool            `json:"enabled"`
}

// CreateSensorRule validates a rule by compiling it and stores it globally.
// The engine picks it up on the next reload. Sensor rules are shared, so a
// stored rule fires for every tenant's readings; when a rule admin tenant is
// configured, only that tenant may write them.
func (h *Handler) CreateSensorRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRuleAdmin(w, r) {
		return
	}

	var req CreateSensorRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeError(w, http.StatusBadRequest, "id, name, and expression are required")
		return
	}
	if req.Diagnosis == "" || req.Recommendation == "" {
		writeError(w, http.StatusBadRequest, "diagnosis and recommendation are required")
		return
	}
	if req.Version == "" {
		req.Version = "1.0.0"
	}

	rule := &domain.SensorRule{
		ID:             req.ID,
		TenantID:       rules.GlobalTenantID,
		Name:           req.Name,
		Description:    req.Description,
		Version:        req.Version,
		Expression:     req.Expression,
		Severity:       domain.Severity(strings.ToUpper(string(req.Severity))),
		Diagnosis:      req.Diagnosis,
		Recommendation: req.Recommendation,
		Enabled:        req.Enabled,
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule: "+err.Error())
		return
	}

	if !h.requireRepo(w) {
		return
	}
	if err := h.repo.SaveSensorRule(ctx, rules.GlobalTenantID, rule); err != nil {
		writeRepoError(w, err, "rule")
		return
	}

	slog.Info("sensor rule created", "id", rule.ID, "version", rule.Version)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /sensor-rules/reload to apply changes.",
	})
}

// ReloadSensorRules reloads all rules from the database into the engine.
// A rule set that fails to compile leaves the running rules untouched.
func (h *Handler) ReloadSensorRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRuleAdmin(w, r) {
		return
	}
	if !h.requireRepo(w) {
		return
	}

	stored, err := h.repo.ListSensorRules(ctx, rules.GlobalTenantID)
	if err != nil {
		slog.Error("failed to list sensor rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rules from database")
		return
	}

	if err := h.engine.ReloadRules(stored); err != nil {
		slog.Error("failed to reload sensor rules", "error", err)
		writeError(w, http.StatusUnprocessableEntity, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("sensor rules reloaded", "stored", len(stored), "loaded", h.engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   h.engine.RulesCount(),
	})
}

// requireRuleAdmin rejects sensor rule writes from tenants other than the
// configured rule admin.
func (h *Handler) requireRuleAdmin(w http.ResponseWriter, r *http.Request) bool {
	if h.ruleAdmin == "" {
		return true
	}
	if tenantID := GetTenantID(r.Context()); tenantID != h.ruleAdmin {
		slog.Warn("sensor rule write rejected", "tenant_id", tenantID)
		writeError(w, http.StatusForbidden, "sensor rules can only be changed by the rule admin tenant")
		return false
	}
	return true
}
