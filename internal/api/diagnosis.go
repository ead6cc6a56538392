package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mechasense/mechasense/internal/domain"
)

// ListSymptoms returns the questionnaire: every symptom and the accepted answers.
func (h *Handler) ListSymptoms(w http.ResponseWriter, r *http.Request) {
	symptoms := h.expert.KnowledgeBase().Symptoms()
	writeJSON(w, http.StatusOK, map[string]any{
		"symptoms": symptoms,
		"levels":   []domain.FuzzyLevel{domain.FuzzyNo, domain.FuzzyRarely, domain.FuzzyYes},
		"count":    len(symptoms),
	})
}

// ListDiagnosticRules returns the expert rule base.
func (h *Handler) ListDiagnosticRules(w http.ResponseWriter, r *http.Request) {
	kbRules := h.expert.KnowledgeBase().Rules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": kbRules,
		"count": len(kbRules),
	})
}

// DiagnoseRequest is the request body for POST /diagnosis.
type DiagnoseRequest struct {
	MotorID string                    `json:"motorId,omitempty"`
	Answers map[int]domain.FuzzyLevel `json:"answers"`
}

// DiagnoseResponse is the response for POST /diagnosis.
type DiagnoseResponse struct {
	DiagnosisID string                   `json:"diagnosisId"`
	MotorID     string                   `json:"motorId,omitempty"`
	Results     []domain.DiagnosisResult `json:"results"`
	Metadata    struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Diagnose runs the questionnaire answers through the expert engine.
func (h *Handler) Diagnose(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req DiagnoseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Answers == nil {
		req.Answers = map[int]domain.FuzzyLevel{}
	}

	if h.strictAnswers {
		if err := h.expert.ValidateAnswers(req.Answers); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if req.MotorID != "" && h.repo != nil {
		if _, err := h.repo.GetMotor(ctx, tenantID, req.MotorID); err != nil {
			writeRepoError(w, err, "motor")
			return
		}
	}

	_, span := tracer.Start(ctx, "expert.Diagnose",
		trace.WithAttributes(
			attribute.Int("diagnosis.answers", len(req.Answers)),
			attribute.String("motor.id", req.MotorID),
		),
	)
	results := h.expert.Diagnose(req.Answers)
	span.SetAttributes(attribute.Int("diagnosis.results", len(results)))
	span.End()

	d := &domain.Diagnosis{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		MotorID:   req.MotorID,
		Answers:   req.Answers,
		Results:   results,
		Timestamp: time.Now().UTC(),
	}

	if h.repo != nil {
		if err := h.repo.SaveDiagnosis(ctx, tenantID, d); err != nil {
			slog.Error("failed to save diagnosis", "diagnosis_id", d.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save diagnosis")
			return
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(d)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicDiagnosisCompleted, payload); err != nil {
			slog.Warn("failed to publish diagnosis", "diagnosis_id", d.ID, "error", err)
		}
	}

	resp := DiagnoseResponse{
		DiagnosisID: d.ID,
		MotorID:     d.MotorID,
		Results:     results,
	}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetDiagnosis retrieves a stored diagnosis by ID.
func (h *Handler) GetDiagnosis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	d, err := h.repo.GetDiagnosis(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err, "diagnosis")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListDiagnoses handles GET /diagnoses?motorId=&limit=.
func (h *Handler) ListDiagnoses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	list, err := h.repo.ListDiagnoses(ctx, GetTenantID(ctx), r.URL.Query().Get("motorId"), queryLimit(r, 50, 200))
	if err != nil {
		writeRepoError(w, err, "diagnoses")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"diagnoses": list,
		"count":     len(list),
	})
}

