package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mechasense/mechasense/internal/domain"
	"github.com/mechasense/mechasense/internal/rules"
)

// CreateMotorRequest is the request body for POST /motors.
type CreateMotorRequest struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Location      string  `json:"location"`
	RatedPowerKW  float64 `json:"ratedPowerKw"`
	RatedCurrentA float64 `json:"ratedCurrentA"`
	RatedVoltageV float64 `json:"ratedVoltageV"`
}

// CreateMotor registers a motor or updates an existing one.
func (h *Handler) CreateMotor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateMotorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "id and name are required")
		return
	}
	if req.RatedPowerKW < 0 || req.RatedCurrentA < 0 || req.RatedVoltageV < 0 {
		writeError(w, http.StatusBadRequest, "ratings must not be negative")
		return
	}
	if !h.requireRepo(w) {
		return
	}

	motor := &domain.Motor{
		ID:            req.ID,
		TenantID:      tenantID,
		Name:          strings.TrimSpace(req.Name),
		Location:      req.Location,
		RatedPowerKW:  req.RatedPowerKW,
		RatedCurrentA: req.RatedCurrentA,
		RatedVoltageV: req.RatedVoltageV,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.repo.SaveMotor(ctx, tenantID, motor); err != nil {
		writeRepoError(w, err, "motor")
		return
	}

	slog.Info("motor registered", "tenant_id", tenantID, "motor_id", motor.ID)
	writeJSON(w, http.StatusCreated, motor)
}

// ListMotors returns the tenant's motors.
func (h *Handler) ListMotors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	motors, err := h.repo.ListMotors(ctx, GetTenantID(ctx))
	if err != nil {
		writeRepoError(w, err, "motors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"motors": motors,
		"count":  len(motors),
	})
}

// GetMotor retrieves a motor by ID.
func (h *Handler) GetMotor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	motor, err := h.repo.GetMotor(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err, "motor")
		return
	}
	writeJSON(w, http.StatusOK, motor)
}

// CheckResponse is the response for POST /motors/{id}/check.
type CheckResponse struct {
	MotorID   string    `json:"motorId"`
	ReadingID string    `json:"readingId"`
	CheckedAt time.Time `json:"checkedAt"`
	rules.Summary
}

// CheckMotor evaluates the sensor rules against the motor's latest reading.
func (h *Handler) CheckMotor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	motorID := chi.URLParam(r, "id")

	if !h.requireRepo(w) {
		return
	}
	if _, err := h.repo.GetMotor(ctx, tenantID, motorID); err != nil {
		writeRepoError(w, err, "motor")
		return
	}

	recent, err := h.repo.ListRecentReadings(ctx, tenantID, motorID, 1)
	if err != nil {
		writeRepoError(w, err, "readings")
		return
	}
	if len(recent) == 0 {
		writeError(w, http.StatusNotFound, "no readings for motor "+motorID)
		return
	}

	findings, err := h.engine.EvaluateAll(ctx, &rules.EvaluateInput{
		TenantID:         tenantID,
		Reading:          recent[0],
		RecurrenceWindow: int(h.processor.RecurrenceWindow.Seconds()),
	})
	if err != nil {
		slog.Error("rule evaluation failed", "motor_id", motorID, "error", err)
		writeError(w, http.StatusInternalServerError, "rule evaluation failed")
		return
	}

	writeJSON(w, http.StatusOK, CheckResponse{
		MotorID:   motorID,
		ReadingID: recent[0].ID,
		CheckedAt: time.Now().UTC(),
		Summary:   rules.Summarize(findings),
	})
}

// ListAlerts handles GET /alerts?motorId=&status=&limit=.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireRepo(w) {
		return
	}

	q := r.URL.Query()
	filter := domain.AlertFilter{
		MotorID: q.Get("motorId"),
		Status:  domain.AlertStatus(strings.ToUpper(q.Get("status"))),
		Limit:   queryLimit(r, 100, 500),
	}
	switch filter.Status {
	case "", domain.AlertOpen, domain.AlertAcknowledged, domain.AlertClosed:
	default:
		writeError(w, http.StatusBadRequest, "status must be OPEN, ACKNOWLEDGED or CLOSED")
		return
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = t.UTC()
	}

	alerts, err := h.repo.ListAlerts(ctx, GetTenantID(ctx), filter)
	if err != nil {
		writeRepoError(w, err, "alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// AcknowledgeAlert handles POST /alerts/{id}/ack.
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.setAlertStatus(w, r, domain.AlertAcknowledged)
}

// CloseAlert handles POST /alerts/{id}/close.
func (h *Handler) CloseAlert(w http.ResponseWriter, r *http.Request) {
	h.setAlertStatus(w, r, domain.AlertClosed)
}

func (h *Handler) setAlertStatus(w http.ResponseWriter, r *http.Request, status domain.AlertStatus) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	alertID := chi.URLParam(r, "id")

	if !h.requireRepo(w) {
		return
	}

	if err := h.repo.UpdateAlertStatus(ctx, tenantID, alertID, status); err != nil {
		writeRepoError(w, err, "alert")
		return
	}

	slog.Info("alert status changed", "tenant_id", tenantID, "alert_id", alertID, "status", status)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     alertID,
		"status": string(status),
	})
}
