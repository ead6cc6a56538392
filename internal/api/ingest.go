package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mechasense/mechasense/internal/domain"
	"github.com/mechasense/mechasense/internal/inspect"
	"github.com/mechasense/mechasense/internal/repository"
	"github.com/mechasense/mechasense/internal/thresholds"
	"github.com/mechasense/mechasense/internal/worker"
)

// IngestResponse is the response for POST /ingest.
type IngestResponse struct {
	ReadingID       string               `json:"readingId"`
	InspectionID    string               `json:"inspectionId,omitempty"`
	Status          string               `json:"status"`
	AlertsGenerated int                  `json:"alertsGenerated"`
	Alerts          []*domain.Alert      `json:"alerts"`
	Findings        []domain.RuleFinding `json:"findings,omitempty"`
	Metadata        struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Ingest handles POST /ingest from motor sensor nodes.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	if !h.requireRepo(w) {
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var rd domain.SensorReading
	if err := json.Unmarshal(raw, &rd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if rd.MotorID == "" {
		writeError(w, http.StatusBadRequest, "motorId is required")
		return
	}

	if !h.limiter.Allow(tenantID, rd.MotorID) {
		w.Header().Set("Retry-After", strconv.Itoa(h.limiter.RetryAfter()))
		writeError(w, http.StatusTooManyRequests, "ingest rate limit exceeded for motor "+rd.MotorID)
		return
	}

	if _, err := h.repo.GetMotor(ctx, tenantID, rd.MotorID); err != nil {
		writeRepoError(w, err, "motor")
		return
	}

	now := time.Now().UTC()
	rd.ID = uuid.New().String()
	rd.TenantID = tenantID
	rd.CreatedAt = now
	if rd.Timestamp.IsZero() {
		rd.Timestamp = now
	}
	rd.Timestamp = rd.Timestamp.UTC()
	rd.RawPayload = compactJSON(raw)

	var resp IngestResponse
	resp.ReadingID = rd.ID
	resp.Alerts = []*domain.Alert{}
	resp.Metadata.TraceID = traceID
	resp.Metadata.Version = h.version

	if h.asyncIngest && h.bus != nil {
		payload, _ := json.Marshal(worker.ReadingMessage{TraceID: traceID, Reading: &rd, Raw: rd.RawPayload})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicReadingIngested, payload); err != nil {
			slog.Error("failed to publish reading", "motor_id", rd.MotorID, "error", err)
			writeError(w, http.StatusServiceUnavailable, "failed to queue reading")
			return
		}
		resp.Status = "accepted"
		resp.Metadata.TotalMs = time.Since(start).Milliseconds()
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	inspection, err := h.processor.Run(ctx, &inspect.Input{
		TenantID:  tenantID,
		Reading:   &rd,
		TraceID:   traceID,
		StartTime: start,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("inspection failed", "motor_id", rd.MotorID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process reading")
		return
	}

	if h.bus != nil {
		h.publishInspection(r, tenantID, inspection)
	}

	resp.InspectionID = inspection.ID
	resp.Status = string(inspection.Status)
	resp.AlertsGenerated = len(inspection.Alerts)
	if inspection.Alerts != nil {
		resp.Alerts = inspection.Alerts
	}
	resp.Findings = inspection.TriggeredFindings()
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()

	writeJSON(w, http.StatusCreated, resp)
}

// publishInspection fans the synchronous outcome out to bus consumers.
func (h *Handler) publishInspection(r *http.Request, tenantID string, in *domain.Inspection) {
	ctx := r.Context()
	payload, _ := json.Marshal(in)
	if err := h.bus.Publish(ctx, tenantID, domain.TopicInspection, payload); err != nil {
		slog.Warn("failed to publish inspection", "inspection_id", in.ID, "error", err)
	}
	for _, a := range in.Alerts {
		data, _ := json.Marshal(a)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAlert, data); err != nil {
			slog.Warn("failed to publish alert", "alert_id", a.ID, "error", err)
		}
	}
}

func compactJSON(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// LatestResponse is the dashboard view of one motor.
type LatestResponse struct {
	Motor      *domain.Motor           `json:"motor"`
	Latest     *domain.LatestReading   `json:"latest"`
	History    []*domain.SensorReading `json:"history"`
	Alerts     []*domain.Alert         `json:"alerts"`
	Inspection *domain.Inspection      `json:"inspection,omitempty"`
}

// Latest handles GET /latest?motorId=.
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	motorID := r.URL.Query().Get("motorId")
	if motorID == "" {
		writeError(w, http.StatusBadRequest, "motorId query parameter is required")
		return
	}
	if !h.requireRepo(w) {
		return
	}

	motor, err := h.repo.GetMotor(ctx, tenantID, motorID)
	if err != nil {
		writeRepoError(w, err, "motor")
		return
	}

	history, err := h.repo.ListRecentReadings(ctx, tenantID, motorID, 20)
	if err != nil {
		writeRepoError(w, err, "readings")
		return
	}

	alerts, err := h.repo.ListAlerts(ctx, tenantID, domain.AlertFilter{
		MotorID: motorID,
		Status:  domain.AlertOpen,
		Limit:   10,
	})
	if err != nil {
		writeRepoError(w, err, "alerts")
		return
	}

	inspection, err := h.repo.GetLatestInspection(ctx, tenantID, motorID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		writeRepoError(w, err, "inspection")
		return
	}

	resp := LatestResponse{
		Motor:      motor,
		Latest:     h.latestReading(r, tenantID, motorID, history, inspection),
		Alerts:     alerts,
		Inspection: inspection,
	}

	// Newest first from the store, oldest first for charting.
	slices.Reverse(history)
	resp.History = history

	writeJSON(w, http.StatusOK, resp)
}

// latestReading serves the cached snapshot and rebuilds it from the store on a miss.
func (h *Handler) latestReading(r *http.Request, tenantID, motorID string, history []*domain.SensorReading, in *domain.Inspection) *domain.LatestReading {
	ctx := r.Context()
	if h.cache != nil {
		if latest, err := h.cache.GetLatestReading(ctx, tenantID, motorID); err == nil && latest != nil {
			return latest
		}
	}
	if len(history) == 0 {
		return nil
	}

	newest := history[0]
	latest := &domain.LatestReading{Reading: newest}
	if in != nil && in.ReadingID == newest.ID {
		latest.Status = in.Status
	} else {
		latest.Status = thresholds.Worst(thresholds.Evaluate(newest))
	}

	if h.cache != nil {
		if err := h.cache.SetLatestReading(ctx, tenantID, motorID, latest, inspect.DefaultLatestTTL); err != nil {
			slog.Warn("failed to cache latest reading", "motor_id", motorID, "error", err)
		}
	}
	return latest
}
