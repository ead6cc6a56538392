//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running Mechasense server.
//
// These tests verify the complete monitoring pipeline:
//
//	Reading → Threshold bands → Alerts → CEL sensor rules → Inspection
//
// and the questionnaire pipeline:
//
//	Answers → Evidence (level × cfExpert) → AND rules, else OR rules → Ranking
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server must be running with the builtin sensor rules seeded (the default
// on first start with an empty database) and the embedded knowledge base:
//
//	go run ./cmd/mechasense serve
//
// Every run uses a fresh tenant so alert cooldowns and recurrence counts from
// earlier runs do not leak in.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

var runTenant = fmt.Sprintf("it-%d", time.Now().UnixNano())

func getTestConfig() TestConfig {
	baseURL := os.Getenv("MECHASENSE_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: runTenant,
	}
}

type Finding struct {
	RuleID    string `json:"ruleId"`
	Triggered bool   `json:"triggered"`
	Severity  string `json:"severity"`
}

type Alert struct {
	ID        string `json:"id"`
	Parameter string `json:"parameter"`
	Severity  string `json:"severity"`
	Status    string `json:"status"`
}

// IngestResponse is the body returned by POST /ingest
type IngestResponse struct {
	ReadingID       string    `json:"readingId"`
	InspectionID    string    `json:"inspectionId"`
	Status          string    `json:"status"`
	AlertsGenerated int       `json:"alertsGenerated"`
	Alerts          []Alert   `json:"alerts"`
	Findings        []Finding `json:"findings"`
	Metadata        struct {
		TraceID string `json:"traceId"`
		Version string `json:"version"`
	} `json:"metadata"`
}

type DiagnosisResult struct {
	RuleID     string  `json:"ruleId"`
	Level      string  `json:"level"`
	Confidence float64 `json:"confidence"`
	Certainty  string  `json:"certainty"`
}

// DiagnoseResponse is the body returned by POST /diagnosis
type DiagnoseResponse struct {
	DiagnosisID string            `json:"diagnosisId"`
	Results     []DiagnosisResult `json:"results"`
}

func do(t *testing.T, config TestConfig, method, path string, body any, wantStatus int) []byte {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if config.TenantID != "" {
		httpReq.Header.Set("X-Tenant-ID", config.TenantID)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, wantStatus, resp.StatusCode, respBody)
	}
	return respBody
}

func registerMotor(t *testing.T, config TestConfig, id string) {
	t.Helper()
	do(t, config, http.MethodPost, "/motors", map[string]any{
		"id":            id,
		"name":          "Integration " + id,
		"ratedVoltageV": 220,
	}, http.StatusCreated)
}

func healthyReading(motorID string) map[string]any {
	return map[string]any{
		"motorId":          motorID,
		"gridVoltage":      190.0,
		"motorCurrent":     3.5,
		"powerFactor":      0.9,
		"gridFrequency":    50.0,
		"vibrationRms":     2.0,
		"motorSurfaceTemp": 65.0,
		"bearingTemp":      60.0,
		"dustDensity":      30.0,
	}
}

func ingest(t *testing.T, config TestConfig, reading map[string]any) IngestResponse {
	t.Helper()
	var resp IngestResponse
	body := do(t, config, http.MethodPost, "/ingest", reading, http.StatusCreated)
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, body)
	}
	return resp
}

func triggered(findings []Finding) []string {
	var ids []string
	for _, f := range findings {
		if f.Triggered {
			ids = append(ids, f.RuleID)
		}
	}
	return ids
}

// Readings inside every band raise nothing.
func TestHealthyReading_NoAlert(t *testing.T) {
	config := getTestConfig()
	registerMotor(t, config, "it-healthy")

	result := ingest(t, config, healthyReading("it-healthy"))

	if result.Status != "normal" {
		t.Errorf("Expected status normal, got %s", result.Status)
	}
	if result.AlertsGenerated != 0 {
		t.Errorf("Expected no alerts, got %d", result.AlertsGenerated)
	}
	if ids := triggered(result.Findings); len(ids) != 0 {
		t.Errorf("Expected no sensor rules, got %v", ids)
	}
	if result.Metadata.TraceID == "" {
		t.Error("Expected a trace ID in metadata")
	}
}

// vibrationRms 5.2 and bearingTemp 90 are both critical and together match
// the bearing damage rule R001.
func TestBearingDamage_CriticalAlerts(t *testing.T) {
	config := getTestConfig()
	registerMotor(t, config, "it-bearing")

	reading := healthyReading("it-bearing")
	reading["vibrationRms"] = 5.2
	reading["bearingTemp"] = 90.0
	result := ingest(t, config, reading)

	if result.Status != "critical" {
		t.Errorf("Expected status critical, got %s", result.Status)
	}
	if result.AlertsGenerated != 2 {
		t.Errorf("Expected 2 alerts, got %d", result.AlertsGenerated)
	}
	for _, a := range result.Alerts {
		if a.Severity != "CRITICAL" || a.Status != "OPEN" {
			t.Errorf("Unexpected alert %+v", a)
		}
	}
	if ids := triggered(result.Findings); len(ids) != 1 || ids[0] != "R001" {
		t.Errorf("Expected R001 only, got %v", ids)
	}
}

// A repeated warning inside the cooldown window is not raised twice.
func TestAlertCooldown(t *testing.T) {
	config := getTestConfig()
	registerMotor(t, config, "it-cooldown")

	reading := healthyReading("it-cooldown")
	reading["dustDensity"] = 75.0

	first := ingest(t, config, reading)
	second := ingest(t, config, reading)

	if first.AlertsGenerated != 1 {
		t.Fatalf("Expected first reading to alert, got %d", first.AlertsGenerated)
	}
	if second.AlertsGenerated != 0 {
		t.Errorf("Expected second reading to be suppressed, got %d", second.AlertsGenerated)
	}
	if second.Status != "warning" {
		t.Errorf("Suppression must not change status, got %s", second.Status)
	}
}

func TestUnknownMotor_NotFound(t *testing.T) {
	config := getTestConfig()
	do(t, config, http.MethodPost, "/ingest", healthyReading("it-ghost"), http.StatusNotFound)
}

func TestMissingTenantHeader_Error(t *testing.T) {
	config := getTestConfig()
	config.TenantID = ""
	do(t, config, http.MethodGet, "/motors", nil, http.StatusBadRequest)
}

// Symptom 10 (hums, shaft does not turn) and 5 (burning smell) answered Yes
// fully satisfy AND rule R11, so only AND results are reported.
func TestDiagnosis_AndRuleWins(t *testing.T) {
	config := getTestConfig()

	body := do(t, config, http.MethodPost, "/diagnosis", map[string]any{
		"answers": map[string]string{"10": "Yes", "5": "Yes"},
	}, http.StatusOK)

	var resp DiagnoseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("Expected 1 result, got %+v", resp.Results)
	}
	if r := resp.Results[0]; r.RuleID != "R11" || r.Confidence != 1 || r.Level != "C" {
		t.Errorf("Unexpected result %+v", r)
	}

	do(t, config, http.MethodGet, "/diagnoses/"+resp.DiagnosisID, nil, http.StatusOK)
}

// Rarely on symptom 7 alone gives OR rule R7 at 0.5 × 0.8.
func TestDiagnosis_OrFallback(t *testing.T) {
	config := getTestConfig()

	body := do(t, config, http.MethodPost, "/diagnosis", map[string]any{
		"answers": map[string]string{"7": "Rarely"},
	}, http.StatusOK)

	var resp DiagnoseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].RuleID != "R7" {
		t.Fatalf("Expected R7, got %+v", resp.Results)
	}
	if got := resp.Results[0].Confidence; got != 0.4 {
		t.Errorf("Expected confidence 0.4, got %v", got)
	}
	if got := resp.Results[0].Certainty; got != "Rarely" {
		t.Errorf("Expected certainty Rarely, got %s", got)
	}
}
