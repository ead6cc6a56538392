package domain

import (
	"time"
)

// SensorRule is an operator-configured CEL rule evaluated against every reading.
type SensorRule struct {
	ID             string   `json:"id"`
	TenantID       string   `json:"tenantId"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Version        string   `json:"version"`
	Expression     string   `json:"expression"` // CEL, must return bool
	Severity       Severity `json:"severity"`
	Diagnosis      string   `json:"diagnosis"`
	Recommendation string   `json:"recommendation"`
	Enabled        bool     `json:"enabled"`
}

// RuleFinding is the outcome of one sensor rule against one reading.
type RuleFinding struct {
	RuleID         string   `json:"ruleId"`
	Triggered      bool     `json:"triggered"`
	Severity       Severity `json:"severity,omitempty"`
	Diagnosis      string   `json:"diagnosis,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	Error          string   `json:"error,omitempty"`
	ProcessMs      int64    `json:"processMs"`
}

// ParameterStatus is the band classification of one parameter of a reading.
type ParameterStatus struct {
	Parameter Parameter   `json:"parameter"`
	Value     float64     `json:"value"`
	Level     StatusLevel `json:"level"`
	Label     string      `json:"label"`
	Unit      string      `json:"unit"`
}

// Inspection aggregates everything the pipeline concluded about a reading.
type Inspection struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	MotorID   string            `json:"motorId"`
	ReadingID string            `json:"readingId"`
	Status    StatusLevel       `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Params    []ParameterStatus `json:"parameters"`
	Findings  []RuleFinding     `json:"findings,omitempty"`
	Alerts    []*Alert          `json:"alerts,omitempty"`
	Metadata  InspectionMeta    `json:"metadata"`
}

// InspectionMeta contains processing information.
type InspectionMeta struct {
	TraceID          string `json:"traceId"`
	RulesEvaluated   int    `json:"rulesEvaluated"`
	RulesTriggered   int    `json:"rulesTriggered"`
	AlertsRaised     int    `json:"alertsRaised"`
	AlertsSuppressed int    `json:"alertsSuppressed"`
	TotalMs          int64  `json:"totalMs"`
}

// TriggeredFindings returns only the findings whose rule fired.
func (i *Inspection) TriggeredFindings() []RuleFinding {
	var out []RuleFinding
	for _, f := range i.Findings {
		if f.Triggered {
			out = append(out, f)
		}
	}
	return out
}
