package domain

import (
	"time"
)

// StatusLevel is the classification of a parameter value against its bands.
type StatusLevel string

const (
	StatusNormal   StatusLevel = "normal"
	StatusWarning  StatusLevel = "warning"
	StatusCritical StatusLevel = "critical"
)

// Rank orders status levels so the worst one can be picked.
func (s StatusLevel) Rank() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Severity is the severity of a raised alert.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Status returns the status level the severity corresponds to.
func (s Severity) Status() StatusLevel {
	switch s {
	case SeverityCritical:
		return StatusCritical
	case SeverityWarning:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// AlertStatus tracks the operator workflow of an alert.
type AlertStatus string

const (
	AlertOpen         AlertStatus = "OPEN"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertClosed       AlertStatus = "CLOSED"
)

// Alert is raised when a reading parameter leaves its normal band.
type Alert struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenantId"`
	MotorID   string      `json:"motorId"`
	ReadingID string      `json:"readingId"`
	Parameter Parameter   `json:"parameter"`
	Value     float64     `json:"value"`
	Severity  Severity    `json:"severity"`
	Message   string      `json:"message"`
	Status    AlertStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	MotorID string
	Status  AlertStatus
	Since   time.Time
	Limit   int
}
