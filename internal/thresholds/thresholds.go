// Package thresholds classifies raw sensor values into normal, warning and
// critical bands per monitored parameter.
package thresholds

import (
	"strconv"
	"strings"

	"github.com/mechasense/mechasense/internal/domain"
)

// Kind describes the shape of a parameter's safe range.
type Kind int

const (
	// UpperBound: below Lower is normal, [Lower, Upper] warning, above critical.
	UpperBound Kind = iota
	// LowerBound: above Upper is normal, [Lower, Upper] warning, below critical.
	LowerBound
	// Window: [Lower, Upper] is normal, anything else critical.
	Window
)

// Band is the safe operating range of one parameter.
type Band struct {
	Kind  Kind
	Lower float64
	Upper float64
}

// ParameterConfig is the display configuration of a parameter.
type ParameterConfig struct {
	Label string `json:"label"`
	Unit  string `json:"unit"`
}

// Status is the classification of a single value.
type Status struct {
	Level domain.StatusLevel `json:"level"`
	Label string             `json:"label"`
}

var bands = map[domain.Parameter]Band{
	domain.ParamGridVoltage:      {Kind: UpperBound, Lower: 200, Upper: 230},
	domain.ParamMotorCurrent:     {Kind: UpperBound, Lower: 4, Upper: 5.5},
	domain.ParamPowerFactor:      {Kind: LowerBound, Lower: 0.7, Upper: 0.85},
	domain.ParamGridFrequency:    {Kind: Window, Lower: 49.5, Upper: 50.5},
	domain.ParamMotorSurfaceTemp: {Kind: UpperBound, Lower: 70, Upper: 85},
	domain.ParamBearingTemp:      {Kind: UpperBound, Lower: 70, Upper: 85},
	domain.ParamDustDensity:      {Kind: UpperBound, Lower: 50, Upper: 100},
	domain.ParamVibrationRms:     {Kind: UpperBound, Lower: 2.8, Upper: 4.5},
}

var configs = map[domain.Parameter]ParameterConfig{
	domain.ParamGridVoltage:      {Label: "Grid Voltage", Unit: "V"},
	domain.ParamMotorCurrent:     {Label: "Motor Current", Unit: "A"},
	domain.ParamPowerFactor:      {Label: "Power Factor", Unit: ""},
	domain.ParamGridFrequency:    {Label: "Grid Frequency", Unit: "Hz"},
	domain.ParamMotorSurfaceTemp: {Label: "Motor Surface Temp", Unit: "°C"},
	domain.ParamBearingTemp:      {Label: "Bearing Temp", Unit: "°C"},
	domain.ParamDustDensity:      {Label: "Dust Density", Unit: "µg/m³"},
	domain.ParamVibrationRms:     {Label: "Vibration RMS", Unit: "mm/s"},
}

// Classify returns the status band of value for parameter p.
// Unknown parameters are reported as normal with the label "Unknown".
func Classify(p domain.Parameter, value float64) Status {
	b, ok := bands[p]
	if !ok {
		return Status{Level: domain.StatusNormal, Label: "Unknown"}
	}
	return newStatus(b.level(value))
}

func (b Band) level(v float64) domain.StatusLevel {
	inside := v >= b.Lower && v <= b.Upper
	switch b.Kind {
	case UpperBound:
		if v < b.Lower {
			return domain.StatusNormal
		}
	case LowerBound:
		if v > b.Upper {
			return domain.StatusNormal
		}
	case Window:
		if inside {
			return domain.StatusNormal
		}
		return domain.StatusCritical
	}
	if inside {
		return domain.StatusWarning
	}
	return domain.StatusCritical
}

func newStatus(level domain.StatusLevel) Status {
	switch level {
	case domain.StatusWarning:
		return Status{Level: level, Label: "Warning"}
	case domain.StatusCritical:
		return Status{Level: level, Label: "Critical"}
	default:
		return Status{Level: domain.StatusNormal, Label: "Normal"}
	}
}

// ShouldAlert reports whether value falls in the warning or critical band.
func ShouldAlert(p domain.Parameter, value float64) bool {
	return Classify(p, value).Level != domain.StatusNormal
}

// AlertSeverity returns the alert severity for value, or "" when normal.
func AlertSeverity(p domain.Parameter, value float64) domain.Severity {
	switch Classify(p, value).Level {
	case domain.StatusCritical:
		return domain.SeverityCritical
	case domain.StatusWarning:
		return domain.SeverityWarning
	default:
		return ""
	}
}

// Config returns the display configuration of p.
func Config(p domain.Parameter) (ParameterConfig, bool) {
	c, ok := configs[p]
	return c, ok
}

// BandFor returns the safe range of p.
func BandFor(p domain.Parameter) (Band, bool) {
	b, ok := bands[p]
	return b, ok
}

// AlertMessage builds the operator-facing alert text.
func AlertMessage(p domain.Parameter, value float64, severity domain.Severity) string {
	c, ok := configs[p]
	if !ok {
		c = ParameterConfig{Label: string(p)}
	}
	verb := "approaching"
	if severity == domain.SeverityCritical {
		verb = "exceeds"
	}
	msg := c.Label + " " + verb + " safe limit: " + strconv.FormatFloat(value, 'f', -1, 64) + " " + c.Unit
	return strings.TrimSpace(msg)
}

// Evaluate classifies every monitored parameter present on the reading.
func Evaluate(r *domain.SensorReading) []domain.ParameterStatus {
	out := make([]domain.ParameterStatus, 0, len(domain.MonitoredParameters))
	for _, p := range domain.MonitoredParameters {
		v, ok := r.Value(p)
		if !ok {
			continue
		}
		s := Classify(p, v)
		c := configs[p]
		out = append(out, domain.ParameterStatus{
			Parameter: p,
			Value:     v,
			Level:     s.Level,
			Label:     c.Label,
			Unit:      c.Unit,
		})
	}
	return out
}

// Worst returns the most severe level among statuses.
func Worst(statuses []domain.ParameterStatus) domain.StatusLevel {
	worst := domain.StatusNormal
	for _, s := range statuses {
		if s.Level.Rank() > worst.Rank() {
			worst = s.Level
		}
	}
	return worst
}
