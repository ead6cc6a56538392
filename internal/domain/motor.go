package domain

import (
	"time"
)

// Motor is a monitored induction motor.
type Motor struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId"`
	Name          string    `json:"name"`
	Location      string    `json:"location"`
	RatedPowerKW  float64   `json:"ratedPowerKw"`
	RatedCurrentA float64   `json:"ratedCurrentA"`
	RatedVoltageV float64   `json:"ratedVoltageV"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SensorReading is one telemetry sample sent by a motor's sensor node.
type SensorReading struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	MotorID  string `json:"motorId"`

	// Wattmeter
	GridVoltage      float64 `json:"gridVoltage"`
	MotorCurrent     float64 `json:"motorCurrent"`
	PowerConsumption float64 `json:"powerConsumption"`
	PowerFactor      float64 `json:"powerFactor"`
	DailyEnergyKWh   float64 `json:"dailyEnergyKwh"`
	GridFrequency    float64 `json:"gridFrequency"`

	// Vibration
	VibrationRms        float64  `json:"vibrationRms"`
	FaultFrequency      *float64 `json:"faultFrequency,omitempty"`
	RotorUnbalanceScore float64  `json:"rotorUnbalanceScore"`
	BearingHealthScore  float64  `json:"bearingHealthScore"`

	// Thermal
	MotorSurfaceTemp    float64  `json:"motorSurfaceTemp"`
	ThermalAnomalyIndex *float64 `json:"thermalAnomalyIndex,omitempty"`
	PanelTemp           *float64 `json:"panelTemp,omitempty"`
	BearingTemp         float64  `json:"bearingTemp"`

	// Dust
	DustDensity        float64 `json:"dustDensity"`
	SoilingLossPercent float64 `json:"soilingLossPercent"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Original request body as received
	RawPayload []byte `json:"-"`
}

// Parameter names a monitored reading parameter with alert thresholds.
type Parameter string

const (
	ParamGridVoltage      Parameter = "gridVoltage"
	ParamMotorCurrent     Parameter = "motorCurrent"
	ParamPowerFactor      Parameter = "powerFactor"
	ParamGridFrequency    Parameter = "gridFrequency"
	ParamMotorSurfaceTemp Parameter = "motorSurfaceTemp"
	ParamBearingTemp      Parameter = "bearingTemp"
	ParamDustDensity      Parameter = "dustDensity"
	ParamVibrationRms     Parameter = "vibrationRms"
)

// MonitoredParameters lists the thresholded parameters in display order.
var MonitoredParameters = []Parameter{
	ParamGridVoltage,
	ParamMotorCurrent,
	ParamPowerFactor,
	ParamGridFrequency,
	ParamMotorSurfaceTemp,
	ParamBearingTemp,
	ParamDustDensity,
	ParamVibrationRms,
}

// Value returns the reading's value for a monitored parameter.
// The second return is false for unknown parameters.
func (r *SensorReading) Value(p Parameter) (float64, bool) {
	switch p {
	case ParamGridVoltage:
		return r.GridVoltage, true
	case ParamMotorCurrent:
		return r.MotorCurrent, true
	case ParamPowerFactor:
		return r.PowerFactor, true
	case ParamGridFrequency:
		return r.GridFrequency, true
	case ParamMotorSurfaceTemp:
		return r.MotorSurfaceTemp, true
	case ParamBearingTemp:
		return r.BearingTemp, true
	case ParamDustDensity:
		return r.DustDensity, true
	case ParamVibrationRms:
		return r.VibrationRms, true
	default:
		return 0, false
	}
}

// LatestReading is the cached snapshot served by the dashboard's latest view.
type LatestReading struct {
	Reading *SensorReading `json:"reading"`
	Status  StatusLevel    `json:"status"`
}
