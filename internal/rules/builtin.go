package rules

import "github.com/mechasense/mechasense/internal/domain"

// BuiltinVersion is the version stamped on the seeded rules.
const BuiltinVersion = "1.0.0"

// BuiltinRules returns the default sensor rules seeded into an empty rule table.
// They are owned by GlobalTenantID.
func BuiltinRules() []*domain.SensorRule {
	rules := []*domain.SensorRule{
		{
			ID:             "R001",
			Name:           "Bearing damage",
			Description:    "Vibration RMS > 4.5 mm/s and bearing temp > 85°C",
			Expression:     "vibration_rms > 4.5 && bearing_temp > 85.0",
			Severity:       domain.SeverityCritical,
			Diagnosis:      "Bearing damage is very likely",
			Recommendation: "Inspect and replace the bearing immediately. Stop the motor.",
		},
		{
			ID:             "R002",
			Name:           "Overload",
			Description:    "Power factor < 0.7 and motor current > 5.5 A",
			Expression:     "power_factor < 0.7 && motor_current > 5.5",
			Severity:       domain.SeverityCritical,
			Diagnosis:      "Motor is overloaded",
			Recommendation: "Reduce the motor load. Check the transmission and coupling. Consider power factor correction.",
		},
		{
			ID:             "R003",
			Name:           "Misalignment or unbalance",
			Description:    "Vibration RMS > 2.8 mm/s with normal temperatures",
			Expression:     "vibration_rms > 2.8 && bearing_temp < 70.0 && motor_surface_temp < 70.0",
			Severity:       domain.SeverityWarning,
			Diagnosis:      "Likely shaft misalignment or rotor unbalance",
			Recommendation: "Run an alignment check. Inspect the coupling. Balance the rotor if needed.",
		},
		{
			ID:             "R004",
			Name:           "Cooling problem",
			Description:    "Motor temp > 85°C with normal vibration",
			Expression:     "motor_surface_temp > 85.0 && vibration_rms < 2.8",
			Severity:       domain.SeverityWarning,
			Diagnosis:      "Cooling or ventilation problem",
			Recommendation: "Clean the fan and air ducts. Check the thermal grease. Make sure the room is ventilated.",
		},
		{
			ID:             "R005",
			Name:           "Dust accumulation",
			Description:    "Dust density > 100 µg/m³ and soiling loss > 5%",
			Expression:     "dust_density > 100.0 && soiling_loss_percent > 5.0",
			Severity:       domain.SeverityWarning,
			Diagnosis:      "Heavy dust accumulation is reducing efficiency",
			Recommendation: "Clean the motor and its surroundings. Consider an additional air filter.",
		},
		{
			ID:             "R006",
			Name:           "Grid problem",
			Description:    "Grid frequency outside 49.5-50.5 Hz",
			Expression:     "grid_frequency < 49.5 || grid_frequency > 50.5",
			Severity:       domain.SeverityCritical,
			Diagnosis:      "Problem with the grid or power supply",
			Recommendation: "Contact the utility. Consider a UPS or voltage stabilizer.",
		},
		{
			ID:             "R007",
			Name:           "Reactive power",
			Description:    "Power factor < 0.85 with normal current",
			Expression:     "power_factor < 0.85 && motor_current < 5.5",
			Severity:       domain.SeverityWarning,
			Diagnosis:      "Low power factor, motor is running inefficiently",
			Recommendation: "Install a capacitor bank for power factor correction. Check the motor winding.",
		},
		{
			ID:             "R008",
			Name:           "Recurring alerts",
			Description:    "Five or more threshold alerts in the recurrence window",
			Expression:     "recent_alert_count >= 5",
			Severity:       domain.SeverityWarning,
			Diagnosis:      "Threshold alerts keep recurring on this motor",
			Recommendation: "Schedule an on-site inspection and run the symptom questionnaire.",
		},
	}

	for _, r := range rules {
		r.TenantID = GlobalTenantID
		r.Version = BuiltinVersion
		r.Enabled = true
	}
	return rules
}
