package repository

// Schema definitions for the Mechasense database.
// Compatible with both SQLite and PostgreSQL.

const schemaMotors = `
CREATE TABLE IF NOT EXISTS motors (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    location TEXT,
    rated_power_kw REAL NOT NULL DEFAULT 0,
    rated_current_a REAL NOT NULL DEFAULT 0,
    rated_voltage_v REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);
`

const schemaSensorReadings = `
CREATE TABLE IF NOT EXISTS sensor_readings (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    motor_id TEXT NOT NULL,
    grid_voltage REAL NOT NULL,
    motor_current REAL NOT NULL,
    power_consumption REAL NOT NULL,
    power_factor REAL NOT NULL,
    daily_energy_kwh REAL NOT NULL,
    grid_frequency REAL NOT NULL,
    vibration_rms REAL NOT NULL,
    fault_frequency REAL,
    rotor_unbalance_score REAL NOT NULL,
    bearing_health_score REAL NOT NULL,
    motor_surface_temp REAL NOT NULL,
    thermal_anomaly_index REAL,
    panel_temp REAL,
    bearing_temp REAL NOT NULL,
    dust_density REAL NOT NULL,
    soiling_loss_percent REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    raw_payload TEXT
);

CREATE INDEX IF NOT EXISTS idx_readings_motor_time ON sensor_readings(tenant_id, motor_id, timestamp);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    motor_id TEXT NOT NULL,
    reading_id TEXT,
    parameter TEXT NOT NULL,
    value REAL NOT NULL,
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    status TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_motor_time ON alerts(tenant_id, motor_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(tenant_id, status);
`

const schemaSensorRules = `
CREATE TABLE IF NOT EXISTS sensor_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    diagnosis TEXT NOT NULL,
    recommendation TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_sensor_rules_enabled ON sensor_rules(tenant_id, enabled);
`

const schemaInspections = `
CREATE TABLE IF NOT EXISTS inspections (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    motor_id TEXT NOT NULL,
    reading_id TEXT NOT NULL,
    status TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    parameters TEXT NOT NULL,
    findings TEXT NOT NULL,
    alerts TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_inspections_motor_time ON inspections(tenant_id, motor_id, timestamp);
`

// schemaDiagnoses stores questionnaire runs of the expert engine.
// motor_id is empty for runs not tied to a motor.
const schemaDiagnoses = `
CREATE TABLE IF NOT EXISTS diagnoses (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    motor_id TEXT NOT NULL DEFAULT '',
    answers TEXT NOT NULL,
    results TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_diagnoses_motor_time ON diagnoses(tenant_id, motor_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaMotors,
		schemaSensorReadings,
		schemaAlerts,
		schemaSensorRules,
		schemaInspections,
		schemaDiagnoses,
	}
}
