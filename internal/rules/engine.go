// Package rules provides the CEL-Go based sensor rule evaluation engine.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/mechasense/mechasense/internal/domain"
)

// GlobalTenantID owns the sensor rules; they apply to every tenant.
const GlobalTenantID = "*"

// Engine is the CEL-based sensor rule evaluation engine.
type Engine struct {
	mu              sync.RWMutex
	env             *cel.Env
	compiledRules   map[string]*CompiledRule
	recurrenceCount RecurrenceGetter
	maxWorkers      int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.SensorRule
	Program cel.Program
}

// RecurrenceGetter returns the number of alerts raised for a motor in a time window.
type RecurrenceGetter func(ctx context.Context, tenantID, motorID string, windowSecs int) (int64, error)

// NewEngine creates a new rule evaluation engine.
func NewEngine(recurrenceCount RecurrenceGetter, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	vars := []cel.EnvOption{
		cel.Variable("reading", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("motor_id", cel.StringType),
		cel.Variable("recent_alert_count", cel.IntType),
	}
	for _, name := range readingVariables {
		vars = append(vars, cel.Variable(name, cel.DoubleType))
	}

	env, err := cel.NewEnv(vars...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:             env,
		compiledRules:   make(map[string]*CompiledRule),
		recurrenceCount: recurrenceCount,
		maxWorkers:      maxWorkers,
	}, nil
}

// readingVariables are the numeric reading fields exposed to expressions.
var readingVariables = []string{
	"grid_voltage",
	"motor_current",
	"power_consumption",
	"power_factor",
	"daily_energy_kwh",
	"grid_frequency",
	"vibration_rms",
	"fault_frequency",
	"rotor_unbalance_score",
	"bearing_health_score",
	"motor_surface_temp",
	"thermal_anomaly_index",
	"panel_temp",
	"bearing_temp",
	"dust_density",
	"soiling_loss_percent",
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.SensorRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.SensorRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.SensorRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput holds the reading to evaluate rules against.
type EvaluateInput struct {
	TenantID         string
	Reading          *domain.SensorReading
	RecurrenceWindow int // seconds
}

// EvaluateAll evaluates all loaded rules in parallel.
// Findings are returned in rule ID order.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.RuleFinding, error) {
	if input == nil || input.Reading == nil {
		return nil, fmt.Errorf("reading is required")
	}

	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Config.ID < rules[j].Config.ID
	})

	var recentAlerts int64
	if e.recurrenceCount != nil && input.RecurrenceWindow > 0 {
		count, err := e.recurrenceCount(ctx, input.TenantID, input.Reading.MotorID, input.RecurrenceWindow)
		if err == nil {
			recentAlerts = count
		}
	}

	activation := Activation(input.Reading, recentAlerts)

	// Parallel evaluation using worker pool pattern
	results := make([]domain.RuleFinding, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

// Activation builds the CEL variables for a reading.
// Optional fields that were not reported evaluate as 0.
func Activation(r *domain.SensorReading, recentAlerts int64) map[string]any {
	values := map[string]float64{
		"grid_voltage":          r.GridVoltage,
		"motor_current":         r.MotorCurrent,
		"power_consumption":     r.PowerConsumption,
		"power_factor":          r.PowerFactor,
		"daily_energy_kwh":      r.DailyEnergyKWh,
		"grid_frequency":        r.GridFrequency,
		"vibration_rms":         r.VibrationRms,
		"fault_frequency":       deref(r.FaultFrequency),
		"rotor_unbalance_score": r.RotorUnbalanceScore,
		"bearing_health_score":  r.BearingHealthScore,
		"motor_surface_temp":    r.MotorSurfaceTemp,
		"thermal_anomaly_index": deref(r.ThermalAnomalyIndex),
		"panel_temp":            deref(r.PanelTemp),
		"bearing_temp":          r.BearingTemp,
		"dust_density":          r.DustDensity,
		"soiling_loss_percent":  r.SoilingLossPercent,
	}

	reading := make(map[string]any, len(values))
	activation := make(map[string]any, len(values)+3)
	for k, v := range values {
		reading[k] = v
		activation[k] = v
	}
	activation["reading"] = reading
	activation["motor_id"] = r.MotorID
	activation["recent_alert_count"] = recentAlerts
	return activation
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// evaluateRule evaluates a single rule and returns the finding.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) domain.RuleFinding {
	start := time.Now()

	finding := domain.RuleFinding{
		RuleID: rule.Config.ID,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		finding.Error = fmt.Sprintf("evaluation error: %v", err)
		finding.ProcessMs = time.Since(start).Milliseconds()
		return finding
	}

	if triggered(out) {
		finding.Triggered = true
		finding.Severity = rule.Config.Severity
		finding.Diagnosis = rule.Config.Diagnosis
		finding.Recommendation = rule.Config.Recommendation
	}
	finding.ProcessMs = time.Since(start).Milliseconds()

	return finding
}

func triggered(val ref.Val) bool {
	b, ok := val.(types.Bool)
	return ok && bool(b)
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.SensorRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations, sorted by ID.
func (e *Engine) GetLoadedRules() []*domain.SensorRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.SensorRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].ID < rules[j].ID
	})
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.SensorRule) (*CompiledRule, error) {
	if cfg.Severity != domain.SeverityWarning && cfg.Severity != domain.SeverityCritical {
		return nil, fmt.Errorf("rule %s: severity must be WARNING or CRITICAL, got %q", cfg.ID, cfg.Severity)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
