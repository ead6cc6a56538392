package rules

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/mechasense/mechasense/internal/domain"
)

func nominalReading() *domain.SensorReading {
	return &domain.SensorReading{
		MotorID:             "motor-001",
		GridVoltage:         190,
		MotorCurrent:        3.5,
		PowerConsumption:    750,
		PowerFactor:         0.9,
		GridFrequency:       50,
		VibrationRms:        2.0,
		RotorUnbalanceScore: 0.1,
		BearingHealthScore:  0.95,
		MotorSurfaceTemp:    65,
		BearingTemp:         60,
		DustDensity:         30,
		SoilingLossPercent:  1,
	}
}

func globalRule(id, expr string) *domain.SensorRule {
	return &domain.SensorRule{
		ID:         id,
		TenantID:   GlobalTenantID,
		Name:       id,
		Expression: expr,
		Severity:   domain.SeverityWarning,
		Diagnosis:  id + " diagnosis",
		Enabled:    true,
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(nil, 5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	err := engine.LoadRule(globalRule("test-rule-001", "vibration_rms > 4.5"))
	if err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	tests := []struct {
		name string
		rule *domain.SensorRule
	}{
		{"syntax error", globalRule("bad-syntax", "this is not valid CEL !!!")},
		{"non bool result", globalRule("bad-type", "vibration_rms * 2.0")},
		{"unknown variable", globalRule("bad-var", "oil_pressure > 2.0")},
		{"missing severity", &domain.SensorRule{ID: "bad-sev", Expression: "true", Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := engine.LoadRule(tt.rule); err == nil {
				t.Error("expected error")
			}
			if err := engine.ValidateRule(tt.rule); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if engine.RulesCount() != 0 {
		t.Errorf("invalid rules must not be loaded, got %d", engine.RulesCount())
	}
}

func TestValidateRuleDoesNotLoad(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	if err := engine.ValidateRule(globalRule("ok", "bearing_temp > 85.0")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Errorf("ValidateRule loaded a rule")
	}
	if err := engine.ValidateRule(nil); err == nil {
		t.Error("expected error for nil rule")
	}
}

func TestEvaluateBuiltinRules(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("builtin rules failed to load: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(r *domain.SensorReading)
		want   []string
	}{
		{"nominal", func(r *domain.SensorReading) {}, nil},
		{"bearing damage", func(r *domain.SensorReading) { r.VibrationRms = 5; r.BearingTemp = 90 }, []string{"R001"}},
		{"overload", func(r *domain.SensorReading) { r.PowerFactor = 0.65; r.MotorCurrent = 6 }, []string{"R002"}},
		{"misalignment", func(r *domain.SensorReading) { r.VibrationRms = 3.5 }, []string{"R003"}},
		{"cooling", func(r *domain.SensorReading) { r.MotorSurfaceTemp = 90 }, []string{"R004"}},
		{"dust", func(r *domain.SensorReading) { r.DustDensity = 120; r.SoilingLossPercent = 8 }, []string{"R005"}},
		{"grid", func(r *domain.SensorReading) { r.GridFrequency = 49 }, []string{"R006"}},
		{"reactive power", func(r *domain.SensorReading) { r.PowerFactor = 0.8 }, []string{"R007"}},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := nominalReading()
			tt.mutate(r)

			findings, err := engine.EvaluateAll(ctx, &EvaluateInput{TenantID: "tenant-001", Reading: r})
			if err != nil {
				t.Fatalf("evaluation failed: %v", err)
			}
			if len(findings) != len(BuiltinRules()) {
				t.Fatalf("expected %d findings, got %d", len(BuiltinRules()), len(findings))
			}

			var got []string
			for _, f := range findings {
				if f.Error != "" {
					t.Errorf("rule %s errored: %s", f.RuleID, f.Error)
				}
				if f.Triggered {
					got = append(got, f.RuleID)
				}
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("triggered %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindingsOrderedByRuleID(t *testing.T) {
	engine, _ := NewEngine(nil, 3)
	defer engine.Close()

	for _, id := range []string{"c", "a", "b"} {
		engine.LoadRule(globalRule(id, "true"))
	}

	findings, err := engine.EvaluateAll(context.Background(), &EvaluateInput{TenantID: "t1", Reading: nominalReading()})
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 3 || findings[0].RuleID != "a" || findings[1].RuleID != "b" || findings[2].RuleID != "c" {
		t.Errorf("unexpected order: %+v", findings)
	}
}

func TestRecurrenceVariable(t *testing.T) {
	var gotMotor string
	var gotWindow int
	getter := func(ctx context.Context, tenantID, motorID string, windowSecs int) (int64, error) {
		gotMotor = motorID
		gotWindow = windowSecs
		return 7, nil
	}

	engine, _ := NewEngine(getter, 5)
	defer engine.Close()

	engine.LoadRule(globalRule("recurring", "recent_alert_count >= 5"))

	input := &EvaluateInput{TenantID: "tenant-001", Reading: nominalReading(), RecurrenceWindow: 3600}
	findings, _ := engine.EvaluateAll(context.Background(), input)

	if !findings[0].Triggered {
		t.Error("expected recurrence rule to trigger with 7 alerts")
	}
	if gotMotor != "motor-001" || gotWindow != 3600 {
		t.Errorf("getter called with motor=%q window=%d", gotMotor, gotWindow)
	}

	// Window 0 disables the lookup.
	input.RecurrenceWindow = 0
	findings, _ = engine.EvaluateAll(context.Background(), input)
	if findings[0].Triggered {
		t.Error("expected rule not to trigger without a recurrence window")
	}
}

func TestOptionalFieldsDefaultToZero(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	engine.LoadRule(globalRule("panel", "panel_temp == 0.0 && reading.fault_frequency == 0.0"))

	r := nominalReading()
	findings, _ := engine.EvaluateAll(context.Background(), &EvaluateInput{TenantID: "t1", Reading: r})
	if !findings[0].Triggered {
		t.Errorf("expected unset optional fields to read as 0: %+v", findings[0])
	}

	hot := 55.0
	r.PanelTemp = &hot
	findings, _ = engine.EvaluateAll(context.Background(), &EvaluateInput{TenantID: "t1", Reading: r})
	if findings[0].Triggered {
		t.Error("expected rule not to trigger once panel_temp is set")
	}
}

func TestEvaluationErrorIsReported(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	engine.LoadRule(globalRule("missing-key", "reading.not_there > 1.0"))

	findings, err := engine.EvaluateAll(context.Background(), &EvaluateInput{TenantID: "t1", Reading: nominalReading()})
	if err != nil {
		t.Fatalf("EvaluateAll should not fail on a rule error: %v", err)
	}
	if findings[0].Triggered || !strings.Contains(findings[0].Error, "evaluation error") {
		t.Errorf("expected evaluation error finding, got %+v", findings[0])
	}
}

func TestEvaluateRequiresReading(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	if _, err := engine.EvaluateAll(context.Background(), &EvaluateInput{TenantID: "t1"}); err == nil {
		t.Error("expected error without reading")
	}
}

func TestParallelExecution(t *testing.T) {
	engine, _ := NewEngine(nil, 3)
	defer engine.Close()

	for i := 0; i < 10; i++ {
		engine.LoadRule(globalRule(fmt.Sprintf("rule-%02d", i), "motor_current > 0.0"))
	}

	if engine.RulesCount() != 10 {
		t.Fatalf("expected 10 rules, got %d", engine.RulesCount())
	}

	findings, err := engine.EvaluateAll(context.Background(), &EvaluateInput{TenantID: "t1", Reading: nominalReading()})
	if err != nil {
		t.Fatalf("parallel evaluation failed: %v", err)
	}

	if len(findings) != 10 {
		t.Errorf("expected 10 findings, got %d", len(findings))
	}
	for i, f := range findings {
		if !f.Triggered {
			t.Errorf("rule %d: expected trigger", i)
		}
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	engine.LoadRule(globalRule("old", "true"))

	disabled := globalRule("disabled", "true")
	disabled.Enabled = false

	if err := engine.ReloadRules([]*domain.SensorRule{globalRule("new", "true"), disabled}); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	loaded := engine.GetLoadedRules()
	if len(loaded) != 1 || loaded[0].ID != "new" {
		t.Errorf("expected only rule 'new' after reload, got %d rules", len(loaded))
	}

	// A failing reload keeps the previous set.
	if err := engine.ReloadRules([]*domain.SensorRule{globalRule("broken", "1 +")}); err == nil {
		t.Fatal("expected reload error")
	}
	if engine.RulesCount() != 1 {
		t.Errorf("failed reload replaced rules, count %d", engine.RulesCount())
	}
}

func TestCloseClearsRules(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	engine.LoadRules(BuiltinRules())
	engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules after close, got %d", engine.RulesCount())
	}
}
