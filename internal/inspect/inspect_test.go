package inspect

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mechasense/mechasense/internal/cache"
	"github.com/mechasense/mechasense/internal/domain"
	"github.com/mechasense/mechasense/internal/recurrence"
	"github.com/mechasense/mechasense/internal/repository"
	"github.com/mechasense/mechasense/internal/rules"
)

func healthyReading(id string) *domain.SensorReading {
	return &domain.SensorReading{
		ID:                 id,
		MotorID:            "motor-001",
		GridVoltage:        190,
		MotorCurrent:       3.5,
		PowerFactor:        0.9,
		GridFrequency:      50,
		VibrationRms:       2.0,
		MotorSurfaceTemp:   65,
		BearingTemp:        60,
		DustDensity:        30,
		SoilingLossPercent: 1,
		Timestamp:          time.Now().UTC(),
	}
}

func newEngine(t *testing.T, getter rules.RecurrenceGetter) *rules.Engine {
	t.Helper()
	engine, err := rules.NewEngine(getter, 4)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("failed to load builtin rules: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestInspect(t *testing.T) {
	proc := NewProcessor(nil, nil, newEngine(t, nil), nil, domain.AlertingConfig{})
	ctx := context.Background()

	t.Run("Healthy", func(t *testing.T) {
		got, err := proc.Inspect(ctx, &Input{TenantID: "tenant-001", Reading: healthyReading("r-1"), TraceID: "trace-001"})
		if err != nil {
			t.Fatalf("Inspect failed: %v", err)
		}
		if got.Status != domain.StatusNormal {
			t.Errorf("expected normal, got %s", got.Status)
		}
		if len(got.Params) != len(domain.MonitoredParameters) {
			t.Errorf("expected %d parameters, got %d", len(domain.MonitoredParameters), len(got.Params))
		}
		if len(got.Alerts) != 0 || got.Metadata.RulesTriggered != 0 {
			t.Errorf("expected no alerts or findings, got %d/%d", len(got.Alerts), got.Metadata.RulesTriggered)
		}
		if got.Metadata.RulesEvaluated != len(rules.BuiltinRules()) {
			t.Errorf("expected all builtin rules evaluated, got %d", got.Metadata.RulesEvaluated)
		}
		if got.Metadata.TraceID != "trace-001" || got.ReadingID != "r-1" {
			t.Errorf("unexpected metadata: %+v", got)
		}
		if ShouldNotify(got) {
			t.Error("healthy inspection should not notify")
		}
	})

	t.Run("BearingDamage", func(t *testing.T) {
		rd := healthyReading("r-2")
		rd.VibrationRms = 5.2
		rd.BearingTemp = 90

		got, err := proc.Inspect(ctx, &Input{TenantID: "tenant-001", Reading: rd})
		if err != nil {
			t.Fatalf("Inspect failed: %v", err)
		}
		if got.Status != domain.StatusCritical {
			t.Errorf("expected critical, got %s", got.Status)
		}
		if len(got.Alerts) != 2 {
			t.Fatalf("expected 2 alerts, got %d", len(got.Alerts))
		}
		for _, a := range got.Alerts {
			if a.Severity != domain.SeverityCritical || a.ReadingID != "r-2" || a.Status != domain.AlertOpen {
				t.Errorf("unexpected alert: %+v", a)
			}
		}
		fired := got.TriggeredFindings()
		if len(fired) != 1 || fired[0].RuleID != "R001" {
			t.Errorf("expected R001 only, got %+v", fired)
		}
	})

	t.Run("FrequencyOutOfWindow", func(t *testing.T) {
		rd := healthyReading("r-3")
		rd.GridFrequency = 49.4

		got, err := proc.Inspect(ctx, &Input{TenantID: "tenant-001", Reading: rd})
		if err != nil {
			t.Fatalf("Inspect failed: %v", err)
		}
		if got.Status != domain.StatusCritical {
			t.Errorf("expected critical, got %s", got.Status)
		}
		fired := got.TriggeredFindings()
		if len(fired) != 1 || fired[0].RuleID != "R006" {
			t.Errorf("expected R006 only, got %+v", fired)
		}
	})

	t.Run("WarningRuleOverNormalParams", func(t *testing.T) {
		// R007 fires at power factor 0.8 which only reaches the warning band.
		rd := healthyReading("r-4")
		rd.PowerFactor = 0.8

		got, err := proc.Inspect(ctx, &Input{TenantID: "tenant-001", Reading: rd})
		if err != nil {
			t.Fatalf("Inspect failed: %v", err)
		}
		if got.Status != domain.StatusWarning {
			t.Errorf("expected warning, got %s", got.Status)
		}
		if !ShouldNotify(got) {
			t.Error("expected notification")
		}
	})

	t.Run("NilReading", func(t *testing.T) {
		if _, err := proc.Inspect(ctx, &Input{TenantID: "tenant-001"}); err == nil {
			t.Error("expected error for missing reading")
		}
	})
}

func TestCooldown(t *testing.T) {
	lru := cache.NewLRUCache(100)
	defer lru.Close()

	proc := NewProcessor(nil, lru, nil, nil, domain.AlertingConfig{Cooldown: time.Minute})
	ctx := context.Background()

	rd := healthyReading("r-1")
	rd.DustDensity = 75

	first, err := proc.Inspect(ctx, &Input{TenantID: "tenant-001", Reading: rd})
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if len(first.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(first.Alerts))
	}

	second, _ := proc.Inspect(ctx, &Input{TenantID: "tenant-001", Reading: rd})
	if len(second.Alerts) != 0 || second.Metadata.AlertsSuppressed != 1 {
		t.Errorf("expected suppressed alert, got %d raised %d suppressed",
			len(second.Alerts), second.Metadata.AlertsSuppressed)
	}
	if second.Status != domain.StatusWarning {
		t.Errorf("suppression must not change status, got %s", second.Status)
	}

	// Escalation to a different severity is a new alert.
	rd.DustDensity = 150
	third, _ := proc.Inspect(ctx, &Input{TenantID: "tenant-001", Reading: rd})
	if len(third.Alerts) != 1 {
		t.Errorf("expected critical alert despite cooldown, got %d", len(third.Alerts))
	}

	// Other tenants keep their own cooldowns.
	other, _ := proc.Inspect(ctx, &Input{TenantID: "tenant-002", Reading: rd})
	if len(other.Alerts) != 1 {
		t.Errorf("expected alert for other tenant, got %d", len(other.Alerts))
	}
}

func TestRun(t *testing.T) {
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "inspect-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	lru := cache.NewLRUCache(100)
	defer lru.Close()

	rec := recurrence.NewService(repo, lru)
	engine := newEngine(t, rec.GetRecurrenceGetter())
	proc := NewProcessor(repo, lru, engine, rec, domain.AlertingConfig{RecurrenceWindow: time.Hour})

	ctx := context.Background()
	tenantID := "tenant-001"

	rd := healthyReading("r-run-1")
	rd.MotorSurfaceTemp = 90

	got, err := proc.Run(ctx, &Input{TenantID: tenantID, Reading: rd})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := repo.GetReading(ctx, tenantID, "r-run-1"); err != nil {
		t.Errorf("reading not persisted: %v", err)
	}

	alerts, _ := repo.ListAlerts(ctx, tenantID, domain.AlertFilter{MotorID: "motor-001"})
	if len(alerts) != len(got.Alerts) || len(alerts) != 1 {
		t.Errorf("expected 1 persisted alert, got %d", len(alerts))
	}

	latestInspection, err := repo.GetLatestInspection(ctx, tenantID, "motor-001")
	if err != nil {
		t.Fatalf("inspection not persisted: %v", err)
	}
	if latestInspection.ID != got.ID {
		t.Errorf("expected inspection %s, got %s", got.ID, latestInspection.ID)
	}

	latest, err := lru.GetLatestReading(ctx, tenantID, "motor-001")
	if err != nil || latest == nil {
		t.Fatalf("latest reading not cached: %v", err)
	}
	if latest.Status != domain.StatusCritical || latest.Reading.ID != "r-run-1" {
		t.Errorf("unexpected latest reading: %+v", latest)
	}

	t.Run("RecurrenceRule", func(t *testing.T) {
		// Four more critical readings bring the motor to five alerts in the window.
		for i := 0; i < 4; i++ {
			r := healthyReading("r-run-rec-" + string(rune('a'+i)))
			r.MotorSurfaceTemp = 90
			if _, err := proc.Run(ctx, &Input{TenantID: tenantID, Reading: r}); err != nil {
				t.Fatalf("Run failed: %v", err)
			}
		}

		next, err := proc.Run(ctx, &Input{TenantID: tenantID, Reading: healthyReading("r-run-final")})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		var fired bool
		for _, f := range next.TriggeredFindings() {
			if f.RuleID == "R008" {
				fired = true
			}
		}
		if !fired {
			t.Error("expected R008 to fire after five recent alerts")
		}
	})

	t.Run("RequiresRepository", func(t *testing.T) {
		bare := NewProcessor(nil, nil, nil, nil, domain.AlertingConfig{})
		if _, err := bare.Run(ctx, &Input{TenantID: tenantID, Reading: healthyReading("x")}); err == nil {
			t.Error("expected error without repository")
		}
	})

	t.Run("InvalidTenant", func(t *testing.T) {
		_, err := proc.Run(ctx, &Input{Reading: healthyReading("no-tenant")})
		if !errors.Is(err, repository.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

// flakyAlertRepo fails the next failAlerts SaveAlert calls.
type flakyAlertRepo struct {
	domain.Repository
	failAlerts int
}

func (r *flakyAlertRepo) SaveAlert(ctx context.Context, tenantID string, alert *domain.Alert) error {
	if r.failAlerts > 0 {
		r.failAlerts--
		return errors.New("disk full")
	}
	return r.Repository.SaveAlert(ctx, tenantID, alert)
}

func TestRunReleasesCooldownOnSaveFailure(t *testing.T) {
	base, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "inspect-flaky.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer base.Close()

	lru := cache.NewLRUCache(100)
	defer lru.Close()

	repo := &flakyAlertRepo{Repository: base, failAlerts: 1}
	proc := NewProcessor(repo, lru, nil, nil, domain.AlertingConfig{Cooldown: time.Minute})
	ctx := context.Background()
	tenantID := "tenant-001"

	dusty := func(id string) *domain.SensorReading {
		rd := healthyReading(id)
		rd.DustDensity = 75
		return rd
	}

	if _, err := proc.Run(ctx, &Input{TenantID: tenantID, Reading: dusty("r-flaky-1")}); err == nil {
		t.Fatal("expected Run to fail when the alert cannot be saved")
	}

	retry, err := proc.Run(ctx, &Input{TenantID: tenantID, Reading: dusty("r-flaky-2")})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(retry.Alerts) != 1 || retry.Metadata.AlertsSuppressed != 0 {
		t.Errorf("unsaved alert must not hold the cooldown, got %d raised %d suppressed",
			len(retry.Alerts), retry.Metadata.AlertsSuppressed)
	}

	// A stored alert still holds its cooldown.
	again, err := proc.Run(ctx, &Input{TenantID: tenantID, Reading: dusty("r-flaky-3")})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(again.Alerts) != 0 || again.Metadata.AlertsSuppressed != 1 {
		t.Errorf("expected suppressed alert, got %d raised %d suppressed",
			len(again.Alerts), again.Metadata.AlertsSuppressed)
	}

	alerts, err := base.ListAlerts(ctx, tenantID, domain.AlertFilter{MotorID: "motor-001"})
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("expected 1 persisted alert, got %d", len(alerts))
	}
}
