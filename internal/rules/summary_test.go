package rules

import (
	"testing"

	"github.com/mechasense/mechasense/internal/domain"
)

func TestSummarizeNormal(t *testing.T) {
	s := Summarize([]domain.RuleFinding{{RuleID: "R001"}, {RuleID: "R002"}})

	if s.Status != domain.StatusNormal {
		t.Errorf("expected normal status, got %s", s.Status)
	}
	if s.Diagnosis != NormalDiagnosis || s.Recommendation != NormalRecommendation {
		t.Errorf("unexpected normal text: %q / %q", s.Diagnosis, s.Recommendation)
	}
	if s.RulesMatched == nil || len(s.RulesMatched) != 0 {
		t.Errorf("expected empty matched rules, got %v", s.RulesMatched)
	}
}

func TestSummarizeTriggered(t *testing.T) {
	findings := []domain.RuleFinding{
		{RuleID: "R003", Triggered: true, Severity: domain.SeverityWarning, Diagnosis: "Misalignment", Recommendation: "Align the shaft."},
		{RuleID: "R004"},
		{RuleID: "R006", Triggered: true, Severity: domain.SeverityCritical, Diagnosis: "Grid problem", Recommendation: "Call the utility."},
	}

	s := Summarize(findings)

	if s.Status != domain.StatusCritical {
		t.Errorf("expected critical status, got %s", s.Status)
	}
	if want := "[R003] Misalignment. [R006] Grid problem"; s.Diagnosis != want {
		t.Errorf("diagnosis = %q, want %q", s.Diagnosis, want)
	}
	if want := "1. Align the shaft.\n2. Call the utility."; s.Recommendation != want {
		t.Errorf("recommendation = %q, want %q", s.Recommendation, want)
	}
	if len(s.RulesMatched) != 2 {
		t.Errorf("expected 2 matched rules, got %d", len(s.RulesMatched))
	}
}

func TestBuiltinRulesAreGlobalAndEnabled(t *testing.T) {
	rules := BuiltinRules()
	if len(rules) != 8 {
		t.Fatalf("expected 8 builtin rules, got %d", len(rules))
	}

	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	seen := make(map[string]bool)
	for _, r := range rules {
		if r.TenantID != GlobalTenantID || !r.Enabled || r.Version != BuiltinVersion {
			t.Errorf("rule %s not seeded as global enabled rule", r.ID)
		}
		if seen[r.ID] {
			t.Errorf("duplicate builtin rule %s", r.ID)
		}
		seen[r.ID] = true
		if err := engine.ValidateRule(r); err != nil {
			t.Errorf("builtin rule %s invalid: %v", r.ID, err)
		}
	}
}
