package expert

import (
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/mechasense/mechasense/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	kb, err := DefaultKnowledgeBase()
	if err != nil {
		t.Fatalf("failed to load knowledge base: %v", err)
	}
	return NewEngine(kb)
}

func ruleIDs(results []domain.DiagnosisResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.RuleID
	}
	return ids
}

func TestDiagnoseSingleOrRule(t *testing.T) {
	engine := newTestEngine(t)

	got := engine.Diagnose(map[int]domain.FuzzyLevel{1: domain.FuzzyYes})
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d: %v", len(got), ruleIDs(got))
	}
	if got[0].RuleID != "R1" || got[0].Level != domain.DamageLight || got[0].Confidence != 1.0 {
		t.Errorf("unexpected result: %+v", got[0])
	}
	if got[0].Certainty != domain.FuzzyYes {
		t.Errorf("expected certainty Yes, got %q", got[0].Certainty)
	}
}

func TestDiagnoseNoAnswers(t *testing.T) {
	engine := newTestEngine(t)

	for name, answers := range map[string]map[int]domain.FuzzyLevel{
		"nil":   nil,
		"empty": {},
		"all no": {
			1: domain.FuzzyNo, 5: domain.FuzzyNo, 10: domain.FuzzyNo,
		},
		"unknown level": {5: "Maybe"},
		"unknown symptom": {
			42: domain.FuzzyYes,
		},
	} {
		t.Run(name, func(t *testing.T) {
			got := engine.Diagnose(answers)
			if got == nil {
				t.Fatal("expected empty slice, got nil")
			}
			if len(got) != 0 {
				t.Errorf("expected no results, got %v", ruleIDs(got))
			}
		})
	}
}

func TestDiagnoseAndRuleWins(t *testing.T) {
	engine := newTestEngine(t)

	got := engine.Diagnose(map[int]domain.FuzzyLevel{
		10: domain.FuzzyYes,
		5:  domain.FuzzyYes,
	})
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 result, got %v", ruleIDs(got))
	}
	if got[0].RuleID != "R11" || got[0].Level != domain.DamageSevere || got[0].Confidence != 1.0 {
		t.Errorf("unexpected result: %+v", got[0])
	}
	if got[0].Operator != domain.OperatorAnd {
		t.Errorf("expected AND operator, got %s", got[0].Operator)
	}
}

func TestDiagnoseAndPicksMostSevere(t *testing.T) {
	engine := newTestEngine(t)

	// R11 (C), R13 (B), R14 (B) and R15 (B) all fire.
	got := engine.Diagnose(map[int]domain.FuzzyLevel{
		4:  domain.FuzzyYes,
		5:  domain.FuzzyYes,
		6:  domain.FuzzyYes,
		10: domain.FuzzyYes,
	})
	if !reflect.DeepEqual(ruleIDs(got), []string{"R11"}) {
		t.Errorf("expected [R11], got %v", ruleIDs(got))
	}
}

func TestDiagnoseAndTieKeepsRuleOrder(t *testing.T) {
	engine := newTestEngine(t)

	// R13, R14 and R15 are all level B; R13 is declared first.
	got := engine.Diagnose(map[int]domain.FuzzyLevel{
		4: domain.FuzzyYes,
		5: domain.FuzzyYes,
		6: domain.FuzzyYes,
	})
	if !reflect.DeepEqual(ruleIDs(got), []string{"R13"}) {
		t.Errorf("expected [R13], got %v", ruleIDs(got))
	}
	// min(0.8, 0.8)
	if got[0].Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", got[0].Confidence)
	}
}

func TestDiagnoseAndUsesMinimum(t *testing.T) {
	engine := newTestEngine(t)

	// R11: symptom 10 (cf 1.0) Yes -> 1.0, symptom 5 (cf 1.0) Rarely -> 0.5
	got := engine.Diagnose(map[int]domain.FuzzyLevel{
		10: domain.FuzzyYes,
		5:  domain.FuzzyRarely,
	})
	if len(got) != 1 || got[0].RuleID != "R11" {
		t.Fatalf("expected R11, got %v", ruleIDs(got))
	}
	if got[0].Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %v", got[0].Confidence)
	}
	if got[0].Certainty != domain.FuzzyRarely {
		t.Errorf("expected certainty Rarely, got %q", got[0].Certainty)
	}
}

func TestDiagnosePartialAndFallsBackToOr(t *testing.T) {
	engine := newTestEngine(t)

	// Symptom 5 answered No, so R11 and R14 cannot fire.
	got := engine.Diagnose(map[int]domain.FuzzyLevel{
		10: domain.FuzzyYes,
		5:  domain.FuzzyNo,
		6:  domain.FuzzyYes,
	})
	want := []string{"R6", "R10"}
	if !reflect.DeepEqual(ruleIDs(got), want) {
		t.Errorf("expected %v, got %v", want, ruleIDs(got))
	}
	for _, r := range got {
		if r.Operator != domain.OperatorOr {
			t.Errorf("expected only OR results, got %s from %s", r.Operator, r.RuleID)
		}
	}
}

func TestDiagnoseRarelyScalesExpertCF(t *testing.T) {
	engine := newTestEngine(t)

	got := engine.Diagnose(map[int]domain.FuzzyLevel{7: domain.FuzzyRarely})
	if len(got) != 1 || got[0].RuleID != "R7" {
		t.Fatalf("expected R7, got %v", ruleIDs(got))
	}
	if got[0].Confidence != 0.4 {
		t.Errorf("expected confidence 0.4, got %v", got[0].Confidence)
	}
}

func TestDiagnoseOrRankedBySeverity(t *testing.T) {
	engine := newTestEngine(t)

	// R1 (A), R4 (B), R7 (B), R8 (C): declaration order is A, B, B, C.
	got := engine.Diagnose(map[int]domain.FuzzyLevel{
		1: domain.FuzzyYes,
		4: domain.FuzzyYes,
		7: domain.FuzzyYes,
		8: domain.FuzzyYes,
	})
	want := []string{"R8", "R4", "R7", "R1"}
	if !reflect.DeepEqual(ruleIDs(got), want) {
		t.Errorf("expected %v, got %v", want, ruleIDs(got))
	}
}

func TestDiagnoseOrUsesMaximum(t *testing.T) {
	symptoms := []domain.Symptom{
		{ID: 1, CFExpert: 0.6},
		{ID: 2, CFExpert: 0.9},
	}
	rules := []domain.DiagnosticRule{
		{ID: "O1", Symptoms: []int{1, 2}, Operator: domain.OperatorOr, Level: domain.DamageModerate},
	}
	kb, err := NewKnowledgeBase(symptoms, rules)
	if err != nil {
		t.Fatal(err)
	}

	got := NewEngine(kb).Diagnose(map[int]domain.FuzzyLevel{1: domain.FuzzyYes, 2: domain.FuzzyRarely})
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	// max(0.6, 0.45)
	if got[0].Confidence != 0.6 {
		t.Errorf("expected 0.6, got %v", got[0].Confidence)
	}
}

func TestDiagnoseConfidenceRounding(t *testing.T) {
	symptoms := []domain.Symptom{{ID: 1, CFExpert: 0.3333333}}
	rules := []domain.DiagnosticRule{
		{ID: "P1", Symptoms: []int{1}, Operator: domain.OperatorOr, Level: domain.DamageLight},
	}
	kb, err := NewKnowledgeBase(symptoms, rules)
	if err != nil {
		t.Fatal(err)
	}

	got := NewEngine(kb).Diagnose(map[int]domain.FuzzyLevel{1: domain.FuzzyRarely})
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].Confidence != 0.167 {
		t.Errorf("expected 0.167, got %v", got[0].Confidence)
	}
}

func TestDiagnoseProperties(t *testing.T) {
	engine := newTestEngine(t)
	kb := engine.KnowledgeBase()
	levels := []domain.FuzzyLevel{domain.FuzzyNo, domain.FuzzyRarely, domain.FuzzyYes}

	// Walk a deterministic sample of answer sets across all symptoms.
	for seed := 0; seed < 500; seed++ {
		answers := make(map[int]domain.FuzzyLevel)
		n := seed
		for _, s := range kb.Symptoms() {
			if n%4 != 3 {
				answers[s.ID] = levels[n%3]
			}
			n = n*7 + 3
		}

		got := engine.Diagnose(answers)
		again := engine.Diagnose(answers)
		if !reflect.DeepEqual(got, again) {
			t.Fatalf("seed %d: results not deterministic", seed)
		}

		evidence := engine.Evidence(answers)
		for id, cf := range evidence {
			if cf <= 0 {
				t.Fatalf("seed %d: evidence for %d is %v", seed, id, cf)
			}
		}

		andFires := false
		for _, r := range kb.Rules() {
			if r.Operator != domain.OperatorAnd {
				continue
			}
			all := true
			for _, id := range r.Symptoms {
				if _, ok := evidence[id]; !ok {
					all = false
				}
			}
			andFires = andFires || all
		}

		if andFires {
			if len(got) != 1 || got[0].Operator != domain.OperatorAnd {
				t.Fatalf("seed %d: expected single AND result, got %v", seed, ruleIDs(got))
			}
		} else {
			var wantOr int
			for _, r := range kb.Rules() {
				if r.Operator != domain.OperatorOr {
					continue
				}
				for _, id := range r.Symptoms {
					if _, ok := evidence[id]; ok {
						wantOr++
						break
					}
				}
			}
			if len(got) != wantOr {
				t.Fatalf("seed %d: expected %d OR results, got %d", seed, wantOr, len(got))
			}
		}

		for i, r := range got {
			if r.Confidence < 0 || r.Confidence > 1 {
				t.Fatalf("seed %d: confidence %v out of range", seed, r.Confidence)
			}
			if math.Abs(r.Confidence*1000-math.Round(r.Confidence*1000)) > 1e-9 {
				t.Fatalf("seed %d: confidence %v not rounded to 3 decimals", seed, r.Confidence)
			}
			if i > 0 && got[i-1].Level.Rank() < r.Level.Rank() {
				t.Fatalf("seed %d: results not sorted by severity: %v", seed, ruleIDs(got))
			}
		}
	}
}

func TestDiagnoseConcurrent(t *testing.T) {
	engine := newTestEngine(t)
	answers := map[int]domain.FuzzyLevel{1: domain.FuzzyYes, 8: domain.FuzzyRarely}
	want := engine.Diagnose(answers)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := engine.Diagnose(answers); !reflect.DeepEqual(got, want) {
					t.Errorf("concurrent diagnose diverged: %v", ruleIDs(got))
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestValidateAnswers(t *testing.T) {
	engine := newTestEngine(t)

	if err := engine.ValidateAnswers(map[int]domain.FuzzyLevel{1: domain.FuzzyYes, 2: domain.FuzzyNo}); err != nil {
		t.Errorf("expected valid answers, got %v", err)
	}

	tests := map[string]map[int]domain.FuzzyLevel{
		"unknown symptom": {99: domain.FuzzyYes},
		"unknown level":   {1: "Often"},
	}
	for name, answers := range tests {
		t.Run(name, func(t *testing.T) {
			err := engine.ValidateAnswers(answers)
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
