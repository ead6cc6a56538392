package rules

import (
	"fmt"
	"strings"

	"github.com/mechasense/mechasense/internal/domain"
)

const (
	NormalDiagnosis      = "Motor in normal condition"
	NormalRecommendation = "Continue periodic monitoring"
)

// Summary combines the triggered findings of one evaluation into operator text.
type Summary struct {
	Status         domain.StatusLevel   `json:"status"`
	Diagnosis      string               `json:"diagnosis"`
	Recommendation string               `json:"recommendation"`
	RulesMatched   []domain.RuleFinding `json:"rulesMatched"`
}

// Summarize builds the combined diagnosis and recommendation text.
//
// Diagnoses are joined as "[id] text", recommendations are numbered one per
// line. With nothing triggered the motor is reported as normal.
func Summarize(findings []domain.RuleFinding) Summary {
	s := Summary{
		Status:         domain.StatusNormal,
		Diagnosis:      NormalDiagnosis,
		Recommendation: NormalRecommendation,
		RulesMatched:   []domain.RuleFinding{},
	}

	for _, f := range findings {
		if f.Triggered {
			s.RulesMatched = append(s.RulesMatched, f)
		}
	}
	if len(s.RulesMatched) == 0 {
		return s
	}

	diagnoses := make([]string, len(s.RulesMatched))
	recommendations := make([]string, len(s.RulesMatched))
	for i, f := range s.RulesMatched {
		diagnoses[i] = fmt.Sprintf("[%s] %s", f.RuleID, f.Diagnosis)
		recommendations[i] = fmt.Sprintf("%d. %s", i+1, f.Recommendation)
		if f.Severity.Status().Rank() > s.Status.Rank() {
			s.Status = f.Severity.Status()
		}
	}
	s.Diagnosis = strings.Join(diagnoses, ". ")
	s.Recommendation = strings.Join(recommendations, "\n")
	return s
}
