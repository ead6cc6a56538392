// Package expert implements the questionnaire diagnosis engine: a forward
// chaining evaluator that combines fuzzy symptom answers into certainty
// factors and ranks the rules they satisfy.
package expert

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/mechasense/mechasense/internal/domain"
)

// ErrInvalidAnswer is returned by ValidateAnswers for answers the engine
// would otherwise treat as "No".
var ErrInvalidAnswer = errors.New("invalid answer")

// Engine evaluates answers against a knowledge base.
// It holds no mutable state; Diagnose may be called concurrently.
type Engine struct {
	kb *KnowledgeBase
}

// NewEngine creates an engine over a validated knowledge base.
func NewEngine(kb *KnowledgeBase) *Engine {
	return &Engine{kb: kb}
}

// KnowledgeBase returns the knowledge base the engine evaluates.
func (e *Engine) KnowledgeBase() *KnowledgeBase {
	return e.kb
}

// Evidence computes the certainty factor of every answered catalog symptom.
// Symptoms with zero certainty are left out.
func (e *Engine) Evidence(answers map[int]domain.FuzzyLevel) map[int]float64 {
	evidence := make(map[int]float64, len(answers))
	for _, s := range e.kb.symptoms {
		answer, ok := answers[s.ID]
		if !ok {
			continue
		}
		cf := LevelToValue(answer) * s.CFExpert
		if cf > 0 {
			evidence[s.ID] = cf
		}
	}
	return evidence
}

// Diagnose returns the ranked diagnoses for the given answers.
//
// AND rules are evaluated first and need evidence for every symptom; if any
// fire, only the most severe one is returned. Otherwise every OR rule with at
// least one matching symptom is returned, most severe first. An empty result
// means no diagnosis.
func (e *Engine) Diagnose(answers map[int]domain.FuzzyLevel) []domain.DiagnosisResult {
	evidence := e.Evidence(answers)
	if len(evidence) == 0 {
		return []domain.DiagnosisResult{}
	}

	if fired := e.evaluate(domain.OperatorAnd, evidence); len(fired) > 0 {
		rankBySeverity(fired)
		return fired[:1]
	}

	fired := e.evaluate(domain.OperatorOr, evidence)
	rankBySeverity(fired)
	return fired
}

func (e *Engine) evaluate(op domain.Operator, evidence map[int]float64) []domain.DiagnosisResult {
	results := []domain.DiagnosisResult{}
	for _, rule := range e.kb.rules {
		if rule.Operator != op {
			continue
		}

		var found []float64
		for _, id := range rule.Symptoms {
			if cf, ok := evidence[id]; ok {
				found = append(found, cf)
			}
		}

		var confidence float64
		switch op {
		case domain.OperatorAnd:
			if len(found) != len(rule.Symptoms) {
				continue
			}
			confidence = minOf(found)
		case domain.OperatorOr:
			if len(found) == 0 {
				continue
			}
			confidence = maxOf(found)
		}
		if confidence <= 0 {
			continue
		}

		results = append(results, newResult(rule, confidence))
	}
	return results
}

func newResult(rule domain.DiagnosticRule, confidence float64) domain.DiagnosisResult {
	c := round3(ClampCF(confidence))
	return domain.DiagnosisResult{
		RuleID:     rule.ID,
		Operator:   rule.Operator,
		Symptoms:   append([]int(nil), rule.Symptoms...),
		Level:      rule.Level,
		Damage:     rule.Damage,
		Solution:   rule.Solution,
		Confidence: c,
		Certainty:  ValueToLevel(c),
	}
}

// rankBySeverity sorts C before B before A, keeping rule base order for ties.
func rankBySeverity(results []domain.DiagnosisResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Level.Rank() > results[j].Level.Rank()
	})
}

// ValidateAnswers rejects unknown symptom IDs and unknown fuzzy levels.
// Diagnose itself never needs this; it backs strict input handling.
func (e *Engine) ValidateAnswers(answers map[int]domain.FuzzyLevel) error {
	ids := make([]int, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var errs []error
	for _, id := range ids {
		level := answers[id]
		if _, ok := e.kb.byID[id]; !ok {
			errs = append(errs, fmt.Errorf("symptom %d is not in the catalog", id))
		}
		if !ValidLevel(level) {
			errs = append(errs, fmt.Errorf("symptom %d: unknown level %q", id, level))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidAnswer, errors.Join(errs...))
	}
	return nil
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
