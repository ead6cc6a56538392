package expert

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mechasense/mechasense/internal/domain"
)

// ErrInvalidKnowledgeBase is returned when the symptom catalog or rule base
// fails validation. The engine refuses to start on it.
var ErrInvalidKnowledgeBase = errors.New("invalid knowledge base")

//go:embed knowledge/motor.yaml
var defaultKnowledge []byte

// KnowledgeBase is the validated, read-only symptom catalog and rule base.
// It is safe for concurrent use once constructed.
type KnowledgeBase struct {
	symptoms []domain.Symptom
	rules    []domain.DiagnosticRule
	byID     map[int]domain.Symptom
}

// knowledgeFile is the YAML document layout.
type knowledgeFile struct {
	Symptoms []domain.Symptom        `yaml:"symptoms"`
	Rules    []domain.DiagnosticRule `yaml:"rules"`
}

// NewKnowledgeBase validates the catalog and rules and returns an immutable
// knowledge base. Every violation found is reported.
func NewKnowledgeBase(symptoms []domain.Symptom, rules []domain.DiagnosticRule) (*KnowledgeBase, error) {
	var errs []error

	if len(symptoms) == 0 {
		errs = append(errs, errors.New("symptom catalog is empty"))
	}

	byID := make(map[int]domain.Symptom, len(symptoms))
	for _, s := range symptoms {
		if s.ID <= 0 {
			errs = append(errs, fmt.Errorf("symptom %d: id must be positive", s.ID))
			continue
		}
		if _, dup := byID[s.ID]; dup {
			errs = append(errs, fmt.Errorf("symptom %d: duplicate id", s.ID))
			continue
		}
		if s.CFExpert < 0 || s.CFExpert > 1 {
			errs = append(errs, fmt.Errorf("symptom %d: cfExpert %.3f outside [0,1]", s.ID, s.CFExpert))
		}
		byID[s.ID] = s
	}

	ruleIDs := make(map[string]bool, len(rules))
	for i, r := range rules {
		name := r.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
			errs = append(errs, fmt.Errorf("rule %s: id is required", name))
		} else if ruleIDs[r.ID] {
			errs = append(errs, fmt.Errorf("rule %s: duplicate id", name))
		}
		ruleIDs[r.ID] = true

		if r.Operator != domain.OperatorAnd && r.Operator != domain.OperatorOr {
			errs = append(errs, fmt.Errorf("rule %s: unknown operator %q", name, r.Operator))
		}
		if !r.Level.Valid() {
			errs = append(errs, fmt.Errorf("rule %s: unknown level %q", name, r.Level))
		}
		if len(r.Symptoms) == 0 {
			errs = append(errs, fmt.Errorf("rule %s: no symptoms", name))
		}
		for _, id := range r.Symptoms {
			if _, ok := byID[id]; !ok {
				errs = append(errs, fmt.Errorf("rule %s: references unknown symptom %d", name, id))
			}
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKnowledgeBase, errors.Join(errs...))
	}

	kb := &KnowledgeBase{
		symptoms: make([]domain.Symptom, len(symptoms)),
		rules:    make([]domain.DiagnosticRule, len(rules)),
		byID:     byID,
	}
	copy(kb.symptoms, symptoms)
	for i, r := range rules {
		r.Symptoms = append([]int(nil), r.Symptoms...)
		kb.rules[i] = r
	}
	return kb, nil
}

// ParseKnowledgeBase decodes a YAML knowledge base and validates it.
func ParseKnowledgeBase(data []byte) (*KnowledgeBase, error) {
	var f knowledgeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %w", ErrInvalidKnowledgeBase, err)
	}
	return NewKnowledgeBase(f.Symptoms, f.Rules)
}

// LoadKnowledgeBase reads a YAML knowledge base from path.
func LoadKnowledgeBase(path string) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	return ParseKnowledgeBase(data)
}

// DefaultKnowledgeBase returns the embedded motor knowledge base.
func DefaultKnowledgeBase() (*KnowledgeBase, error) {
	return ParseKnowledgeBase(defaultKnowledge)
}

// Symptoms returns a copy of the symptom catalog in declaration order.
func (kb *KnowledgeBase) Symptoms() []domain.Symptom {
	out := make([]domain.Symptom, len(kb.symptoms))
	copy(out, kb.symptoms)
	return out
}

// Rules returns a copy of the rule base in declaration order.
func (kb *KnowledgeBase) Rules() []domain.DiagnosticRule {
	out := make([]domain.DiagnosticRule, len(kb.rules))
	for i, r := range kb.rules {
		r.Symptoms = append([]int(nil), r.Symptoms...)
		out[i] = r
	}
	return out
}

// Symptom looks up a catalog entry by ID.
func (kb *KnowledgeBase) Symptom(id int) (domain.Symptom, bool) {
	s, ok := kb.byID[id]
	return s, ok
}
