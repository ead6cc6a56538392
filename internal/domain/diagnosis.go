package domain

import (
	"time"
)

// Symptom is a diagnosable symptom asked about in the questionnaire.
type Symptom struct {
	ID       int     `json:"id" yaml:"id"`
	Code     string  `json:"code" yaml:"code"`
	Question string  `json:"question" yaml:"question"`
	CFExpert float64 `json:"cfExpert" yaml:"cfExpert"` // expert certainty, 0.0-1.0
}

// FuzzyLevel is the operator's linguistic answer to a symptom question.
type FuzzyLevel string

const (
	FuzzyNo     FuzzyLevel = "No"
	FuzzyRarely FuzzyLevel = "Rarely"
	FuzzyYes    FuzzyLevel = "Yes"
)

// Operator combines the symptoms of a diagnostic rule.
type Operator string

const (
	// OperatorAnd requires every symptom; confidence is the weakest evidence.
	OperatorAnd Operator = "AND"

	// OperatorOr requires any symptom; confidence is the strongest evidence.
	OperatorOr Operator = "OR"
)

// DamageLevel is the severity category of a diagnosed fault.
type DamageLevel string

const (
	DamageLight    DamageLevel = "A"
	DamageModerate DamageLevel = "B"
	DamageSevere   DamageLevel = "C"
)

// Rank orders damage levels for result ranking (C=3, B=2, A=1).
func (l DamageLevel) Rank() int {
	switch l {
	case DamageSevere:
		return 3
	case DamageModerate:
		return 2
	case DamageLight:
		return 1
	default:
		return 0
	}
}

// Valid reports whether l is one of the known damage levels.
func (l DamageLevel) Valid() bool {
	return l.Rank() > 0
}

// DiagnosticRule is one entry of the expert rule base.
type DiagnosticRule struct {
	ID       string      `json:"id" yaml:"id"`
	Symptoms []int       `json:"symptoms" yaml:"symptoms"`
	Operator Operator    `json:"operator" yaml:"operator"`
	Level    DamageLevel `json:"level" yaml:"level"`
	Damage   string      `json:"damage" yaml:"damage"`
	Solution string      `json:"solution" yaml:"solution"`
}

// DiagnosisResult is one ranked conclusion of the diagnosis engine.
type DiagnosisResult struct {
	RuleID     string      `json:"ruleId"`
	Operator   Operator    `json:"operator"`
	Symptoms   []int       `json:"symptoms"`
	Level      DamageLevel `json:"level"`
	Damage     string      `json:"damage"`
	Solution   string      `json:"solution"`
	Confidence float64     `json:"confidence"` // 0.0-1.0, 3 decimals
	Certainty  FuzzyLevel  `json:"certainty"`
}

// Diagnosis is a persisted questionnaire run.
type Diagnosis struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenantId"`
	MotorID   string             `json:"motorId,omitempty"`
	Answers   map[int]FuzzyLevel `json:"answers"`
	Results   []DiagnosisResult  `json:"results"`
	Timestamp time.Time          `json:"timestamp"`
}
