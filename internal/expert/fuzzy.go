package expert

import "github.com/mechasense/mechasense/internal/domain"

// LevelToValue maps a linguistic answer to its certainty value.
// Unrecognized levels count as "No".
func LevelToValue(level domain.FuzzyLevel) float64 {
	switch level {
	case domain.FuzzyYes:
		return 1.0
	case domain.FuzzyRarely:
		return 0.5
	default:
		return 0.0
	}
}

// ValueToLevel maps a certainty value back to the nearest linguistic label.
// The bands are asymmetric: below 0.2 is No, below 0.6 is Rarely.
func ValueToLevel(value float64) domain.FuzzyLevel {
	switch {
	case value < 0.2:
		return domain.FuzzyNo
	case value < 0.6:
		return domain.FuzzyRarely
	default:
		return domain.FuzzyYes
	}
}

// ClampCF saturates a certainty factor into [0, 1].
func ClampCF(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

// ValidLevel reports whether level is one of the three known answers.
func ValidLevel(level domain.FuzzyLevel) bool {
	switch level {
	case domain.FuzzyNo, domain.FuzzyRarely, domain.FuzzyYes:
		return true
	}
	return false
}
