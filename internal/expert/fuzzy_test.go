package expert

import (
	"testing"

	"github.com/mechasense/mechasense/internal/domain"
)

func TestLevelToValue(t *testing.T) {
	tests := []struct {
		level domain.FuzzyLevel
		want  float64
	}{
		{domain.FuzzyNo, 0.0},
		{domain.FuzzyRarely, 0.5},
		{domain.FuzzyYes, 1.0},
		{"", 0.0},
		{"yes", 0.0},
		{"Sometimes", 0.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			if got := LevelToValue(tt.level); got != tt.want {
				t.Errorf("LevelToValue(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestValueToLevel(t *testing.T) {
	tests := []struct {
		value float64
		want  domain.FuzzyLevel
	}{
		{-1.0, domain.FuzzyNo},
		{0.0, domain.FuzzyNo},
		{0.19, domain.FuzzyNo},
		{0.2, domain.FuzzyRarely},
		{0.5, domain.FuzzyRarely},
		{0.59, domain.FuzzyRarely},
		{0.6, domain.FuzzyYes},
		{1.0, domain.FuzzyYes},
		{2.5, domain.FuzzyYes},
	}

	for _, tt := range tests {
		if got := ValueToLevel(tt.value); got != tt.want {
			t.Errorf("ValueToLevel(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestClampCF(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
	}

	for _, tt := range tests {
		if got := ClampCF(tt.in); got != tt.want {
			t.Errorf("ClampCF(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRoundTripCanonicalValues(t *testing.T) {
	for _, level := range []domain.FuzzyLevel{domain.FuzzyNo, domain.FuzzyRarely, domain.FuzzyYes} {
		if got := ValueToLevel(LevelToValue(level)); got != level {
			t.Errorf("round trip of %q gave %q", level, got)
		}
	}
}
