package models

import (
	"fmt"
	"strings"
)

// RiskLevel is the coarse severity attached to audit entries.
// Ordering (lowest to highest): low < medium < high < critical.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// ParseRiskLevel accepts any casing; the empty string maps to low.
func ParseRiskLevel(s string) (RiskLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RiskLow, nil
	}
	lvl := RiskLevel(s)
	if _, ok := riskRank[lvl]; !ok {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return lvl, nil
}

// Valid reports whether r is one of the four known levels.
func (r RiskLevel) Valid() bool {
	_, ok := riskRank[r]
	return ok
}

// Rank returns 0 for unknown levels.
func (r RiskLevel) Rank() int { return riskRank[r] }

// IsAnomaly is true for high and critical.
func (r RiskLevel) IsAnomaly() bool { return r.Rank() >= riskRank[RiskHigh] }

// AtLeast reports whether r is the same as or more severe than other.
func (r RiskLevel) AtLeast(other RiskLevel) bool { return r.Rank() >= other.Rank() }

// MaxRisk returns the most severe of the given levels, or low when none are known.
func MaxRisk(levels ...RiskLevel) RiskLevel {
	max := RiskLow
	for _, l := range levels {
		if l.Rank() > max.Rank() {
			max = l
		}
	}
	return max
}
