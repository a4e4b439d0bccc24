package chat

import "strings"

// RiskLevel is the crisis classifier verdict.
type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskMedium RiskLevel = "medium"
	RiskCrisis RiskLevel = "crisis"
)

// ParseRiskLevel normalizes a free-form level. Unknown values map to RiskNone.
func ParseRiskLevel(raw string) (RiskLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none", "low", "":
		return RiskNone, true
	case "medium", "moderate":
		return RiskMedium, true
	case "crisis", "high", "severe":
		return RiskCrisis, true
	default:
		return RiskNone, false
	}
}

// Rank orders levels by severity.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskCrisis:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// CrisisInfo is the raw crisis capture stored on a user message.
type CrisisInfo struct {
	IsCrisis     bool      `json:"is_crisis"`
	RiskLevel    RiskLevel `json:"risk_level,omitempty"`
	MatchedTerms []string  `json:"matched_terms,omitempty"`
}

// Clone returns an independent copy.
func (c CrisisInfo) Clone() CrisisInfo {
	out := c
	if c.MatchedTerms != nil {
		out.MatchedTerms = append([]string(nil), c.MatchedTerms...)
	}
	return out
}
