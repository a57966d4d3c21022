package domain

// RiskLevel is the categorical severity bucket assigned by the scoring pipeline.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskLevels lists every level from least to most severe.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Flagged is true for HIGH and CRITICAL.
func (r RiskLevel) Flagged() bool {
	return r == RiskHigh || r == RiskCritical
}

// Recommendation is the action suggested by the scoring pipeline.
type Recommendation string

const (
	RecommendAllow  Recommendation = "ALLOW"
	RecommendReview Recommendation = "REVIEW"
	RecommendBlock  Recommendation = "BLOCK"
)

func (r Recommendation) Valid() bool {
	switch r {
	case RecommendAllow, RecommendReview, RecommendBlock:
		return true
	}
	return false
}
