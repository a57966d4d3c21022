package domain

// DerivedStats are the aggregate counters shown above the feed.
type DerivedStats struct {
	TotalTransactions   int               `json:"total_transactions"`
	FlaggedTransactions int               `json:"flagged_transactions"`
	FraudRate           float64           `json:"fraud_rate"`
	ModelAccuracy       float64           `json:"model_accuracy"`
	BlockedAmount       float64           `json:"blocked_amount"`
	AvgRiskScore        float64           `json:"avg_risk_score"`
	RiskDistribution    map[RiskLevel]int `json:"risk_distribution,omitempty"`
}
