package domain

// ScoredTransaction is a transaction scored by the backend and delivered over the live feed.
// It is never mutated after it has been received.
type ScoredTransaction struct {
	ID                 int64          `json:"id"`
	DFIdx              int64          `json:"df_idx"`
	Time               float64        `json:"time"`
	Amount             float64        `json:"amount"`
	IsFraud            int            `json:"is_fraud"`
	RiskLevel          RiskLevel      `json:"risk_level"`
	CombinedConfidence float64        `json:"combined_confidence"`
	Recommendation     Recommendation `json:"recommendation"`
	IFLabel            string         `json:"if_label"`
	AELabel            string         `json:"ae_label"`
}

// Flagged reports whether the scoring pipeline put the transaction in a flagged risk bucket.
func (t ScoredTransaction) Flagged() bool {
	return t.RiskLevel.Flagged()
}

// HistoricalTransaction is a row of the paginated backend history.
type HistoricalTransaction struct {
	ID                    int64          `json:"id"`
	Time                  float64        `json:"time"`
	Amount                float64        `json:"amount"`
	IsFraud               int            `json:"is_fraud"`
	IFScore               float64        `json:"if_score"`
	IFLabel               string         `json:"if_label"`
	AEReconstructionError float64        `json:"ae_reconstruction_error"`
	AELabel               string         `json:"ae_label"`
	CombinedConfidence    float64        `json:"combined_confidence"`
	RiskLevel             RiskLevel      `json:"risk_level"`
	Recommendation        Recommendation `json:"recommendation"`
}
