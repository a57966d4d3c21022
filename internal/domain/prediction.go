package domain

// Prediction holds the per-model scores for one backend row.
type Prediction struct {
	TransactionID         int64          `json:"transaction_id"`
	Amount                float64        `json:"amount"`
	IFScore               float64        `json:"if_score"`
	IFLabel               string         `json:"if_label"`
	AEReconstructionError float64        `json:"ae_reconstruction_error"`
	AELabel               string         `json:"ae_label"`
	CombinedConfidence    float64        `json:"combined_confidence"`
	RiskLevel             RiskLevel      `json:"risk_level"`
	Recommendation        Recommendation `json:"recommendation"`
}

// FeatureAttribution is the signed contribution of one feature to a score.
type FeatureAttribution struct {
	Feature   string  `json:"feature"`
	Value     float64 `json:"value"`
	ShapValue float64 `json:"shap_value"`
}

// Attribution is the ordered feature attribution list for one backend row.
type Attribution struct {
	TransactionID int64                `json:"transaction_id"`
	BaseValue     float64              `json:"base_value"`
	Prediction    float64              `json:"prediction"`
	Values        []FeatureAttribution `json:"shap_values"`
}
