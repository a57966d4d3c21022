package domain

// ConnectionState is the live transport currently delivering new transactions.
type ConnectionState string

const (
	ConnectionConnecting ConnectionState = "connecting"
	ConnectionPush       ConnectionState = "ws"
	ConnectionPoll       ConnectionState = "poll"
)

// PollBatch is the response of the "transactions since id" endpoint.
type PollBatch struct {
	Transactions []ScoredTransaction `json:"transactions"`
	LatestID     int64               `json:"latest_id"`
}

// TransactionPage is one page of backend history.
type TransactionPage struct {
	Transactions []HistoricalTransaction `json:"transactions"`
	Page         int                     `json:"page"`
	Limit        int                     `json:"limit"`
	Total        int                     `json:"total"`
}

// BackendHealth is the backend readiness report.
type BackendHealth struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
	DataLoaded   bool   `json:"data_loaded"`
}
