package streaming

import (
	"encoding/json"
	"errors"
	"fmt"

	"fraudpulse/internal/domain"
)

var ErrMalformed = errors.New("malformed transaction payload")

// DecodeTransaction parses one pushed transaction. The id must be present and the
// categorical fields must hold known values.
func DecodeTransaction(payload []byte) (domain.ScoredTransaction, error) {
	var raw struct {
		domain.ScoredTransaction
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return domain.ScoredTransaction{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.ID == nil {
		return domain.ScoredTransaction{}, fmt.Errorf("%w: id is missing", ErrMalformed)
	}
	tx := raw.ScoredTransaction
	tx.ID = *raw.ID
	if err := Validate(tx); err != nil {
		return domain.ScoredTransaction{}, err
	}
	return tx, nil
}

// EncodeTransaction is the inverse of DecodeTransaction, used by the mirror stream.
func EncodeTransaction(tx domain.ScoredTransaction) ([]byte, error) {
	if err := Validate(tx); err != nil {
		return nil, err
	}
	return json.Marshal(tx)
}

func Validate(tx domain.ScoredTransaction) error {
	if tx.ID < 0 {
		return fmt.Errorf("%w: negative id %d", ErrMalformed, tx.ID)
	}
	if !tx.RiskLevel.Valid() {
		return fmt.Errorf("%w: unknown risk_level %q", ErrMalformed, tx.RiskLevel)
	}
	if tx.Recommendation != "" && !tx.Recommendation.Valid() {
		return fmt.Errorf("%w: unknown recommendation %q", ErrMalformed, tx.Recommendation)
	}
	return nil
}
