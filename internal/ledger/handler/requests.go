package handler

import (
	"encoding/json"
	"strings"

	"rmr/internal/ledger/models"
	dErrors "rmr/pkg/domain-errors"
)

// IngestRequest is the body of POST /ledger/payments. Amount may be sent as
// a JSON number or a decimal string; it is never parsed as a float.
type IngestRequest struct {
	Email         string          `json:"email"`
	Amount        json.RawMessage `json:"amount"`
	EffectiveDate string          `json:"effective_date"`
	Source        string          `json:"source"`

	amount string
}

func (r *IngestRequest) Validate() error {
	raw := strings.TrimSpace(string(r.Amount))
	if raw == "" || raw == "null" {
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(r.Amount, &s); err != nil {
			return dErrors.New(dErrors.CodeValidation, "amount must be a number or numeric string")
		}
		raw = s
	}
	r.amount = raw
	return nil
}

func (r *IngestRequest) Command() models.IngestCommand {
	return models.IngestCommand{
		Email:         r.Email,
		Amount:        r.amount,
		EffectiveDate: r.EffectiveDate,
		Source:        r.Source,
	}
}
