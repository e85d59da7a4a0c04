package billing

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// ReasonInsufficientFunds is the only denial reason the gate emits today.
	// A denial is an ordinary outcome, not an error.
	ReasonInsufficientFunds = "insufficient_funds"
)

// Decision is the outcome of an authorization attempt. When Authorized is
// true the debit and the ledger append have both committed and RecordID
// points at the new usage record. When false, nothing was mutated and
// Shortfall says how far the balance fell short of Required.
type Decision struct {
	Authorized bool            `json:"authorized"`
	Reason     string          `json:"reason,omitempty"`
	RecordID   uuid.UUID       `json:"record_id"`
	Required   decimal.Decimal `json:"required"`
	Shortfall  decimal.Decimal `json:"shortfall"`
	Balance    decimal.Decimal `json:"balance"`
}
