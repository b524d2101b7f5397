package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResolvedQuery is the output of the external NLP classifier. This engine
// trusts it as-is; free-text understanding happens upstream.
type ResolvedQuery struct {
	ChargeID    string            `json:"chargeId"`
	ProductLine string            `json:"productLine,omitempty"`
	Attributes  map[string]string `json:"attrs,omitempty"`

	// Requested answer currency. Empty means any.
	Currency string `json:"currency,omitempty"`

	// Optional runtime inputs extracted from the user's message.
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	UsageIndex  int              `json:"usageIndex,omitempty"` // 1-based, 0 = unknown
	Outstanding *decimal.Decimal `json:"outstandingBalance,omitempty"`

	// CustomerID lets the usage service derive a missing usageIndex.
	CustomerID string `json:"customerId,omitempty"`
}

// RuntimeInputs carries the values condition evaluation may need. It is
// persisted inside disambiguation sessions so a reply turn answers with
// the numbers the original turn supplied.
type RuntimeInputs struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	UsageIndex  int              `json:"usageIndex,omitempty"` // 1-based ordinal of this use, 0 = unknown
	Outstanding *decimal.Decimal `json:"outstandingBalance,omitempty"`
}

// Inputs extracts the runtime inputs from a resolved query.
func (q *ResolvedQuery) Inputs() *RuntimeInputs {
	return &RuntimeInputs{
		Amount:      q.Amount,
		UsageIndex:  q.UsageIndex,
		Outstanding: q.Outstanding,
	}
}

// SelectQuery is the input to the rule selector.
type SelectQuery struct {
	ChargeID string
	AsOf     time.Time
	Attrs    map[string]string
	Currency string

	// Inputs gate rules carrying guard expressions. Optional.
	Inputs *RuntimeInputs
}
