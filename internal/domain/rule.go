package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wildcard is the attribute value that matches any concrete value.
const Wildcard = "ANY"

// Rule status values.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// ConditionType selects the computation policy applied to a rule.
type ConditionType string

const (
	ConditionNone            ConditionType = "NONE"
	ConditionWhicheverHigher ConditionType = "WHICHEVER_HIGHER"
	ConditionFreeUptoN       ConditionType = "FREE_UPTO_N"
	ConditionNoteBased       ConditionType = "NOTE_BASED"
	ConditionTiered          ConditionType = "TIERED"
)

// Charging basis values.
const (
	BasisPerTxn        = "PER_TXN"
	BasisPerYear       = "PER_YEAR"
	BasisPerMonth      = "PER_MONTH"
	BasisOnOutstanding = "ON_OUTSTANDING"
	BasisFlat          = "FLAT"
)

// Non-currency units.
const (
	UnitPercent = "PERCENT"
	UnitCount   = "COUNT"
)

// Attribute is one product dimension of a rule, ordered least to most
// specific. Value is either a concrete value or Wildcard.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Tier is one threshold band of a TIERED rule.
type Tier struct {
	// Threshold is the upper bound of the band. Zero on the last tier
	// means open-ended.
	Threshold decimal.Decimal  `json:"threshold"`
	Rate      decimal.Decimal  `json:"rate"`
	MaxFee    *decimal.Decimal `json:"maxFee,omitempty"`
}

// PricingRule is a single row of the schedule of charges.
type PricingRule struct {
	ID       string `json:"id"`
	ChargeID string `json:"chargeId"`

	// Nil means open-ended on that side.
	EffectiveFrom *time.Time `json:"effectiveFrom,omitempty"`
	EffectiveTo   *time.Time `json:"effectiveTo,omitempty"`

	Attributes []Attribute `json:"attributes"`

	Value decimal.Decimal `json:"value"`
	Unit  string          `json:"unit"`  // ISO currency code, PERCENT, COUNT, or free text
	Basis string          `json:"basis"` // PER_TXN, PER_YEAR, ON_OUTSTANDING, ...

	Condition ConditionType `json:"conditionType"`

	// Condition-specific fields.
	MinValue             *decimal.Decimal `json:"minValue,omitempty"` // WHICHEVER_HIGHER floor
	MinUnit              string           `json:"minUnit,omitempty"`
	FreeEntitlementCount int              `json:"freeEntitlementCount,omitempty"` // FREE_UPTO_N
	NoteReference        string           `json:"noteReference,omitempty"`        // NOTE_BASED
	Tiers                []Tier           `json:"tiers,omitempty"`                // TIERED

	// GuardExpression is an optional CEL expression over amount,
	// usage_index, and outstanding that gates amount-scoped rows.
	// Empty means always applicable.
	GuardExpression string `json:"guardExpression,omitempty"`

	Priority int    `json:"priority"`
	Status   string `json:"status"`

	// AuthoritativeText, when set, is returned verbatim instead of any
	// computed answer string.
	AuthoritativeText string `json:"authoritativeAnswerText,omitempty"`
}

// AttributeValue returns the rule's value for the named dimension.
func (r *PricingRule) AttributeValue(name string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Specificity is the count of non-wildcard dimensions.
func (r *PricingRule) Specificity() int {
	n := 0
	for _, a := range r.Attributes {
		if a.Value != Wildcard {
			n++
		}
	}
	return n
}

// ActiveAt reports whether the rule's date range contains t.
// Inclusive on effectiveFrom, exclusive on effectiveTo.
func (r *PricingRule) ActiveAt(t time.Time) bool {
	if r.Status != StatusActive {
		return false
	}
	if r.EffectiveFrom != nil && t.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !t.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// IsCurrency reports whether unit looks like an ISO 4217 currency code.
func IsCurrency(unit string) bool {
	if len(unit) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if unit[i] < 'A' || unit[i] > 'Z' {
			return false
		}
	}
	return true
}
