package domain

import (
	"github.com/shopspring/decimal"
)

// SelectOutcome tags the result of a rule selection.
type SelectOutcome string

const (
	// SelectSingle means exactly one rule won.
	SelectSingle SelectOutcome = "SINGLE"

	// SelectCandidates means the query was under-specified and the caller
	// must disambiguate among the options.
	SelectCandidates SelectOutcome = "CANDIDATES"

	// SelectNotFound means no rule matched at all.
	SelectNotFound SelectOutcome = "NOT_FOUND"

	// SelectCurrencyMismatch means the only matching rules are priced in a
	// different currency. Values are never converted.
	SelectCurrencyMismatch SelectOutcome = "CURRENCY_MISMATCH"

	// SelectAmbiguous means more than one equally specific, equally
	// prioritized rule survived. This is a data-integrity defect.
	SelectAmbiguous SelectOutcome = "AMBIGUOUS"
)

// Option is one disambiguation candidate: a distinct concrete value of the
// unresolved dimension, carrying enough context to re-invoke Select.
type Option struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	ChargeID string `json:"chargeId"`
	Priority int    `json:"priority"`
}

// SelectResult is the tagged result of Select.
type SelectResult struct {
	Outcome SelectOutcome `json:"outcome"`

	// Rule is set when Outcome == SelectSingle.
	Rule *PricingRule `json:"rule,omitempty"`

	// Dimension and Candidates are set when Outcome == SelectCandidates.
	Dimension  string   `json:"dimension,omitempty"`
	Candidates []Option `json:"candidates,omitempty"`

	// HaveCurrency is set when Outcome == SelectCurrencyMismatch.
	HaveCurrency string `json:"haveCurrency,omitempty"`
}

// Answer is the final, non-hallucinated answer for a charge query.
type Answer struct {
	ChargeID string `json:"chargeId"`
	RuleID   string `json:"ruleId"`

	// Value is nil for text-only answers (tiered schedules, bare rates).
	Value    *decimal.Decimal `json:"value,omitempty"`
	Currency string           `json:"currency,omitempty"`
	Basis    string           `json:"basis,omitempty"`

	// Text is the user-presentable answer string.
	Text string `json:"text"`

	// Components carries the audit breakdown (e.g. both sides of a
	// whichever-is-higher comparison).
	Components []string `json:"components,omitempty"`

	// Authoritative marks a pre-approved verbatim answer.
	Authoritative bool `json:"authoritative,omitempty"`
}
