// Package evaluator turns a selected pricing rule into a concrete,
// user-presentable answer. Every number it emits comes from the rule or
// from arithmetic over caller-supplied inputs, never from free text.
package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
)

// NoteResolver resolves schedule footnote references to their text.
type NoteResolver interface {
	GetNote(ctx context.Context, ref string) (string, error)
}

// ExternalNoteError signals a NOTE_BASED rule whose footnote text is
// missing. The caller surfaces "refer to schedule note N".
type ExternalNoteError struct {
	Reference string
}

func (e *ExternalNoteError) Error() string {
	return fmt.Sprintf("external note %s is unresolved", e.Reference)
}

// Evaluator computes answers from selected rules.
type Evaluator struct {
	notes NoteResolver
}

// New creates an evaluator. notes may be nil; NOTE_BASED rules then always
// report the unresolved reference.
func New(notes NoteResolver) *Evaluator {
	return &Evaluator{notes: notes}
}

var hundred = decimal.NewFromInt(100)

// Evaluate applies the rule's condition policy to the runtime inputs.
func (e *Evaluator) Evaluate(ctx context.Context, rule *domain.PricingRule, in *domain.RuntimeInputs) (*domain.Answer, error) {
	if in == nil {
		in = &domain.RuntimeInputs{}
	}

	ans := &domain.Answer{
		ChargeID: rule.ChargeID,
		RuleID:   rule.ID,
		Basis:    rule.Basis,
	}
	if domain.IsCurrency(rule.Unit) {
		ans.Currency = rule.Unit
	}

	// Pre-approved wording always wins over computed strings.
	if rule.AuthoritativeText != "" {
		ans.Text = rule.AuthoritativeText
		ans.Authoritative = true
		if domain.IsCurrency(rule.Unit) {
			v := rule.Value
			ans.Value = &v
		}
		return ans, nil
	}

	switch rule.Condition {
	case domain.ConditionWhicheverHigher:
		return e.whicheverHigher(rule, in, ans)
	case domain.ConditionFreeUptoN:
		return e.freeUptoN(rule, in, ans)
	case domain.ConditionNoteBased:
		return e.noteBased(ctx, rule, ans)
	case domain.ConditionTiered:
		return e.tiered(rule, ans)
	default:
		return e.plain(rule, in, ans)
	}
}

// plain handles NONE rules, including percentage rates on outstanding
// balance where the balance may be absent.
func (e *Evaluator) plain(rule *domain.PricingRule, in *domain.RuntimeInputs, ans *domain.Answer) (*domain.Answer, error) {
	if rule.Unit == domain.UnitPercent && rule.Basis == domain.BasisOnOutstanding {
		rate := formatPercent(rule.Value)
		if in.Outstanding == nil {
			// A rate is a valid answer even without a principal.
			ans.Text = fmt.Sprintf("%s on outstanding balance", rate)
			return ans, nil
		}

		fee := in.Outstanding.Mul(rule.Value).Div(hundred)
		cur := feeCurrency(rule)
		ans.Value = &fee
		ans.Currency = cur
		ans.Text = fmt.Sprintf("%s on outstanding balance (%s of %s = %s)",
			rate, rate, formatAmount(*in.Outstanding, cur), formatAmount(fee, cur))
		return ans, nil
	}

	if rule.Unit == domain.UnitPercent {
		ans.Text = joinClause(formatPercent(rule.Value), basisText(rule.Basis))
		return ans, nil
	}

	if domain.IsCurrency(rule.Unit) {
		v := rule.Value
		ans.Value = &v
		ans.Text = joinClause(formatAmount(rule.Value, rule.Unit), basisText(rule.Basis))
		return ans, nil
	}

	// COUNT or free-text unit.
	ans.Text = strings.TrimSpace(fmt.Sprintf("%s %s", formatDecimal(rule.Value), rule.Unit))
	return ans, nil
}

// whicheverHigher compares the percentage fee against the fixed floor and
// returns the greater, reporting both components for auditability.
func (e *Evaluator) whicheverHigher(rule *domain.PricingRule, in *domain.RuntimeInputs, ans *domain.Answer) (*domain.Answer, error) {
	cur := feeCurrency(rule)
	rate := formatPercent(rule.Value)

	var floor decimal.Decimal
	if rule.MinValue != nil {
		floor = *rule.MinValue
	}

	if in.Amount == nil {
		// Without an amount the schedule wording itself is the answer.
		ans.Text = fmt.Sprintf("%s or %s, whichever is higher",
			joinClause(rate, basisText(rule.Basis)), formatAmount(floor, cur))
		return ans, nil
	}

	pctFee := in.Amount.Mul(rule.Value).Div(hundred)
	fee := pctFee
	if floor.GreaterThan(pctFee) {
		fee = floor
	}

	ans.Value = &fee
	ans.Currency = cur
	ans.Components = []string{
		fmt.Sprintf("%s of %s = %s", rate, formatDecimal(*in.Amount), formatAmount(pctFee, cur)),
		fmt.Sprintf("minimum %s", formatAmount(floor, cur)),
	}
	ans.Text = fmt.Sprintf("%s (%s of %s, minimum %s)",
		joinClause(formatAmount(fee, cur), basisText(rule.Basis)),
		rate, formatDecimal(*in.Amount), formatAmount(floor, cur))
	return ans, nil
}

// freeUptoN answers zero within the entitlement and the paid value beyond
// it. Without a usage ordinal it describes the entitlement.
func (e *Evaluator) freeUptoN(rule *domain.PricingRule, in *domain.RuntimeInputs, ans *domain.Answer) (*domain.Answer, error) {
	count := rule.FreeEntitlementCount
	paid := joinClause(formatAmount(rule.Value, rule.Unit), basisText(rule.Basis))

	switch {
	case in.UsageIndex <= 0:
		ans.Text = fmt.Sprintf("Free for the first %d; %s thereafter", count, paid)

	case in.UsageIndex <= count:
		zero := decimal.Zero
		ans.Value = &zero
		ans.Text = fmt.Sprintf("Free (entitlement %d of %d)", in.UsageIndex, count)

	default:
		v := rule.Value
		ans.Value = &v
		ans.Components = []string{
			fmt.Sprintf("free entitlement of %d exhausted (this is use %d)", count, in.UsageIndex),
		}
		ans.Text = paid
	}
	return ans, nil
}

// noteBased resolves the rule's footnote text; an unresolvable reference
// is surfaced, never suppressed.
func (e *Evaluator) noteBased(ctx context.Context, rule *domain.PricingRule, ans *domain.Answer) (*domain.Answer, error) {
	if e.notes == nil {
		return nil, &ExternalNoteError{Reference: rule.NoteReference}
	}

	text, err := e.notes.GetNote(ctx, rule.NoteReference)
	if err != nil || text == "" {
		return nil, &ExternalNoteError{Reference: rule.NoteReference}
	}

	ans.Text = text
	return ans, nil
}

// tiered renders the two-clause threshold schedule. The true answer is
// range-dependent, so it never collapses to a single number.
func (e *Evaluator) tiered(rule *domain.PricingRule, ans *domain.Answer) (*domain.Answer, error) {
	if len(rule.Tiers) < 2 {
		return nil, fmt.Errorf("rule %s: tiered condition requires two tiers", rule.ID)
	}

	cur := feeCurrency(rule)
	t1, t2 := rule.Tiers[0], rule.Tiers[1]
	threshold := formatAmount(t1.Threshold, cur)

	clause1 := fmt.Sprintf("%s up to %s", formatPercent(t1.Rate), threshold)
	if t1.MaxFee != nil {
		clause1 += fmt.Sprintf(" (max %s)", formatAmount(*t1.MaxFee, cur))
	}
	clause2 := fmt.Sprintf("%s above %s", formatPercent(t2.Rate), threshold)
	if t2.MaxFee != nil {
		clause2 += fmt.Sprintf(" (max %s)", formatAmount(*t2.MaxFee, cur))
	}

	ans.Components = []string{clause1, clause2}
	ans.Text = clause1 + "; " + clause2
	return ans, nil
}

// feeCurrency picks the currency a computed fee is denominated in.
func feeCurrency(rule *domain.PricingRule) string {
	if domain.IsCurrency(rule.Unit) {
		return rule.Unit
	}
	if domain.IsCurrency(rule.MinUnit) {
		return rule.MinUnit
	}
	return ""
}

func joinClause(value, basis string) string {
	if basis == "" {
		return value
	}
	return value + " " + basis
}
