// Package selector implements the pricing rule selection algorithm:
// temporal filtering, wildcard-aware attribute matching, specificity
// ranking, candidate enumeration, and currency fallback.
package selector

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/schedule"
)

// Selector resolves a charge query to a single rule or a candidate set.
type Selector struct {
	store *schedule.Store
}

// New creates a selector over the given schedule store.
func New(store *schedule.Store) *Selector {
	return &Selector{store: store}
}

// Select finds the best-matching rule for the query.
//
// The ordering among matching rules is a total order: specificity
// descending, then priority descending, then value descending, then rule
// ID ascending. It never depends on storage iteration order.
func (s *Selector) Select(ctx context.Context, q *domain.SelectQuery) *domain.SelectResult {
	loaded := s.store.RulesFor(q.ChargeID)

	// Temporal validity and guard filtering.
	var active []*schedule.LoadedRule
	for _, lr := range loaded {
		if !lr.Rule.ActiveAt(q.AsOf) {
			continue
		}
		if !lr.GuardAllows(q.Inputs) {
			continue
		}
		active = append(active, lr)
	}

	// Attribute compatibility: a rule survives a dimension when its value
	// equals the supplied value or is the wildcard. Omitted dimensions do
	// not filter; they feed candidate enumeration below.
	var survivors []*domain.PricingRule
	for _, lr := range active {
		if matchesAttrs(lr.Rule, q.Attrs) {
			survivors = append(survivors, lr.Rule)
		}
	}

	if len(survivors) == 0 {
		return &domain.SelectResult{Outcome: domain.SelectNotFound}
	}

	sortRules(survivors)

	// Candidate enumeration over the most specific omitted dimension with
	// more than one distinct concrete value. A single distinct value
	// auto-resolves; all-wildcard dimensions need no disambiguation.
	if dim, opts := s.enumerate(survivors, q.Attrs); len(opts) > 1 {
		return &domain.SelectResult{
			Outcome:    domain.SelectCandidates,
			Dimension:  dim,
			Candidates: opts,
		}
	}

	// Rules tied after specificity + priority. More than one is a data
	// error, never an arbitrary pick — unless the tie is currency-variant
	// rows of the same tariff line, which the currency step resolves.
	top := survivors[0]
	var tied []*domain.PricingRule
	for _, r := range survivors {
		if r.Specificity() == top.Specificity() && r.Priority == top.Priority {
			tied = append(tied, r)
		}
	}

	if len(tied) > 1 && !currencyVariants(tied) {
		slog.Error("ambiguous pricing rules: equally specific, equally prioritized",
			"charge_id", q.ChargeID,
			"rule_a", tied[0].ID,
			"rule_b", tied[1].ID,
		)
		return &domain.SelectResult{Outcome: domain.SelectAmbiguous}
	}

	winner := top

	// Currency fallback: look for a rule identical in every attribute but
	// priced in the requested currency. Never convert.
	if q.Currency != "" && domain.IsCurrency(winner.Unit) && !strings.EqualFold(winner.Unit, q.Currency) {
		alt := findCurrencyAlternative(survivors, winner, q.Currency)
		if alt == nil {
			return &domain.SelectResult{
				Outcome:      domain.SelectCurrencyMismatch,
				HaveCurrency: winner.Unit,
			}
		}
		winner = alt
	}

	return &domain.SelectResult{Outcome: domain.SelectSingle, Rule: winner}
}

// currencyVariants reports whether the tied rules are the same tariff line
// priced in different currencies.
func currencyVariants(tied []*domain.PricingRule) bool {
	first := tied[0]
	if !domain.IsCurrency(first.Unit) {
		return false
	}
	units := map[string]bool{first.Unit: true}
	for _, r := range tied[1:] {
		if !domain.IsCurrency(r.Unit) || !sameAttributes(r, first) {
			return false
		}
		units[r.Unit] = true
	}
	return len(units) == len(tied)
}

// matchesAttrs checks compatibility on every dimension the caller supplied.
func matchesAttrs(rule *domain.PricingRule, attrs map[string]string) bool {
	for _, a := range rule.Attributes {
		supplied, ok := attrs[a.Name]
		if !ok || supplied == "" {
			continue
		}
		if a.Value != domain.Wildcard && !strings.EqualFold(a.Value, supplied) {
			return false
		}
	}
	return true
}

// enumerate finds the most specific dimension the caller omitted and
// returns the distinct concrete values of that dimension among survivors,
// in rank order. Survivors must already be sorted.
func (s *Selector) enumerate(survivors []*domain.PricingRule, attrs map[string]string) (string, []domain.Option) {
	// All rules of a charge share one dimension tuple; take the order from
	// the widest surviving tuple.
	var dims []string
	for _, r := range survivors {
		if len(r.Attributes) > len(dims) {
			dims = dims[:0]
			for _, a := range r.Attributes {
				dims = append(dims, a.Name)
			}
		}
	}

	// Walk dimensions most specific first.
	for i := len(dims) - 1; i >= 0; i-- {
		name := dims[i]
		if v, ok := attrs[name]; ok && v != "" {
			continue
		}

		seen := make(map[string]bool)
		var opts []domain.Option
		for _, r := range survivors {
			v, ok := r.AttributeValue(name)
			if !ok || v == domain.Wildcard {
				continue
			}
			key := strings.ToUpper(v)
			if seen[key] {
				continue
			}
			seen[key] = true
			opts = append(opts, domain.Option{
				Value:    v,
				Label:    v,
				ChargeID: r.ChargeID,
				Priority: r.Priority,
			})
		}

		if len(opts) > 1 {
			return name, opts
		}
	}

	return "", nil
}

// sortRules orders rules by the deterministic total order.
func sortRules(rules []*domain.PricingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if sa, sb := a.Specificity(), b.Specificity(); sa != sb {
			return sa > sb
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if c := a.Value.Cmp(b.Value); c != 0 {
			return c > 0
		}
		return a.ID < b.ID
	})
}

// findCurrencyAlternative searches for a rule matching the winner on every
// attribute but priced in the wanted currency.
func findCurrencyAlternative(survivors []*domain.PricingRule, winner *domain.PricingRule, currency string) *domain.PricingRule {
	for _, r := range survivors {
		if r.ID == winner.ID {
			continue
		}
		if !strings.EqualFold(r.Unit, currency) {
			continue
		}
		if sameAttributes(r, winner) {
			return r
		}
	}
	return nil
}

func sameAttributes(a, b *domain.PricingRule) bool {
	if len(a.Attributes) != len(b.Attributes) {
		return false
	}
	for i := range a.Attributes {
		if a.Attributes[i].Name != b.Attributes[i].Name {
			return false
		}
		if !strings.EqualFold(a.Attributes[i].Value, b.Attributes[i].Value) {
			return false
		}
	}
	return true
}
