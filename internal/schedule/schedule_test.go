package schedule

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
)

func testRule(id, chargeID string) *domain.PricingRule {
	return &domain.PricingRule{
		ID:       id,
		ChargeID: chargeID,
		Value:    decimal.NewFromInt(500),
		Unit:     "BDT",
		Status:   domain.StatusActive,
	}
}

func TestLoadAndRetrieve(t *testing.T) {
	store, err := New()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	rules := []*domain.PricingRule{
		testRule("r-2", "card.annual"),
		testRule("r-1", "card.annual"),
		testRule("r-3", "locker.fee"),
	}
	if err := store.Load(rules); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	t.Run("Count", func(t *testing.T) {
		if store.Count() != 3 {
			t.Errorf("expected 3 rules, got %d", store.Count())
		}
	})

	t.Run("RulesForChargeSortedByID", func(t *testing.T) {
		loaded := store.RulesFor("card.annual")
		if len(loaded) != 2 {
			t.Fatalf("expected 2 rules, got %d", len(loaded))
		}
		if loaded[0].Rule.ID != "r-1" || loaded[1].Rule.ID != "r-2" {
			t.Errorf("rules not sorted by ID: %s, %s", loaded[0].Rule.ID, loaded[1].Rule.ID)
		}
	})

	t.Run("UnknownCharge", func(t *testing.T) {
		if loaded := store.RulesFor("no.such.charge"); len(loaded) != 0 {
			t.Errorf("expected no rules, got %d", len(loaded))
		}
	})
}

func TestReloadReplacesAtomically(t *testing.T) {
	store, err := New()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := store.Load([]*domain.PricingRule{testRule("r-1", "card.annual")}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := store.Reload([]*domain.PricingRule{testRule("r-9", "locker.fee")}); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if len(store.RulesFor("card.annual")) != 0 {
		t.Error("old rules survived reload")
	}
	if len(store.RulesFor("locker.fee")) != 1 {
		t.Error("new rules missing after reload")
	}
}

func TestGuardCompilation(t *testing.T) {
	store, err := New()
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	t.Run("InvalidExpressionRejected", func(t *testing.T) {
		rule := testRule("r-bad", "rtgs.fee")
		rule.GuardExpression = "amount <<< 100"

		if err := store.Load([]*domain.PricingRule{rule}); err == nil {
			t.Error("expected compile error")
		}
	})

	t.Run("NonBoolRejected", func(t *testing.T) {
		rule := testRule("r-bad", "rtgs.fee")
		rule.GuardExpression = "amount + 1.0"

		if err := store.ValidateRule(rule); err == nil {
			t.Error("expected non-bool guard to be rejected")
		}
	})

	t.Run("ValidGuardEvaluates", func(t *testing.T) {
		rule := testRule("r-ok", "rtgs.fee")
		rule.GuardExpression = "amount >= 100000.0 && usage_index < 5"

		if err := store.Load([]*domain.PricingRule{rule}); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		loaded := store.RulesFor("rtgs.fee")[0]

		amount := decimal.NewFromInt(200000)
		if !loaded.GuardAllows(&domain.RuntimeInputs{Amount: &amount, UsageIndex: 2}) {
			t.Error("expected guard to pass")
		}

		small := decimal.NewFromInt(50)
		if loaded.GuardAllows(&domain.RuntimeInputs{Amount: &small}) {
			t.Error("expected guard to fail for small amount")
		}
	})

	t.Run("MissingInputsActivateAsZero", func(t *testing.T) {
		rule := testRule("r-zero", "npsb.fee")
		rule.GuardExpression = "amount < 100.0"

		if err := store.Load([]*domain.PricingRule{rule}); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		loaded := store.RulesFor("npsb.fee")[0]
		if !loaded.GuardAllows(nil) {
			t.Error("expected nil inputs to evaluate with zero defaults")
		}
	})
}
