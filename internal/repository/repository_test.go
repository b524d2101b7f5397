package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
)

func newTestRepo(t *testing.T) domain.RuleRepository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "tariff.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleRule(id string) *domain.PricingRule {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	minValue := decimal.RequireFromString("345")
	return &domain.PricingRule{
		ID:            id,
		ChargeID:      "cash.advance",
		EffectiveFrom: &from,
		Attributes: []domain.Attribute{
			{Name: "product_line", Value: "CARD"},
			{Name: "card_type", Value: domain.Wildcard},
		},
		Value:     decimal.RequireFromString("2.5"),
		Unit:      domain.UnitPercent,
		Basis:     domain.BasisPerTxn,
		Condition: domain.ConditionWhicheverHigher,
		MinValue:  &minValue,
		MinUnit:   "BDT",
		Priority:  1,
		Status:    domain.StatusActive,
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("SaveAndGetRule", func(t *testing.T) {
		rule := sampleRule("r-1")
		if err := repo.SaveRule(ctx, rule); err != nil {
			t.Fatalf("SaveRule failed: %v", err)
		}

		got, err := repo.GetRule(ctx, "r-1")
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}

		if got.ChargeID != "cash.advance" {
			t.Errorf("unexpected charge: %s", got.ChargeID)
		}
		if !got.Value.Equal(rule.Value) {
			t.Errorf("value lost precision: %s", got.Value)
		}
		if got.MinValue == nil || !got.MinValue.Equal(*rule.MinValue) {
			t.Errorf("min value mismatch: %v", got.MinValue)
		}
		if len(got.Attributes) != 2 || got.Attributes[1].Value != domain.Wildcard {
			t.Errorf("attributes mismatch: %+v", got.Attributes)
		}
		if got.EffectiveFrom == nil || !got.EffectiveFrom.Equal(*rule.EffectiveFrom) {
			t.Errorf("effective from mismatch: %v", got.EffectiveFrom)
		}
		if got.Condition != domain.ConditionWhicheverHigher {
			t.Errorf("condition mismatch: %s", got.Condition)
		}
	})

	t.Run("UpsertReplacesRow", func(t *testing.T) {
		rule := sampleRule("r-1")
		rule.Value = decimal.RequireFromString("3.0")
		if err := repo.SaveRule(ctx, rule); err != nil {
			t.Fatalf("SaveRule failed: %v", err)
		}

		got, err := repo.GetRule(ctx, "r-1")
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}
		if !got.Value.Equal(rule.Value) {
			t.Errorf("expected updated value, got %s", got.Value)
		}
	})

	t.Run("GetMissingRule", func(t *testing.T) {
		_, err := repo.GetRule(ctx, "nonexistent")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListRulesByCharge", func(t *testing.T) {
		other := sampleRule("r-2")
		other.ChargeID = "locker.fee"
		if err := repo.SaveRule(ctx, other); err != nil {
			t.Fatalf("SaveRule failed: %v", err)
		}

		rules, err := repo.ListRulesByCharge(ctx, "cash.advance")
		if err != nil {
			t.Fatalf("ListRulesByCharge failed: %v", err)
		}
		if len(rules) != 1 || rules[0].ID != "r-1" {
			t.Errorf("unexpected rules: %+v", rules)
		}
	})

	t.Run("TieredRuleRoundTrip", func(t *testing.T) {
		maxFee := decimal.RequireFromString("10000")
		rule := sampleRule("r-tiered")
		rule.Condition = domain.ConditionTiered
		rule.Tiers = []domain.Tier{
			{Threshold: decimal.RequireFromString("500000"), Rate: decimal.RequireFromString("0.1")},
			{Threshold: decimal.Zero, Rate: decimal.RequireFromString("0.2"), MaxFee: &maxFee},
		}

		if err := repo.SaveRule(ctx, rule); err != nil {
			t.Fatalf("SaveRule failed: %v", err)
		}

		got, err := repo.GetRule(ctx, "r-tiered")
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}
		if len(got.Tiers) != 2 {
			t.Fatalf("expected 2 tiers, got %d", len(got.Tiers))
		}
		if got.Tiers[1].MaxFee == nil || !got.Tiers[1].MaxFee.Equal(maxFee) {
			t.Errorf("tier cap mismatch: %v", got.Tiers[1].MaxFee)
		}
	})

	t.Run("ValidationErrors", func(t *testing.T) {
		if err := repo.SaveRule(ctx, &domain.PricingRule{ID: "x"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.GetRule(ctx, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestNotes(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("SaveAndGet", func(t *testing.T) {
		if err := repo.SaveNote(ctx, "12", "2% of outstanding or 5000 BDT, whichever is higher."); err != nil {
			t.Fatalf("SaveNote failed: %v", err)
		}

		text, err := repo.GetNote(ctx, "12")
		if err != nil {
			t.Fatalf("GetNote failed: %v", err)
		}
		if text == "" {
			t.Error("expected note text")
		}
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		if err := repo.SaveNote(ctx, "12", "updated wording"); err != nil {
			t.Fatalf("SaveNote failed: %v", err)
		}
		text, _ := repo.GetNote(ctx, "12")
		if text != "updated wording" {
			t.Errorf("expected updated note, got %q", text)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := repo.GetNote(ctx, "99")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestResolutions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"res-1", "res-2", "res-3"} {
		res := &domain.Resolution{
			ID:              id,
			ConversationKey: "conv-1",
			ChargeID:        "card.annual",
			RuleID:          "r-gold",
			Outcome:         "SINGLE",
			AnswerText:      "1500 BDT per year",
			CreatedAt:       base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.SaveResolution(ctx, res); err != nil {
			t.Fatalf("SaveResolution failed: %v", err)
		}
	}

	t.Run("RecentFirst", func(t *testing.T) {
		resolutions, err := repo.ListRecentResolutions(ctx, 2)
		if err != nil {
			t.Fatalf("ListRecentResolutions failed: %v", err)
		}
		if len(resolutions) != 2 {
			t.Fatalf("expected 2 records, got %d", len(resolutions))
		}
		if resolutions[0].ID != "res-3" {
			t.Errorf("expected newest first, got %s", resolutions[0].ID)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	sqlite := &SQLRepository{driver: "sqlite"}
	postgres := &SQLRepository{driver: "postgres"}

	query := "SELECT * FROM pricing_rules WHERE id = ? AND charge_id = ?"

	if got := sqlite.rebind(query); got != query {
		t.Errorf("sqlite rebind must be identity, got %s", got)
	}

	want := "SELECT * FROM pricing_rules WHERE id = $1 AND charge_id = $2"
	if got := postgres.rebind(query); got != want {
		t.Errorf("postgres rebind = %s, want %s", got, want)
	}
}
