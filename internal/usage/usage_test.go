package usage

import (
	"context"
	"testing"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/session"
)

func TestNextIndex(t *testing.T) {
	svc := New(session.NewMemoryStore())
	ctx := context.Background()

	t.Run("IncrementsPerCustomerAndCharge", func(t *testing.T) {
		for want := 1; want <= 3; want++ {
			got, err := svc.NextIndex(ctx, "cust-1", "cheque.book", domain.BasisPerYear)
			if err != nil {
				t.Fatalf("NextIndex failed: %v", err)
			}
			if got != want {
				t.Errorf("expected %d, got %d", want, got)
			}
		}

		// A different customer starts from 1.
		got, err := svc.NextIndex(ctx, "cust-2", "cheque.book", domain.BasisPerYear)
		if err != nil {
			t.Fatalf("NextIndex failed: %v", err)
		}
		if got != 1 {
			t.Errorf("expected independent counter, got %d", got)
		}

		// A different charge for the same customer starts from 1.
		got, err = svc.NextIndex(ctx, "cust-1", "statement.copy", domain.BasisPerYear)
		if err != nil {
			t.Fatalf("NextIndex failed: %v", err)
		}
		if got != 1 {
			t.Errorf("expected independent counter per charge, got %d", got)
		}
	})

	t.Run("RequiresIdentity", func(t *testing.T) {
		if _, err := svc.NextIndex(ctx, "", "cheque.book", domain.BasisPerYear); err == nil {
			t.Error("expected error for missing customer")
		}
		if _, err := svc.NextIndex(ctx, "cust-1", "", domain.BasisPerYear); err == nil {
			t.Error("expected error for missing charge")
		}
	})
}

func TestWindowFor(t *testing.T) {
	if windowFor(domain.BasisPerMonth) >= windowFor(domain.BasisPerYear) {
		t.Error("monthly window must be shorter than yearly")
	}
	if windowFor("") != DefaultWindow {
		t.Error("unknown basis must use the default window")
	}
}
