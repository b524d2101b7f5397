// Package usage tracks per-customer entitlement consumption, deriving the
// usage ordinal that FREE_UPTO_N rules are evaluated against.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
)

// DefaultWindow is the entitlement window when the charge basis does not
// imply one. Annual entitlements dominate the schedule.
const DefaultWindow = 365 * 24 * time.Hour

// Service derives usage ordinals from the session store's atomic counters.
// The store choice makes counts shared across replicas on the pro tier and
// process-local on the community tier.
type Service struct {
	store domain.SessionStore
}

// New creates a usage service over the given store.
func New(store domain.SessionStore) *Service {
	return &Service{store: store}
}

// NextIndex returns the 1-based ordinal of this use of the charge by the
// customer within the window. basis selects the window length.
func (s *Service) NextIndex(ctx context.Context, customerID, chargeID, basis string) (int, error) {
	if customerID == "" {
		return 0, fmt.Errorf("customerID is required")
	}
	if chargeID == "" {
		return 0, fmt.Errorf("chargeID is required")
	}

	key := customerID + ":" + chargeID
	n, err := s.store.IncrementUsage(ctx, key, windowFor(basis))
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage for %s: %w", key, err)
	}
	return int(n), nil
}

func windowFor(basis string) time.Duration {
	switch basis {
	case domain.BasisPerMonth:
		return 30 * 24 * time.Hour
	case domain.BasisPerYear:
		return DefaultWindow
	default:
		return DefaultWindow
	}
}
