package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
)

func testSession(chargeID string) *domain.DisambiguationSession {
	return &domain.DisambiguationSession{
		ChargeID:  chargeID,
		Dimension: "card_type",
		Options: []domain.Option{
			{Value: "VISA Classic", Label: "VISA Classic"},
			{Value: "VISA Gold", Label: "VISA Gold"},
		},
		PromptText: "Which card type do you mean? 1) VISA Classic 2) VISA Gold",
		CreatedAt:  time.Now(),
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	t.Run("PutAndGet", func(t *testing.T) {
		if err := store.PutSession(ctx, "conv-1", testSession("card.annual"), time.Minute); err != nil {
			t.Fatalf("PutSession failed: %v", err)
		}

		sess, err := store.GetSession(ctx, "conv-1")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if sess == nil || sess.ChargeID != "card.annual" {
			t.Errorf("unexpected session: %+v", sess)
		}
	})

	t.Run("AbsentKeyIsNilNil", func(t *testing.T) {
		sess, err := store.GetSession(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if sess != nil {
			t.Errorf("expected nil for absent key, got %+v", sess)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = store.PutSession(ctx, "conv-2", testSession("locker.fee"), time.Minute)

		if err := store.DeleteSession(ctx, "conv-2"); err != nil {
			t.Fatalf("DeleteSession failed: %v", err)
		}

		sess, _ := store.GetSession(ctx, "conv-2")
		if sess != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		_ = store.PutSession(ctx, "conv-3", testSession("card.annual"), 10*time.Millisecond)

		sess, _ := store.GetSession(ctx, "conv-3")
		if sess == nil {
			t.Fatal("expected session before expiry")
		}

		time.Sleep(20 * time.Millisecond)

		sess, _ = store.GetSession(ctx, "conv-3")
		if sess != nil {
			t.Error("expected nil after expiry")
		}
	})

	t.Run("EmptyKeyRejected", func(t *testing.T) {
		if _, err := store.GetSession(ctx, ""); err == nil {
			t.Error("expected error for empty key")
		}
	})
}

func TestMemoryStoreCounters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	t.Run("Increments", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			n, err := store.IncrementUsage(ctx, "cust-1:cheque.book", time.Minute)
			if err != nil {
				t.Fatalf("IncrementUsage failed: %v", err)
			}
			if n != want {
				t.Errorf("expected %d, got %d", want, n)
			}
		}
	})

	t.Run("WindowReset", func(t *testing.T) {
		_, _ = store.IncrementUsage(ctx, "cust-2:cheque.book", 10*time.Millisecond)
		time.Sleep(20 * time.Millisecond)

		n, err := store.IncrementUsage(ctx, "cust-2:cheque.book", time.Minute)
		if err != nil {
			t.Fatalf("IncrementUsage failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected reset to 1, got %d", n)
		}
	})
}

// failingStore simulates an unreachable external store.
type failingStore struct{}

var errDown = errors.New("connection refused")

func (failingStore) GetSession(ctx context.Context, key string) (*domain.DisambiguationSession, error) {
	return nil, errDown
}

func (failingStore) PutSession(ctx context.Context, key string, s *domain.DisambiguationSession, ttl time.Duration) error {
	return errDown
}

func (failingStore) DeleteSession(ctx context.Context, key string) error { return errDown }

func (failingStore) IncrementUsage(ctx context.Context, key string, window time.Duration) (int64, error) {
	return 0, errDown
}

func (failingStore) Ping(ctx context.Context) error { return errDown }
func (failingStore) Close() error                   { return nil }

func TestFailover(t *testing.T) {
	ctx := context.Background()
	fo := NewFailover(failingStore{}, NewMemoryStore(), time.Second)

	t.Run("PutAndGetDegrade", func(t *testing.T) {
		if err := fo.PutSession(ctx, "conv-1", testSession("card.annual"), time.Minute); err != nil {
			t.Fatalf("PutSession should degrade, got: %v", err)
		}

		sess, err := fo.GetSession(ctx, "conv-1")
		if err != nil {
			t.Fatalf("GetSession should degrade, got: %v", err)
		}
		if sess == nil || sess.ChargeID != "card.annual" {
			t.Errorf("fallback lost the session: %+v", sess)
		}
	})

	t.Run("IncrementDegrades", func(t *testing.T) {
		n, err := fo.IncrementUsage(ctx, "cust-1:cheque.book", time.Minute)
		if err != nil {
			t.Fatalf("IncrementUsage should degrade, got: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1, got %d", n)
		}
	})

	t.Run("DeleteCleansFallback", func(t *testing.T) {
		_ = fo.PutSession(ctx, "conv-2", testSession("locker.fee"), time.Minute)

		if err := fo.DeleteSession(ctx, "conv-2"); err != nil {
			t.Fatalf("DeleteSession failed: %v", err)
		}

		sess, _ := fo.GetSession(ctx, "conv-2")
		if sess != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("PingReportsPrimary", func(t *testing.T) {
		if err := fo.Ping(ctx); err == nil {
			t.Error("expected ping to report the primary outage")
		}
	})
}

func TestNewStore(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		store, err := New(domain.SessionStoreConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer store.Close()

		if _, ok := store.(*MemoryStore); !ok {
			t.Errorf("expected MemoryStore, got %T", store)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		if _, err := New(domain.SessionStoreConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unknown type")
		}
	})
}
