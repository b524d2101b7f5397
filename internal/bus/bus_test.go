package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
)

func TestChannelBus(t *testing.T) {
	b := NewChannelBus(16)
	defer b.Close()
	ctx := context.Background()

	t.Run("PublishSubscribe", func(t *testing.T) {
		received := make(chan *domain.Message, 1)

		sub, err := b.Subscribe(ctx, domain.TopicTurnResolved, func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		if err := b.Publish(ctx, domain.TopicTurnResolved, []byte(`{"outcome":"SINGLE"}`)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		select {
		case msg := <-received:
			if msg.Topic != domain.TopicTurnResolved {
				t.Errorf("unexpected topic: %s", msg.Topic)
			}
			if string(msg.Payload) != `{"outcome":"SINGLE"}` {
				t.Errorf("unexpected payload: %s", msg.Payload)
			}
			if msg.ID == "" {
				t.Error("expected a message ID")
			}
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		received := make(chan *domain.Message, 1)

		sub, err := b.Subscribe(ctx, domain.TopicRulesReloaded, func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		_ = b.Publish(ctx, domain.TopicDisambiguationOpened, []byte("other"))

		select {
		case msg := <-received:
			t.Errorf("received message from wrong topic: %s", msg.Topic)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)

		for i := 0; i < 2; i++ {
			sub, err := b.Subscribe(ctx, "fanout.test", func(ctx context.Context, msg *domain.Message) error {
				wg.Done()
				return nil
			})
			if err != nil {
				t.Fatalf("Subscribe failed: %v", err)
			}
			defer sub.Unsubscribe()
		}

		if err := b.Publish(ctx, "fanout.test", []byte("hello")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("not all subscribers received the message")
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	b := NewChannelBus(4)
	ctx := context.Background()

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := b.Publish(ctx, "any", []byte("x")); err == nil {
		t.Error("expected publish on closed bus to fail")
	}
	if _, err := b.Subscribe(ctx, "any", nil); err == nil {
		t.Error("expected subscribe on closed bus to fail")
	}
	if err := b.Ping(ctx); err == nil {
		t.Error("expected ping on closed bus to fail")
	}

	// Idempotent close.
	if err := b.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestNewBus(t *testing.T) {
	t.Run("Channel", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel"})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()

		if _, ok := b.(*ChannelBus); !ok {
			t.Errorf("expected ChannelBus, got %T", b)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
