// Package worker provides async processing of resolution events.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
)

// AuditWorker consumes resolution events from the bus and persists them
// as audit records, keeping the write off the request path.
type AuditWorker struct {
	bus  domain.EventBus
	repo domain.RuleRepository

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewAuditWorker creates an audit worker.
func NewAuditWorker(bus domain.EventBus, repo domain.RuleRepository) *AuditWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &AuditWorker{
		bus:    bus,
		repo:   repo,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the resolution topic.
func (w *AuditWorker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTurnResolved, w.handleResolution)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicTurnResolved, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("audit worker started", "topic", domain.TopicTurnResolved)
	return nil
}

// handleResolution persists one resolution event. A failed write is
// logged and dropped; audit records are best-effort by design of the
// answer path.
func (w *AuditWorker) handleResolution(ctx context.Context, msg *domain.Message) error {
	var event domain.ResolutionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to unmarshal resolution event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	res := &domain.Resolution{
		ID:              event.ID,
		ConversationKey: event.ConversationKey,
		ChargeID:        event.ChargeID,
		RuleID:          event.RuleID,
		Outcome:         event.Outcome,
		AnswerText:      event.AnswerText,
		CreatedAt:       event.Timestamp,
	}

	if err := w.repo.SaveResolution(ctx, res); err != nil {
		slog.Error("failed to save resolution",
			"resolution_id", res.ID,
			"charge_id", res.ChargeID,
			"error", err,
		)
		return err
	}

	slog.Debug("resolution recorded",
		"resolution_id", res.ID,
		"charge_id", res.ChargeID,
		"outcome", res.Outcome,
	)
	return nil
}

// Stop unsubscribes and halts processing.
func (w *AuditWorker) Stop() {
	w.cancel()
	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}
	w.subscriptions = nil
	slog.Info("audit worker stopped")
}
