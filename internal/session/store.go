package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
)

// New creates a session store based on configuration. The redis type is
// wrapped in a Failover so a store outage degrades service instead of
// interrupting it.
func New(cfg domain.SessionStoreConfig) (domain.SessionStore, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryStore(), nil

	case "redis":
		primary, err := NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis session store: %w", err)
		}
		return NewFailover(primary, NewMemoryStore(), cfg.PrimaryTimeout), nil

	default:
		return nil, fmt.Errorf("unknown session store type: %s", cfg.Type)
	}
}

// Failover wraps a primary store with an in-process fallback. Every call
// tries the primary under a bounded timeout; on error it falls back and
// logs the degradation. Fallback sessions are local to this process, so a
// conversation started during an outage stays on this replica.
type Failover struct {
	primary  domain.SessionStore
	fallback domain.SessionStore
	timeout  time.Duration
}

// NewFailover wraps primary with fallback. timeout bounds each primary
// attempt so a hung store cannot stall the turn.
func NewFailover(primary, fallback domain.SessionStore, timeout time.Duration) *Failover {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Failover{primary: primary, fallback: fallback, timeout: timeout}
}

func (f *Failover) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.timeout)
}

// GetSession reads from the primary, falling back on error.
func (f *Failover) GetSession(ctx context.Context, key string) (*domain.DisambiguationSession, error) {
	pctx, cancel := f.bounded(ctx)
	sess, err := f.primary.GetSession(pctx, key)
	cancel()
	if err == nil {
		return sess, nil
	}

	slog.Warn("primary session store unavailable, using fallback", "op", "get", "error", err)
	return f.fallback.GetSession(ctx, key)
}

// PutSession writes to the primary, falling back on error.
func (f *Failover) PutSession(ctx context.Context, key string, sess *domain.DisambiguationSession, ttl time.Duration) error {
	pctx, cancel := f.bounded(ctx)
	err := f.primary.PutSession(pctx, key, sess, ttl)
	cancel()
	if err == nil {
		return nil
	}

	slog.Warn("primary session store unavailable, using fallback", "op", "put", "error", err)
	return f.fallback.PutSession(ctx, key, sess, ttl)
}

// DeleteSession deletes from both stores so a session created during an
// outage does not resurface after recovery.
func (f *Failover) DeleteSession(ctx context.Context, key string) error {
	pctx, cancel := f.bounded(ctx)
	err := f.primary.DeleteSession(pctx, key)
	cancel()

	if ferr := f.fallback.DeleteSession(ctx, key); err == nil {
		return ferr
	}

	slog.Warn("primary session store unavailable, using fallback", "op", "delete", "error", err)
	return nil
}

// IncrementUsage increments on the primary, falling back on error. A
// fallback count restarts from the local window; the degradation is
// logged so operators know entitlement counts may be low.
func (f *Failover) IncrementUsage(ctx context.Context, key string, window time.Duration) (int64, error) {
	pctx, cancel := f.bounded(ctx)
	n, err := f.primary.IncrementUsage(pctx, key, window)
	cancel()
	if err == nil {
		return n, nil
	}

	slog.Warn("primary session store unavailable, using fallback", "op", "incr", "error", err)
	return f.fallback.IncrementUsage(ctx, key, window)
}

// Ping reports primary health.
func (f *Failover) Ping(ctx context.Context) error {
	pctx, cancel := f.bounded(ctx)
	defer cancel()
	return f.primary.Ping(pctx)
}

// Close closes both stores.
func (f *Failover) Close() error {
	err := f.primary.Close()
	if ferr := f.fallback.Close(); err == nil {
		err = ferr
	}
	return err
}
