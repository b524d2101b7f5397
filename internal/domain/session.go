package domain

import (
	"context"
	"time"
)

// SessionTTL is how long an unresolved disambiguation session lives.
const SessionTTL = 5 * time.Minute

// DisambiguationSession is the persisted state of a pending multi-candidate
// query awaiting the user's next reply.
type DisambiguationSession struct {
	ChargeID string `json:"chargeId"`

	// Dimension is the attribute name still unresolved.
	Dimension string `json:"dimension"`

	// BaseAttrs are the attribute values already pinned when the session
	// was created; resolution adds Dimension to them.
	BaseAttrs map[string]string `json:"baseAttrs,omitempty"`

	// Options in stable order. Never re-sorted between turns.
	Options []Option `json:"options"`

	// PromptText is re-sent verbatim on re-prompt. Regenerating it could
	// renumber options under a pending numeric reply.
	PromptText string `json:"promptText"`

	Currency string `json:"currency,omitempty"`

	// Inputs and CustomerID are carried from the turn that opened the
	// session, so the resolving reply computes with the original numbers.
	Inputs     *RuntimeInputs `json:"inputs,omitempty"`
	CustomerID string         `json:"customerId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// SessionStore persists disambiguation sessions and usage counters with
// TTL semantics. Any key/TTL store qualifies.
type SessionStore interface {
	// GetSession returns nil, nil when the key is absent or expired.
	GetSession(ctx context.Context, key string) (*DisambiguationSession, error)

	PutSession(ctx context.Context, key string, s *DisambiguationSession, ttl time.Duration) error

	DeleteSession(ctx context.Context, key string) error

	// IncrementUsage atomically increments an entitlement counter and
	// returns the new value. The window starts on first increment.
	IncrementUsage(ctx context.Context, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// SessionStoreConfig holds configuration for session store initialization.
type SessionStoreConfig struct {
	// Type is the store type: "memory" or "redis".
	Type string

	// Redis settings.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// PrimaryTimeout bounds each call to the external store before the
	// failover wrapper degrades to the in-process map.
	PrimaryTimeout time.Duration
}
