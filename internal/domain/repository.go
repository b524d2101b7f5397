// Package domain defines the core types and interfaces of the tariff engine.
package domain

import (
	"context"
	"time"
)

// RuleRepository is the persistence interface for the schedule of charges.
// The rule table is read-mostly: writes happen at data-load time, never on
// the request path.
type RuleRepository interface {
	// Rule operations
	SaveRule(ctx context.Context, rule *PricingRule) error
	GetRule(ctx context.Context, ruleID string) (*PricingRule, error)
	ListRules(ctx context.Context) ([]*PricingRule, error)
	ListRulesByCharge(ctx context.Context, chargeID string) ([]*PricingRule, error)

	// Schedule note operations (footnotes referenced by NOTE_BASED rules)
	SaveNote(ctx context.Context, ref string, text string) error
	GetNote(ctx context.Context, ref string) (string, error)

	// Resolution audit records
	SaveResolution(ctx context.Context, res *Resolution) error
	ListRecentResolutions(ctx context.Context, limit int) ([]*Resolution, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Resolution is the audit record of one answered turn.
type Resolution struct {
	ID              string    `json:"id"`
	ConversationKey string    `json:"conversationKey"`
	ChargeID        string    `json:"chargeId"`
	RuleID          string    `json:"ruleId,omitempty"`
	Outcome         string    `json:"outcome"`
	AnswerText      string    `json:"answerText"`
	CreatedAt       time.Time `json:"createdAt"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
