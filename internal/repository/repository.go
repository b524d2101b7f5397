// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.RuleRepository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.RuleRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRule inserts or replaces a pricing rule.
func (r *SQLRepository) SaveRule(ctx context.Context, rule *domain.PricingRule) error {
	if rule == nil || rule.ID == "" || rule.ChargeID == "" {
		return fmt.Errorf("%w: rule id and charge id are required", ErrInvalidInput)
	}

	attrs, _ := json.Marshal(rule.Attributes)
	tiers, _ := json.Marshal(rule.Tiers)

	var minValue sql.NullString
	if rule.MinValue != nil {
		minValue = sql.NullString{String: rule.MinValue.String(), Valid: true}
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO pricing_rules (
			id, charge_id, effective_from, effective_to, attributes,
			value, unit, basis, condition_type, min_value, min_unit,
			free_count, note_ref, tiers, guard_expression, priority,
			status, authoritative_text, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			charge_id = excluded.charge_id,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to,
			attributes = excluded.attributes,
			value = excluded.value,
			unit = excluded.unit,
			basis = excluded.basis,
			condition_type = excluded.condition_type,
			min_value = excluded.min_value,
			min_unit = excluded.min_unit,
			free_count = excluded.free_count,
			note_ref = excluded.note_ref,
			tiers = excluded.tiers,
			guard_expression = excluded.guard_expression,
			priority = excluded.priority,
			status = excluded.status,
			authoritative_text = excluded.authoritative_text,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.ChargeID, rule.EffectiveFrom, rule.EffectiveTo, string(attrs),
		rule.Value.String(), rule.Unit, rule.Basis, string(rule.Condition),
		minValue, rule.MinUnit, rule.FreeEntitlementCount, rule.NoteReference,
		string(tiers), rule.GuardExpression, rule.Priority,
		rule.Status, rule.AuthoritativeText, now, now,
	)
	return err
}

const ruleColumns = `
	id, charge_id, effective_from, effective_to, attributes,
	value, unit, basis, condition_type, min_value, min_unit,
	free_count, note_ref, tiers, guard_expression, priority,
	status, authoritative_text
`

// GetRule retrieves a pricing rule by ID.
func (r *SQLRepository) GetRule(ctx context.Context, ruleID string) (*domain.PricingRule, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	query := `SELECT ` + ruleColumns + ` FROM pricing_rules WHERE id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), ruleID)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRules retrieves all pricing rules, ordered deterministically.
func (r *SQLRepository) ListRules(ctx context.Context) ([]*domain.PricingRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM pricing_rules ORDER BY charge_id, id`
	return r.queryRules(ctx, query)
}

// ListRulesByCharge retrieves all rules for a charge identifier.
func (r *SQLRepository) ListRulesByCharge(ctx context.Context, chargeID string) ([]*domain.PricingRule, error) {
	if chargeID == "" {
		return nil, fmt.Errorf("%w: charge id is required", ErrInvalidInput)
	}
	query := `SELECT ` + ruleColumns + ` FROM pricing_rules WHERE charge_id = ? ORDER BY id`
	return r.queryRules(ctx, query, chargeID)
}

func (r *SQLRepository) queryRules(ctx context.Context, query string, args ...any) ([]*domain.PricingRule, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.PricingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*domain.PricingRule, error) {
	var rule domain.PricingRule
	var effFrom, effTo sql.NullTime
	var attrs, condition string
	var minValue, minUnit, noteRef, tiers, guard, authText sql.NullString

	err := s.Scan(
		&rule.ID, &rule.ChargeID, &effFrom, &effTo, &attrs,
		&rule.Value, &rule.Unit, &rule.Basis, &condition,
		&minValue, &minUnit, &rule.FreeEntitlementCount, &noteRef,
		&tiers, &guard, &rule.Priority,
		&rule.Status, &authText,
	)
	if err != nil {
		return nil, err
	}

	if effFrom.Valid {
		t := effFrom.Time
		rule.EffectiveFrom = &t
	}
	if effTo.Valid {
		t := effTo.Time
		rule.EffectiveTo = &t
	}
	if err := json.Unmarshal([]byte(attrs), &rule.Attributes); err != nil {
		return nil, fmt.Errorf("failed to parse rule attributes for %s: %w", rule.ID, err)
	}
	rule.Condition = domain.ConditionType(condition)
	if minValue.Valid && minValue.String != "" {
		d, err := decimal.NewFromString(minValue.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse min value for %s: %w", rule.ID, err)
		}
		rule.MinValue = &d
	}
	rule.MinUnit = minUnit.String
	rule.NoteReference = noteRef.String
	if tiers.Valid && tiers.String != "" && tiers.String != "null" {
		if err := json.Unmarshal([]byte(tiers.String), &rule.Tiers); err != nil {
			return nil, fmt.Errorf("failed to parse tiers for %s: %w", rule.ID, err)
		}
	}
	rule.GuardExpression = guard.String
	rule.AuthoritativeText = authText.String

	return &rule, nil
}

// SaveNote stores a schedule footnote.
func (r *SQLRepository) SaveNote(ctx context.Context, ref string, text string) error {
	if ref == "" {
		return fmt.Errorf("%w: note ref is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO schedule_notes (ref, note_text, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(ref) DO UPDATE SET
			note_text = excluded.note_text,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), ref, text, time.Now().UTC())
	return err
}

// GetNote retrieves a schedule footnote by reference.
func (r *SQLRepository) GetNote(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: note ref is required", ErrInvalidInput)
	}

	query := `SELECT note_text FROM schedule_notes WHERE ref = ?`

	var text string
	err := r.db.QueryRowContext(ctx, r.rebind(query), ref).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// SaveResolution stores a resolution audit record.
func (r *SQLRepository) SaveResolution(ctx context.Context, res *domain.Resolution) error {
	if res == nil || res.ID == "" {
		return fmt.Errorf("%w: resolution id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO resolutions (
			id, conversation_key, charge_id, rule_id, outcome, answer_text, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		res.ID, res.ConversationKey, res.ChargeID, res.RuleID,
		res.Outcome, res.AnswerText, res.CreatedAt,
	)
	return err
}

// ListRecentResolutions retrieves the most recent resolution records.
func (r *SQLRepository) ListRecentResolutions(ctx context.Context, limit int) ([]*domain.Resolution, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, conversation_key, charge_id, rule_id, outcome, answer_text, created_at
		FROM resolutions
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resolutions []*domain.Resolution
	for rows.Next() {
		var res domain.Resolution
		var ruleID, answerText sql.NullString
		if err := rows.Scan(
			&res.ID, &res.ConversationKey, &res.ChargeID, &ruleID,
			&res.Outcome, &answerText, &res.CreatedAt,
		); err != nil {
			return nil, err
		}
		res.RuleID = ruleID.String
		res.AnswerText = answerText.String
		resolutions = append(resolutions, &res)
	}
	return resolutions, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
