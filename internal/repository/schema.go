package repository

// Schema definitions for the tariff database.
// Compatible with both SQLite and PostgreSQL.

const schemaPricingRules = `
CREATE TABLE IF NOT EXISTS pricing_rules (
    id TEXT PRIMARY KEY,
    charge_id TEXT NOT NULL,
    effective_from TIMESTAMP,
    effective_to TIMESTAMP,
    attributes TEXT NOT NULL,
    value TEXT NOT NULL,
    unit TEXT NOT NULL,
    basis TEXT NOT NULL,
    condition_type TEXT NOT NULL,
    min_value TEXT,
    min_unit TEXT,
    free_count INTEGER NOT NULL DEFAULT 0,
    note_ref TEXT,
    tiers TEXT,
    guard_expression TEXT,
    priority INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'ACTIVE',
    authoritative_text TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pricing_rules_charge ON pricing_rules(charge_id);
CREATE INDEX IF NOT EXISTS idx_pricing_rules_status ON pricing_rules(charge_id, status);
`

const schemaScheduleNotes = `
CREATE TABLE IF NOT EXISTS schedule_notes (
    ref TEXT PRIMARY KEY,
    note_text TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaResolutions = `
CREATE TABLE IF NOT EXISTS resolutions (
    id TEXT PRIMARY KEY,
    conversation_key TEXT NOT NULL,
    charge_id TEXT NOT NULL,
    rule_id TEXT,
    outcome TEXT NOT NULL,
    answer_text TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_resolutions_key ON resolutions(conversation_key);
CREATE INDEX IF NOT EXISTS idx_resolutions_created ON resolutions(created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaPricingRules,
		schemaScheduleNotes,
		schemaResolutions,
	}
}
