// seedrules loads a JSON schedule of charges into the tariff database.
// Compound attribute values like "VISA Classic/Gold" are expanded into
// one row per concrete value so the selector never parses free text.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/repository"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/schedule"
)

// ScheduleFile is the on-disk seed format.
type ScheduleFile struct {
	Notes []NoteEntry           `json:"notes,omitempty"`
	Rules []*domain.PricingRule `json:"rules"`
}

// NoteEntry is one schedule footnote.
type NoteEntry struct {
	Ref  string `json:"ref"`
	Text string `json:"text"`
}

func main() {
	var (
		file       = flag.String("file", "schedule.json", "path to the schedule JSON file")
		driver     = flag.String("driver", "sqlite", "database driver: sqlite or postgres")
		sqlitePath = flag.String("sqlite", "./tariff.db", "sqlite database path")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := domain.RepositoryConfig{
		Driver:     *driver,
		SQLitePath: *sqlitePath,
	}
	if *driver == "postgres" {
		cfg.PostgresHost = os.Getenv("TARIFF_POSTGRES_HOST")
		cfg.PostgresUser = os.Getenv("TARIFF_POSTGRES_USER")
		cfg.PostgresPassword = os.Getenv("TARIFF_POSTGRES_PASSWORD")
		cfg.PostgresDB = os.Getenv("TARIFF_POSTGRES_DB")
	}

	if err := run(*file, cfg); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(path string, cfg domain.RepositoryConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read schedule file: %w", err)
	}

	var sched ScheduleFile
	if err := json.Unmarshal(data, &sched); err != nil {
		return fmt.Errorf("failed to parse schedule file: %w", err)
	}

	expanded := expandAll(sched.Rules)
	slog.Info("schedule parsed",
		"rules", len(sched.Rules),
		"expanded", len(expanded),
		"notes", len(sched.Notes),
	)

	// Guard expressions must compile before anything is written.
	store, err := schedule.New()
	if err != nil {
		return err
	}
	for _, rule := range expanded {
		if err := store.ValidateRule(rule); err != nil {
			return err
		}
	}

	repo, err := repository.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	defer repo.Close()

	ctx := context.Background()
	for _, note := range sched.Notes {
		if err := repo.SaveNote(ctx, note.Ref, note.Text); err != nil {
			return fmt.Errorf("failed to save note %s: %w", note.Ref, err)
		}
	}
	for _, rule := range expanded {
		if err := repo.SaveRule(ctx, rule); err != nil {
			return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
		}
	}

	slog.Info("schedule seeded",
		"rules", len(expanded),
		"notes", len(sched.Notes),
	)
	return nil
}

// expandAll normalizes every rule, splitting compound attribute values
// into separate rows.
func expandAll(rules []*domain.PricingRule) []*domain.PricingRule {
	var out []*domain.PricingRule
	for _, rule := range rules {
		out = append(out, expand(rule)...)
	}
	return out
}

// expand splits a rule whose attributes carry compound "A/B" values into
// the cartesian product of concrete rows. IDs get a stable ordinal suffix
// so re-seeding upserts the same rows.
func expand(rule *domain.PricingRule) []*domain.PricingRule {
	idx := -1
	var variants []string
	for i, a := range rule.Attributes {
		if a.Value == domain.Wildcard || !strings.Contains(a.Value, "/") {
			continue
		}
		idx = i
		for _, v := range strings.Split(a.Value, "/") {
			if v = strings.TrimSpace(v); v != "" {
				variants = append(variants, v)
			}
		}
		break
	}

	if idx < 0 || len(variants) < 2 {
		return []*domain.PricingRule{rule}
	}

	var out []*domain.PricingRule
	for n, v := range variants {
		clone := *rule
		clone.ID = fmt.Sprintf("%s-%d", rule.ID, n+1)
		clone.Attributes = make([]domain.Attribute, len(rule.Attributes))
		copy(clone.Attributes, rule.Attributes)
		clone.Attributes[idx].Value = v

		// A later attribute may also be compound; recurse.
		out = append(out, expand(&clone)...)
	}
	return out
}
