// tariffd serves deterministic answers about the bank's schedule of
// charges over HTTP.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/api"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/bus"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/dialog"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/evaluator"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/repository"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/schedule"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/selector"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/session"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/usage"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("TARIFF_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting tariffd",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := loadConfig()

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"sessions", cfg.Sessions.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Session store
	sessions, err := session.New(cfg.Sessions)
	if err != nil {
		slog.Error("failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer sessions.Close()
	slog.Info("session store initialized", "type", cfg.Sessions.Type)

	// Event bus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Schedule store with rules from the repository
	store, err := schedule.New()
	if err != nil {
		slog.Error("failed to initialize schedule store", "error", err)
		os.Exit(1)
	}
	if err := loadSchedule(ctx, repo, store); err != nil {
		slog.Error("failed to load schedule", "error", err)
		os.Exit(1)
	}
	slog.Info("schedule loaded", "rules_count", store.Count())

	// Resolution pipeline
	sel := selector.New(store)
	eval := evaluator.New(repo)
	usageSvc := usage.New(sessions)
	coordinator := dialog.New(sel, eval, sessions, usageSvc, busImpl)

	// Audit worker persists resolution events off the request path
	auditWorker := worker.NewAuditWorker(busImpl, repo)
	if err := auditWorker.Start(); err != nil {
		slog.Error("failed to start audit worker", "error", err)
		os.Exit(1)
	}

	// HTTP server
	srv := api.NewServer(cfg.Server, repo, store, sel, coordinator, sessions, busImpl, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("tariffd is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	auditWorker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("tariffd shutdown complete")
}

// loadConfig builds the configuration from tier defaults plus environment
// overrides.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	if os.Getenv("TARIFF_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in pro tier mode")
	}

	if v := os.Getenv("TARIFF_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TARIFF_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("TARIFF_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("TARIFF_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("TARIFF_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("TARIFF_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("TARIFF_REDIS_ADDR"); v != "" {
		cfg.Sessions.RedisAddr = v
	}
	if v := os.Getenv("TARIFF_REDIS_PASSWORD"); v != "" {
		cfg.Sessions.RedisPassword = v
	}
	if v := os.Getenv("TARIFF_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("TARIFF_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}

	return cfg
}

// loadSchedule loads rules from the database into the serving store.
// An empty schedule is allowed; rules can be seeded via the seedrules
// tool or POST /rules.
func loadSchedule(ctx context.Context, repo domain.RuleRepository, store *schedule.Store) error {
	rules, err := repo.ListRules(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil
	}

	if len(rules) == 0 {
		slog.Info("no rules in database - seed with seedrules or POST /rules")
		return nil
	}

	return store.Load(rules)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  tariffd - schedule of charges answer engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /resolve       - Resolve one conversational turn")
	fmt.Println("    POST /select        - Stateless rule selection")
	fmt.Println("    GET  /rules         - List loaded rules")
	fmt.Println("    POST /rules         - Create a rule")
	fmt.Println("    POST /rules/reload  - Hot-reload rules from database")
	fmt.Println("    GET  /notes/{ref}   - Get a schedule note")
	fmt.Println("    POST /notes         - Create a schedule note")
	fmt.Println("    GET  /resolutions   - Recent resolution audit records")
	fmt.Println("    GET  /health        - Health check")
	fmt.Println()
}
