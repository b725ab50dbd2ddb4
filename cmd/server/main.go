// Package main is the entry point for the HTTP server.
//
// The server exposes the agent function-call dispatcher, the batch
// trigger, the review surface and health endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eval-hub/student-evaluation-hub/config"
	"github.com/eval-hub/student-evaluation-hub/internal/application/command"
	"github.com/eval-hub/student-evaluation-hub/internal/application/query"
	"github.com/eval-hub/student-evaluation-hub/internal/domain/evaluation"
	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/external/agent"
	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/external/telegram"
	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/persistence/postgres"
	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/persistence/redis"
	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/service"
	httpapi "github.com/eval-hub/student-evaluation-hub/internal/interface/http"
	"github.com/eval-hub/student-evaluation-hub/internal/interface/http/handlers"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting student evaluation server",
		"env", cfg.App.Environment,
		"address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbConn.Close()

	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REPOSITORY AND HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker()
	healthChecker.AddCheck("postgres", handlers.NewPingCheck(dbConn))

	var repo evaluation.Repository = postgres.NewEvaluationRepository(dbConn)

	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		cache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
		} else {
			defer cache.Close()
			repo = redis.NewCachedRepository(repo, redis.NewEvaluationCache(cache), log)
			healthChecker.AddCheck("redis", handlers.NewPingCheck(cache))
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	agentCfg := agent.DefaultClientConfig(cfg.Agent.BaseURL)
	agentCfg.AgentID = cfg.Agent.AgentID
	agentCfg.AgentAliasID = cfg.Agent.AgentAliasID
	agentCfg.APIKey = cfg.Agent.APIKey
	agentCfg.ResponseHeaderTimeout = cfg.Agent.ResponseHeaderTimeout
	agentCfg.Logger = log
	agentClient := agent.NewClient(agentCfg)

	var notifier command.Notifier
	if cfg.NotificationsEnabled() {
		tgClient := telegram.NewClient(telegram.DefaultClientConfig(cfg.Telegram.Token))
		notifierCfg := service.DefaultTelegramNotifierConfig()
		notifierCfg.ChatID = cfg.Telegram.NotifyChatID
		notifierCfg.Logger = log
		notifier = service.NewTelegramNotifier(tgClient, notifierCfg)
	}

	batchCfg := command.DefaultEvaluateBatchConfig()
	batchCfg.PacingDelay = cfg.Batch.PacingDelay

	batchHandler := command.NewEvaluateBatchHandler(
		service.NewAgentInvokerAdapter(agentClient),
		repo,
		notifier,
		batchCfg,
		log,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		EvaluateBatchHandler:    batchHandler,
		ReviewEvaluationHandler: command.NewReviewEvaluationHandler(repo, log),
		GetEvaluationsHandler:   query.NewGetEvaluationsHandler(repo, log),
		Logger:                  log,
		HealthChecker:           healthChecker,
	})

	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger configures structured logging.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if cfg.App.Debug || cfg.Observability.LogLevel == "debug" {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" || cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}
