// Package main is the entry point for the evaluation batch worker.
//
// The worker connects the agent runtime, PostgreSQL and the notification
// channel, then either runs a single evaluation batch (-once) or keeps a
// scheduler alive that re-runs the batch every evaluation cycle.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eval-hub/student-evaluation-hub/config"
	"github.com/eval-hub/student-evaluation-hub/internal/application/command"
	"github.com/eval-hub/student-evaluation-hub/internal/domain/evaluation"
	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/external/agent"
	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/external/telegram"
	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/persistence/postgres"
	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/persistence/redis"
	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/scheduler"
	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/scheduler/jobs"
	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/service"
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
	once := flag.Bool("once", false, "run a single evaluation batch and exit")
	flag.Parse()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting student evaluation worker",
		"env", cfg.App.Environment,
		"period", cfg.Batch.Period,
		"once", *once,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REPOSITORY (with optional Redis cache)
	// ─────────────────────────────────────────────────────────────────────────
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
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EXTERNAL CLIENTS
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
		log.Info("batch notifications enabled")
	} else {
		log.Info("notification channel not configured, batch notifications disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. BATCH HANDLER
	// ─────────────────────────────────────────────────────────────────────────
	batchCfg := command.DefaultEvaluateBatchConfig()
	batchCfg.PacingDelay = cfg.Batch.PacingDelay

	handler := command.NewEvaluateBatchHandler(
		service.NewAgentInvokerAdapter(agentClient),
		repo,
		notifier,
		batchCfg,
		log,
	)

	cmd := command.EvaluateBatchCommand{
		StudentsID: cfg.Batch.StudentsID,
		Period:     cfg.Batch.Period,
		LoopCount:  cfg.Batch.LoopCount,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. RUN
	// ─────────────────────────────────────────────────────────────────────────
	if *once {
		result := handler.Handle(ctx, cmd)
		if !result.Succeeded {
			return fmt.Errorf("batch failed: %s", result.ErrorMessage)
		}
		log.Info("batch completed", "processed", len(result.Results))
		return nil
	}

	sched := scheduler.NewScheduler(scheduler.Config{Logger: log})
	job := jobs.NewEvaluateStudentsJob(handler, cmd, log)

	if cfg.Batch.ScheduleEnabled {
		if err := sched.Register(job, scheduler.NewIntervalSchedule(cfg.Batch.ScheduleInterval)); err != nil {
			return fmt.Errorf("failed to register batch job: %w", err)
		}
	} else {
		log.Info("periodic schedule disabled, worker idles until a signal arrives")
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Info("student evaluation worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop failed", "error", err)
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
