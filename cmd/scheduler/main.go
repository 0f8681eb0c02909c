package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"leadflow_backend/internal/agent"
	"leadflow_backend/internal/budget"
	"leadflow_backend/internal/eligibility"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/service"
	"leadflow_backend/internal/messaging"
	"leadflow_backend/internal/slasched"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"
)

// budgetSyncInterval bounds how long spend from the other process can go
// unseen by this one.
const budgetSyncInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "interval", cfg.SchedulerInterval.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	// No notification module here: the API process is the single alert
	// emitter, so threshold crossings observed in both processes email
	// at most once per period.
	eventBus := events.NewInMemoryBus(log)

	repo := repository.New(pool)

	// Re-engagement messages generated by timeout handling charge the
	// same ledger as the API process: every charge is persisted with its
	// conversation turn, and the sync loop folds the other process's
	// spend into this one.
	enforcer := budget.NewEnforcer(cfg.CostLimitMicros, eventBus, log)
	hydrateBudget(ctx, repo, enforcer, log)
	go enforcer.SyncLoop(ctx, repo, budgetSyncInterval)

	responder := agent.NewResponder(cfg, cfg.SystemPromptPath, log)
	waClient := messaging.NewClient(cfg, log)
	classifier := eligibility.New(cfg.EligibleRegions, cfg.InterestRegions)

	leadService := service.NewService(repo, responder, enforcer, waClient, classifier, eventBus, cfg, log)

	worker, err := slasched.NewWorker(cfg, pool, leadService, log)
	if err != nil {
		log.Error("failed to initialize sla worker", "error", err)
		panic("failed to initialize sla worker: " + err.Error())
	}

	worker.Run(ctx)
}

func hydrateBudget(ctx context.Context, repo *repository.Repository, enforcer *budget.Enforcer, log *logger.Logger) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	spent, err := repo.PeriodSpendMicros(ctx, monthStart, now)
	if err != nil {
		log.Warn("budget hydration failed, starting from zero", "error", err)
		return
	}

	enforcer.Hydrate(spent)
	log.Info("budget hydrated", "spent_micros", spent)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
