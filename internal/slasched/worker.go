// Package slasched runs the SLA clock: a periodic asynq scan that turns
// overdue follow-up deadlines into synthetic timeout events for the
// lead lifecycle service.
package slasched

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

const scanBatchSize = 100

// TimeoutHandler applies one synthetic timeout event to one lead.
type TimeoutHandler interface {
	HandleTimeout(ctx context.Context, leadID uuid.UUID, kind domain.TimeoutKind, firedAt time.Time) error
}

type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	repo      *repository.Repository
	timeouts  TimeoutHandler
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, timeouts TimeoutHandler, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	// Concurrency 1 serializes scan cycles. A slow cycle delays the next
	// one instead of overlapping it, so a lead is never handled twice by
	// concurrent scans.
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			"default": 1,
		},
	})

	interval := cfg.GetSchedulerInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{})
	if _, err := scheduler.Register(
		fmt.Sprintf("@every %s", interval),
		NewSLAScanTask(),
		asynq.Unique(interval),
	); err != nil {
		return nil, fmt.Errorf("register sla scan: %w", err)
	}

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		scheduler: scheduler,
		mux:       mux,
		repo:      repository.New(pool),
		timeouts:  timeouts,
		log:       log,
	}

	mux.HandleFunc(TaskSLAScan, w.handleSLAScan)
	mux.HandleFunc(TaskLeadTimeout, w.handleLeadTimeout)

	return w, nil
}

// handleSLAScan sweeps leads whose next_follow_up_at has passed and
// applies the timeout matching each lead's current status. Per-lead
// failures are logged and skipped so one bad lead cannot stall the
// whole cycle.
func (w *Worker) handleSLAScan(ctx context.Context, _ *asynq.Task) error {
	now := time.Now()

	leads, err := w.repo.ListDueFollowUps(ctx, now, scanBatchSize)
	if err != nil {
		return fmt.Errorf("list due follow-ups: %w", err)
	}
	if len(leads) == 0 {
		return nil
	}

	w.log.Info("sla scan cycle", "due", len(leads))

	for _, lead := range leads {
		kind, ok := domain.TimeoutKindFor(lead.Status)
		if !ok {
			continue
		}
		if err := w.timeouts.HandleTimeout(ctx, lead.ID, kind, now); err != nil {
			w.log.Error("timeout handling failed",
				"lead_id", lead.ID.String(),
				"kind", string(kind),
				"error", err.Error(),
			)
		}
	}

	return nil
}

// handleLeadTimeout applies a single enqueued timeout event. Used for
// targeted retries and operational replays; the periodic scan is the
// normal driver.
func (w *Worker) handleLeadTimeout(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadTimeoutPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	firedAt := time.Unix(payload.FiredAt, 0)
	if payload.FiredAt <= 0 {
		firedAt = time.Now()
	}

	return w.timeouts.HandleTimeout(ctx, leadID, domain.TimeoutKind(payload.Kind), firedAt)
}

// Run starts the periodic scheduler and the task server, blocking until
// the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.scheduler.Shutdown()
		w.server.Shutdown()
	}()

	go func() {
		if err := w.scheduler.Run(); err != nil {
			w.log.Error("sla scheduler stopped", "error", err.Error())
		}
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("sla worker stopped", "error", err.Error())
	}
}

func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
