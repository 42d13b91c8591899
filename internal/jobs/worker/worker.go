package worker

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/jobs/runtime"
	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/repos"
	"github.com/courseloop/courseloop-backend/internal/types"
	"github.com/courseloop/courseloop-backend/internal/utils"
)

type Config struct {
	PollInterval time.Duration
	// MaxAttempts counts claims, not failures; 1 means a failed run sits
	// until something external re-triggers it. That is the default here:
	// the certificate pipeline sends email and must not be replayed by a
	// scheduler.
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
	Concurrency  int
}

func ConfigFromEnv(log *logger.Logger) Config {
	return Config{
		PollInterval: time.Duration(utils.GetEnvAsInt("WORKER_POLL_INTERVAL_MS", 1000, log)) * time.Millisecond,
		MaxAttempts:  utils.GetEnvAsInt("WORKER_MAX_ATTEMPTS", 1, log),
		RetryDelay:   time.Duration(utils.GetEnvAsInt("WORKER_RETRY_DELAY_SECONDS", 30, log)) * time.Second,
		StaleRunning: time.Duration(utils.GetEnvAsInt("WORKER_STALE_RUNNING_SECONDS", 120, log)) * time.Second,
		Concurrency:  utils.GetEnvAsInt("WORKER_CONCURRENCY", 2, log),
	}
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	cfg      Config
}

func New(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		cfg:      cfg,
	}
}

// Start launches the poll loops. Each goroutine claims jobs with SKIP
// LOCKED so the pool scales without double-claiming. Returns immediately;
// cancel ctx to stop.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.Concurrency; i++ {
		go w.loop(ctx)
	}
	w.log.Info("Job worker started", "concurrency", w.cfg.Concurrency, "poll_interval", w.cfg.PollInterval.String())
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(ctx, w.db, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.dispatch(ctx, job)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, job *types.JobRun) {
	h, ok := w.registry.Get(job.JobType)
	jc := runtime.NewContext(ctx, w.db, job, w.repo)
	if !ok {
		w.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
			jc.Fail("panic", fmt.Errorf("panic: %v", r))
		}
	}()

	if err := h.Run(jc); err != nil {
		// Handlers terminate their own runs via jc.Fail/Succeed; an
		// escaped error means they didn't, so close it out here.
		w.log.Error("Job handler returned error", "job_id", job.ID, "job_type", job.JobType, "error", err)
		if job.Status == types.JobStatusRunning {
			jc.Fail(job.Stage, err)
		}
	}
}
