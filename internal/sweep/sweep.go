// Package sweep is the batch entry point behind "quill sweep". One invocation
// syncs due Notion references and then drains the generation queue, guarded by
// a file lock so overlapping cron runs exit cleanly instead of racing.
package sweep

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"quill/internal/config"
	"quill/internal/generation"
	"quill/internal/logging"
	"quill/internal/notionsync"
	"quill/internal/services"
)

// Runner executes one sweep: sync first so detected changes enqueue work the
// same invocation can drain, then queue processing until idle.
type Runner struct {
	cfg    *config.Config
	engine *notionsync.Engine
	svc    *generation.Service
	lock   *flock.Flock
	logger *slog.Logger
}

// Result summarizes one sweep invocation.
type Result struct {
	RunID      string                `json:"run_id"`
	Skipped    bool                  `json:"skipped"`
	SyncStats  notionsync.SweepStats `json:"sync"`
	QueueStats generation.Stats      `json:"queue"`
	Duration   time.Duration         `json:"duration"`
}

// NewRunner constructs a sweep runner. The lock file lives under the data
// directory next to the database.
func NewRunner(cfg *config.Config, engine *notionsync.Engine, svc *generation.Service, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		engine: engine,
		svc:    svc,
		lock:   flock.New(filepath.Join(cfg.Paths.DataDir, "sweep.lock")),
		logger: logging.NewComponentLogger(logger, "sweep"),
	}
}

// Run performs one full sweep. A concurrent invocation holding the lock is
// not an error: the result comes back with Skipped set and nothing else done.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}
	started := time.Now()

	held, err := r.lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "sweep", "lock", "acquire sweep lock", err)
	}
	if !held {
		r.logger.Info("sweep already running, skipping", logging.String("run_id", result.RunID))
		result.Skipped = true
		return result, nil
	}
	defer func() {
		if err := r.lock.Unlock(); err != nil {
			r.logger.Warn("release sweep lock failed", logging.Error(err))
		}
	}()

	log := r.logger.With(logging.String("run_id", result.RunID))
	log.Info("sweep started")

	syncStats, err := r.engine.SyncAllActiveReferences(ctx, r.cfg.Sync.BatchSize, r.cfg.Sync.MaxRetries)
	if err != nil {
		return nil, err
	}
	result.SyncStats = syncStats

	if err := r.drainQueue(ctx, log); err != nil {
		return nil, err
	}

	queueStats, err := r.svc.Stats(ctx)
	if err != nil {
		return nil, err
	}
	result.QueueStats = queueStats
	result.Duration = time.Since(started)

	log.Info("sweep finished",
		logging.Int("synced", syncStats.Scanned),
		logging.Int("changed", syncStats.Changed),
		logging.Int("queue_completed", queueStats.Completed),
		logging.Int("queue_failed", queueStats.Failed),
		logging.Duration("duration", result.Duration))
	return result, nil
}

// drainQueue runs processing passes until a pass picks up nothing. Entries
// rescheduled into the future stay pending for the next invocation.
func (r *Runner) drainQueue(ctx context.Context, log *slog.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		picked, err := r.svc.ProcessQueue(ctx, r.cfg.Queue.MaxConcurrent)
		if err != nil {
			return err
		}
		if picked == 0 {
			return nil
		}
		log.Debug("queue pass finished", logging.Int("picked", picked))
	}
}
