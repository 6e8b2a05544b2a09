package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stitchworks-erp/stitchworks-erp/internal/jobs"
	"github.com/stitchworks-erp/stitchworks-erp/internal/shared"
)

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupJob prunes processed idempotency keys past retention.
type IdempotencyCleanupJob struct {
	store   *shared.IdempotencyStore
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob constructs the job.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{store: store, logger: logger, metrics: metrics}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		payload.Retention = 30 * 24 * time.Hour
	}
	tracker := j.metrics.Track(TaskIdempotencyCleanup)

	if err := j.store.Cleanup(ctx, payload.Retention); err != nil {
		j.logger.Error("idempotency cleanup", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("idempotency cleanup done", slog.Duration("retention", payload.Retention))
	return tracker.End(nil)
}
