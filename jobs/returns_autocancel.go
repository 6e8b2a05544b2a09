package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stitchworks-erp/stitchworks-erp/internal/jobs"
	"github.com/stitchworks-erp/stitchworks-erp/internal/returns"
)

// ReturnsAutoCancelPayload carries scheduling metadata.
type ReturnsAutoCancelPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReturnsAutoCancelTask constructs the nightly auto-cancel task.
func NewReturnsAutoCancelTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReturnsAutoCancelPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReturnsAutoCancel, body, asynq.Queue(QueueDefault)), nil
}

// StaleReturnCanceller cancels requested lines past the pickup deadline.
type StaleReturnCanceller interface {
	AutoCancelStale(ctx context.Context) ([]returns.BatchResult, error)
}

// ReturnsAutoCancelJob cancels return requests that never progressed to a
// pickup within the configured number of days.
type ReturnsAutoCancelJob struct {
	returns StaleReturnCanceller
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewReturnsAutoCancelJob constructs the job.
func NewReturnsAutoCancelJob(svc StaleReturnCanceller, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReturnsAutoCancelJob {
	return &ReturnsAutoCancelJob{returns: svc, logger: logger, metrics: metrics}
}

// Handle processes TaskReturnsAutoCancel tasks.
func (j *ReturnsAutoCancelJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReturnsAutoCancelPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(TaskReturnsAutoCancel)

	results, err := j.returns.AutoCancelStale(ctx)
	if err != nil {
		j.logger.Error("returns auto-cancel", slog.Any("error", err))
		return tracker.End(err)
	}

	cancelled := 0
	for _, result := range results {
		if result.OK {
			cancelled++
			continue
		}
		j.logger.Warn("auto-cancel skipped line",
			slog.Int64("line_id", result.LineID),
			slog.String("reason", result.Error))
	}
	j.metrics.AddAutoCancelled(cancelled)
	j.logger.Info("returns auto-cancel done",
		slog.Int("cancelled", cancelled),
		slog.Int("skipped", len(results)-cancelled))
	return tracker.End(nil)
}
