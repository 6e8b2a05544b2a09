package jobs

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReturnsAutoCancel cancels stale return requests nightly.
	TaskReturnsAutoCancel = "returns:auto_cancel"
	// TaskIdempotencyCleanup prunes aged idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)
