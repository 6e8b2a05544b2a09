package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/stitchworks-erp/stitchworks-erp/internal/jobs"
	"github.com/stitchworks-erp/stitchworks-erp/internal/returns"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubCanceller struct {
	results []returns.BatchResult
	err     error
	calls   int
}

func (s *stubCanceller) AutoCancelStale(ctx context.Context) ([]returns.BatchResult, error) {
	s.calls++
	return s.results, s.err
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() == name {
			return fam.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

func TestReturnsAutoCancelHandle(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	canceller := &stubCanceller{results: []returns.BatchResult{
		{LineID: 1, OK: true},
		{LineID: 2, OK: true},
		{LineID: 3, OK: false, Error: "receive pending"},
	}}
	job := NewReturnsAutoCancelJob(canceller, newTestLogger(), metrics)

	task, err := NewReturnsAutoCancelTask(time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, canceller.calls)
	require.Equal(t, float64(2), counterValue(t, registry, "stitchworks_returns_autocancelled_total"))
}

func TestReturnsAutoCancelHandlePropagatesError(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	canceller := &stubCanceller{err: errors.New("db down")}
	job := NewReturnsAutoCancelJob(canceller, newTestLogger(), metrics)

	task, err := NewReturnsAutoCancelTask(time.Now().UTC())
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
}

func TestReturnsAutoCancelHandleSkipsBadPayload(t *testing.T) {
	canceller := &stubCanceller{}
	job := NewReturnsAutoCancelJob(canceller, newTestLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	bad := asynq.NewTask(TaskReturnsAutoCancel, []byte("{not json"))
	err := job.Handle(context.Background(), bad)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, canceller.calls)
}
