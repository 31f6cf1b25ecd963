package telemetry

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metric names.
const (
	MetricClaimed          = "orchestrator.tasks.claimed"
	MetricClaimMisses      = "orchestrator.tasks.claim_misses"
	MetricCompleted        = "orchestrator.tasks.completed"
	MetricFailed           = "orchestrator.tasks.failed"
	MetricSnapshotFailures = "orchestrator.snapshot.failures"
)

// Counts is a point-in-time copy of the in-process counters.
type Counts struct {
	Claimed          int64 `json:"claimed"`
	ClaimMisses      int64 `json:"claim_misses"`
	Completed        int64 `json:"completed"`
	Failed           int64 `json:"failed"`
	SnapshotFailures int64 `json:"snapshot_failures"`
}

// Metrics records orchestrator counters.
type Metrics struct {
	claimed          metric.Int64Counter
	claimMisses      metric.Int64Counter
	completed        metric.Int64Counter
	failed           metric.Int64Counter
	snapshotFailures metric.Int64Counter

	nClaimed, nMisses, nCompleted, nFailed, nSnapshot atomic.Int64
}

// NewMetrics creates the counters on a meter from mp.
// A nil provider uses a no-op meter.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter("github.com/vinayprograms/orchestrator")

	m := &Metrics{}
	var err error
	if m.claimed, err = meter.Int64Counter(MetricClaimed,
		metric.WithDescription("Tasks handed out by claim")); err != nil {
		return nil, err
	}
	if m.claimMisses, err = meter.Int64Counter(MetricClaimMisses,
		metric.WithDescription("Claims that found no eligible task")); err != nil {
		return nil, err
	}
	if m.completed, err = meter.Int64Counter(MetricCompleted,
		metric.WithDescription("Tasks completed by their assignee")); err != nil {
		return nil, err
	}
	if m.failed, err = meter.Int64Counter(MetricFailed,
		metric.WithDescription("Tasks failed by their assignee")); err != nil {
		return nil, err
	}
	if m.snapshotFailures, err = meter.Int64Counter(MetricSnapshotFailures,
		metric.WithDescription("Snapshot writes that did not reach storage")); err != nil {
		return nil, err
	}
	return m, nil
}

// NopMetrics returns metrics that only keep the in-process counts.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(nil)
	return m
}

// Claimed records a successful claim.
func (m *Metrics) Claimed(ctx context.Context, workerID string) {
	m.nClaimed.Add(1)
	m.claimed.Add(ctx, 1, metric.WithAttributes(attribute.String("worker", workerID)))
}

// ClaimMiss records a claim that returned nothing.
func (m *Metrics) ClaimMiss(ctx context.Context) {
	m.nMisses.Add(1)
	m.claimMisses.Add(ctx, 1)
}

// Completed records a completed task.
func (m *Metrics) Completed(ctx context.Context) {
	m.nCompleted.Add(1)
	m.completed.Add(ctx, 1)
}

// Failed records a failed task.
func (m *Metrics) Failed(ctx context.Context) {
	m.nFailed.Add(1)
	m.failed.Add(ctx, 1)
}

// SnapshotFailure records a snapshot write failure.
func (m *Metrics) SnapshotFailure(ctx context.Context) {
	m.nSnapshot.Add(1)
	m.snapshotFailures.Add(ctx, 1)
}

// Counts returns the in-process counters.
func (m *Metrics) Counts() Counts {
	return Counts{
		Claimed:          m.nClaimed.Load(),
		ClaimMisses:      m.nMisses.Load(),
		Completed:        m.nCompleted.Load(),
		Failed:           m.nFailed.Load(),
		SnapshotFailures: m.nSnapshot.Load(),
	}
}
