package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names.
const (
	MetricGuardTotal     = "servalguard.guard.total"
	MetricGuardDuration  = "servalguard.guard.duration"
	MetricStageDuration  = "servalguard.stage.duration"
	MetricSnapshotsTotal = "servalguard.snapshot.total"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Recorder implements engine.Metrics on an OpenTelemetry meter.
type Recorder struct {
	guards    metric.Int64Counter
	guardDur  metric.Float64Histogram
	stageDur  metric.Float64Histogram
	snapshots metric.Int64Counter
}

// NewRecorder registers the guard instruments on m.
func NewRecorder(m metric.Meter) (*Recorder, error) {
	var (
		r   Recorder
		err error
	)
	r.guards, err = m.Int64Counter(MetricGuardTotal,
		metric.WithDescription("Guarded mutations by action kind and outcome"),
		metric.WithUnit("{mutation}"))
	if err != nil {
		return nil, err
	}
	r.guardDur, err = m.Float64Histogram(MetricGuardDuration,
		metric.WithDescription("End-to-end guard latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	if err != nil {
		return nil, err
	}
	r.stageDur, err = m.Float64Histogram(MetricStageDuration,
		metric.WithDescription("Latency of individual guard stages"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	if err != nil {
		return nil, err
	}
	r.snapshots, err = m.Int64Counter(MetricSnapshotsTotal,
		metric.WithDescription("Snapshot attempts by outcome"),
		metric.WithUnit("{snapshot}"))
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GuardCompleted counts one guard call and records its latency.
func (r *Recorder) GuardCompleted(ctx context.Context, action, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	)
	r.guards.Add(ctx, 1, attrs)
	r.guardDur.Record(ctx, d.Seconds(), attrs)
}

// StageCompleted records one stage latency.
func (r *Recorder) StageCompleted(ctx context.Context, stage string, d time.Duration) {
	r.stageDur.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// SnapshotAttempted counts a snapshot attempt.
func (r *Recorder) SnapshotAttempted(ctx context.Context, outcome string) {
	r.snapshots.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
