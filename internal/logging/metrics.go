package logging

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the service instruments. A nil *Metrics records nothing.
type Metrics struct {
	tasksStarted   metric.Int64Counter
	tasksCompleted metric.Int64Counter
	tasksFailed    metric.Int64Counter
	duration       metric.Float64Histogram
	infoCacheHits  metric.Int64Counter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	started, err := meter.Int64Counter("ytdl_tasks_started_total",
		metric.WithDescription("Download tasks accepted"))
	if err != nil {
		return nil, err
	}
	completed, err := meter.Int64Counter("ytdl_tasks_completed_total",
		metric.WithDescription("Download tasks that produced an artifact"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("ytdl_tasks_failed_total",
		metric.WithDescription("Download tasks that ended failed, by failure kind"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("ytdl_download_duration_seconds",
		metric.WithDescription("Wall time of a download from launch to final state"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	hits, err := meter.Int64Counter("ytdl_video_info_cache_hits_total",
		metric.WithDescription("Video info lookups answered from the cache"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		tasksStarted:   started,
		tasksCompleted: completed,
		tasksFailed:    failed,
		duration:       duration,
		infoCacheHits:  hits,
	}, nil
}

func (m *Metrics) TaskStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.tasksStarted.Add(ctx, 1)
}

func (m *Metrics) TaskCompleted(ctx context.Context, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tasksCompleted.Add(ctx, 1)
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("status", "completed")))
}

func (m *Metrics) TaskFailed(ctx context.Context, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tasksFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("failure", kind)))
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("status", "failed")))
}

func (m *Metrics) InfoCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.infoCacheHits.Add(ctx, 1)
}
