package outbox

import (
	"context"
	"time"
)

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordOutboxLag(lag int)
	RecordPublishAttempt(eventType string, attempt int, success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
}
func (n *NoOpMetricsCollector) RecordBatchProcessed(count int, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordOutboxLag(lag int)                                {}
func (n *NoOpMetricsCollector) RecordPublishAttempt(eventType string, attempt int, success bool) {
}

// MetricPublisher wraps a Publisher with metrics collection
type MetricPublisher struct {
	publisher Publisher
	metrics   MetricsCollector
}

func NewMetricPublisher(publisher Publisher, metrics MetricsCollector) *MetricPublisher {
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	start := time.Now()

	err := p.publisher.Publish(ctx, event)

	p.metrics.RecordEventProcessed(event.EventType(), err == nil, time.Since(start))
	return err
}
