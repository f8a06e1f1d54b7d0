package observability

import "go.opentelemetry.io/otel/metric"

// Metrics holds every agentcore metric instrument.
type Metrics struct {
	EventsWritten      metric.Int64Counter
	EventWriteRetries  metric.Int64Counter
	EventsFallbackDrop metric.Int64Counter
	FallbackQueueDepth metric.Int64UpDownCounter
	TaskDuration       metric.Float64Histogram
	TasksActive        metric.Int64UpDownCounter
	TasksStarted       metric.Int64Counter
	WatchersActive     metric.Int64UpDownCounter
	SSEStreamDuration  metric.Float64Histogram
	RegistryGCEvicted  metric.Int64Counter
}

// NewMetrics creates every metric instrument from meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.EventsWritten, err = meter.Int64Counter("agentcore.events.written",
		metric.WithDescription("Events successfully persisted to the event store"),
	); err != nil {
		return nil, err
	}

	if m.EventWriteRetries, err = meter.Int64Counter("agentcore.events.write_retries",
		metric.WithDescription("Retry attempts made by the robust writer"),
	); err != nil {
		return nil, err
	}

	if m.EventsFallbackDrop, err = meter.Int64Counter("agentcore.events.fallback_dropped",
		metric.WithDescription("Events lost because the fallback queue was full"),
	); err != nil {
		return nil, err
	}

	if m.FallbackQueueDepth, err = meter.Int64UpDownCounter("agentcore.writer.fallback_depth",
		metric.WithDescription("Current depth of the writer's fallback queue"),
	); err != nil {
		return nil, err
	}

	if m.TaskDuration, err = meter.Float64Histogram("agentcore.task.duration",
		metric.WithDescription("Agent task execution duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.TasksActive, err = meter.Int64UpDownCounter("agentcore.task.active",
		metric.WithDescription("Number of currently running agent tasks"),
	); err != nil {
		return nil, err
	}

	if m.TasksStarted, err = meter.Int64Counter("agentcore.task.started",
		metric.WithDescription("Total agent tasks started"),
	); err != nil {
		return nil, err
	}

	if m.WatchersActive, err = meter.Int64UpDownCounter("agentcore.watcher.active",
		metric.WithDescription("Number of currently active stream watchers"),
	); err != nil {
		return nil, err
	}

	if m.SSEStreamDuration, err = meter.Float64Histogram("agentcore.sse.duration",
		metric.WithDescription("SSE connection lifetime in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.RegistryGCEvicted, err = meter.Int64Counter("agentcore.registry.gc_evicted",
		metric.WithDescription("Completed tasks evicted by registry GC"),
	); err != nil {
		return nil, err
	}

	return m, nil
}
