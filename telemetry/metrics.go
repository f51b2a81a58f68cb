package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// CommandBuckets for pass-through commands (one store round trip plus dispatch)
	CommandBuckets = []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1}

	// AggregationBuckets for aggregator invocations (one round trip per word plus publish)
	AggregationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
)

// Command Metrics
var (
	// CommandsTotal counts STREAM requests by sub-command and result
	CommandsTotal CounterVec = noopCounterVec{}

	// CommandDurationSeconds measures request latency by sub-command
	CommandDurationSeconds HistogramVec = noopHistogramVec{}

	// ClientConnections tracks open client connections
	ClientConnections Gauge = NoopStat{}
)

// Filter Metrics
var (
	// FilterDeclarationsTotal counts declarations by key type and result (added, duplicate, rejected)
	FilterDeclarationsTotal CounterVec = noopCounterVec{}

	// FilterMatchesTotal counts dispatches that found a matching filter, by key type
	FilterMatchesTotal CounterVec = noopCounterVec{}

	// RegisteredFilters tracks declared filters per key type
	RegisteredFilters GaugeVec = noopGaugeVec{}
)

// Aggregation Metrics
var (
	// AggregationsTotal counts aggregator invocations by function and result
	AggregationsTotal CounterVec = noopCounterVec{}

	// AggregationDurationSeconds measures aggregator latency by function
	AggregationDurationSeconds HistogramVec = noopHistogramVec{}

	// WordsCountedTotal counts tokens whose counters were incremented
	WordsCountedTotal Counter = NoopStat{}
)

// Publishing Metrics
var (
	// NotificationsTotal counts notifications by target (channel, outbox, sink) and result
	NotificationsTotal CounterVec = noopCounterVec{}

	// PublishLogSeq tracks the last sequence number appended to the publish log
	PublishLogSeq Gauge = NoopStat{}

	// SinkLag tracks outbox entries not yet delivered, per sink
	SinkLag GaugeVec = noopGaugeVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after the registry exists.
func InitMetrics() {
	CommandsTotal = NewCounterVec(
		"commands_total",
		"Total STREAM requests by sub-command and result",
		[]string{"command", "result"},
	)
	CommandDurationSeconds = NewHistogramVec(
		"command_duration_seconds",
		"STREAM request duration in seconds",
		[]string{"command"},
		CommandBuckets,
	)
	ClientConnections = NewGauge(
		"client_connections",
		"Number of open client connections",
	)

	FilterDeclarationsTotal = NewCounterVec(
		"filter_declarations_total",
		"Filter declarations by key type and result",
		[]string{"type", "result"},
	)
	FilterMatchesTotal = NewCounterVec(
		"filter_matches_total",
		"Mutations routed to a filter, by key type",
		[]string{"type"},
	)
	RegisteredFilters = NewGaugeVec(
		"registered_filters",
		"Declared filters per key type",
		[]string{"type"},
	)

	AggregationsTotal = NewCounterVec(
		"aggregations_total",
		"Aggregator invocations by function and result",
		[]string{"function", "result"},
	)
	AggregationDurationSeconds = NewHistogramVec(
		"aggregation_duration_seconds",
		"Aggregator invocation duration in seconds",
		[]string{"function"},
		AggregationBuckets,
	)
	WordsCountedTotal = NewCounter(
		"words_counted_total",
		"Total tokens whose counters were incremented",
	)

	NotificationsTotal = NewCounterVec(
		"notifications_total",
		"Notifications by target and result",
		[]string{"target", "result"},
	)
	PublishLogSeq = NewGauge(
		"publish_log_seq",
		"Last sequence number appended to the publish log",
	)
	SinkLag = NewGaugeVec(
		"sink_lag",
		"Outbox entries a sink has yet to deliver",
		[]string{"sink"},
	)
}
