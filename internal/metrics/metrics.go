package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionTransitions counts RFQ state changes.
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxo_rfq_transitions_total",
			Help: "RFQ session state transitions (by from and to state).",
		},
		[]string{"from", "to"},
	)

	WindowExpiries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fxo_rfq_window_expiries_total",
			Help: "Quote windows that ran out with a quote selected.",
		},
	)

	QuoteBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fxo_rfq_quote_batch_size",
			Help:    "Number of quotes per delivered batch.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fxo_sessions_active",
			Help: "Open RFQ sessions held by the desk.",
		},
	)

	// OracleReads counts spot reads by pair and outcome.
	OracleReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxo_oracle_reads_total",
			Help: "Oracle spot reads (by pair and status).",
		},
		[]string{"pair", "status"},
	)

	SpotRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fxo_oracle_spot_rate",
			Help: "Last observed spot rate per pair; 0 when unavailable.",
		},
		[]string{"pair"},
	)

	OracleReadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fxo_oracle_read_duration_seconds",
			Help:    "Duration of oracle contract reads in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"pair"},
	)

	// HTTPRequestsTotal tracks outbound collaborator API calls.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxo_http_requests_total",
			Help: "Outbound HTTP requests (by venue and status).",
		},
		[]string{"venue", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fxo_http_request_duration_seconds",
			Help:    "Duration of outbound HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"venue"},
	)

	NATSMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxo_nats_messages_total",
			Help: "NATS publishes (by subject and status).",
		},
		[]string{"subject", "status"},
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fxo_nats_publish_duration_seconds",
			Help:    "NATS publish latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// DroppedEvents counts session events a slow sink could not accept.
	DroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxo_events_dropped_total",
			Help: "Events dropped because a sink queue was full.",
		},
		[]string{"sink"},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxo_errors_total",
			Help: "Errors by component and kind.",
		},
		[]string{"component", "kind"},
	)
)

func IncTransition(from, to string) {
	SessionTransitions.WithLabelValues(from, to).Inc()
}

func IncWindowExpired() {
	WindowExpiries.Inc()
}

func ObserveQuoteBatch(n int) {
	QuoteBatchSize.Observe(float64(n))
}

func SetActiveSessions(n int) {
	ActiveSessions.Set(float64(n))
}

func IncOracleRead(pair, status string) {
	OracleReads.WithLabelValues(pair, status).Inc()
}

// SetSpotRate records the pair's rate; unavailable is recorded as 0.
func SetSpotRate(pair string, rate float64, ok bool) {
	if !ok {
		rate = 0
	}
	SpotRate.WithLabelValues(pair).Set(rate)
}

func IncHTTPRequest(venue, status string) {
	HTTPRequestsTotal.WithLabelValues(venue, status).Inc()
}

func IncNATSMessage(subject, status string) {
	NATSMessages.WithLabelValues(subject, status).Inc()
}

func IncDroppedEvent(sink string) {
	DroppedEvents.WithLabelValues(sink).Inc()
}

func IncError(component, kind string) {
	Errors.WithLabelValues(component, kind).Inc()
}

// ObserveDuration records elapsed time since start into a HistogramVec or SummaryVec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()
	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}
