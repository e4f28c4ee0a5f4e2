package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photobox_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"service", "method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photobox_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "route"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photobox_api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"service", "scope"},
	)

	BoothTokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photobox_booth_token_exchanges_total",
			Help: "Booth code exchanges by outcome",
		},
		[]string{"outcome"},
	)

	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photobox_login_attempts_total",
			Help: "Dashboard login attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photobox_gateway_request_duration_seconds",
			Help:    "Payment gateway request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status_code"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photobox_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photobox_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	RealtimeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photobox_realtime_sessions",
			Help: "Open realtime sessions",
		},
	)

	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photobox_realtime_dropped_messages_total",
			Help: "Messages dropped for slow realtime clients",
		},
	)

	SweeperRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photobox_sweeper_runs_total",
			Help: "Orphan sweeper runs by outcome",
		},
		[]string{"outcome"},
	)

	SweeperDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photobox_sweeper_deleted_documents_total",
			Help: "Documents removed by the orphan sweeper",
		},
	)
)

func RecordAPIRequest(service, method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(service, method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(service, method, route).Observe(duration.Seconds())
}

func RecordGatewayRequest(status int, duration time.Duration) {
	GatewayRequestDuration.WithLabelValues(strconv.Itoa(status)).Observe(duration.Seconds())
}
