package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seedwarden",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "seedwarden",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"method", "path"})

	PollCyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "seedwarden",
		Name:      "poll_cycles_total",
		Help:      "Total number of monitor poll cycles started.",
	})

	PollFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "seedwarden",
		Name:      "poll_failures_total",
		Help:      "Total number of poll cycles that could not collect transfers.",
	})

	PollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "seedwarden",
		Name:      "poll_duration_seconds",
		Help:      "Duration of a full poll cycle in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	EscalationActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seedwarden",
		Name:      "escalation_actions_total",
		Help:      "Total stall escalation actions by action.",
	}, []string{"action"})

	CommandFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seedwarden",
		Name:      "command_failures_total",
		Help:      "Total failed torrent client commands by command.",
	}, []string{"command"})

	StallLedgerSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "seedwarden",
		Name:      "stall_ledger_size",
		Help:      "Number of transfers currently tracked as stalled.",
	})

	TransfersByCategory = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "seedwarden",
		Name:      "transfers",
		Help:      "Number of transfers by category as of the last poll.",
	}, []string{"category"})

	GlobalRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "seedwarden",
		Name:      "global_ratio",
		Help:      "Total uploaded divided by total downloaded across all transfers.",
	})

	PriorityAssignmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seedwarden",
		Name:      "priority_assignments_total",
		Help:      "Total priority tier assignments issued by the optimizer.",
	}, []string{"tier"})

	StatsCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "seedwarden",
		Name:      "stats_cache_hits_total",
		Help:      "Total number of statistics served from cache.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PollCyclesTotal,
		PollFailuresTotal,
		PollDuration,
		EscalationActionsTotal,
		CommandFailuresTotal,
		StallLedgerSize,
		TransfersByCategory,
		GlobalRatio,
		PriorityAssignmentsTotal,
		StatsCacheHitsTotal,
	)
}
