package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goalstake",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "goalstake",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method", "path"},
	)

	goalTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goalstake",
			Name:      "goal_transitions_total",
			Help:      "Committed goal status transitions.",
		},
		[]string{"from", "to"},
	)

	transitionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "goalstake",
			Name:      "goal_transition_conflicts_total",
			Help:      "Conditional status writes lost to a concurrent writer.",
		},
	)

	verdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goalstake",
			Subsystem: "validator",
			Name:      "verdicts_total",
			Help:      "Validator verdicts by outcome.",
		},
		[]string{"verdict", "timed_out"},
	)

	payouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goalstake",
			Subsystem: "settlement",
			Name:      "payouts_total",
			Help:      "Payout transfers by type and result.",
		},
		[]string{"type", "result"},
	)

	settlementRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goalstake",
			Subsystem: "settlement",
			Name:      "runs_total",
			Help:      "Cohort settlement runs by result.",
		},
		[]string{"result"},
	)

	settlementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "goalstake",
			Subsystem: "settlement",
			Name:      "run_duration_seconds",
			Help:      "Duration of cohort settlement runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goalstake",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs.",
		},
		[]string{"job", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		goalTransitions,
		transitionConflicts,
		verdicts,
		payouts,
		settlementRuns,
		settlementDuration,
		jobRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

func RecordTransition(from, to string) {
	goalTransitions.WithLabelValues(from, to).Inc()
}

func RecordTransitionConflict() {
	transitionConflicts.Inc()
}

func RecordVerdict(verdict string, timedOut bool) {
	verdicts.WithLabelValues(verdict, strconv.FormatBool(timedOut)).Inc()
}

func RecordPayout(payoutType, result string) {
	payouts.WithLabelValues(payoutType, result).Inc()
}

func RecordSettlement(result string, duration time.Duration) {
	settlementRuns.WithLabelValues(result).Inc()
	settlementDuration.Observe(duration.Seconds())
}

func RecordJob(job string, success bool) {
	jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canonicalPath collapses identifiers so label cardinality stays bounded:
// /api/goals/<id>/proofs becomes /api/goals/:id/proofs.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) > 5 {
		parts = parts[:5]
	}
	if len(parts) >= 3 && parts[0] == "api" {
		switch parts[1] {
		case "goals":
			parts[2] = ":id"
		case "cohorts":
			parts[2] = ":date"
		}
	}
	return "/" + strings.Join(parts, "/")
}
