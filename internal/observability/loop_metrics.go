package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LoopCollector exposes metrics for the background reconciliation loops,
// the geo sync loops and the telemetry side-channel.
type LoopCollector struct {
	gatherer prometheus.Gatherer

	PendingRequests    *prometheus.GaugeVec
	Submissions        *prometheus.CounterVec
	Decisions          *prometheus.CounterVec
	Expirations        *prometheus.CounterVec
	WriteFailures      *prometheus.CounterVec
	IterationDurations *prometheus.HistogramVec
	GeoPushes          *prometheus.CounterVec
	TelemetryPublishes *prometheus.CounterVec
}

// NewLoopCollector registers loop metrics against the provided registerer.
func NewLoopCollector(reg prometheus.Registerer) (*LoopCollector, error) {
	reg, gatherer := resolveRegistry(reg)

	pending, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reconciler_pending_requests",
		Help: "Requests submitted to the regional authority and awaiting a decision.",
	}, []string{"workflow"}), "reconciler_pending_requests")
	if err != nil {
		return nil, err
	}

	submissions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_submissions_total",
		Help: "Submissions to the regional authority, labeled by outcome.",
	}, []string{"workflow", "result"}), "reconciler_submissions_total")
	if err != nil {
		return nil, err
	}

	decisions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_decisions_total",
		Help: "Terminal authority decisions observed, labeled by decision.",
	}, []string{"workflow", "decision"}), "reconciler_decisions_total")
	if err != nil {
		return nil, err
	}

	expirations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_expirations_total",
		Help: "Requests whose departure passed before a decision arrived.",
	}, []string{"workflow"}), "reconciler_expirations_total")
	if err != nil {
		return nil, err
	}

	writeFailures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_write_failures_total",
		Help: "Decision write-backs to the record store that failed or were rejected.",
	}, []string{"workflow"}), "reconciler_write_failures_total")
	if err != nil {
		return nil, err
	}

	iterations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loop_iteration_duration_seconds",
		Help:    "Duration of one background loop iteration.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"loop"}), "loop_iteration_duration_seconds")
	if err != nil {
		return nil, err
	}

	pushes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_sync_pushes_total",
		Help: "Geo sync push attempts to the geospatial service, labeled by dataset and status.",
	}, []string{"dataset", "status"}), "geo_sync_pushes_total")
	if err != nil {
		return nil, err
	}

	publishes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_publishes_total",
		Help: "Best-effort telemetry publishes to the message queue, labeled by result.",
	}, []string{"result"}), "telemetry_publishes_total")
	if err != nil {
		return nil, err
	}

	return &LoopCollector{
		gatherer:           gatherer,
		PendingRequests:    pending,
		Submissions:        submissions,
		Decisions:          decisions,
		Expirations:        expirations,
		WriteFailures:      writeFailures,
		IterationDurations: iterations,
		GeoPushes:          pushes,
		TelemetryPublishes: publishes,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *LoopCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// SetPending updates the pending gauge for workflow.
func (c *LoopCollector) SetPending(workflow string, count int) {
	if c == nil || c.PendingRequests == nil {
		return
	}
	c.PendingRequests.WithLabelValues(workflow).Set(float64(count))
}

// IncSubmission counts a submission attempt with its result ("ok" or "error").
func (c *LoopCollector) IncSubmission(workflow, result string) {
	if c == nil || c.Submissions == nil {
		return
	}
	c.Submissions.WithLabelValues(workflow, result).Inc()
}

// IncDecision counts a terminal decision.
func (c *LoopCollector) IncDecision(workflow, decision string) {
	if c == nil || c.Decisions == nil {
		return
	}
	c.Decisions.WithLabelValues(workflow, decision).Inc()
}

// IncExpiration counts a request dropped because its departure passed.
func (c *LoopCollector) IncExpiration(workflow string) {
	if c == nil || c.Expirations == nil {
		return
	}
	c.Expirations.WithLabelValues(workflow).Inc()
}

// IncWriteFailure counts a failed decision write-back.
func (c *LoopCollector) IncWriteFailure(workflow string) {
	if c == nil || c.WriteFailures == nil {
		return
	}
	c.WriteFailures.WithLabelValues(workflow).Inc()
}

// ObserveIteration records how long one loop iteration took.
func (c *LoopCollector) ObserveIteration(loop string, d time.Duration) {
	if c == nil || c.IterationDurations == nil {
		return
	}
	c.IterationDurations.WithLabelValues(loop).Observe(d.Seconds())
}

// IncGeoPush counts a geo sync push outcome.
func (c *LoopCollector) IncGeoPush(dataset, status string) {
	if c == nil || c.GeoPushes == nil {
		return
	}
	c.GeoPushes.WithLabelValues(dataset, status).Inc()
}

// IncTelemetryPublish counts a telemetry publish outcome.
func (c *LoopCollector) IncTelemetryPublish(result string) {
	if c == nil || c.TelemetryPublishes == nil {
		return
	}
	c.TelemetryPublishes.WithLabelValues(result).Inc()
}
