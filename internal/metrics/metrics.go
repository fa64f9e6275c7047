package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/cdnflow/pkg/schema"
)

// Outcome label values.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
)

// Metrics holds the Prometheus collectors of the process. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// IntentTotal counts dispatched collection intents.
	IntentTotal *prometheus.CounterVec
	// SavedWorkflows is the size of the saved collection.
	SavedWorkflows prometheus.Gauge
	// StoreWriteTotal counts background persistence writes.
	StoreWriteTotal *prometheus.CounterVec
	// RunTotal counts finished simulation runs.
	RunTotal *prometheus.CounterVec
	// RunDuration observes wall time of finished simulation runs.
	RunDuration prometheus.Histogram
	// NodeTransitionTotal counts node status transitions applied by runs.
	NodeTransitionTotal *prometheus.CounterVec
	// BackupTotal counts scheduled backup passes.
	BackupTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg gets a
// fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		IntentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdnflow_intent_total",
				Help: "Total number of collection intents dispatched",
			},
			[]string{"intent", "outcome"},
		),
		SavedWorkflows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cdnflow_saved_workflows",
				Help: "Number of saved workflow documents",
			},
		),
		StoreWriteTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdnflow_store_write_total",
				Help: "Total number of background record writes",
			},
			[]string{"op", "outcome"},
		),
		RunTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdnflow_run_total",
				Help: "Total number of finished simulation runs",
			},
			[]string{"outcome"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cdnflow_run_duration_seconds",
				Help:    "Wall time of finished simulation runs",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		NodeTransitionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdnflow_node_transition_total",
				Help: "Total number of node status transitions applied by runs",
			},
			[]string{"status"},
		),
		BackupTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdnflow_backup_total",
				Help: "Total number of scheduled backup passes",
			},
			[]string{"outcome"},
		),
		gatherer: reg,
	}
	reg.MustRegister(
		m.IntentTotal,
		m.SavedWorkflows,
		m.StoreWriteTotal,
		m.RunTotal,
		m.RunDuration,
		m.NodeTransitionTotal,
		m.BackupTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveIntent records one dispatched intent.
func (m *Metrics) ObserveIntent(intent string, err error) {
	if m == nil {
		return
	}
	m.IntentTotal.WithLabelValues(intent, outcome(err)).Inc()
}

// SetSavedWorkflows records the saved collection size.
func (m *Metrics) SetSavedWorkflows(n int) {
	if m == nil {
		return
	}
	m.SavedWorkflows.Set(float64(n))
}

// ObserveWrite records one background write. Its signature matches
// store.WriterConfig.OnWrite.
func (m *Metrics) ObserveWrite(_ string, deleted bool, err error) {
	if m == nil {
		return
	}
	op := "put"
	if deleted {
		op = "delete"
	}
	m.StoreWriteTotal.WithLabelValues(op, outcome(err)).Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status schema.ExecutionStatus, d time.Duration) {
	if m == nil {
		return
	}
	o := OutcomeCompleted
	if status == schema.ExecutionCancelled {
		o = OutcomeStopped
	}
	m.RunTotal.WithLabelValues(o).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// ObserveTransition records one node status transition.
func (m *Metrics) ObserveTransition(status schema.NodeStatus) {
	if m == nil {
		return
	}
	m.NodeTransitionTotal.WithLabelValues(string(status)).Inc()
}

// ObserveBackup records one backup pass.
func (m *Metrics) ObserveBackup(err error) {
	if m == nil {
		return
	}
	m.BackupTotal.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
