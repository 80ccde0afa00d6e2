package observability

import (
	"context"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "tutorgraph"

// Metrics holds the Prometheus collectors fed by the engine hooks.
type Metrics struct {
	NodeVisits   *prometheus.CounterVec
	NodeErrors   *prometheus.CounterVec
	NodeDuration *prometheus.HistogramVec
	Decisions    *prometheus.CounterVec
	Runs         prometheus.Counter
	RunSteps     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "node_visits_total",
			Help:      "Total number of node executions.",
		}, []string{"node_id", "kind"}),
		NodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "node_errors_total",
			Help:      "Total number of failed node executions.",
		}, []string{"node_id"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "node_duration_seconds",
			Help:      "Duration of node executions.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"node_id"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decisions_total",
			Help:      "Routing decisions by source node and route.",
		}, []string{"from", "route"}),
		Runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Total number of runs that reached HALT.",
		}),
		RunSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_steps",
			Help:      "Number of steps per completed run.",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.NodeVisits, m.NodeErrors, m.NodeDuration, m.Decisions, m.Runs, m.RunSteps}
}

// Hooks returns lifecycle hooks that record into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(string(e.NodeID), string(e.NodeKind)).Inc()
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			m.NodeDuration.WithLabelValues(string(e.NodeID)).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.NodeErrors.WithLabelValues(string(e.NodeID)).Inc()
			}
		},
		OnDecision: func(ctx context.Context, e *domain.DecisionEvent) {
			m.Decisions.WithLabelValues(string(e.From), string(e.Route)).Inc()
		},
		OnHalt: func(ctx context.Context, e *domain.HaltEvent) {
			m.Runs.Inc()
			m.RunSteps.Observe(float64(e.Steps))
		},
	}
}
