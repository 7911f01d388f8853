package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MonitorMetrics holds all Prometheus metrics for the monitor daemon.
type MonitorMetrics struct {
	ProbesTotal       *prometheus.CounterVec
	ProbeDuration     *prometheus.HistogramVec
	ProbesInFlight    prometheus.Gauge
	MissedCycles      prometheus.Counter
	TargetsRegistered prometheus.Gauge
	OpenAlerts        prometheus.Gauge
	EventsRecorded    prometheus.Counter
	EventsJournalled  prometheus.Counter
	BroadcastsTotal   *prometheus.CounterVec
	BroadcastsDropped prometheus.Counter
}

// New initializes and registers the monitor metrics on the given registerer.
func New(reg prometheus.Registerer) *MonitorMetrics {
	factory := promauto.With(reg)
	return &MonitorMetrics{
		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthwatch",
			Subsystem: "scheduler",
			Name:      "probes_total",
			Help:      "Total number of executed probes by kind and outcome.",
		}, []string{"kind", "outcome"}), // outcome: success, timeout, transport_error, condition_mismatch, internal_error, config_error
		ProbeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "healthwatch",
			Subsystem: "scheduler",
			Name:      "probe_duration_seconds",
			Help:      "Probe attempt duration by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		ProbesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "healthwatch",
			Subsystem: "scheduler",
			Name:      "probes_in_flight",
			Help:      "Number of probes currently executing.",
		}),
		MissedCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "healthwatch",
			Subsystem: "scheduler",
			Name:      "missed_cycles_total",
			Help:      "Scheduling cycles skipped because the previous probe was still in flight.",
		}),
		TargetsRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "healthwatch",
			Subsystem: "scheduler",
			Name:      "targets_registered",
			Help:      "Number of enabled targets in the registry.",
		}),
		OpenAlerts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "healthwatch",
			Subsystem: "alerts",
			Name:      "open_instances",
			Help:      "Number of currently open alert instances.",
		}),
		EventsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "healthwatch",
			Subsystem: "recorder",
			Name:      "events_total",
			Help:      "Total number of events accepted by the recorder.",
		}),
		EventsJournalled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "healthwatch",
			Subsystem: "recorder",
			Name:      "events_journalled_total",
			Help:      "Events spilled to the local journal while the history store was unavailable.",
		}),
		BroadcastsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthwatch",
			Subsystem: "broadcast",
			Name:      "messages_total",
			Help:      "Messages published to the fan-out by topic class.",
		}, []string{"topic"}),
		BroadcastsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "healthwatch",
			Subsystem: "broadcast",
			Name:      "dropped_total",
			Help:      "Messages dropped because a subscriber buffer was full.",
		}),
	}
}
