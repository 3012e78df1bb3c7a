// Package stats exposes Prometheus metrics for the call center.
package stats

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Durations are in seconds
var durBucketsAck = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// Monitor owns the service metrics. A nil *Monitor is valid and records nothing.
type Monitor struct {
	pushes       *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	callsEnded   *prometheus.CounterVec
	authorityErr *prometheus.CounterVec
	acks         *prometheus.CounterVec
	ackDuration  prometheus.Histogram
	eventsSent   *prometheus.CounterVec
	eventsDrop   *prometheus.CounterVec
	reactionsOvr prometheus.Counter
	callActive   prometheus.Gauge

	reg     prometheus.Registerer
	metrics []prometheus.Collector
}

func mustRegister[T prometheus.Collector](m *Monitor, c T) T {
	err := m.reg.Register(c)
	if err != nil {
		var e prometheus.AlreadyRegisteredError
		if errors.As(err, &e) {
			return e.ExistingCollector.(T)
		}
		panic(err)
	}
	m.metrics = append(m.metrics, c)
	return c
}

// NewMonitor registers all metrics on reg. A nil reg uses the default registerer.
func NewMonitor(nodeID string, reg prometheus.Registerer) *Monitor {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Monitor{reg: reg}
	labels := prometheus.Labels{"node_id": nodeID}

	m.pushes = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "voipcenter",
		Name:        "pushes_total",
		Help:        "Push payloads received, by interpreted kind",
		ConstLabels: labels,
	}, []string{"kind"}))

	m.transitions = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "voipcenter",
		Name:        "session_transitions_total",
		Help:        "Committed call session transitions, by target state",
		ConstLabels: labels,
	}, []string{"state"}))

	m.callsEnded = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "voipcenter",
		Name:        "calls_ended_total",
		Help:        "Calls that reached the terminal state, by cause",
		ConstLabels: labels,
	}, []string{"cause"}))

	m.authorityErr = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "voipcenter",
		Name:        "authority_errors_total",
		Help:        "Failed requests to the call authority, by operation",
		ConstLabels: labels,
	}, []string{"op"}))

	m.acks = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "voipcenter",
		Name:        "acknowledgments_total",
		Help:        "Acknowledgment round trips, by outcome",
		ConstLabels: labels,
	}, []string{"outcome"}))

	m.ackDuration = mustRegister(m, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   "voipcenter",
		Name:        "acknowledgment_duration_seconds",
		Help:        "Time the application took to acknowledge an end request",
		ConstLabels: labels,
		Buckets:     durBucketsAck,
	}))

	m.eventsSent = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "voipcenter",
		Name:        "events_published_total",
		Help:        "Events published to the application, by kind",
		ConstLabels: labels,
	}, []string{"event"}))

	m.eventsDrop = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "voipcenter",
		Name:        "events_dropped_total",
		Help:        "Events that reached no listener, by kind",
		ConstLabels: labels,
	}, []string{"event"}))

	m.reactionsOvr = mustRegister(m, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "voipcenter",
		Name:        "reactions_overwritten_total",
		Help:        "Unread reactions replaced by a newer one",
		ConstLabels: labels,
	}))

	m.callActive = mustRegister(m, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "voipcenter",
		Name:        "call_in_progress",
		Help:        "1 while a call is incoming, connecting or active",
		ConstLabels: labels,
	}))

	return m
}

// Unregister removes every metric registered by this monitor
func (m *Monitor) Unregister() {
	if m == nil {
		return
	}
	for _, c := range m.metrics {
		m.reg.Unregister(c)
	}
	m.metrics = nil
}

func (m *Monitor) PushReceived(kind string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(kind).Inc()
}

func (m *Monitor) Transition(state string, inProgress bool) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
	if inProgress {
		m.callActive.Set(1)
	} else {
		m.callActive.Set(0)
	}
}

func (m *Monitor) CallEnded(cause string) {
	if m == nil {
		return
	}
	m.callsEnded.WithLabelValues(cause).Inc()
	m.callActive.Set(0)
}

func (m *Monitor) AuthorityFailed(op string) {
	if m == nil {
		return
	}
	m.authorityErr.WithLabelValues(op).Inc()
}

func (m *Monitor) Acknowledged(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.acks.WithLabelValues(outcome).Inc()
	m.ackDuration.Observe(d.Seconds())
}

func (m *Monitor) EventPublished(kind string) {
	if m == nil {
		return
	}
	m.eventsSent.WithLabelValues(kind).Inc()
}

func (m *Monitor) EventDropped(kind string) {
	if m == nil {
		return
	}
	m.eventsDrop.WithLabelValues(kind).Inc()
}

func (m *Monitor) ReactionOverwritten() {
	if m == nil {
		return
	}
	m.reactionsOvr.Inc()
}
