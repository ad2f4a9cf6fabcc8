package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters for the encounter workflows. A nil *Metrics is valid and records
// nothing, so packages can be exercised without a registry.
type Metrics struct {
	transitions   *prometheus.CounterVec
	completions   *prometheus.CounterVec
	revisits      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	outbox        *prometheus.CounterVec
	sagaLatency   prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Appointment state transitions by event and result",
		}, []string{"event", "result"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "encounters",
			Name:      "completions_total",
			Help:      "Encounter completion saga outcomes",
		}, []string{"outcome"}),
		revisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "appointments",
			Name:      "revisits_total",
			Help:      "Revisit scheduling attempts by result",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "notifications",
			Name:      "emitted_total",
			Help:      "Notifications handed to a sink",
		}, []string{"sink", "result"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox rows relayed to kafka",
		}, []string{"event_type", "result"}),
		sagaLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicflow",
			Subsystem: "encounters",
			Name:      "completion_seconds",
			Help:      "Wall time of the encounter completion saga",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.completions, m.revisits, m.notifications, m.outbox, m.sagaLatency)
	return m
}

func (m *Metrics) ObserveTransition(event string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, result(err)).Inc()
}

func (m *Metrics) ObserveCompletion(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(outcome).Inc()
	m.sagaLatency.Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveRevisit(err error) {
	if m == nil {
		return
	}
	m.revisits.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveNotification(sink string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(sink, result(err)).Inc()
}

func (m *Metrics) ObserveOutboxPublish(eventType string, err error) {
	if m == nil {
		return
	}
	m.outbox.WithLabelValues(eventType, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
