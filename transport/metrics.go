package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "apm_agent"
	metricsSubsystem = "transport"
)

// Metrics worker 自身的计数器。多个 worker 共用一份，用 worker label 区分。
type Metrics struct {
	EventsQueued   *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec
	EventsFiltered *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	BatchesSent    *prometheus.CounterVec
	BatchesFailed  *prometheus.CounterVec
}

// NewMetrics 创建计数器并注册到 reg；reg 为 nil 时不注册
func NewMetrics(reg prometheus.Registerer) *Metrics {
	newVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	m := &Metrics{
		EventsQueued:   newVec("events_queued_total", "Events accepted by the queue.", "worker", "kind"),
		EventsDropped:  newVec("events_dropped_total", "Events rejected because the queue was full.", "worker", "kind"),
		EventsFiltered: newVec("events_filtered_total", "Events dropped by a filter before serialization.", "worker"),
		EventsRejected: newVec("events_rejected_total", "Events the intake reported as invalid.", "worker"),
		BatchesSent:    newVec("batches_sent_total", "Batches accepted by the intake.", "worker"),
		BatchesFailed:  newVec("batches_failed_total", "Batches discarded after a failed send.", "worker", "reason"),
	}
	if reg != nil {
		reg.MustRegister(m.EventsQueued, m.EventsDropped, m.EventsFiltered, m.EventsRejected, m.BatchesSent, m.BatchesFailed)
	}
	return m
}

// batches_failed_total 的 reason
const (
	reasonStatus    = "status"
	reasonTransport = "transport"
	reasonSerialize = "serialize"
)
