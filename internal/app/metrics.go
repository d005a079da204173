package app

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use through a nil pointer, which records nothing.
type Metrics struct {
	admissions  *prometheus.CounterVec
	frames      *prometheus.CounterVec
	disconnects prometheus.Counter
	consistency *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer, rooms *RoomRegistry, dir *SessionDirectory) *Metrics {
	m := &Metrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callrelay",
			Name:      "admissions_total",
			Help:      "Connection attempts by admission outcome.",
		}, []string{"result"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callrelay",
			Name:      "frames_total",
			Help:      "Inbound frames by forwarding outcome.",
		}, []string{"result"}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "callrelay",
			Name:      "disconnects_total",
			Help:      "Sessions closed.",
		}),
		consistency: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callrelay",
			Name:      "consistency_errors_total",
			Help:      "Lifecycle pairing violations that were logged and skipped.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		m.admissions,
		m.frames,
		m.disconnects,
		m.consistency,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "callrelay",
			Name:      "rooms",
			Help:      "Calls with at least one peer.",
		}, func() float64 { return float64(rooms.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "callrelay",
			Name:      "sessions",
			Help:      "Active sessions.",
		}, func() float64 { return float64(dir.Len()) }),
	)
	return m
}

func (m *Metrics) Admitted() {
	if m != nil {
		m.admissions.WithLabelValues("admitted").Inc()
	}
}

func (m *Metrics) Rejected() {
	if m != nil {
		m.admissions.WithLabelValues("room_full").Inc()
	}
}

func (m *Metrics) Frame(r ForwardResult) {
	if m != nil {
		m.frames.WithLabelValues(r.String()).Inc()
	}
}

func (m *Metrics) Disconnected() {
	if m != nil {
		m.disconnects.Inc()
	}
}

func (m *Metrics) Inconsistent(kind string) {
	if m != nil {
		m.consistency.WithLabelValues(kind).Inc()
	}
}
