package als

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reasons reported on the skipped-ticks counter.
const (
	skipUnavailable = "unavailable"
	skipFilling     = "filling"
	skipSteady      = "steady"
)

// Metrics are the controller's Prometheus instruments. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	ticks         prometheus.Counter
	skipped       *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	writeErrors   prometheus.Counter
	notifications prometheus.Counter
	current       prometheus.Gauge
	target        prometheus.Gauge
}

// NewMetrics registers the instruments with reg (nil: unregistered).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "alsd", Name: "ticks_total",
			Help: "Control loop ticks processed.",
		}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alsd", Name: "ticks_skipped_total",
			Help: "Ticks that ended without a transition, by reason.",
		}, []string{"reason"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alsd", Name: "transitions_total",
			Help: "Brightness transitions, by result.",
		}, []string{"result"}),
		writeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "alsd", Name: "display_write_errors_total",
			Help: "Failed display brightness writes.",
		}),
		notifications: f.NewCounter(prometheus.CounterOpts{
			Namespace: "alsd", Name: "brightness_notifications_total",
			Help: "External brightness changes merged into the current level.",
		}),
		current: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "alsd", Name: "brightness_current_percent",
			Help: "Best estimate of the display brightness.",
		}),
		target: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "alsd", Name: "brightness_target_percent",
			Help: "Last computed target brightness.",
		}),
	}
}

func (m *Metrics) tick() {
	if m != nil {
		m.ticks.Inc()
	}
}

func (m *Metrics) skip(reason string) {
	if m != nil {
		m.skipped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) transition(completed bool) {
	if m == nil {
		return
	}
	if completed {
		m.transitions.WithLabelValues("completed").Inc()
	} else {
		m.transitions.WithLabelValues("cancelled").Inc()
	}
}

func (m *Metrics) writeError() {
	if m != nil {
		m.writeErrors.Inc()
	}
}

func (m *Metrics) notified() {
	if m != nil {
		m.notifications.Inc()
	}
}

func (m *Metrics) levels(current, target float64) {
	if m != nil {
		m.current.Set(current)
		m.target.Set(target)
	}
}
