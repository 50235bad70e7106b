package home

import (
	"github.com/clambin/home-controller/internal/ramp"
	"github.com/prometheus/client_golang/prometheus"
)

var _ prometheus.Collector = &Metrics{}

// Metrics records the activity of a Controller. A nil *Metrics records nothing.
type Metrics struct {
	mode        *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	errors      *prometheus.CounterVec
	rampTicks   *prometheus.CounterVec
}

func NewMetrics(namespace, subsystem string, constLabels prometheus.Labels) *Metrics {
	return &Metrics{
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "mode",
			Help:        "Current mode of the home. 1 for the active mode",
			ConstLabels: constLabels,
		}, []string{"mode"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "transitions_total",
			Help:        "Number of mode transitions",
			ConstLabels: constLabels,
		}, []string{"from", "to"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "errors_total",
			Help:        "Number of failed operations",
			ConstLabels: constLabels,
		}, []string{"op"}),
		rampTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "ramp_updates_total",
			Help:        "Number of values written by ramps",
			ConstLabels: constLabels,
		}, []string{"kind"}),
	}
}

func (m *Metrics) setMode(mode Mode) {
	if m == nil {
		return
	}
	for _, candidate := range Modes {
		var value float64
		if candidate == mode {
			value = 1
		}
		m.mode.WithLabelValues(candidate.String()).Set(value)
	}
}

func (m *Metrics) transition(from, to Mode) {
	if m != nil {
		m.transitions.WithLabelValues(from.String(), to.String()).Inc()
	}
}

func (m *Metrics) failed(op string) {
	if m != nil {
		m.errors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) rampTick(kind ramp.Kind) {
	if m != nil {
		m.rampTicks.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.mode.Describe(ch)
	m.transitions.Describe(ch)
	m.errors.Describe(ch)
	m.rampTicks.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.mode.Collect(ch)
	m.transitions.Collect(ch)
	m.errors.Collect(ch)
	m.rampTicks.Collect(ch)
}
