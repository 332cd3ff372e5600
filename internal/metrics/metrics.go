// Package metrics exposes the driver's operational counters over
// Prometheus, grounded on runZeroInc-sockstats's exporter package: a
// handful of plain collectors registered once and served through
// promhttp, not a custom Collector — the driver has no per-connection
// fan-out to justify one.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters and histograms a Driver reports through.
// A nil *Metrics is valid everywhere it's used; every method is a no-op
// on a nil receiver so wiring metrics in is opt-in.
type Metrics struct {
	commands         *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	keepaliveFailure prometheus.Counter
}

// New creates a Metrics instance and registers its collectors with reg.
// Pass prometheus.NewRegistry() for an isolated registry, or nil to use
// the default global one.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kkl",
			Name:      "commands_total",
			Help:      "KWP1281 commands issued, by command name and result.",
		}, []string{"command", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kkl",
			Name:      "command_duration_seconds",
			Help:      "Time spent in a full command exchange (request, response, trailing ACK).",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"command"}),
		keepaliveFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kkl",
			Name:      "keepalive_failures_total",
			Help:      "Keep-alive exchanges that ended the session due to a transport error.",
		}),
	}

	registerer := prometheus.Registerer(prometheus.DefaultRegisterer)
	if reg != nil {
		registerer = reg
	}
	registerer.MustRegister(m.commands, m.commandDuration, m.keepaliveFailure)
	return m
}

// ObserveCommand records the outcome and duration of one command
// exchange. result is "ok", "nak", "unexpected_title", "timeout", or
// "error" — callers pass whichever label fits the error returned by the
// driver's doCommand.
func (m *Metrics) ObserveCommand(command, result string, seconds float64) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, result).Inc()
	m.commandDuration.WithLabelValues(command).Observe(seconds)
}

// IncKeepaliveFailure records that a keep-alive cycle lost the session.
func (m *Metrics) IncKeepaliveFailure() {
	if m == nil {
		return
	}
	m.keepaliveFailure.Inc()
}
