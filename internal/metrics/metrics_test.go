package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveCommand("0x07", "ok", 0.01)
		m.IncKeepaliveFailure()
	})
}

func TestObserveCommandIncrementsLabeledCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCommand("0x07", "ok", 0.05)
	m.ObserveCommand("0x07", "nak", 0.01)

	families, err := reg.Gather()
	require.NoError(t, err)

	var counter *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "kkl_commands_total" {
			counter = f
		}
	}
	require.NotNil(t, counter)
	require.Len(t, counter.Metric, 2)
}

func TestIncKeepaliveFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncKeepaliveFailure()
	m.IncKeepaliveFailure()

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "kkl_keepalive_failures_total" {
			found = true
			require.Equal(t, float64(2), f.Metric[0].GetCounter().GetValue())
		}
	}
	require.True(t, found)
}
