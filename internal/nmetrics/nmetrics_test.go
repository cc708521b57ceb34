package nmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRecordDispatchIncrementsLabeledCounter(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordDispatch("ok")
	m.RecordDispatch("ok")
	m.RecordDispatch("timeout")

	assert.Equal(t, 2.0, counterValue(t, m.TargetsDispatched.WithLabelValues("ok")))
	assert.Equal(t, 1.0, counterValue(t, m.TargetsDispatched.WithLabelValues("timeout")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDispatch("ok")
		m.RecordTimeout("transmit")
		m.RecordHostAPDU("success")
		m.RecordPowerEvent("on")
		m.SetTargetsPresent(3)
	})
}

func TestSetTargetsPresentUpdatesGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SetTargetsPresent(4)

	var out dto.Metric
	require.NoError(t, m.TargetsPresent.Write(&out))
	assert.Equal(t, 4.0, out.GetGauge().GetValue())
}
