// Package nmetrics exposes Prometheus counters and gauges for engine
// activity: targets dispatched, timeouts, host APDUs processed, and
// adapter power transitions. All metrics use the nfcd_ prefix.
package nmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks the daemon's Prometheus metrics. A nil *Metrics is a
// valid no-op collector, so engines can hold one unconditionally.
type Metrics struct {
	TargetsDispatched  *prometheus.CounterVec
	TargetTimeouts     *prometheus.CounterVec
	HostAPDUsProcessed *prometheus.CounterVec
	AdapterPowerEvents *prometheus.CounterVec
	TargetsPresent     prometheus.Gauge
}

// New creates the metrics set and registers it against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TargetsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfcd_targets_dispatched_total",
				Help: "Total transmissions/sequences dispatched by the target engine, by result",
			},
			[]string{"result"},
		),
		TargetTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfcd_target_timeouts_total",
				Help: "Total driver request timeouts, by operation",
			},
			[]string{"operation"},
		),
		HostAPDUsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfcd_host_apdus_processed_total",
				Help: "Total APDUs processed by host engines, by status word class",
			},
			[]string{"status_class"},
		),
		AdapterPowerEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfcd_adapter_power_events_total",
				Help: "Total adapter power transitions, by target state",
			},
			[]string{"state"},
		),
		TargetsPresent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "nfcd_targets_present",
				Help: "Current number of tags, peers, and hosts present across all adapters",
			},
		),
	}

	reg.MustRegister(
		m.TargetsDispatched,
		m.TargetTimeouts,
		m.HostAPDUsProcessed,
		m.AdapterPowerEvents,
		m.TargetsPresent,
	)
	return m
}

// RecordDispatch records one target dispatch outcome.
func (m *Metrics) RecordDispatch(result string) {
	if m == nil {
		return
	}
	m.TargetsDispatched.WithLabelValues(result).Inc()
}

// RecordTimeout records one driver request timeout.
func (m *Metrics) RecordTimeout(operation string) {
	if m == nil {
		return
	}
	m.TargetTimeouts.WithLabelValues(operation).Inc()
}

// RecordHostAPDU records one processed host APDU by status word class,
// e.g. "success", "not_found", "error".
func (m *Metrics) RecordHostAPDU(statusClass string) {
	if m == nil {
		return
	}
	m.HostAPDUsProcessed.WithLabelValues(statusClass).Inc()
}

// RecordPowerEvent records an adapter power transition to state, "on"
// or "off".
func (m *Metrics) RecordPowerEvent(state string) {
	if m == nil {
		return
	}
	m.AdapterPowerEvents.WithLabelValues(state).Inc()
}

// SetTargetsPresent updates the present-targets gauge.
func (m *Metrics) SetTargetsPresent(count int) {
	if m == nil {
		return
	}
	m.TargetsPresent.Set(float64(count))
}
