// Package metrics exports NSCC's per-flow congestion state, the
// multipath engine's path scores, and process-level health over
// Prometheus and a JSON health endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the set of push-style (Set/Inc/Observe) instruments
// updated by internal/agent as congestion and multipath events happen
// (neither of those packages imports this one). Signals
// that are better read on demand from live flow/engine state (current
// cwnd, path scores) are exported instead via the pull-based collectors
// in collectors.go.
type Metrics struct {
	QuadrantActions *prometheus.CounterVec
	FastIncreases   prometheus.Counter
	QuickAdapts     *prometheus.CounterVec

	RawDelay *prometheus.HistogramVec
	AvgDelay *prometheus.GaugeVec

	OutOfOrderAcks *prometheus.CounterVec
	RecoveryEvents *prometheus.CounterVec

	PathSwitches *prometheus.CounterVec

	FlowsActive prometheus.Gauge
	FlowsClosed prometheus.Counter
}

// New creates the metric set and registers it with registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		QuadrantActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nscc",
			Subsystem: "congestion",
			Name:      "quadrant_actions_total",
			Help:      "Count of traced ACKs (fulfill adjustments and immediate window steps) by quadrant action",
		}, []string{"flow", "action"}),

		FastIncreases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nscc",
			Subsystem: "congestion",
			Name:      "fast_increases_total",
			Help:      "Total ACKs served by the fast-increase path instead of the quadrant matrix",
		}),

		QuickAdapts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nscc",
			Subsystem: "congestion",
			Name:      "quick_adapt_total",
			Help:      "Total Quick Adapt resets fired, by flow",
		}, []string{"flow"}),

		RawDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nscc",
			Subsystem: "congestion",
			Name:      "raw_delay_seconds",
			Help:      "Per-ACK raw queuing delay (RTT above base_rtt)",
			Buckets:   []float64{.000001, .000005, .00001, .00005, .0001, .0005, .001, .005, .01},
		}, []string{"flow"}),

		AvgDelay: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nscc",
			Subsystem: "congestion",
			Name:      "avg_delay_seconds",
			Help:      "Current dual-timescale EWMA queuing delay estimate",
		}, []string{"flow"}),

		OutOfOrderAcks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nscc",
			Subsystem: "sleek",
			Name:      "out_of_order_acks_total",
			Help:      "Total ACKs that were not the expected in-order successor",
		}, []string{"flow"}),

		RecoveryEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nscc",
			Subsystem: "sleek",
			Name:      "recovery_entered_total",
			Help:      "Total times a flow entered loss recovery mode",
		}, []string{"flow"}),

		PathSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nscc",
			Subsystem: "multipath",
			Name:      "path_switches_total",
			Help:      "Total active-path switches, by reason",
		}, []string{"reason"}),

		FlowsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nscc",
			Name:      "flows_active",
			Help:      "Number of currently open flows",
		}),

		FlowsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nscc",
			Name:      "flows_closed_total",
			Help:      "Total flows closed",
		}),
	}

	registry.MustRegister(
		m.QuadrantActions,
		m.FastIncreases,
		m.QuickAdapts,
		m.RawDelay,
		m.AvgDelay,
		m.OutOfOrderAcks,
		m.RecoveryEvents,
		m.PathSwitches,
		m.FlowsActive,
		m.FlowsClosed,
	)

	return m
}

// RecordAction records one ACK's quadrant dispatch outcome.
func (m *Metrics) RecordAction(flowID, action string) {
	m.QuadrantActions.WithLabelValues(flowID, action).Inc()
}

// RecordFastIncrease records one ACK served by the fast-increase path.
func (m *Metrics) RecordFastIncrease() {
	m.FastIncreases.Inc()
}

// RecordQuickAdapt records one Quick Adapt reset on flowID.
func (m *Metrics) RecordQuickAdapt(flowID string) {
	m.QuickAdapts.WithLabelValues(flowID).Inc()
}

// RecordDelay records one ACK's raw delay sample and the flow's current
// avg_delay estimate.
func (m *Metrics) RecordDelay(flowID string, rawDelaySeconds, avgDelaySeconds float64) {
	m.RawDelay.WithLabelValues(flowID).Observe(rawDelaySeconds)
	m.AvgDelay.WithLabelValues(flowID).Set(avgDelaySeconds)
}

// RecordOutOfOrder records one out-of-order ACK on flowID.
func (m *Metrics) RecordOutOfOrder(flowID string) {
	m.OutOfOrderAcks.WithLabelValues(flowID).Inc()
}

// RecordRecoveryEntered records flowID entering loss recovery mode.
func (m *Metrics) RecordRecoveryEntered(flowID string) {
	m.RecoveryEvents.WithLabelValues(flowID).Inc()
}

// RecordPathSwitch records one multipath active-path switch.
func (m *Metrics) RecordPathSwitch(reason string) {
	m.PathSwitches.WithLabelValues(reason).Inc()
}

// RecordFlowOpened increments the active-flow gauge.
func (m *Metrics) RecordFlowOpened() {
	m.FlowsActive.Inc()
}

// RecordFlowClosed decrements the active-flow gauge and increments the
// closed-flow counter.
func (m *Metrics) RecordFlowClosed() {
	m.FlowsActive.Dec()
	m.FlowsClosed.Inc()
}
