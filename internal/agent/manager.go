// Package agent wires the congestion, multipath, topology, and metrics
// packages into one running process: it owns the set of open flows and
// exposes them to the metrics collectors.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/dipsingh/nscc/internal/congestion"
	"github.com/dipsingh/nscc/internal/hostnic"
	"github.com/dipsingh/nscc/internal/metrics"
	"github.com/dipsingh/nscc/internal/multipath"
	"github.com/dipsingh/nscc/internal/topology"
)

// FlowManager owns every open Flow, seeds each one's base_rtt from the
// topology oracle, and reports multipath feedback through a shared
// multipath.Engine.
type FlowManager struct {
	mu sync.RWMutex

	params    congestion.Params
	linkSpeed uint64
	clock     hostnic.Clock
	nic       hostnic.NIC
	trace     congestion.TraceSink
	oracle    topology.Oracle
	engine    *multipath.QualityEngine
	metrics   *metrics.Metrics

	flows        map[string]*congestion.Flow
	metricsState map[string]flowMetricsState
}

// flowMetricsState is the last polled snapshot used to turn SLEEK's
// cumulative counters into Prometheus deltas, since sleek has no
// per-event callback the way the quadrant classifier does through
// TraceSink.
type flowMetricsState struct {
	outOfOrder uint64
	inRecovery bool
}

// NewFlowManager creates a manager. params is typically produced by
// congestion.DeriveParams from the process's OracleConfig. metricsSink
// may be nil, in which case flow lifecycle and path-switch events are
// simply not recorded. nic may be nil, in which case SendSegment only
// records the send against the flow and transmits nothing; a manager
// driving real traffic wires a hostnic.PacedNIC so
// sends are rate-limited the way OnSend's caller is expected to pace
// them.
func NewFlowManager(params congestion.Params, linkSpeed uint64, clock hostnic.Clock, nic hostnic.NIC, trace congestion.TraceSink, oracle topology.Oracle, engine *multipath.QualityEngine, metricsSink *metrics.Metrics) *FlowManager {
	return &FlowManager{
		params:    params,
		linkSpeed: linkSpeed,
		clock:     clock,
		nic:       nic,
		trace:     trace,
		oracle:    oracle,
		engine:    engine,
		metrics:      metricsSink,
		flows:        make(map[string]*congestion.Flow),
		metricsState: make(map[string]flowMetricsState),
	}
}

// OpenFlow consults the topology oracle for src->dst's base_rtt and
// creates a new Flow under id.
func (fm *FlowManager) OpenFlow(ctx context.Context, id, src, dst string) (*congestion.Flow, error) {
	baseRTT, err := fm.oracle.TwoPointRTT(ctx, src, dst)
	if err != nil {
		return nil, err
	}

	trace := fm.trace
	if fm.metrics != nil {
		trace = multiTraceSink{sinks: []congestion.TraceSink{fm.trace, metricsTraceSink{metrics: fm.metrics, flowID: id}}}
	}

	flow := congestion.NewFlow(id, fm.params, fm.linkSpeed, baseRTT, fm.clock, engineAdapter{fm.engine, fm.metrics}, trace, congestion.NewBloomRtxQueue())
	if fm.metrics != nil {
		flow.SetQuickAdaptHook(func(ev congestion.QAEvent) {
			fm.metrics.RecordQuickAdapt(ev.FlowID)
		})
	}

	fm.mu.Lock()
	fm.flows[id] = flow
	fm.metricsState[id] = flowMetricsState{}
	fm.mu.Unlock()

	if fm.metrics != nil {
		fm.metrics.RecordFlowOpened()
	}
	return flow, nil
}

// CloseFlow closes and forgets the flow registered under id.
func (fm *FlowManager) CloseFlow(id string) {
	fm.mu.Lock()
	flow, ok := fm.flows[id]
	if ok {
		delete(fm.flows, id)
		delete(fm.metricsState, id)
	}
	fm.mu.Unlock()

	if !ok {
		return
	}
	flow.Close()
	if fm.metrics != nil {
		fm.metrics.RecordFlowClosed()
	}
}

// SendSegment records seg as sent against flow id and, if the manager
// was built with a NIC, hands it to the NIC for pacing and transmission
// to dst. It reports whether a NIC was wired; the segment is recorded
// against the flow either way.
func (fm *FlowManager) SendSegment(id string, seg congestion.Segment, dst string) bool {
	fm.mu.RLock()
	flow, ok := fm.flows[id]
	fm.mu.RUnlock()
	if !ok {
		return false
	}

	flow.OnSend(seg)
	if fm.nic == nil {
		return false
	}
	fm.nic.Send(make([]byte, seg.Bytes), dst)
	return true
}

// Flow returns the open flow registered under id, if any.
func (fm *FlowManager) Flow(id string) (*congestion.Flow, bool) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	flow, ok := fm.flows[id]
	return flow, ok
}

// ListFlows implements metrics.FlowProvider.
func (fm *FlowManager) ListFlows() map[string]metrics.FlowStats {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	out := make(map[string]metrics.FlowStats, len(fm.flows))
	for id, flow := range fm.flows {
		s := flow.Stats()
		out[id] = metrics.FlowStats{
			Cwnd:          s.Cwnd,
			MaxWnd:        s.MaxWnd,
			BDP:           s.BDP,
			InFlight:      s.InFlight,
			AvgDelay:      s.AvgDelay,
			InRecovery:    s.InRecovery,
			AchievedBytes: s.AchievedBytes,
		}
	}
	return out
}

// QuickAdaptTick runs one scheduler-driven periodic evaluation across
// every flow whose Quick Adapt window is due. Intended to be called
// from a ticker loop at a granularity finer than any flow's base_rtt.
func (fm *FlowManager) QuickAdaptTick(now time.Time) {
	fm.mu.RLock()
	due := make([]*congestion.Flow, 0, len(fm.flows))
	for _, flow := range fm.flows {
		if !flow.QuickAdaptDueAt().After(now) {
			due = append(due, flow)
		}
	}
	fm.mu.RUnlock()

	for _, flow := range due {
		flow.QuickAdaptTick()
	}
	fm.syncMetrics()
}

// syncMetrics compares each flow's latest stats against the last polled
// snapshot and records out-of-order-ACK and recovery-entry deltas. This
// is a poll rather than a push because sleek exposes these as cumulative
// counters on Stats(), not as per-event callbacks.
func (fm *FlowManager) syncMetrics() {
	if fm.metrics == nil {
		return
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()

	for id, flow := range fm.flows {
		stats := flow.Stats()
		prev := fm.metricsState[id]

		delta := stats.OutOfOrder - prev.outOfOrder
		if stats.OutOfOrder < prev.outOfOrder {
			delta = stats.OutOfOrder // sleek reset the counter on recovery exit
		}
		for i := uint64(0); i < delta; i++ {
			fm.metrics.RecordOutOfOrder(id)
		}

		if stats.InRecovery && !prev.inRecovery {
			fm.metrics.RecordRecoveryEntered(id)
		}

		fm.metricsState[id] = flowMetricsState{outOfOrder: stats.OutOfOrder, inRecovery: stats.InRecovery}
	}
}

// PathEngine wraps a *multipath.QualityEngine to satisfy
// metrics.PathProvider without the metrics package importing multipath.
type PathEngine struct {
	Engine *multipath.QualityEngine
}

// ListPaths implements metrics.PathProvider.
func (p PathEngine) ListPaths() map[string]metrics.PathQuality {
	active := p.Engine.SelectNext()
	qualities := p.Engine.Qualities()

	out := make(map[string]metrics.PathQuality, len(qualities))
	for _, q := range qualities {
		out[q.PathID] = metrics.PathQuality{
			Score:               q.Score,
			ECNRate:             q.ECNRate,
			NACKRate:            q.NACKRate,
			ConsecutiveTimeouts: q.ConsecutiveTimeouts,
			IsActive:            q.PathID == active,
		}
	}
	return out
}

// engineAdapter bridges congestion.Engine to a multipath.QualityEngine
// while also recording in Metrics every path switch a feedback event
// causes, so the core never needs to know metrics exists.
type engineAdapter struct {
	engine  *multipath.QualityEngine
	metrics *metrics.Metrics
}

func (a engineAdapter) Notify(pathID string, ev congestion.FeedbackClass) {
	if a.engine == nil {
		return
	}
	var mev multipath.FeedbackClass
	switch ev {
	case congestion.PathECN:
		mev = multipath.ECN
	case congestion.PathNACK:
		mev = multipath.NACK
	case congestion.PathTimeout:
		mev = multipath.Timeout
	default:
		mev = multipath.Good
	}

	before := a.engine.SelectNext()
	a.engine.Notify(pathID, mev)

	if a.metrics != nil {
		if after := a.engine.SelectNext(); after != before {
			history := a.engine.History()
			if len(history) > 0 {
				a.metrics.RecordPathSwitch(string(history[len(history)-1].Reason))
			}
		}
	}
}
