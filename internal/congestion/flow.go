package congestion

import (
	"sync"
	"time"
)

// Clock is the monotonic time source a Flow needs. hostnic.RealClock
// satisfies this structurally in production; tests inject a fake that
// advances deterministically.
type Clock interface {
	Now() time.Time
}

// Engine is the multipath path-selection engine's notify-side contract.
// The core only ever calls Notify; SelectNext lives on the caller's own
// engine type for its own use, not on this interface, matching the rule
// that the core depends only on the notify side.
type Engine interface {
	Notify(pathID string, ev FeedbackClass)
}

// Flow is the feedback sink: the single per-flow entry point for
// ACK/NACK/timeout/probe events, wiring the delay estimator, quadrant
// classifier, window controller, Quick Adapt, and SLEEK together and
// notifying the external multipath engine.
type Flow struct {
	mu sync.Mutex

	id     string
	params Params

	linkSpeedBitsPerSec uint64

	clock  Clock
	engine Engine
	trace  TraceSink

	delay   *delayEstimator
	window  *windowController
	qa      *quickAdapt
	loss    *sleek
	fastInc fastIncreaseQualifier

	highestSent   uint64
	cumulativeAck uint64
	inFlight      int64

	lastRaw    time.Duration
	lastECN    bool
	lastAction Action

	onQuickAdapt func(QAEvent)

	terminal bool
}

// NewFlow creates a flow seeded with the topology oracle's initial base
// RTT estimate. rtx is the retransmission queue SLEEK populates on loss;
// pass NewBloomRtxQueue() for the default implementation. trace may be
// nil.
func NewFlow(id string, params Params, linkSpeedBitsPerSec uint64, initialBaseRTT time.Duration, clock Clock, engine Engine, trace TraceSink, rtx RtxQueue) *Flow {
	if trace == nil {
		trace = nopTraceSink{}
	}
	now := clock.Now()
	bdp := BDP(initialBaseRTT, linkSpeedBitsPerSec)
	maxwnd := params.Multiplier * float64(bdp)

	return &Flow{
		id:                  id,
		params:              params,
		linkSpeedBitsPerSec: linkSpeedBitsPerSec,
		clock:               clock,
		engine:              engine,
		trace:               trace,
		delay:               newDelayEstimator(initialBaseRTT),
		window:              newWindowController(params, float64(params.MinCwnd), maxwnd, now),
		qa:                  newQuickAdapt(params, now),
		loss:                newSleek(rtx, params.MTU, now),
	}
}

// ID returns the flow identity, used by callers to route scheduler
// callbacks and cancellations.
func (f *Flow) ID() string { return f.id }

// SetQuickAdaptHook registers an optional callback invoked whenever
// Quick Adapt fires, alongside (not instead of) the trace sink's
// LogQAEvent. A caller with no separate metrics/alerting path can leave
// this unset; pass nil to clear a previously set hook.
func (f *Flow) SetQuickAdaptHook(fn func(QAEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onQuickAdapt = fn
}

func (f *Flow) quickAdaptHook() func(QAEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onQuickAdapt
}

// Close marks the flow terminal. Subsequent ACK/NACK/probe events are
// dropped without mutating state; the caller is responsible for
// cancelling any pending scheduler callbacks by flow identity.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminal = true
}

func (f *Flow) isTerminal() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminal
}

// OnSend records that a new segment has left the host, for SLEEK's
// outstanding-data bookkeeping and the highest_sent sequence cursor.
func (f *Flow) OnSend(seg Segment) {
	if f.isTerminal() {
		return
	}
	now := f.clock.Now()

	f.mu.Lock()
	if seg.SeqNo > f.highestSent {
		f.highestSent = seg.SeqNo
	}
	f.inFlight += seg.Bytes
	f.mu.Unlock()

	f.loss.onSend(seg, now)
}

// OnAck is the feedback sink's main entry point.
func (f *Flow) OnAck(info AckInfo) {
	if f.isTerminal() {
		return
	}
	now := f.clock.Now()

	if f.qa.maskActive(info.NewBytes) {
		f.drainInFlight(info.NewBytes)
		return
	}

	rawDelay, baseChanged := f.delay.observe(info.RawRTT)
	if baseChanged {
		f.recomputeCeiling()
	}
	f.delay.updateAvgDelay(rawDelay, info.ECN, f.params.TargetQdelay, f.params.DelayAlpha)

	cwnd := f.window.Cwnd()
	fastActive := f.fastIncUpdate(rawDelay, info.NewBytes, cwnd)

	var action Action
	var incFair, incProp, incFast, decMulti int64

	switch {
	case fastActive:
		action = ActionFastIncrease
		before := f.window.Cwnd()
		f.window.applyFastIncrease(info.NewBytes)
		incFast = f.window.Cwnd() - before
	default:
		action = classify(info.ECN, rawDelay, f.params.TargetQdelay)
		switch action {
		case ActionFairIncrease:
			f.window.applyFairIncrease(info.NewBytes)
			incFair = int64(f.params.Fi * float64(info.NewBytes))
		case ActionProportionalIncrease:
			f.window.applyProportionalIncrease(info.NewBytes, rawDelay, f.params.TargetQdelay)
			incProp = int64(f.params.Alpha * float64(info.NewBytes) * float64(f.params.TargetQdelay-rawDelay))
		case ActionMultiplicativeDecrease:
			before := f.window.Cwnd()
			if f.window.applyMultiplicativeDecrease(f.delay.AvgDelay(), f.params.TargetQdelay, f.delay.BaseRTT(), now) {
				decMulti = before - f.window.Cwnd()
			}
		case ActionNoop:
			// window unchanged; path steering is the multipath engine's job.
		}
	}

	fulfilled := f.window.recordBytes(info.NewBytes, now)
	if fulfilled || incFast != 0 || decMulti != 0 {
		f.emitSample(now, info, rawDelay, action, incFair, incProp, incFast, decMulti, 0)
	}

	f.recordLast(rawDelay, info.ECN, action)
	f.qa.recordAchieved(info.NewBytes)
	if rawDelay > f.params.QAThreshold {
		f.fireQuickAdaptIfDue(false, rawDelay, now)
	}

	inOrder := info.SeqNo == f.cumulativeAckSnapshot()+1
	f.setCumulativeAck(info.CumulateAck)
	f.loss.onAck(info.SeqNo, info.CumulateAck, f.highestSentSnapshot(), float64(cwnd), f.window.maxwndSnapshot(), inOrder, now)

	f.drainInFlight(info.NewBytes)

	if info.ECN {
		f.engine.Notify(info.PathID, PathECN)
	} else {
		f.engine.Notify(info.PathID, PathGood)
	}
}

// OnNack handles a negative acknowledgement (typically from packet
// trimming). It optionally feeds the delay estimator, arms the Quick
// Adapt trigger, counts toward SLEEK's reorder threshold, and notifies
// the multipath engine.
func (f *Flow) OnNack(info NackInfo) {
	if f.isTerminal() {
		return
	}
	now := f.clock.Now()

	if f.delay.TrustNackRTT && info.RawRTT > 0 {
		_, baseChanged := f.delay.observe(info.RawRTT)
		if baseChanged {
			f.recomputeCeiling()
		}
	}

	f.qa.setTrigger()
	f.loss.onAck(info.SeqNo, f.cumulativeAckSnapshot(), f.highestSentSnapshot(),
		float64(f.window.Cwnd()), f.window.maxwndSnapshot(), false, now)

	f.engine.Notify(info.PathID, PathNACK)
}

// OnProbeAck interprets a SLEEK probe response.
func (f *Flow) OnProbeAck(rawRTT time.Duration, probeSeqNo uint64) {
	if f.isTerminal() {
		return
	}
	rawDelay, baseChanged := f.delay.observe(rawRTT)
	if baseChanged {
		f.recomputeCeiling()
	}
	f.loss.onProbeAck(rawDelay, f.params.TargetQdelay, probeSeqNo)
}

// OnTimeout notifies the multipath engine of a path timeout and arms
// the Quick Adapt trigger.
func (f *Flow) OnTimeout(pathID string) {
	if f.isTerminal() {
		return
	}
	f.qa.setTrigger()
	f.engine.Notify(pathID, PathTimeout)
}

// ProbeDue reports whether the caller's scheduler should send a SLEEK
// probe now.
func (f *Flow) ProbeDue() bool {
	if f.isTerminal() {
		return false
	}
	quiet := f.delay.BaseRTT() + f.params.TargetQdelay
	return f.loss.probeDue(quiet, f.clock.Now())
}

// QuickAdaptDueAt returns the deadline for the next scheduled Quick
// Adapt evaluation, for the caller's external scheduler to arm a timer
// against.
func (f *Flow) QuickAdaptDueAt() time.Time {
	return f.qa.dueAt(f.delay.BaseRTT())
}

// QuickAdaptTick is called by the external scheduler when the periodic
// Quick Adapt evaluation boundary fires. Firing this after Close has
// been called indicates the scheduler failed to cancel a pending timer
// by flow identity, which is a programming-contract violation.
func (f *Flow) QuickAdaptTick() {
	if f.isTerminal() {
		panic(&InvariantError{Flow: f.id, Msg: "quick adapt timer fired after flow teardown"})
	}
	now := f.clock.Now()
	f.fireQuickAdaptIfDue(false, 0, now)

	// Close the evaluation window whether or not Quick Adapt fired, so the
	// next boundary is base_rtt + target_Qdelay away and measures achieved
	// bytes afresh.
	f.qa.mu.Lock()
	f.qa.achievedBytes = 0
	f.qa.lastEval = now
	f.qa.mu.Unlock()
}

func (f *Flow) fireQuickAdaptIfDue(lossSignal bool, rawDelay time.Duration, now time.Time) {
	cwndBefore := f.window.Cwnd()
	result := f.qa.evaluate(lossSignal, rawDelay, f.window.maxwndSnapshot(), f.inFlightSnapshot(), now)
	if !result.Fired {
		return
	}
	f.window.resetTo(result.NewCwnd, now)
	event := QAEvent{
		Time:          now,
		FlowID:        f.id,
		CwndBefore:    cwndBefore,
		CwndAfter:     f.window.Cwnd(),
		AchievedBytes: int64(result.NewCwnd),
		InFlight:      result.BytesToIgnore,
	}
	f.trace.LogQAEvent(event)
	if hook := f.quickAdaptHook(); hook != nil {
		hook(event)
	}
}

// recomputeCeiling recomputes bdp/maxwnd from the (now smaller) base RTT
// and clamps cwnd down if needed.
func (f *Flow) recomputeCeiling() {
	bdp := BDP(f.delay.BaseRTT(), f.linkSpeedBitsPerSec)
	maxwnd := f.params.Multiplier * float64(bdp)
	f.window.setMaxwnd(maxwnd)
}

func (f *Flow) fastIncUpdate(rawDelay time.Duration, newBytes int64, cwnd int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fastInc.update(rawDelay, newBytes, cwnd)
}

func (f *Flow) drainInFlight(newBytes int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight -= newBytes
	if f.inFlight < 0 {
		f.inFlight = 0
	}
}

func (f *Flow) inFlightSnapshot() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

func (f *Flow) highestSentSnapshot() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.highestSent
}

func (f *Flow) cumulativeAckSnapshot() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cumulativeAck
}

func (f *Flow) setCumulativeAck(v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v > f.cumulativeAck {
		f.cumulativeAck = v
	}
}

func (f *Flow) recordLast(rawDelay time.Duration, ecn bool, action Action) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRaw = rawDelay
	f.lastECN = ecn
	f.lastAction = action
}

func (f *Flow) lastSnapshot() (time.Duration, bool, Action) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRaw, f.lastECN, f.lastAction
}

func (f *Flow) emitSample(now time.Time, info AckInfo, rawDelay time.Duration, action Action, incFair, incProp, incFast, decMulti, decQuick int64) {
	outOfOrder, inRecovery, _ := f.loss.stats()
	_ = inRecovery
	_ = outOfOrder
	bytesToIgnore, bytesIgnored, _ := f.qa.stats()
	_ = bytesIgnored

	f.trace.LogSample(Sample{
		Time:     now,
		FlowID:   f.id,
		Cwnd:     f.window.Cwnd(),
		InFlight: f.inFlightSnapshot(),
		BDP:      BDP(f.delay.BaseRTT(), f.linkSpeedBitsPerSec),
		MaxWnd:   int64(f.window.maxwndSnapshot()),
		AvgDelay: f.delay.AvgDelay(),
		RawDelay: rawDelay,
		Target:   f.params.TargetQdelay,
		BaseRTT:  f.delay.BaseRTT(),
		ECN:      info.ECN,
		Quadrant: action,
		IncFair:  incFair,
		IncProp:  incProp,
		IncFast:  incFast,
		IncEta:   int64(f.params.Eta),
		DecMulti: decMulti,
		DecQuick: decQuick,
	})
	_ = bytesToIgnore
}

// Stats returns a point-in-time snapshot safe to read concurrently with
// the event-driving goroutine.
func (f *Flow) Stats() Stats {
	outOfOrder, inRecovery, recoverySeqno := f.loss.stats()
	bytesToIgnore, bytesIgnored, achieved := f.qa.stats()
	lastRaw, lastECN, lastAction := f.lastSnapshot()

	return Stats{
		Cwnd:          f.window.Cwnd(),
		MinCwnd:       f.params.MinCwnd,
		MaxWnd:        int64(f.window.maxwndSnapshot()),
		BDP:           BDP(f.delay.BaseRTT(), f.linkSpeedBitsPerSec),
		InFlight:      f.inFlightSnapshot(),
		BaseRTT:       f.delay.BaseRTT(),
		AvgDelay:      f.delay.AvgDelay(),
		LastRaw:       lastRaw,
		LastECN:       lastECN,
		LastAction:    lastAction,
		AchievedBytes: achieved,
		BytesToIgnore: bytesToIgnore,
		BytesIgnored:  bytesIgnored,
		InRecovery:    inRecovery,
		RecoverySeqno: recoverySeqno,
		OutOfOrder:    outOfOrder,
	}
}

