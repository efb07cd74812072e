package congestion

import (
	"sync"
	"time"
)

// quickAdapt is the emergency reset: a one-shot collapse of cwnd to
// recently-achieved throughput when the flow is both seeing bad signals
// and badly underperforming its window. It is not a new operating mode —
// once the stale-feedback mask drains, the flow re-enters the ordinary
// quadrant loop from the smaller cwnd.
type quickAdapt struct {
	mu sync.Mutex

	params Params

	achievedBytes int64
	lastEval      time.Time

	trigger bool // set by NACK / timeout / extreme delay, consumed at eval

	bytesToIgnore int64
	bytesIgnored  int64
}

func newQuickAdapt(p Params, now time.Time) *quickAdapt {
	return &quickAdapt{params: p, lastEval: now}
}

// recordAchieved folds newly-acked bytes into the achieved-bytes counter
// for the current evaluation window.
func (q *quickAdapt) recordAchieved(newBytes int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.achievedBytes += newBytes
}

// setTrigger marks that something bad happened (NACK, timeout, or a
// raw_delay past qa_threshold) that should be considered at the next
// evaluation even if it falls between scheduled boundaries.
func (q *quickAdapt) setTrigger() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.trigger = true
}

// dueAt reports the deadline for the next scheduled evaluation: every
// base_rtt + target_Qdelay.
func (q *quickAdapt) dueAt(baseRTT time.Duration) time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastEval.Add(baseRTT + q.params.TargetQdelay)
}

// qaResult carries the outcome of an evaluation back to the caller
// (Flow), which owns cwnd/in-flight and must apply the reset itself.
type qaResult struct {
	Fired         bool
	NewCwnd       float64
	BytesToIgnore int64
}

// evaluate applies the fire condition:
//
//	fire if (trigger OR lossSignal OR rawDelay > qaThreshold)
//	     AND achievedBytes < maxwnd >> qaGate
//
// On fire, it resets its own interval timer and achieved-bytes counter
// and arms the stale-feedback mask; the caller is responsible for
// actually moving cwnd and in-flight bookkeeping.
func (q *quickAdapt) evaluate(lossSignal bool, rawDelay time.Duration, maxwnd float64, inFlight int64, now time.Time) qaResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	condition := q.trigger || lossSignal || rawDelay > q.params.QAThreshold
	underperforming := q.achievedBytes < int64(maxwnd)>>uint(q.params.QAGate)

	if !condition || !underperforming {
		return qaResult{}
	}

	achieved := q.achievedBytes
	newCwnd := float64(achieved)
	if newCwnd < float64(q.params.MinCwnd) {
		newCwnd = float64(q.params.MinCwnd)
	}

	q.trigger = false
	q.achievedBytes = 0
	q.lastEval = now
	q.bytesToIgnore = inFlight
	q.bytesIgnored = 0

	return qaResult{Fired: true, NewCwnd: newCwnd, BytesToIgnore: inFlight}
}

// maskActive reports whether the stale-feedback mask is currently
// suppressing ordinary quadrant/window mutations, and if so, consumes
// newBytes from it.
func (q *quickAdapt) maskActive(newBytes int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.bytesIgnored >= q.bytesToIgnore {
		return false
	}
	q.bytesIgnored += newBytes
	return true
}

func (q *quickAdapt) stats() (bytesToIgnore, bytesIgnored, achieved int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytesToIgnore, q.bytesIgnored, q.achievedBytes
}
