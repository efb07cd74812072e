// Package congestion implements the per-flow Network-aware Sender
// Congestion Control (NSCC) core: a four-quadrant decision matrix over
// queuing delay and ECN, a batched window controller, a Quick Adapt
// emergency reset, and a dual-timescale delay filter.
package congestion

import "time"

// FeedbackClass is the event class reported to the external multipath
// engine after each ACK/NACK/timeout.
type FeedbackClass int

const (
	PathGood FeedbackClass = iota
	PathECN
	PathNACK
	PathTimeout
)

func (c FeedbackClass) String() string {
	switch c {
	case PathGood:
		return "good"
	case PathECN:
		return "ecn"
	case PathNACK:
		return "nack"
	case PathTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Action is the quadrant classifier's verdict for a single ACK, numbered
// to match the historical trace encoding (original_source/htsim
// nscc_trace_logger.h): fair_inc=0, prop_inc=1, mult_dec=2, noop=3,
// fast_inc=4, qa=5.
type Action int

const (
	ActionFairIncrease Action = iota
	ActionProportionalIncrease
	ActionMultiplicativeDecrease
	ActionNoop
	ActionFastIncrease
	ActionQuickAdapt
)

func (a Action) String() string {
	switch a {
	case ActionFairIncrease:
		return "fair_increase"
	case ActionProportionalIncrease:
		return "proportional_increase"
	case ActionMultiplicativeDecrease:
		return "multiplicative_decrease"
	case ActionNoop:
		return "noop"
	case ActionFastIncrease:
		return "fast_increase"
	case ActionQuickAdapt:
		return "quick_adapt"
	default:
		return "unknown"
	}
}

// AckInfo is the event data for a single ACK delivered to the feedback
// sink (Flow.OnAck).
type AckInfo struct {
	RawRTT      time.Duration
	ECN         bool
	NewBytes    int64
	SeqNo       uint64 // highest sequence number newly covered by this ACK
	CumulateAck uint64 // cumulative (in-order) ack sequence after this ACK
	PathID      string
}

// NackInfo is the event data for a NACK (e.g. from packet trimming at a
// congested switch).
type NackInfo struct {
	RawRTT time.Duration
	SeqNo  uint64
	PathID string
}

// Stats is a point-in-time snapshot of a Flow's state, safe to read from
// a goroutine other than the one driving feedback events.
type Stats struct {
	Cwnd     int64
	MinCwnd  int64
	MaxWnd   int64
	BDP      int64
	InFlight int64

	BaseRTT    time.Duration
	AvgDelay   time.Duration
	LastRaw    time.Duration
	LastECN    bool
	LastAction Action

	AchievedBytes int64
	BytesToIgnore int64
	BytesIgnored  int64

	InRecovery    bool
	RecoverySeqno uint64
	OutOfOrder    uint64
}

// InvariantError is raised (via panic) for a programming-contract
// violation, not a recoverable runtime condition, so it is never returned
// as a normal error. The only check that raises it is a Quick Adapt
// scheduler callback (Flow.QuickAdaptTick) arriving after flow teardown.
// The cwnd clamp and the base_rtt update are not followed by a check, and
// no callback carries a flow identity to compare.
type InvariantError struct {
	Flow string
	Msg  string
}

func (e *InvariantError) Error() string {
	return "nscc: invariant violated on flow " + e.Flow + ": " + e.Msg
}
