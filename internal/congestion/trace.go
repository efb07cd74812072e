package congestion

import "time"

// TraceSink is an optional observer fed one Sample per fulfill
// adjustment, one Sample per ACK that applies a fast increase or a
// multiplicative decrease directly to cwnd, and one QAEvent per Quick
// Adapt firing. A nil TraceSink is valid; Flow substitutes a no-op sink.
type TraceSink interface {
	LogSample(Sample)
	LogQAEvent(QAEvent)
}

// Sample mirrors the historical trace record field-for-field: one row
// per fulfill adjustment or immediate fast-increase/decrease step,
// carrying enough state to reconstruct why the window moved the way it
// did.
type Sample struct {
	Time     time.Time
	FlowID   string
	Cwnd     int64
	InFlight int64
	BDP      int64
	MaxWnd   int64
	AvgDelay time.Duration
	RawDelay time.Duration
	Target   time.Duration
	BaseRTT  time.Duration
	ECN      bool
	Quadrant Action

	IncFair  int64
	IncProp  int64
	IncFast  int64
	IncEta   int64
	DecMulti int64
	DecQuick int64
}

// QAEvent is emitted once per Quick Adapt firing.
type QAEvent struct {
	Time          time.Time
	FlowID        string
	CwndBefore    int64
	CwndAfter     int64
	AchievedBytes int64
	InFlight      int64
}

// nopTraceSink discards everything; used when the caller passes nil.
type nopTraceSink struct{}

func (nopTraceSink) LogSample(Sample)   {}
func (nopTraceSink) LogQAEvent(QAEvent) {}
