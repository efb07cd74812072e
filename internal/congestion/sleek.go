package congestion

import (
	"sync"
	"time"
)

const (
	lossRetxFactor = 1.5
	minRetxCfg     = 5
)

// sleek is the loss detector: it rides the reorder horizon of a sprayed
// fabric instead of firing on a fixed dup-ack count, which would produce
// constant false retransmits once packets are routinely reordered by up
// to N path-widths.
type sleek struct {
	mu sync.Mutex

	outOfOrder    uint64
	inRecovery    bool
	recoverySeqno uint64

	rtx RtxQueue

	unacked map[uint64]Segment // segments sent but not yet cumulative-acked

	avgPktSize int64

	lastActivity time.Time
	probeArmed   bool
}

func newSleek(rtx RtxQueue, avgPktSize int64, now time.Time) *sleek {
	return &sleek{
		rtx:          rtx,
		unacked:      make(map[uint64]Segment),
		avgPktSize:   avgPktSize,
		lastActivity: now,
	}
}

func (s *sleek) onSend(seg Segment, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unacked[seg.SeqNo] = seg
	s.lastActivity = now
	s.probeArmed = false
}

// onAck folds one ACK's ordering information into out_of_order_count and
// may enter recovery. inOrder is true when this ACK's sequence number is
// the expected in-order successor to the previous cumulative ack.
func (s *sleek) onAck(seqNo, cumulativeAck, highestSent uint64, cwnd, maxwnd float64, inOrder bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.unacked, seqNo)
	s.lastActivity = now
	s.probeArmed = false

	if s.inRecovery {
		if cumulativeAck >= s.recoverySeqno {
			s.inRecovery = false
			s.outOfOrder = 0
		}
		return
	}

	if !inOrder {
		s.outOfOrder++
	}

	threshold := reorderThreshold(s.avgPktSize, cwnd, maxwnd)
	if s.outOfOrder >= threshold && s.rtx.IsEmpty() {
		s.enterRecoveryLocked(highestSent)
	}
}

// reorderThreshold converts cwnd/maxwnd from bytes to packets before
// scaling, since out_of_order_count is a per-ACK packet tally, not a
// byte count.
func reorderThreshold(avgPktSize int64, cwnd, maxwnd float64) uint64 {
	pktSize := float64(avgPktSize)
	if pktSize <= 0 {
		pktSize = 1
	}
	scaled := lossRetxFactor * cwnd / pktSize
	if maxPkts := maxwnd / pktSize; scaled > maxPkts {
		scaled = maxPkts
	}
	if scaled < minRetxCfg {
		return minRetxCfg
	}
	return uint64(scaled)
}

func (s *sleek) enterRecoveryLocked(highestSent uint64) {
	s.inRecovery = true
	s.recoverySeqno = highestSent
	for seq, seg := range s.unacked {
		if seq < s.recoverySeqno {
			s.rtx.Push(seg)
		}
	}
}

// probeDue reports whether a quiet interval of base_rtt+target_Qdelay
// has elapsed with data outstanding, meaning a probe should be sent.
func (s *sleek) probeDue(quietInterval time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.probeArmed || len(s.unacked) == 0 {
		return false
	}
	if now.Sub(s.lastActivity) < quietInterval {
		return false
	}
	s.probeArmed = true
	return true
}

// onProbeAck interprets a probe response: a drained pipe (raw_delay
// below target) means any packet still missing behind the probe is
// deemed lost, not merely reordered, and is queued for retransmission.
func (s *sleek) onProbeAck(rawDelay, targetQdelay time.Duration, probeSeqNo uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.probeArmed = false
	if rawDelay >= targetQdelay {
		return
	}
	for seq, seg := range s.unacked {
		if seq < probeSeqNo {
			s.rtx.Push(seg)
		}
	}
}

func (s *sleek) stats() (outOfOrder uint64, inRecovery bool, recoverySeqno uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outOfOrder, s.inRecovery, s.recoverySeqno
}
