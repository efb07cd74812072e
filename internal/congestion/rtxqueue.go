package congestion

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	rtxBloomExpectedItems = 4096
	rtxBloomFalsePositive = 0.001
)

// Segment is the black-box unit the caller's transport layer sends and
// retransmits. The core never inspects its payload; it only tracks
// sequence numbers.
type Segment struct {
	SeqNo uint64
	Bytes int64
}

// RtxQueue is the retransmission queue contract SLEEK pushes onto and
// the caller's sender drains from.
type RtxQueue interface {
	Push(seg Segment)
	PopNext() (Segment, bool)
	IsEmpty() bool
}

// bloomRtxQueue is a FIFO of pending retransmissions guarded by a small
// Bloom filter that lets Push cheaply skip segments already queued
// before it pays for the exact map lookup. Recovery populates this
// queue with every unacknowledged segment below recovery_seqno in one
// shot, and under heavy per-packet spraying that can mean thousands of
// entries; the two-tier probabilistic-then-exact shape mirrors the
// teacher's replay guard for the same reason: the fast path (definitely
// not present) is the overwhelmingly common case.
type bloomRtxQueue struct {
	mu sync.Mutex

	filter  *bloom.BloomFilter
	queued  map[uint64]struct{}
	pending []Segment
}

func newBloomRtxQueue() *bloomRtxQueue {
	return &bloomRtxQueue{
		filter: bloom.NewWithEstimates(rtxBloomExpectedItems, rtxBloomFalsePositive),
		queued: make(map[uint64]struct{}),
	}
}

// NewBloomRtxQueue creates the default RtxQueue implementation for
// callers that don't need a custom one.
func NewBloomRtxQueue() RtxQueue {
	return newBloomRtxQueue()
}

func (q *bloomRtxQueue) Push(seg Segment) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := seqKey(seg.SeqNo)
	if q.filter.Test(key) {
		if _, exact := q.queued[seg.SeqNo]; exact {
			return
		}
	}
	q.filter.Add(key)
	q.queued[seg.SeqNo] = struct{}{}
	q.pending = append(q.pending, seg)
}

func (q *bloomRtxQueue) PopNext() (Segment, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return Segment{}, false
	}
	seg := q.pending[0]
	q.pending = q.pending[1:]
	delete(q.queued, seg.SeqNo)
	return seg, true
}

func (q *bloomRtxQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0
}

func seqKey(seqNo uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(seqNo >> (8 * i))
	}
	return b
}
