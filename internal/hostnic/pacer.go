package hostnic

import (
	"sync"
	"time"
)

const (
	defaultMTU      = 4096
	maxBurstPackets = 10
	minPacingRate   = 100 * 1024 // bytes/s
)

// Pacer is a token-bucket rate limiter a NIC implementation can use to
// spread a flow's sends out at its negotiated link share rather than
// bursting the whole congestion window at once. It is not part of the
// congestion core's decision logic — cwnd says how much may be
// outstanding, Pacer says how fast to drain it onto the wire.
type Pacer struct {
	mu sync.Mutex

	rate       float64 // bytes/s
	tokens     float64
	maxTokens  float64
	lastRefill time.Time

	mtu     int
	maxRate float64
}

// NewPacer creates a Pacer seeded at initialRate bytes/sec, bursting up
// to maxBurstPackets MTU-sized segments before it starts throttling.
func NewPacer(initialRate float64, mtu int, now time.Time) *Pacer {
	if mtu <= 0 {
		mtu = defaultMTU
	}
	return &Pacer{
		rate:       initialRate,
		tokens:     float64(mtu * maxBurstPackets),
		maxTokens:  float64(mtu * maxBurstPackets),
		lastRefill: now,
		mtu:        mtu,
		maxRate:    initialRate * 2,
	}
}

// SetRate updates the pacing rate, clamped to [minPacingRate, maxRate].
func (p *Pacer) SetRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rate < minPacingRate {
		rate = minPacingRate
	}
	if rate > p.maxRate {
		rate = p.maxRate
	}
	p.rate = rate
}

// CanSend reports whether packetSize bytes may be sent immediately
// without violating the pacing rate.
func (p *Pacer) CanSend(packetSize int, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refillLocked(now)
	return p.tokens >= float64(packetSize)
}

// TimeUntilSend returns how long the caller must wait before packetSize
// bytes may be sent.
func (p *Pacer) TimeUntilSend(packetSize int, now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refillLocked(now)
	if p.tokens >= float64(packetSize) {
		return 0
	}
	needed := float64(packetSize) - p.tokens
	rate := p.rate
	if rate <= 0 {
		rate = minPacingRate
	}
	return time.Duration(needed / rate * float64(time.Second))
}

// OnSent debits the token bucket after a packet is actually sent.
func (p *Pacer) OnSent(packetSize int, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refillLocked(now)
	p.tokens -= float64(packetSize)
	if p.tokens < 0 {
		p.tokens = 0
	}
}

func (p *Pacer) refillLocked(now time.Time) {
	elapsed := now.Sub(p.lastRefill)
	p.lastRefill = now
	if elapsed <= 0 {
		return
	}
	p.tokens += p.rate * elapsed.Seconds()
	if p.tokens > p.maxTokens {
		p.tokens = p.maxTokens
	}
}

// PacedNIC decorates a NIC with a Pacer so a segment that would exceed
// the negotiated send rate is deferred through ScheduleAfter instead of
// handed straight to the underlying transport. Send never blocks: a
// deferred segment returns immediately and is transmitted from the
// scheduler callback once the bucket refills.
type PacedNIC struct {
	nic   NIC
	pacer *Pacer
}

// NewPacedNIC wraps nic with a Pacer seeded at initialRate bytes/sec.
func NewPacedNIC(nic NIC, initialRate float64, mtu int, now time.Time) *PacedNIC {
	return &PacedNIC{nic: nic, pacer: NewPacer(initialRate, mtu, now)}
}

// SetRate re-targets the pacer, e.g. as a flow's multipath share changes.
func (p *PacedNIC) SetRate(rate float64) { p.pacer.SetRate(rate) }

func (p *PacedNIC) LinkSpeed() uint64 { return p.nic.LinkSpeed() }
func (p *PacedNIC) Now() time.Time    { return p.nic.Now() }

func (p *PacedNIC) ScheduleAfter(d time.Duration, fn func()) Cancel {
	return p.nic.ScheduleAfter(d, fn)
}

func (p *PacedNIC) Send(data []byte, dst string) {
	now := p.nic.Now()
	if p.pacer.CanSend(len(data), now) {
		p.pacer.OnSent(len(data), now)
		p.nic.Send(data, dst)
		return
	}
	p.nic.ScheduleAfter(p.pacer.TimeUntilSend(len(data), now), func() {
		p.pacer.OnSent(len(data), p.nic.Now())
		p.nic.Send(data, dst)
	})
}

// NullNIC is a reference NIC that accounts sends without a real
// transport underneath, for dry runs and as the default when no
// host-specific NIC is wired in — the hostnic.NIC analogue of
// topology.DiameterOracle's static fallback.
type NullNIC struct {
	LinkSpeedBitsPerSec uint64
	Clock               Clock
}

func (n NullNIC) LinkSpeed() uint64 { return n.LinkSpeedBitsPerSec }

func (n NullNIC) Now() time.Time {
	if n.Clock != nil {
		return n.Clock.Now()
	}
	return time.Now()
}

func (n NullNIC) ScheduleAfter(d time.Duration, fn func()) Cancel {
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}

func (n NullNIC) Send(data []byte, dst string) {}
