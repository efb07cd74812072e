package congestion

import (
	"sync"
	"time"
)

// delayEstimator tracks a flow's base RTT and a slow EWMA of queuing
// delay. base_rtt only ever shrinks: a fabric re-route that genuinely
// raises the floor is not detected, and the estimate stays locked to the
// smaller value until the flow ends.
type delayEstimator struct {
	mu sync.Mutex

	baseRTT  time.Duration
	avgDelay time.Duration

	// TrustNackRTT feeds NACK-carried RTT samples into the same
	// base_rtt-shrink rule as ACKs. Default on. Trimmed packets can
	// carry inflated forwarding delay at the trimming switch, so a
	// NACK-sourced sample can transiently pull base_rtt below the true
	// propagation floor. The flag is only reachable inside this package;
	// Flow has no setter for it.
	TrustNackRTT bool
}

func newDelayEstimator(initialBaseRTT time.Duration) *delayEstimator {
	return &delayEstimator{
		baseRTT:      initialBaseRTT,
		TrustNackRTT: true,
	}
}

// observe folds a single RTT sample into base_rtt and returns (rawDelay,
// baseRTTChanged). It does not touch avg_delay — that only happens on
// the ACK path via updateAvgDelay, since NACK samples should not be
// allowed to perturb the decrease-magnitude filter.
func (d *delayEstimator) observe(rawRTT time.Duration) (rawDelay time.Duration, baseChanged bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rawRTT < d.baseRTT {
		d.baseRTT = rawRTT
		baseChanged = true
	}

	rawDelay = rawRTT - d.baseRTT
	if rawDelay < 0 {
		rawDelay = 0
	}
	return rawDelay, baseChanged
}

// updateAvgDelay applies the three-case EWMA rule. C1 discounts a single
// hot path so it can't inflate the average that governs decrease
// magnitude in a sprayed fabric; C2 overrides C1 once delay is extreme
// enough to be a genuine emergency; C3 is the ordinary case.
func (d *delayEstimator) updateAvgDelay(rawDelay time.Duration, ecn bool, targetQdelay time.Duration, alpha float64) {
	d.mu.Lock()
	baseRTT := d.baseRTT
	d.mu.Unlock()

	var sample time.Duration
	switch {
	case rawDelay > 5*baseRTT: // C2
		sample = rawDelay
	case !ecn && rawDelay > targetQdelay: // C1
		sample = time.Duration(0.25 * float64(baseRTT))
	default: // C3
		sample = rawDelay
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.avgDelay == 0 {
		d.avgDelay = sample
		return
	}
	d.avgDelay = time.Duration((1-alpha)*float64(d.avgDelay) + alpha*float64(sample))
}

func (d *delayEstimator) BaseRTT() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseRTT
}

func (d *delayEstimator) AvgDelay() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.avgDelay
}
