package congestion

import "time"

// Reference network: an otherwise-arbitrary ~100 Gbps / 12 microsecond
// fabric used only to derive dimensionless scaling ratios at init. Only
// the ratios computed from it in DeriveParams carry any meaning; the
// reference point itself is never exposed.
const (
	refLinkSpeedBitsPerSec uint64        = 100_000_000_000
	refRTT                 time.Duration = 12 * time.Microsecond
)

// Params is the immutable, process-wide parameter bundle derived once by
// the Scaling Oracle and embedded by value into every Flow. Embedding by
// value rather than sharing a pointer to mutable state makes "read-only
// for the flow's lifetime" a compiler-enforced property instead of a
// discipline every call site has to honor.
type Params struct {
	MTU     int64 // bytes, ~4096
	MinCwnd int64 // 1 MTU

	Multiplier float64 // maxwnd = Multiplier * bdp, in [1.25, 1.5]

	Alpha   float64 // proportional-increase gain
	Fi      float64 // fair-increase constant
	Eta     float64 // per-fulfill additive nudge
	FiScale float64 // fast-increase multiplier
	Gamma   float64 // decrease aggressiveness

	DelayAlpha float64 // EWMA weight for avg_delay

	TargetQdelay time.Duration
	QAThreshold  time.Duration // 4 * TargetQdelay

	AdjustBytesThreshold  int64         // bytes
	AdjustPeriodThreshold time.Duration // == network_rtt

	QAGate int // 0..4; underperformance threshold is maxwnd >> QAGate

	TrimmingEnabled bool
}

// OracleInput is the set of actual-network quantities the Scaling Oracle
// needs at process init.
type OracleInput struct {
	LinkSpeedBitsPerSec uint64
	NetworkRTT          time.Duration

	// TargetQdelayOverride, if non-zero, takes priority over the
	// trimming-enabled default and the NetworkRTT default below.
	TargetQdelayOverride time.Duration

	MTU        int64
	Multiplier float64

	// QAGate of 0 is treated as unset and replaced by the default 3, so a
	// gate of 0 cannot be selected through DeriveParams.
	QAGate int

	AdjustBytesThresholdMTUs int64 // default 8

	TrimmingEnabled bool
}

// DeriveParams computes the Scaling Oracle's parameter bundle: the fixed
// alpha/fi/eta/fi_scale/gamma gains, the EWMA weight, and the
// QA/fulfill thresholds, from the reference network and the actual link
// speed, network RTT, and target queuing delay. The reference network is
// fixed; only the two ratios scalingFactorA (BDP scale) and
// scalingFactorB (delay scale) carry the actual network into the bundle,
// which is why the shape of the proportional response is invariant
// across network sizes — only the equilibrium point (target_Qdelay)
// shifts.
func DeriveParams(in OracleInput) Params {
	mtu := in.MTU
	if mtu <= 0 {
		mtu = 4096
	}
	multiplier := in.Multiplier
	if multiplier == 0 {
		multiplier = 1.25
	}
	qaGate := in.QAGate
	if qaGate == 0 {
		qaGate = 3
	}
	adjustMTUs := in.AdjustBytesThresholdMTUs
	if adjustMTUs == 0 {
		adjustMTUs = 8
	}

	targetQdelay := selectTargetQdelay(in)

	refBDP := bdpBytes(refRTT, refLinkSpeedBitsPerSec)
	actualBDP := bdpBytes(in.NetworkRTT, in.LinkSpeedBitsPerSec)

	scalingFactorA := actualBDP / refBDP
	scalingFactorB := float64(targetQdelay) / float64(refRTT)

	mss := float64(mtu)
	alpha := 4 * mss * scalingFactorA * scalingFactorB / float64(targetQdelay)
	fi := 5 * mss * scalingFactorA
	eta := 0.15 * mss * scalingFactorA

	return Params{
		MTU:                   mtu,
		MinCwnd:               mtu,
		Multiplier:            multiplier,
		Alpha:                 alpha,
		Fi:                    fi,
		Eta:                   eta,
		FiScale:               0.25 * scalingFactorA,
		Gamma:                 0.8,
		DelayAlpha:            1.0 / 80.0,
		TargetQdelay:          targetQdelay,
		QAThreshold:           4 * targetQdelay,
		AdjustBytesThreshold:  adjustMTUs * mtu,
		AdjustPeriodThreshold: in.NetworkRTT,
		QAGate:                qaGate,
		TrimmingEnabled:       in.TrimmingEnabled,
	}
}

// selectTargetQdelay applies the priority order: an explicit override
// wins outright; otherwise trimming support knocks 25% off the raw RTT
// to leave room for a trimmed packet's NACK to arrive before the queue
// backs all the way up; with no trimming the full RTT is the target.
func selectTargetQdelay(in OracleInput) time.Duration {
	if in.TargetQdelayOverride > 0 {
		return in.TargetQdelayOverride
	}
	if in.TrimmingEnabled {
		return time.Duration(0.75 * float64(in.NetworkRTT))
	}
	return in.NetworkRTT
}

// BDP returns the bandwidth-delay product in bytes for the given base
// RTT and link speed (bits/sec).
func BDP(baseRTT time.Duration, linkSpeedBitsPerSec uint64) int64 {
	return int64(bdpBytes(baseRTT, linkSpeedBitsPerSec))
}

func bdpBytes(rtt time.Duration, linkSpeedBitsPerSec uint64) float64 {
	return float64(rtt) / float64(time.Second) * float64(linkSpeedBitsPerSec) / 8
}
