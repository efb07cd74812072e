package congestion

import (
	"testing"
	"time"
)

func TestClassifyQuadrants(t *testing.T) {
	target := 9 * time.Microsecond

	tests := []struct {
		name     string
		ecn      bool
		rawDelay time.Duration
		want     Action
	}{
		{"below target, no ecn -> proportional increase", false, 5 * time.Microsecond, ActionProportionalIncrease},
		{"at or above target, no ecn -> fair increase", false, 9 * time.Microsecond, ActionFairIncrease},
		{"above target, no ecn -> fair increase", false, 15 * time.Microsecond, ActionFairIncrease},
		{"below target, ecn -> noop", true, 2 * time.Microsecond, ActionNoop}, // S3
		{"at or above target, ecn -> multiplicative decrease", true, 18 * time.Microsecond, ActionMultiplicativeDecrease}, // S2
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.ecn, tc.rawDelay, target)
			if got != tc.want {
				t.Errorf("classify(ecn=%v, raw=%v, target=%v) = %v, want %v", tc.ecn, tc.rawDelay, target, got, tc.want)
			}
		})
	}
}

func TestFastIncreaseQualifierActivatesAfterZeroDelayRun(t *testing.T) {
	q := &fastIncreaseQualifier{}
	cwnd := int64(10_000)

	if q.update(2*time.Microsecond, 4096, cwnd) {
		t.Fatal("should not qualify on a single non-zero-delay ACK")
	}

	// Feed zero (sub-microsecond) delay ACKs until qualifying bytes
	// exceed cwnd.
	active := false
	sent := int64(0)
	for sent <= cwnd {
		active = q.update(0, 4096, cwnd)
		sent += 4096
	}
	if !active {
		t.Error("expected fast-increase to activate once qualifying bytes exceed cwnd")
	}
}

func TestFastIncreaseQualifierResetsOnNonZeroDelay(t *testing.T) {
	q := &fastIncreaseQualifier{qualifyingBytes: 20_000, active: true}

	got := q.update(5*time.Microsecond, 4096, 10_000)
	if got {
		t.Error("expected fast-increase to deactivate once delay is observed")
	}
	if q.qualifyingBytes != 0 {
		t.Errorf("qualifyingBytes = %d, want 0 after reset", q.qualifyingBytes)
	}
}
