package congestion

import (
	"testing"
	"time"
)

func TestEvaluateFiresUnderIncastScenario(t *testing.T) {
	// S4: maxwnd = 225 KB, qa_gate = 3 (underperform threshold = 225KB/8 =
	// 28125 bytes). achieved_bytes in the eval window = 1 KB, well under.
	now := time.Now()
	p := Params{MinCwnd: 512, QAGate: 3}
	q := newQuickAdapt(p, now)

	q.recordAchieved(1024)
	q.setTrigger()

	result := q.evaluate(false, 0, 225_000, 4096, now)
	if !result.Fired {
		t.Fatal("expected Quick Adapt to fire under a severe incast")
	}
	if result.NewCwnd != 1024 {
		t.Errorf("NewCwnd = %v, want 1024 (achieved bytes, above MinCwnd floor)", result.NewCwnd)
	}
	if result.BytesToIgnore != 4096 {
		t.Errorf("BytesToIgnore = %d, want 4096 (in_flight at fire time)", result.BytesToIgnore)
	}
}

func TestEvaluateClampsNewCwndToMinCwnd(t *testing.T) {
	now := time.Now()
	p := Params{MinCwnd: 4096, QAGate: 3}
	q := newQuickAdapt(p, now)

	q.recordAchieved(100) // below MinCwnd
	q.setTrigger()

	result := q.evaluate(false, 0, 225_000, 0, now)
	if !result.Fired {
		t.Fatal("expected Quick Adapt to fire")
	}
	if result.NewCwnd != 4096 {
		t.Errorf("NewCwnd = %v, want floored at MinCwnd 4096", result.NewCwnd)
	}
}

func TestEvaluateDoesNotFireWhenNotUnderperforming(t *testing.T) {
	now := time.Now()
	p := Params{MinCwnd: 512, QAGate: 3}
	q := newQuickAdapt(p, now)

	q.recordAchieved(100_000) // above maxwnd>>3 = 28125
	q.setTrigger()

	result := q.evaluate(false, 0, 225_000, 0, now)
	if result.Fired {
		t.Error("should not fire when the flow is achieving close to its share")
	}
}

func TestEvaluateDoesNotFireWithoutAnyCondition(t *testing.T) {
	now := time.Now()
	p := Params{MinCwnd: 512, QAGate: 3, QAThreshold: 36 * time.Microsecond}
	q := newQuickAdapt(p, now)

	q.recordAchieved(100) // underperforming, but no trigger/loss/delay condition
	result := q.evaluate(false, 5*time.Microsecond, 225_000, 0, now)
	if result.Fired {
		t.Error("should not fire without trigger, loss signal, or excess raw_delay")
	}
}

func TestEvaluateFiresOnExcessRawDelayAlone(t *testing.T) {
	now := time.Now()
	p := Params{MinCwnd: 512, QAGate: 3, QAThreshold: 36 * time.Microsecond}
	q := newQuickAdapt(p, now)

	q.recordAchieved(100)
	result := q.evaluate(false, 40*time.Microsecond, 225_000, 0, now)
	if !result.Fired {
		t.Error("should fire when raw_delay alone exceeds qa_threshold")
	}
}

func TestMaskActiveConsumesBytesToIgnoreThenReleases(t *testing.T) {
	// P6: post-fire, the next in_flight_at_fire bytes acknowledged see no
	// quadrant-driven mutation.
	now := time.Now()
	p := Params{MinCwnd: 512, QAGate: 3}
	q := newQuickAdapt(p, now)

	q.recordAchieved(100)
	q.setTrigger()
	result := q.evaluate(false, 0, 225_000, 1000, now)
	if !result.Fired || result.BytesToIgnore != 1000 {
		t.Fatalf("setup: expected fire with BytesToIgnore=1000, got %+v", result)
	}

	if !q.maskActive(400) {
		t.Error("expected mask active for first 400 bytes")
	}
	if !q.maskActive(400) {
		t.Error("expected mask active for next 400 bytes (800/1000 consumed)")
	}
	if !q.maskActive(300) {
		t.Error("expected mask active for the ACK that crosses the threshold")
	}
	if q.maskActive(1) {
		t.Error("expected mask released once bytes_to_ignore is fully consumed")
	}
}

func TestDueAtIsBaseRTTPlusTargetQdelayFromLastEval(t *testing.T) {
	now := time.Now()
	p := Params{TargetQdelay: 9 * time.Microsecond}
	q := newQuickAdapt(p, now)

	want := now.Add(12*time.Microsecond + 9*time.Microsecond)
	if got := q.dueAt(12 * time.Microsecond); !got.Equal(want) {
		t.Errorf("dueAt() = %v, want %v", got, want)
	}
}
