package congestion

import (
	"sync"
	"time"
)

// windowController owns cwnd and the batched increase accumulator.
// Increases are batched into incBytes and only applied at the next
// fulfill boundary; decreases and fast-increase bypass the batch and hit
// cwnd immediately. The asymmetry is deliberate: fast reaction to bad
// news, calm growth after good news.
type windowController struct {
	mu sync.Mutex

	params Params

	cwnd   float64
	maxwnd float64

	incBytes      float64
	receivedBytes int64
	lastAdjust    time.Time

	lastDecTime time.Time
}

func newWindowController(p Params, initialCwnd, maxwnd float64, now time.Time) *windowController {
	return &windowController{
		params:     p,
		cwnd:       initialCwnd,
		maxwnd:     maxwnd,
		lastAdjust: now,
	}
}

// Cwnd returns the current window in bytes, truncated toward zero.
func (w *windowController) Cwnd() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int64(w.cwnd)
}

// maxwndSnapshot returns the current ceiling in bytes (float, since
// callers need it both for clamp arithmetic and for rounded display).
func (w *windowController) maxwndSnapshot() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxwnd
}

// setMaxwnd updates the ceiling (called when base_rtt shrinks and bdp is
// recomputed) and clamps cwnd down if it now exceeds the new ceiling.
func (w *windowController) setMaxwnd(maxwnd float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.maxwnd = maxwnd
	w.clampLocked()
}

func (w *windowController) clampLocked() {
	min := float64(w.params.MinCwnd)
	if w.cwnd < min {
		w.cwnd = min
	}
	if w.cwnd > w.maxwnd {
		w.cwnd = w.maxwnd
	}
}

// applyFairIncrease accumulates fi*N into the batch buffer.
func (w *windowController) applyFairIncrease(newBytes int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.incBytes += w.params.Fi * float64(newBytes)
}

// applyProportionalIncrease accumulates alpha*N*(target-raw) into the
// batch buffer. The (target-raw) factor is a linear ramp: maximum slope
// at raw=0, zero at the target, never pushing past equilibrium.
func (w *windowController) applyProportionalIncrease(newBytes int64, rawDelay, targetQdelay time.Duration) {
	headroom := float64(targetQdelay - rawDelay)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.incBytes += w.params.Alpha * float64(newBytes) * headroom
}

// applyFastIncrease adds N*fi_scale directly to cwnd, bypassing the
// batch buffer entirely.
func (w *windowController) applyFastIncrease(newBytes int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cwnd += float64(newBytes) * w.params.FiScale
	w.clampLocked()
}

// applyMultiplicativeDecrease cuts cwnd using avgDelay (not raw), gated
// to at most once per base_rtt. Returns whether a cut was actually
// applied (false if the gate was still closed or avgDelay <= target).
func (w *windowController) applyMultiplicativeDecrease(avgDelay, targetQdelay, baseRTT time.Duration, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.lastDecTime.IsZero() && now.Sub(w.lastDecTime) < baseRTT {
		return false
	}
	if avgDelay <= targetQdelay {
		return false
	}

	d := float64(avgDelay)
	t := float64(targetQdelay)
	factor := 1 - w.params.Gamma*(d-t)/d
	if factor < 0.5 {
		factor = 0.5
	}
	w.cwnd *= factor
	w.clampLocked()
	w.lastDecTime = now
	return true
}

// recordBytes feeds the fulfill trigger's received_bytes counter and
// fires the fulfill adjustment if either trigger condition holds. It
// reports whether a fulfill actually ran.
func (w *windowController) recordBytes(newBytes int64, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.receivedBytes += newBytes

	due := w.receivedBytes > w.params.AdjustBytesThreshold ||
		now.Sub(w.lastAdjust) > w.params.AdjustPeriodThreshold
	if !due {
		return false
	}
	w.fulfillLocked(now)
	return true
}

// fulfillLocked applies the batched increase, normalized by 1/cwnd: two
// flows sharing the same incBytes receive inversely proportional
// absolute nudges, driving them toward a common share. The +eta nudge
// guarantees forward progress even when incBytes is vanishingly small.
func (w *windowController) fulfillLocked(now time.Time) {
	if w.cwnd > 0 {
		w.cwnd += w.incBytes/w.cwnd + w.params.Eta
	} else {
		w.cwnd += w.params.Eta
	}
	w.incBytes = 0
	w.receivedBytes = 0
	w.lastAdjust = now
	w.clampLocked()
}

// resetTo is used by Quick Adapt to force cwnd to a specific value,
// clearing the batch buffer and fulfill timer so the next regular
// fulfill measures fresh progress from the new baseline.
func (w *windowController) resetTo(cwnd float64, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cwnd = cwnd
	w.incBytes = 0
	w.receivedBytes = 0
	w.lastAdjust = now
	w.clampLocked()
}
