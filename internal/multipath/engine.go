package multipath

import (
	"sync"
	"time"
)

// Clock is the minimal time source the engine needs; hostnic.RealClock
// satisfies it structurally.
type Clock interface {
	Now() time.Time
}

// Engine is the polymorphic capability set the congestion core depends
// on: Notify per ACK/NACK/timeout, and SelectNext for the caller's own
// sender to consult when choosing the next segment's path. Concrete
// variants differ only in internal policy (this package's QualityEngine
// is one; a round-robin or penalty-bitmap variant would be another)
// the core never inspects which.
type Engine interface {
	Notify(pathID string, ev FeedbackClass)
	SelectNext() string
}

// QualityEngine is a reference Engine: it scores each known path by its
// recent ECN/NACK/timeout history and switches the active path when a
// candidate clearly outperforms it or the active path times out
// repeatedly.
type QualityEngine struct {
	mu sync.Mutex

	clock    Clock
	cooldown time.Duration

	paths   map[string]*qualityMonitor
	active  string
	history []SwitchEvent
}

// NewQualityEngine creates an engine with an initial set of known paths
// and cooldown between switches.
func NewQualityEngine(clock Clock, cooldown time.Duration, paths []string) *QualityEngine {
	e := &QualityEngine{
		clock:    clock,
		cooldown: cooldown,
		paths:    make(map[string]*qualityMonitor, len(paths)),
	}
	for _, p := range paths {
		e.paths[p] = newQualityMonitor()
	}
	if len(paths) > 0 {
		e.active = paths[0]
	}
	return e
}

// Notify folds one feedback event into the reporting path's quality
// score and re-evaluates whether the active path should change.
func (e *QualityEngine) Notify(pathID string, ev FeedbackClass) {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.paths[pathID]
	if !ok {
		m = newQualityMonitor()
		e.paths[pathID] = m
		if e.active == "" {
			e.active = pathID
		}
	}
	m.record(ev, now)

	if pathID != e.active {
		return
	}

	qualities := make(map[string]PathQuality, len(e.paths))
	var lastSwitch time.Time
	if len(e.history) > 0 {
		lastSwitch = e.history[len(e.history)-1].Time
	}
	for id, mon := range e.paths {
		qualities[id] = mon.snapshot(id)
	}

	target, reason := decide(e.active, qualities, lastSwitch, e.cooldown, now)
	if reason == ReasonNone || target == e.active {
		return
	}

	e.history = append(e.history, SwitchEvent{
		Time:       now,
		FromPath:   e.active,
		ToPath:     target,
		Reason:     reason,
		Confidence: qualities[target].Score,
	})
	e.active = target
}

// SelectNext returns the currently preferred path id.
func (e *QualityEngine) SelectNext() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Qualities returns a snapshot of every known path's current score, for
// metrics export.
func (e *QualityEngine) Qualities() []PathQuality {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PathQuality, 0, len(e.paths))
	for id, m := range e.paths {
		out = append(out, m.snapshot(id))
	}
	return out
}

// History returns the switch history, most recent last.
func (e *QualityEngine) History() []SwitchEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SwitchEvent, len(e.history))
	copy(out, e.history)
	return out
}
