package jobcard

import (
	"sync"
	"time"
)

// Clock supplies wall time to the engine.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// TickFunc is invoked once per tick interval for every running timer.
type TickFunc func(jobCardID string, elapsedSeconds int64)

// DefaultTickInterval is the period of tick callbacks.
const DefaultTickInterval = time.Second

// TimerState is a copy of one timer, used to restore it exactly.
type TimerState struct {
	Baseline     int64
	RunningSince *time.Time
}

type timer struct {
	baseline     int64      // persisted seconds at the last seed/rebase/stop
	runningSince *time.Time // nil while stopped
	done         chan struct{}
}

// Timers keeps one duration clock per job card. Elapsed time is derived from
// the wall clock, so a running timer never drifts from real time and a
// stopped timer never counts.
type Timers struct {
	mu       sync.Mutex
	clock    Clock
	timers   map[string]*timer
	tick     TickFunc
	interval time.Duration
}

func NewTimers(clock Clock, tick TickFunc, interval time.Duration) *Timers {
	if clock == nil {
		clock = SystemClock()
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Timers{
		clock:    clock,
		timers:   make(map[string]*timer),
		tick:     tick,
		interval: interval,
	}
}

func (t *Timers) get(id string) *timer {
	tm, ok := t.timers[id]
	if !ok {
		tm = &timer{}
		t.timers[id] = tm
	}
	return tm
}

// Seed sets the persisted baseline of a timer. A running timer restarts its
// interval at the current time.
func (t *Timers) Seed(id string, seconds int64) {
	t.Rebase(id, seconds, t.clock.Now())
}

// Rebase adopts an authoritative baseline as of at. If the timer is running
// it keeps running and counts from at.
func (t *Timers) Rebase(id string, seconds int64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm := t.get(id)
	tm.baseline = seconds
	if tm.runningSince != nil {
		since := at
		tm.runningSince = &since
	}
}

// Start begins counting for id. It reports false if the timer was already running.
func (t *Timers) Start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm := t.get(id)
	if tm.runningSince != nil {
		return false
	}
	now := t.clock.Now()
	tm.runningSince = &now
	if t.tick != nil {
		tm.done = make(chan struct{})
		go t.run(id, tm.done)
	}
	return true
}

// Stop halts counting for id, folding the running interval into the
// baseline. It reports false if the timer was not running.
func (t *Timers) Stop(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm, ok := t.timers[id]
	if !ok || tm.runningSince == nil {
		return false
	}
	tm.baseline = tm.elapsedAt(t.clock.Now())
	tm.runningSince = nil
	tm.stopTicker()
	return true
}

// Running reports whether the timer for id is counting.
func (t *Timers) Running(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm, ok := t.timers[id]
	return ok && tm.runningSince != nil
}

// Elapsed returns the accumulated seconds of id at the current time.
func (t *Timers) Elapsed(id string) int64 {
	return t.ElapsedAt(id, t.clock.Now())
}

// ElapsedAt returns the accumulated seconds of id as of at.
func (t *Timers) ElapsedAt(id string, at time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm, ok := t.timers[id]
	if !ok {
		return 0
	}
	return tm.elapsedAt(at)
}

// Snapshot returns a copy of the timer state for id.
func (t *Timers) Snapshot(id string) TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm, ok := t.timers[id]
	if !ok {
		return TimerState{}
	}
	st := TimerState{Baseline: tm.baseline}
	if tm.runningSince != nil {
		since := *tm.runningSince
		st.RunningSince = &since
	}
	return st
}

// Restore puts the timer for id back into a state taken with Snapshot.
func (t *Timers) Restore(id string, st TimerState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tm := t.get(id)
	wasRunning := tm.runningSince != nil
	tm.baseline = st.Baseline
	if st.RunningSince == nil {
		tm.runningSince = nil
		tm.stopTicker()
		return
	}
	since := *st.RunningSince
	tm.runningSince = &since
	if !wasRunning && t.tick != nil {
		tm.done = make(chan struct{})
		go t.run(id, tm.done)
	}
}

// Remove stops and forgets the timer for id.
func (t *Timers) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.timers[id]; ok {
		tm.stopTicker()
		delete(t.timers, id)
	}
}

// StopAll stops every running timer.
func (t *Timers) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	for _, tm := range t.timers {
		if tm.runningSince != nil {
			tm.baseline = tm.elapsedAt(now)
			tm.runningSince = nil
		}
		tm.stopTicker()
	}
}

func (t *Timers) run(id string, done <-chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.tick(id, t.Elapsed(id))
		}
	}
}

func (tm *timer) elapsedAt(at time.Time) int64 {
	if tm.runningSince == nil {
		return tm.baseline
	}
	running := at.Sub(*tm.runningSince)
	if running < 0 {
		running = 0
	}
	return tm.baseline + int64(running/time.Second)
}

func (tm *timer) stopTicker() {
	if tm.done != nil {
		close(tm.done)
		tm.done = nil
	}
}
