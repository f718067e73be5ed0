package timectrl

import (
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time, so components that
// schedule work (the multi-sensor scheduler, restriction timers) depend on a
// clock abstraction rather than on the concrete time controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still
	// stepping by the fixed tick.
	Accelerated
)

// TimeController drives simulation time with a fixed tick and notifies
// registered listeners each step. It implements SimClock and runs the event
// scheduler's due events after every advance, so sim-time timers fire in
// step with the loop.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time

	listeners []func(now time.Time, dt time.Duration)
	events    *EventScheduler
}

// NewTimeController constructs a controller starting at start with the given
// fixed tick.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	tc := &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
	tc.events = NewEventScheduler(tc)
	return tc
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime jumps simulation time without running listeners. Useful for tests
// and for aligning a controller to an external clock before starting.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// Events returns the sim-time event scheduler bound to this controller.
func (tc *TimeController) Events() *EventScheduler {
	return tc.events
}

// AddListener registers a callback invoked on every tick with the new
// simulation time and the tick duration.
func (tc *TimeController) AddListener(fn func(now time.Time, dt time.Duration)) {
	tc.listeners = append(tc.listeners, fn)
}

// Step advances simulation time by one tick, running listeners and any due
// scheduled events. It is the single-threaded heart of the loop; Start just
// calls it on a cadence.
func (tc *TimeController) Step() {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	now := tc.currentTime
	tc.mu.Unlock()

	for _, fn := range tc.listeners {
		fn(now, tc.Tick)
	}
	tc.events.RunDue()
}

// Start runs the controller for the specified simulated duration in a
// separate goroutine and returns a channel closed when it finishes. In
// RealTime mode each step waits out the tick on the wall clock; Accelerated
// mode steps as fast as the loop allows.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(tc.Tick)
			defer ticker.Stop()
		}

		for elapsed := time.Duration(0); duration <= 0 || elapsed < duration; elapsed += tc.Tick {
			if ticker != nil {
				<-ticker.C
			}
			tc.Step()
		}
	}()
	return done
}
