package timectrl

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Scheduler schedules callbacks to run at specific simulation times based on
// a SimClock. The periodic output-restriction task is its main consumer: it
// needs one-shot timers that can be cancelled the moment the policy changes.
//
// The main simulation loop calls RunDue after each time advance; components
// use Schedule and Cancel to manage their pending actions.
type Scheduler interface {
	// Schedule registers f to run at simulation time at and returns an
	// opaque event id usable with Cancel.
	Schedule(at time.Time, f func()) (id string)

	// Cancel drops a previously scheduled event. Unknown or already-run
	// ids are a no-op.
	Cancel(id string)

	// Now returns the current simulation time.
	Now() time.Time

	// RunDue executes all events whose scheduled time is <= Now().
	// Already-run events never run again.
	RunDue()
}

type scheduledEvent struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

// EventScheduler is the concrete Scheduler used in normal runs, keyed to a
// SimClock and keeping events ordered by scheduled time.
type EventScheduler struct {
	clock SimClock

	mu      sync.Mutex
	counter uint64
	events  []*scheduledEvent
	index   map[string]*scheduledEvent
}

// NewEventScheduler creates a scheduler backed by the given clock. Tests use
// a FakeClock; normal runs pass the TimeController.
func NewEventScheduler(clock SimClock) *EventScheduler {
	return &EventScheduler{
		clock: clock,
		index: make(map[string]*scheduledEvent),
	}
}

// Schedule registers a callback to run at the specified simulation time.
func (s *EventScheduler) Schedule(at time.Time, f func()) (id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id = fmt.Sprintf("ev-%d", s.counter)
	ev := &scheduledEvent{id: id, when: at, f: f}

	idx := sort.Search(len(s.events), func(i int) bool {
		return !s.events[i].when.Before(at)
	})
	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev

	s.index[id] = ev
	return id
}

// Cancel marks an event cancelled; removal from the queue is lazy.
func (s *EventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}
	ev.cancelled = true
	delete(s.index, id)
}

// Now returns the current simulation time from the underlying clock.
func (s *EventScheduler) Now() time.Time {
	return s.clock.Now()
}

// RunDue executes all events due at or before the current simulation time.
// Callbacks run outside the lock so they can schedule or cancel re-entrantly.
func (s *EventScheduler) RunDue() {
	for {
		s.mu.Lock()
		ev := s.popDueLocked()
		if ev == nil {
			s.mu.Unlock()
			return
		}
		delete(s.index, ev.id)
		s.mu.Unlock()

		if ev.f != nil {
			ev.f()
		}
	}
}

// popDueLocked removes and returns the earliest non-cancelled due event, or
// nil. Caller holds s.mu.
func (s *EventScheduler) popDueLocked() *scheduledEvent {
	now := s.clock.Now()
	for len(s.events) > 0 {
		ev := s.events[0]
		if ev.cancelled {
			s.events = s.events[1:]
			continue
		}
		if ev.when.After(now) {
			// Events are time-ordered; later ones are in the future too.
			return nil
		}
		s.events = s.events[1:]
		return ev
	}
	return nil
}
