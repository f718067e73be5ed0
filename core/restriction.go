// core/restriction.go
package core

import (
	"sync"
	"time"

	"github.com/signalsfoundry/lidar-simulator/model"
	"github.com/signalsfoundry/lidar-simulator/timectrl"
)

// OutputRestriction clamps a sensor's maximum output range, either
// persistently (static policy) or on a two-phase timer (periodic policy:
// OnDuration at full range, OffDuration at the restricted range, repeating).
// It drives at most one timer-backed task at a time; reconfiguring always
// cancels the previous cycle before starting a new one so two competing
// timers never fight over the same raytrace node.
type OutputRestriction struct {
	sched timectrl.Scheduler
	clamp func(maxRange float64)

	mu        sync.Mutex
	policy    model.RestrictionPolicy
	fullRange float64
	current   float64
	gen       uint64
	pendingID string
}

// NewOutputRestriction wires a restriction to the sim-time scheduler and a
// clamp callback that pushes the active maximum range onto the raytrace node.
func NewOutputRestriction(sched timectrl.Scheduler, clamp func(maxRange float64)) *OutputRestriction {
	return &OutputRestriction{sched: sched, clamp: clamp}
}

// Apply installs a policy. fullRange is the sensor's unrestricted maximum,
// taken from its ray template; the periodic cycle toggles between it and the
// policy's restricted MaxRange.
func (r *OutputRestriction) Apply(policy model.RestrictionPolicy, fullRange float64) {
	r.mu.Lock()
	r.cancelLocked()
	r.policy = policy
	r.fullRange = fullRange

	switch {
	case !policy.Enabled:
		r.current = fullRange
	case policy.Periodic == nil:
		r.current = policy.MaxRange
	default:
		// Periodic entry starts in the unrestricted phase.
		r.current = fullRange
		r.schedulePhaseLocked(r.gen, true, r.sched.Now().Add(policy.Periodic.OnDuration))
	}
	cur := r.current
	r.mu.Unlock()

	r.clamp(cur)
}

// Reapply restarts the current policy against a new full range, used when a
// preset change alters the sensor's unrestricted maximum.
func (r *OutputRestriction) Reapply(fullRange float64) {
	r.mu.Lock()
	policy := r.policy
	r.mu.Unlock()
	r.Apply(policy, fullRange)
}

// Disable cancels any periodic cycle and falls back to applying the static
// policy once. Subsequent timer fires from the cancelled cycle never flip the
// clamp back.
func (r *OutputRestriction) Disable() {
	r.mu.Lock()
	r.cancelLocked()
	r.policy.Periodic = nil
	r.current = r.policy.MaxRange
	cur := r.current
	r.mu.Unlock()

	r.clamp(cur)
}

// ActiveRange reports the clamp currently applied.
func (r *OutputRestriction) ActiveRange() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// cancelLocked invalidates the running cycle. The generation bump makes any
// already-popped event a no-op even if the scheduler could not cancel it in
// time.
func (r *OutputRestriction) cancelLocked() {
	r.gen++
	if r.pendingID != "" {
		r.sched.Cancel(r.pendingID)
		r.pendingID = ""
	}
}

func (r *OutputRestriction) schedulePhaseLocked(gen uint64, restrict bool, at time.Time) {
	r.pendingID = r.sched.Schedule(at, func() {
		r.flip(gen, restrict)
	})
}

// flip is the periodic task body: apply the next phase's clamp and schedule
// the one after.
func (r *OutputRestriction) flip(gen uint64, restrict bool) {
	r.mu.Lock()
	if gen != r.gen || r.policy.Periodic == nil {
		r.mu.Unlock()
		return
	}
	var nextIn time.Duration
	if restrict {
		r.current = r.policy.MaxRange
		nextIn = r.policy.Periodic.OffDuration
	} else {
		r.current = r.fullRange
		nextIn = r.policy.Periodic.OnDuration
	}
	r.schedulePhaseLocked(gen, !restrict, r.sched.Now().Add(nextIn))
	cur := r.current
	r.mu.Unlock()

	r.clamp(cur)
}
