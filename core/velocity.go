// core/velocity.go
package core

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// minVelocityDt guards the finite difference against zero-duration ticks.
// Anything below this is treated as no motion rather than dividing by zero.
const minVelocityDt = 1e-9

// EstimateVelocity computes a sensor-local velocity by finite difference of
// two timestamped world poses. Linear velocity is the translation delta
// rotated into the current sensor's axes; angular velocity is the per-axis
// shortest signed angle delta, so a 350°→10° yaw transition reports +20°/dt,
// not −340°/dt.
func EstimateVelocity(prev, cur Transform, dt float64) (linear, angular r3.Vec) {
	if dt < minVelocityDt {
		return r3.Vec{}, r3.Vec{}
	}

	d := r3.Sub(cur.Pos, prev.Pos)
	linear = r3.Scale(1/dt, cur.RotateToLocal(d))

	pr, pp, py := prev.EulerAngles()
	cr, cp, cy := cur.EulerAngles()
	angular = r3.Vec{
		X: shortestAngle(cr-pr) / dt,
		Y: shortestAngle(cp-pp) / dt,
		Z: shortestAngle(cy-py) / dt,
	}
	return linear, angular
}

// shortestAngle wraps an angle difference into (−π, π].
func shortestAngle(d float64) float64 {
	d = math.Remainder(d, 2*math.Pi)
	if d == -math.Pi {
		d = math.Pi
	}
	return d
}
