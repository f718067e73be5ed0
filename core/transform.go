// core/transform.go
package core

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DegToRad converts degrees to radians. All angular inputs are degrees at
// package boundaries and radians internally.
func DegToRad(deg float64) float64 { return deg * math.Pi / 180.0 }

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 { return rad * 180.0 / math.Pi }

// Transform is a rigid transform: rotation as a unit quaternion plus a
// translation in metres.
type Transform struct {
	Rot quat.Number
	Pos r3.Vec
}

// IdentityTransform returns the identity transform.
func IdentityTransform() Transform {
	return Transform{Rot: quat.Number{Real: 1}}
}

// NewTransform builds a transform from a translation and intrinsic Z-Y-X
// (yaw, pitch, roll) Euler angles in radians.
func NewTransform(pos r3.Vec, roll, pitch, yaw float64) Transform {
	qz := axisAngle(r3.Vec{Z: 1}, yaw)
	qy := axisAngle(r3.Vec{Y: 1}, pitch)
	qx := axisAngle(r3.Vec{X: 1}, roll)
	return Transform{Rot: quat.Mul(quat.Mul(qz, qy), qx), Pos: pos}
}

// TransformFromDegrees is NewTransform with angles in degrees.
func TransformFromDegrees(pos r3.Vec, rollDeg, pitchDeg, yawDeg float64) Transform {
	return NewTransform(pos, DegToRad(rollDeg), DegToRad(pitchDeg), DegToRad(yawDeg))
}

func axisAngle(axis r3.Vec, angle float64) quat.Number {
	s, c := math.Sincos(angle / 2)
	return quat.Number{Real: c, Imag: s * axis.X, Jmag: s * axis.Y, Kmag: s * axis.Z}
}

// Mul composes two transforms: applying the result equals applying b first,
// then a.
func (a Transform) Mul(b Transform) Transform {
	return Transform{
		Rot: normalize(quat.Mul(a.Rot, b.Rot)),
		Pos: r3.Add(a.Pos, a.RotateVec(b.Pos)),
	}
}

// Inverse returns the transform mapping back from a's target frame.
func (a Transform) Inverse() Transform {
	inv := quat.Conj(a.Rot)
	return Transform{
		Rot: inv,
		Pos: r3.Scale(-1, rotateVec(inv, a.Pos)),
	}
}

// Apply maps a point through the transform.
func (a Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Add(a.RotateVec(p), a.Pos)
}

// RotateVec rotates a direction vector without translating it.
func (a Transform) RotateVec(v r3.Vec) r3.Vec {
	return rotateVec(a.Rot, v)
}

// RotateToLocal expresses a world-frame vector in the transform's local axes.
func (a Transform) RotateToLocal(v r3.Vec) r3.Vec {
	return rotateVec(quat.Conj(a.Rot), v)
}

func rotateVec(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// EulerAngles extracts intrinsic Z-Y-X Euler angles (roll, pitch, yaw) in
// radians from the rotation component.
func (a Transform) EulerAngles() (roll, pitch, yaw float64) {
	q := normalize(a.Rot)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	sp := 2 * (w*y - z*x)
	if sp > 1 {
		sp = 1
	} else if sp < -1 {
		sp = -1
	}
	pitch = math.Asin(sp)

	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return roll, pitch, yaw
}

// DirectionFromAngles converts an azimuth/elevation pair (radians) into a
// unit direction in the sensor frame. Convention: X right, Y forward, Z up;
// azimuth 0 points along +Y and grows clockwise when seen from above.
func DirectionFromAngles(azimuth, elevation float64) r3.Vec {
	cosEl := math.Cos(elevation)
	return r3.Vec{
		X: cosEl * math.Sin(azimuth),
		Y: cosEl * math.Cos(azimuth),
		Z: math.Sin(elevation),
	}
}
