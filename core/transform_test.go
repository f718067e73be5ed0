package core

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

const geomTol = 1e-9

func vecClose(a, b r3.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}

func TestIdentityTransformLeavesPointsAlone(t *testing.T) {
	p := r3.Vec{X: 1, Y: -2, Z: 3}
	if got := IdentityTransform().Apply(p); !vecClose(got, p, geomTol) {
		t.Fatalf("identity.Apply(%v) = %v", p, got)
	}
}

func TestYawRotatesAboutZ(t *testing.T) {
	// +90° yaw takes +X to +Y.
	tr := TransformFromDegrees(r3.Vec{}, 0, 0, 90)
	got := tr.RotateVec(r3.Vec{X: 1})
	if !vecClose(got, r3.Vec{Y: 1}, geomTol) {
		t.Fatalf("yaw 90 of +X = %v, want +Y", got)
	}
}

func TestApplyInverseRoundTrip(t *testing.T) {
	tr := TransformFromDegrees(r3.Vec{X: 2, Y: -1, Z: 0.5}, 10, -20, 135)
	inv := tr.Inverse()

	p := r3.Vec{X: 4, Y: 5, Z: -6}
	if got := inv.Apply(tr.Apply(p)); !vecClose(got, p, 1e-9) {
		t.Fatalf("inverse round trip = %v, want %v", got, p)
	}

	// Composition with the inverse is the identity.
	id := tr.Mul(inv)
	if got := id.Apply(p); !vecClose(got, p, 1e-9) {
		t.Fatalf("t*inv(t) applied = %v, want %v", got, p)
	}
}

func TestMulAppliesRightFirst(t *testing.T) {
	a := TransformFromDegrees(r3.Vec{X: 1}, 0, 0, 0)
	b := TransformFromDegrees(r3.Vec{}, 0, 0, 90)

	p := r3.Vec{X: 1}
	want := a.Apply(b.Apply(p))
	if got := a.Mul(b).Apply(p); !vecClose(got, want, geomTol) {
		t.Fatalf("(a*b)(p) = %v, want a(b(p)) = %v", got, want)
	}
}

func TestEulerAnglesRoundTrip(t *testing.T) {
	cases := []struct {
		name             string
		roll, pitch, yaw float64 // degrees
	}{
		{"yaw only", 0, 0, 45},
		{"pitch only", 0, 30, 0},
		{"roll only", -25, 0, 0},
		{"combined", 10, -35, 120},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := TransformFromDegrees(r3.Vec{}, tc.roll, tc.pitch, tc.yaw)
			r, p, y := tr.EulerAngles()
			if math.Abs(RadToDeg(r)-tc.roll) > 1e-6 ||
				math.Abs(RadToDeg(p)-tc.pitch) > 1e-6 ||
				math.Abs(RadToDeg(y)-tc.yaw) > 1e-6 {
				t.Fatalf("EulerAngles = (%.6f, %.6f, %.6f) deg, want (%v, %v, %v)",
					RadToDeg(r), RadToDeg(p), RadToDeg(y), tc.roll, tc.pitch, tc.yaw)
			}
		})
	}
}

func TestDirectionFromAngles(t *testing.T) {
	// Azimuth 0, elevation 0 points along +Y (forward).
	if got := DirectionFromAngles(0, 0); !vecClose(got, r3.Vec{Y: 1}, geomTol) {
		t.Fatalf("forward direction = %v, want +Y", got)
	}
	// Azimuth 90° points along +X (right).
	if got := DirectionFromAngles(DegToRad(90), 0); !vecClose(got, r3.Vec{X: 1}, geomTol) {
		t.Fatalf("az 90 direction = %v, want +X", got)
	}
	// Elevation 90° points straight up.
	if got := DirectionFromAngles(0, DegToRad(90)); !vecClose(got, r3.Vec{Z: 1}, geomTol) {
		t.Fatalf("el 90 direction = %v, want +Z", got)
	}
}
