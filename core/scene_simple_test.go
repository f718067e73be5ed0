package core

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestSimpleSceneSphereHit(t *testing.T) {
	scene := NewSimpleScene([]Sphere{{Center: r3.Vec{Y: 10}, Radius: 2, Reflectivity: 0.7}}, false)

	hits := scene.CastRay(r3.Vec{}, r3.Vec{Y: 1}, 0, 100)
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if math.Abs(hits[0].Distance-8) > 1e-9 {
		t.Errorf("distance = %v, want 8 (front face)", hits[0].Distance)
	}
	if hits[0].Intensity != 0.7 {
		t.Errorf("intensity = %v, want 0.7", hits[0].Intensity)
	}
}

func TestSimpleSceneMiss(t *testing.T) {
	scene := NewSimpleScene([]Sphere{{Center: r3.Vec{Y: 10}, Radius: 1, Reflectivity: 0.7}}, false)

	if hits := scene.CastRay(r3.Vec{}, r3.Vec{X: 1}, 0, 100); len(hits) != 0 {
		t.Fatalf("perpendicular ray hit %d objects", len(hits))
	}
	// In range terms: the sphere sits beyond max.
	if hits := scene.CastRay(r3.Vec{}, r3.Vec{Y: 1}, 0, 5); len(hits) != 0 {
		t.Fatalf("out-of-range ray hit %d objects", len(hits))
	}
}

func TestSimpleSceneHitsOrderedNearestFirst(t *testing.T) {
	scene := NewSimpleScene([]Sphere{
		{Center: r3.Vec{Y: 20}, Radius: 1, Reflectivity: 0.5},
		{Center: r3.Vec{Y: 5}, Radius: 1, Reflectivity: 0.5},
		{Center: r3.Vec{Y: 12}, Radius: 1, Reflectivity: 0.5},
	}, false)

	hits := scene.CastRay(r3.Vec{}, r3.Vec{Y: 1}, 0, 100)
	if len(hits) != 3 {
		t.Fatalf("hits = %d, want 3", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Fatalf("hits out of order: %v then %v", hits[i-1].Distance, hits[i].Distance)
		}
	}
}

func TestSimpleSceneGroundPlane(t *testing.T) {
	scene := NewSimpleScene(nil, true)

	// A 45 degree downward ray from 2 m altitude grazes the ground at
	// 2*sqrt(2) m.
	dir := r3.Unit(r3.Vec{Y: 1, Z: -1})
	hits := scene.CastRay(r3.Vec{Z: 2}, dir, 0, 100)
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1 ground hit", len(hits))
	}
	if want := 2 * math.Sqrt2; math.Abs(hits[0].Distance-want) > 1e-9 {
		t.Errorf("ground distance = %v, want %v", hits[0].Distance, want)
	}
	if math.Abs(hits[0].Point.Z) > 1e-9 {
		t.Errorf("ground hit Z = %v, want 0", hits[0].Point.Z)
	}

	// Upward and horizontal rays never hit the ground.
	if hits := scene.CastRay(r3.Vec{Z: 2}, r3.Vec{Y: 1}, 0, 100); len(hits) != 0 {
		t.Fatalf("horizontal ray hit the ground %d times", len(hits))
	}
}

func TestSimpleSceneOriginInsideSphere(t *testing.T) {
	scene := NewSimpleScene([]Sphere{{Center: r3.Vec{}, Radius: 5, Reflectivity: 0.5}}, false)

	hits := scene.CastRay(r3.Vec{}, r3.Vec{Y: 1}, 0, 100)
	if len(hits) != 1 {
		t.Fatalf("hits from inside = %d, want 1 (exit point)", len(hits))
	}
	if math.Abs(hits[0].Distance-5) > 1e-9 {
		t.Errorf("exit distance = %v, want 5", hits[0].Distance)
	}
}

func TestSimpleSceneRefreshIdempotentPerTick(t *testing.T) {
	scene := NewSimpleScene(nil, false)

	scene.Refresh(1)
	scene.Refresh(1)
	scene.Refresh(1)
	if got := scene.Refreshes(); got != 1 {
		t.Fatalf("refreshes after repeated same-tick calls = %d, want 1", got)
	}

	scene.Refresh(2)
	if got := scene.Refreshes(); got != 2 {
		t.Fatalf("refreshes after a new tick = %d, want 2", got)
	}
}
