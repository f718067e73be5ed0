// core/scene_simple.go
package core

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// Sphere is one piece of geometry in the simple scene.
type Sphere struct {
	Center       r3.Vec
	Radius       float64
	Reflectivity float64 // reported as hit intensity
}

// SimpleScene is a minimal in-process scene backend: a set of spheres plus an
// optional ground plane at z=0. It exists so the simulator runs end to end
// without an external geometry engine; production deployments plug their own
// SceneBackend in.
type SimpleScene struct {
	mu          sync.Mutex
	spheres     []Sphere
	ground      bool
	groundRefl  float64
	lastRefresh int
	refreshes   int
}

// NewSimpleScene constructs a scene with the given spheres and a ground
// plane toggle.
func NewSimpleScene(spheres []Sphere, ground bool) *SimpleScene {
	return &SimpleScene{spheres: spheres, ground: ground, groundRefl: 0.2, lastRefresh: -1}
}

// Refresh is idempotent per tick count: repeated calls with the same token
// are absorbed. The simple scene is static, so refresh only does bookkeeping.
func (s *SimpleScene) Refresh(tickCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tickCount == s.lastRefresh {
		return
	}
	s.lastRefresh = tickCount
	s.refreshes++
}

// Refreshes reports how many distinct tick refreshes the scene has seen.
func (s *SimpleScene) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// CastRay intersects the ray with every sphere and the ground plane,
// returning hits within [min, max] ordered nearest first.
func (s *SimpleScene) CastRay(origin, dir r3.Vec, min, max float64) []Hit {
	s.mu.Lock()
	spheres := s.spheres
	ground := s.ground
	groundRefl := s.groundRefl
	s.mu.Unlock()

	var hits []Hit
	for _, sp := range spheres {
		if t, ok := raySphere(origin, dir, sp.Center, sp.Radius); ok && t >= min && t <= max {
			hits = append(hits, Hit{
				Point:     r3.Add(origin, r3.Scale(t, dir)),
				Distance:  t,
				Intensity: sp.Reflectivity,
			})
		}
	}
	if ground && dir.Z < 0 {
		t := -origin.Z / dir.Z
		if t >= min && t <= max {
			hits = append(hits, Hit{
				Point:     r3.Add(origin, r3.Scale(t, dir)),
				Distance:  t,
				Intensity: groundRefl,
			})
		}
	}

	// Insertion sort; hit counts per ray are tiny.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Distance < hits[j-1].Distance; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	return hits
}

// raySphere returns the nearest positive ray parameter where the ray
// origin + t*dir enters the sphere, solving the usual quadratic for the
// closest approach of the line to the sphere centre.
func raySphere(origin, dir, center r3.Vec, radius float64) (float64, bool) {
	oc := r3.Sub(origin, center)
	b := r3.Dot(oc, dir)
	c := r3.Dot(oc, oc) - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	t := -b - sq
	if t < 0 {
		t = -b + sq // origin inside the sphere
	}
	if t < 0 {
		return 0, false
	}
	return t, true
}
