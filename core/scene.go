// core/scene.go
package core

import "gonum.org/v1/gonum/spatial/r3"

// Hit is one ray/geometry intersection reported by the scene backend.
type Hit struct {
	Point     r3.Vec
	Distance  float64
	Intensity float64
}

// SceneBackend supplies world geometry to raytrace against. The intersection
// algorithm itself belongs to the backend; the graph only issues queries.
//
// Refresh is called once per capturing tick before any raytrace is issued,
// with an opaque tick-count token the backend may use to deduplicate work.
type SceneBackend interface {
	Refresh(tickCount int)

	// CastRay traces from origin along the unit direction dir and returns
	// every hit with distance in [min, max], nearest first. An empty slice
	// means the ray escaped.
	CastRay(origin, dir r3.Vec, min, max float64) []Hit
}
