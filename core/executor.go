// core/executor.go
package core

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/signalsfoundry/lidar-simulator/model"
)

// CaptureContext carries per-capture identity through an asynchronous run.
type CaptureContext struct {
	Sensor    string
	CaptureID string
	Stamp     time.Time
}

// Executor turns a snapshotted graph plan into point clouds. One executor
// belongs to one sensor; runs of consecutive captures may overlap, so every
// run derives its own random stream from the base seed.
type Executor struct {
	scene SceneBackend
	seed  uint64

	mu   sync.Mutex
	runs uint64
}

// NewExecutor constructs an executor over the given scene backend. The seed
// makes noise reproducible for a fixed capture sequence.
func NewExecutor(scene SceneBackend, seed uint64) *Executor {
	return &Executor{scene: scene, seed: seed}
}

func (e *Executor) run(root *Graph, cap CaptureContext) {
	e.mu.Lock()
	e.runs++
	runID := e.runs
	e.mu.Unlock()

	done := make(chan struct{})
	plan := root.snapshot(done)

	go func() {
		defer close(done)
		rng := rand.New(rand.NewPCG(e.seed, runID))
		e.process(plan, cap, newWorkSet(), rng)
	}()
}

// workRay is a template ray flowing through the pre-trace stages.
type workRay struct {
	origin  r3.Vec
	dir     r3.Vec
	min     float64
	max     float64
	ring    int
	tOffset float64
}

// workPoint is a traced return flowing through the post-trace stages.
type workPoint struct {
	pos       r3.Vec
	origin    r3.Vec
	dir       r3.Vec
	dist      float64
	intensity float64
	ring      int
	tOffset   float64
	valid     bool
}

type workSet struct {
	rays   []workRay
	points []workPoint
	traced bool
	pose   Transform
	frame  model.Frame
}

func newWorkSet() *workSet {
	return &workSet{frame: model.FrameSensor, pose: IdentityTransform()}
}

func (w *workSet) clone() *workSet {
	out := &workSet{traced: w.traced, pose: w.pose, frame: w.frame}
	out.rays = append(out.rays, w.rays...)
	out.points = append(out.points, w.points...)
	return out
}

// process runs one graph's stages over the working set, then either fans out
// to children on copies or resolves this graph's terminal output.
func (e *Executor) process(plan *graphPlan, cap CaptureContext, ws *workSet, rng *rand.Rand) {
	for _, st := range plan.stages {
		e.applyStage(st, ws, rng)
	}

	if len(plan.children) == 0 {
		plan.graph.complete(buildCloud(cap, ws))
		return
	}
	for _, child := range plan.children {
		e.process(child, cap, ws.clone(), rng)
	}
}

func (e *Executor) applyStage(st stage, ws *workSet, rng *rand.Rand) {
	switch st.kind {
	case KindRaySource:
		p, _ := st.params.(RaySourceParams)
		stageRaySource(ws, p)
	case KindRangeFilter:
		p, _ := st.params.(RangeFilterParams)
		stageRangeFilter(ws, p)
	case KindRingIDs:
		p, _ := st.params.(RingIDParams)
		stageRingIDs(ws, p)
	case KindTimeOffsets:
		p, _ := st.params.(TimeOffsetParams)
		stageTimeOffsets(ws, p)
	case KindTransform:
		p, _ := st.params.(TransformParams)
		stageTransform(ws, p)
	case KindAngularNoise:
		p, _ := st.params.(AngularNoiseParams)
		stageAngularNoise(ws, p, rng)
	case KindDistanceNoise:
		p, _ := st.params.(DistanceNoiseParams)
		stageDistanceNoise(ws, p, rng)
	case KindRaytrace:
		p, _ := st.params.(RaytraceParams)
		e.stageRaytrace(ws, p, rng)
	case KindWeather:
		p, _ := st.params.(WeatherEffectParams)
		stageWeather(ws, p, rng)
	case KindCompaction:
		stageCompaction(ws)
	}
}

func stageRaySource(ws *workSet, p RaySourceParams) {
	ws.rays = ws.rays[:0]
	for _, r := range p.Rays {
		ws.rays = append(ws.rays, workRay{
			dir:     DirectionFromAngles(DegToRad(r.AzimuthDeg), DegToRad(r.ElevationDeg)),
			min:     r.MinRange,
			max:     r.MaxRange,
			ring:    r.RingID,
			tOffset: r.TimeOffset,
		})
	}
}

func stageRangeFilter(ws *workSet, p RangeFilterParams) {
	if len(p.Spans) == 0 {
		return
	}
	for i := range ws.rays {
		span := p.Spans[i%len(p.Spans)]
		ws.rays[i].min = span.Min
		ws.rays[i].max = span.Max
	}
}

func stageRingIDs(ws *workSet, p RingIDParams) {
	if len(p.IDs) == 0 {
		return
	}
	for i := range ws.rays {
		ws.rays[i].ring = p.IDs[i%len(p.IDs)]
	}
}

func stageTimeOffsets(ws *workSet, p TimeOffsetParams) {
	if len(p.Offsets) == 0 {
		return
	}
	for i := range ws.rays {
		ws.rays[i].tOffset = p.Offsets[i%len(p.Offsets)]
	}
}

// stageTransform moves rays before tracing (the sensor's world pose on the
// trunk) or points after tracing (the inverse pose on the sensor-frame
// branch).
func stageTransform(ws *workSet, p TransformParams) {
	t := p.Transform
	if !ws.traced {
		for i := range ws.rays {
			ws.rays[i].origin = t.Apply(ws.rays[i].origin)
			ws.rays[i].dir = t.RotateVec(ws.rays[i].dir)
		}
		ws.pose = t.Mul(ws.pose)
		ws.frame = model.FrameWorld
		return
	}
	for i := range ws.points {
		ws.points[i].pos = t.Apply(ws.points[i].pos)
		ws.points[i].origin = t.Apply(ws.points[i].origin)
		ws.points[i].dir = t.RotateVec(ws.points[i].dir)
	}
	if ws.frame == model.FrameWorld {
		ws.frame = model.FrameSensor
	} else {
		ws.frame = model.FrameWorld
	}
}

// stageAngularNoise perturbs ray azimuths before tracing, or swings traced
// points around the sensor's vertical axis afterwards, depending on where in
// the pipeline the node sits.
func stageAngularNoise(ws *workSet, p AngularNoiseParams, rng *rand.Rand) {
	if p.Stdev == 0 && p.Mean == 0 {
		return
	}
	dist := distuv.Normal{Mu: p.Mean, Sigma: p.Stdev, Src: rng}
	up := ws.pose.RotateVec(r3.Vec{Z: 1})

	if !ws.traced {
		for i := range ws.rays {
			rot := axisAngle(up, dist.Rand())
			ws.rays[i].dir = rotateVec(rot, ws.rays[i].dir)
		}
		return
	}
	for i := range ws.points {
		if !ws.points[i].valid {
			continue
		}
		rot := axisAngle(up, dist.Rand())
		rel := r3.Sub(ws.points[i].pos, ws.points[i].origin)
		ws.points[i].pos = r3.Add(ws.points[i].origin, rotateVec(rot, rel))
		ws.points[i].dir = rotateVec(rot, ws.points[i].dir)
	}
}

func stageDistanceNoise(ws *workSet, p DistanceNoiseParams, rng *rand.Rand) {
	if p.Mean == 0 && p.StdevBase == 0 && p.StdevRisePerMeter == 0 {
		return
	}
	unit := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	for i := range ws.points {
		pt := &ws.points[i]
		if !pt.valid {
			continue
		}
		sigma := p.StdevBase + p.StdevRisePerMeter*pt.dist
		d := pt.dist + p.Mean + sigma*unit.Rand()
		if d < 0 {
			d = 0
		}
		pt.pos = r3.Add(pt.origin, r3.Scale(d, pt.dir))
		pt.dist = d
	}
}

// stageRaytrace issues one scene query per template ray, applying motion
// distortion compensation and beam divergence sampling parameterised on the
// node. Dual return mode appends the last return as an extra point when it
// differs from the strongest.
func (e *Executor) stageRaytrace(ws *workSet, p RaytraceParams, rng *rand.Rand) {
	ws.points = ws.points[:0]
	for _, ray := range ws.rays {
		origin, dir := ray.origin, ray.dir
		if p.DistortionEnabled {
			origin, dir = distortRay(origin, dir, ws.pose, p, ray.tOffset)
		}

		max := ray.max
		if p.MaxRange > 0 && p.MaxRange < max {
			max = p.MaxRange
		}

		hits := e.castWithDivergence(origin, dir, ray.min, max, p, rng)
		base := workPoint{
			origin:  ray.origin,
			dir:     dir,
			ring:    ray.ring,
			tOffset: ray.tOffset,
		}
		if len(hits) == 0 {
			base.pos = r3.Add(origin, r3.Scale(max, dir))
			ws.points = append(ws.points, base)
			continue
		}

		strongest, last := pickReturns(hits)
		switch p.ReturnMode {
		case model.ReturnLast:
			ws.points = append(ws.points, fillPoint(base, last))
		case model.ReturnDual:
			ws.points = append(ws.points, fillPoint(base, strongest))
			if last.Distance != strongest.Distance {
				ws.points = append(ws.points, fillPoint(base, last))
			}
		default:
			ws.points = append(ws.points, fillPoint(base, strongest))
		}
	}
	ws.traced = true
}

func fillPoint(base workPoint, h Hit) workPoint {
	base.pos = h.Point
	base.dist = h.Distance
	base.intensity = h.Intensity
	base.valid = true
	return base
}

func pickReturns(hits []Hit) (strongest, last Hit) {
	strongest, last = hits[0], hits[0]
	for _, h := range hits[1:] {
		if h.Intensity > strongest.Intensity {
			strongest = h
		}
		if h.Distance > last.Distance {
			last = h
		}
	}
	return strongest, last
}

// distortRay compensates for sensor motion across the capture window: a ray
// fired tOffset seconds into the rotation starts from where the sensor will
// be at that instant, not where it was at capture start.
func distortRay(origin, dir r3.Vec, pose Transform, p RaytraceParams, tOffset float64) (r3.Vec, r3.Vec) {
	if tOffset == 0 {
		return origin, dir
	}
	shift := pose.RotateVec(r3.Scale(tOffset, p.LinearVelocity))
	origin = r3.Add(origin, shift)

	w := p.AngularVelocity
	angle := math.Sqrt(w.X*w.X+w.Y*w.Y+w.Z*w.Z) * tOffset
	if angle != 0 {
		axis := pose.RotateVec(r3.Unit(w))
		rot := axisAngle(axis, angle)
		dir = rotateVec(rot, dir)
	}
	return origin, dir
}

// castWithDivergence samples extra jittered rays inside the divergence cone
// and merges their hits, so a wide beam can graze multiple surfaces.
func (e *Executor) castWithDivergence(origin, dir r3.Vec, min, max float64, p RaytraceParams, rng *rand.Rand) []Hit {
	hits := e.scene.CastRay(origin, dir, min, max)
	if p.BeamDivergence <= 0 {
		return hits
	}

	const divergenceSamples = 4
	for i := 0; i < divergenceSamples; i++ {
		jitter := sampleCone(dir, p.BeamDivergence/2, rng)
		hits = append(hits, e.scene.CastRay(origin, jitter, min, max)...)
	}
	return hits
}

// sampleCone draws a direction uniformly distributed within halfAngle of dir.
func sampleCone(dir r3.Vec, halfAngle float64, rng *rand.Rand) r3.Vec {
	// Perpendicular basis around dir.
	ref := r3.Vec{X: 1}
	if math.Abs(dir.X) > 0.9 {
		ref = r3.Vec{Y: 1}
	}
	u := r3.Unit(r3.Cross(dir, ref))
	v := r3.Cross(dir, u)

	theta := halfAngle * math.Sqrt(rng.Float64())
	phi := 2 * math.Pi * rng.Float64()
	s, c := math.Sincos(theta)
	return r3.Add(r3.Scale(c, dir),
		r3.Add(r3.Scale(s*math.Cos(phi), u), r3.Scale(s*math.Sin(phi), v)))
}

// weatherExtinction maps effect kind and intensity to a per-metre extinction
// coefficient for a crude Beer-Lambert attenuation model.
func weatherExtinction(kind model.WeatherKind, intensity float64) float64 {
	switch kind {
	case model.WeatherFog:
		return 0.02 * intensity
	case model.WeatherSnow:
		return 0.006 * intensity
	default: // rain
		return 0.002 * intensity
	}
}

func stageWeather(ws *workSet, p WeatherEffectParams, rng *rand.Rand) {
	alpha := weatherExtinction(p.Params.Kind, p.Params.Intensity)
	if alpha <= 0 {
		return
	}
	for i := range ws.points {
		pt := &ws.points[i]
		if !pt.valid {
			continue
		}
		if pt.dist < p.Params.MinRange || (p.Params.MaxRange > 0 && pt.dist > p.Params.MaxRange) {
			continue
		}
		// Two-way attenuation of the return pulse.
		survival := math.Exp(-2 * alpha * pt.dist)
		if rng.Float64() > survival {
			pt.valid = false
			continue
		}
		pt.intensity *= survival
	}
}

func stageCompaction(ws *workSet) {
	kept := ws.points[:0]
	for _, pt := range ws.points {
		if pt.valid {
			kept = append(kept, pt)
		}
	}
	ws.points = kept
}

func buildCloud(cap CaptureContext, ws *workSet) *model.PointCloud {
	cloud := &model.PointCloud{
		CaptureID: cap.CaptureID,
		Sensor:    cap.Sensor,
		Frame:     ws.frame,
		Stamp:     cap.Stamp,
		Points:    make([]model.Point, 0, len(ws.points)),
	}
	for _, pt := range ws.points {
		cloud.Points = append(cloud.Points, model.Point{
			X: pt.pos.X, Y: pt.pos.Y, Z: pt.pos.Z,
			Distance:   pt.dist,
			Intensity:  pt.intensity,
			RingID:     pt.ring,
			TimeOffset: pt.tOffset,
			Valid:      pt.valid,
		})
	}
	return cloud
}
