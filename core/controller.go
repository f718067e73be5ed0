// core/controller.go
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/lidar-simulator/internal/logging"
	"github.com/signalsfoundry/lidar-simulator/model"
	"github.com/signalsfoundry/lidar-simulator/timectrl"
)

// SensorOptions bundles host-side settings that are not part of the lidar
// model configuration itself.
type SensorOptions struct {
	// CaptureRate is captures per second; 0 disables automatic capture
	// for this sensor without affecting others.
	CaptureRate int

	// BeamDivergence enables beam divergence simulation. When disabled the
	// configured divergence is forced to zero regardless of its value.
	BeamDivergence bool

	// VelocityDistortion enables motion-distortion compensation fed by the
	// finite-difference velocity estimator.
	VelocityDistortion bool

	// Restriction is the initial output restriction policy.
	Restriction model.RestrictionPolicy

	// Seed makes the sensor's noise streams reproducible.
	Seed uint64

	Logger logging.Logger
}

// Sensor owns one processing graph, one configuration, one output
// restriction, and the transform history used for velocity estimation. It
// translates declarative configuration into in-place node-graph mutations;
// the graph is built exactly once, at construction.
type Sensor struct {
	name    string
	catalog Catalog
	weather []WeatherProvider
	log     logging.Logger

	trunk       *Graph
	worldBranch *Graph
	localBranch *Graph

	restriction *OutputRestriction

	mu     sync.Mutex
	config *model.LidarConfig

	rate  int
	accum float64 // seconds since last fire, owned by the scheduler

	beamDivergence     bool
	velocityDistortion bool

	validated  bool
	mismatches []ValidationMismatch

	worldPose  Transform
	prevOrigin Transform
	prevStamp  time.Time
	havePrev   bool

	rangeClamp float64
	linVel     r3.Vec
	angVel     r3.Vec

	dataReady    []func()
	modelChanged []func()
}

// NewSensor builds a sensor around the model's default configuration and
// wires its processing graph. The graph is never rebuilt afterwards;
// configuration changes mutate node parameters in place.
func NewSensor(name, modelID string, catalog Catalog, scene SceneBackend, sched timectrl.Scheduler, weather []WeatherProvider, opts SensorOptions) (*Sensor, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Noop()
	}
	if scene == nil {
		return nil, &ConfigurationError{Sensor: name, Err: ErrMissingScene}
	}
	cfg, err := catalog.Lookup(modelID)
	if err != nil {
		return nil, &ConfigurationError{Sensor: name, Err: err}
	}

	s := &Sensor{
		name:               name,
		catalog:            catalog,
		weather:            weather,
		log:                log.With(logging.String("sensor", name)),
		rate:               opts.CaptureRate,
		beamDivergence:     opts.BeamDivergence,
		velocityDistortion: opts.VelocityDistortion,
		worldPose:          IdentityTransform(),
	}

	s.trunk = NewGraph(name+"/trunk", NewExecutor(scene, opts.Seed))
	s.worldBranch = NewGraph(name+"/world", nil)
	s.localBranch = NewGraph(name+"/sensor", nil)
	if err := s.buildGraph(); err != nil {
		return nil, err
	}

	s.restriction = NewOutputRestriction(sched, s.setRangeClamp)
	s.restriction.Apply(opts.Restriction, fullRangeOf(cfg))

	if err := s.Apply(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// buildGraph appends every node the sensor will ever use, including optional
// weather nodes for providers that exist at startup, and wires the two
// downstream branches: world-frame output and sensor-frame output.
func (s *Sensor) buildGraph() error {
	type entry struct {
		graph  *Graph
		name   string
		kind   NodeKind
		params any
	}
	entries := []entry{
		{s.trunk, NodeRaySource, KindRaySource, RaySourceParams{}},
		{s.trunk, NodeRangeFilter, KindRangeFilter, RangeFilterParams{}},
		{s.trunk, NodeRingIDs, KindRingIDs, RingIDParams{}},
		{s.trunk, NodeTimeOffsets, KindTimeOffsets, TimeOffsetParams{}},
		{s.trunk, NodeAngularNoiseRay, KindAngularNoise, AngularNoiseParams{}},
		{s.trunk, NodeLidarPose, KindTransform, TransformParams{Transform: IdentityTransform()}},
		{s.trunk, NodeRaytrace, KindRaytrace, RaytraceParams{}},
		{s.trunk, NodeAngularNoiseHit, KindAngularNoise, AngularNoiseParams{}},
		{s.trunk, NodeDistanceNoise, KindDistanceNoise, DistanceNoiseParams{}},
	}
	for _, w := range s.weather {
		entries = append(entries, entry{s.trunk, WeatherNodeName(w.Kind()), KindWeather, WeatherEffectParams{}})
	}
	entries = append(entries,
		entry{s.worldBranch, NodeCompactionWorld, KindCompaction, CompactionParams{}},
		entry{s.localBranch, NodeToSensorFrame, KindTransform, TransformParams{Transform: IdentityTransform()}},
		entry{s.localBranch, NodeCompactionLocal, KindCompaction, CompactionParams{}},
	)

	for _, e := range entries {
		if err := e.graph.Append(e.name, e.kind, e.params); err != nil {
			return err
		}
	}
	if err := s.trunk.Connect(s.worldBranch); err != nil {
		return err
	}
	return s.trunk.Connect(s.localBranch)
}

// Apply pushes a configuration onto the graph. Safe to call every tick: all
// writes are idempotent in-place updates. Angular inputs are degrees at this
// boundary and radians below it.
func (s *Sensor) Apply(cfg *model.LidarConfig) error {
	if len(cfg.Rays) == 0 {
		return &ConfigurationError{Sensor: s.name, Err: ErrEmptyRayTemplate}
	}

	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()

	spans := make([]RangeSpan, len(cfg.Rays))
	rings := make([]int, len(cfg.Rays))
	offsets := make([]float64, len(cfg.Rays))
	for i, r := range cfg.Rays {
		spans[i] = RangeSpan{Min: r.MinRange, Max: r.MaxRange}
		rings[i] = r.RingID
		offsets[i] = r.TimeOffset
	}

	if err := s.trunk.Update(NodeRaySource, RaySourceParams{Rays: cfg.Rays}); err != nil {
		return err
	}
	if err := s.trunk.Update(NodeRangeFilter, RangeFilterParams{Spans: spans}); err != nil {
		return err
	}
	if err := s.trunk.Update(NodeRingIDs, RingIDParams{IDs: rings}); err != nil {
		return err
	}
	if err := s.trunk.Update(NodeTimeOffsets, TimeOffsetParams{Offsets: offsets}); err != nil {
		return err
	}

	// Exactly one angular noise placement is live at a time.
	noise := AngularNoiseParams{
		Mean:  DegToRad(cfg.AngularNoise.MeanDeg),
		Stdev: DegToRad(cfg.AngularNoise.StdevDeg),
	}
	rayBased := cfg.AngularNoise.Placement == model.NoiseOnRay
	if err := s.trunk.Update(NodeAngularNoiseRay, noise); err != nil {
		return err
	}
	if err := s.trunk.SetActive(NodeAngularNoiseRay, rayBased); err != nil {
		return err
	}
	if err := s.trunk.Update(NodeAngularNoiseHit, noise); err != nil {
		return err
	}
	if err := s.trunk.SetActive(NodeAngularNoiseHit, !rayBased); err != nil {
		return err
	}

	if err := s.trunk.Update(NodeDistanceNoise, DistanceNoiseParams{
		Mean:              cfg.DistanceNoise.Mean,
		StdevBase:         cfg.DistanceNoise.StdevBase,
		StdevRisePerMeter: cfg.DistanceNoise.StdevRisePerMeter,
	}); err != nil {
		return err
	}
	if err := s.trunk.Update(NodeRaytrace, s.raytraceParams()); err != nil {
		return err
	}

	// Optional weather nodes exist only when their provider does; range
	// bounds come from the first ray's range entry.
	first := cfg.Rays[0]
	for _, w := range s.weather {
		nodeName := WeatherNodeName(w.Kind())
		if !s.trunk.HasNode(nodeName) {
			continue
		}
		params := w.Params()
		params.MinRange = first.MinRange
		params.MaxRange = first.MaxRange
		if err := s.trunk.Update(nodeName, WeatherEffectParams{Params: params}); err != nil {
			return err
		}
		if err := s.trunk.SetActive(nodeName, w.Enabled()); err != nil {
			return err
		}
	}

	for _, fn := range s.modelChanged {
		fn()
	}
	return nil
}

// raytraceParams assembles the raytrace node's parameters from the current
// configuration, restriction clamp, and estimated velocity.
func (s *Sensor) raytraceParams() RaytraceParams {
	s.mu.Lock()
	defer s.mu.Unlock()

	divergence := 0.0
	if s.beamDivergence && s.config != nil {
		divergence = DegToRad(s.config.BeamDivergenceDeg)
	}
	p := RaytraceParams{
		MaxRange:          s.rangeClamp,
		BeamDivergence:    divergence,
		DistortionEnabled: s.velocityDistortion,
		LinearVelocity:    s.linVel,
		AngularVelocity:   s.angVel,
	}
	if s.config != nil {
		p.ReturnMode = s.config.ReturnMode
	}
	return p
}

// setRangeClamp is the restriction state machine's hook into the raytrace
// node.
func (s *Sensor) setRangeClamp(maxRange float64) {
	s.mu.Lock()
	s.rangeClamp = maxRange
	s.mu.Unlock()
	// The node always exists; an update of a live graph cannot fail here.
	_ = s.trunk.Update(NodeRaytrace, s.raytraceParams())
}

// SelectModel handles a model preset change. Once the sensor has been
// validated, switching to a different model discards the live configuration
// and instantiates the new model's default. The very first validation never
// discards: an operator's intentional pre-activation edits survive startup.
func (s *Sensor) SelectModel(ctx context.Context, modelID string) error {
	def, err := s.catalog.Lookup(modelID)
	if err != nil {
		return &ConfigurationError{Sensor: s.name, Err: err}
	}

	s.mu.Lock()
	validated := s.validated
	current := ""
	if s.config != nil {
		current = s.config.ModelID
	}
	s.mu.Unlock()

	switch {
	case validated && modelID != current:
		s.log.Info(ctx, "model preset changed; replacing configuration with defaults",
			logging.String("from", current), logging.String("to", modelID))
		if err := s.Apply(def); err != nil {
			return err
		}
		s.restriction.Reapply(fullRangeOf(def))
	case !validated:
		s.validateAgainst(ctx, def)
	}

	s.mu.Lock()
	s.validated = true
	s.mu.Unlock()
	return nil
}

// validateAgainst compares the live configuration with the model's canonical
// defaults. Mismatches are warnings, not errors: simulation continues with
// the modified configuration.
func (s *Sensor) validateAgainst(ctx context.Context, def *model.LidarConfig) {
	s.mu.Lock()
	cfg := s.config
	s.mu.Unlock()
	if cfg == nil {
		return
	}

	var found []ValidationMismatch
	record := func(field string, want, got any) {
		if want != got {
			found = append(found, ValidationMismatch{
				Field: field,
				Want:  fmt.Sprint(want),
				Got:   fmt.Sprint(got),
			})
		}
	}
	record("rays", len(def.Rays), len(cfg.Rays))
	record("angular_noise", def.AngularNoise, cfg.AngularNoise)
	record("distance_noise", def.DistanceNoise, cfg.DistanceNoise)
	record("beam_divergence_deg", def.BeamDivergenceDeg, cfg.BeamDivergenceDeg)
	record("return_mode", def.ReturnMode, cfg.ReturnMode)

	for _, m := range found {
		s.log.Warn(ctx, "configuration differs from model defaults",
			logging.String("model", def.ModelID),
			logging.String("mismatch", m.String()))
	}

	s.mu.Lock()
	s.mismatches = found
	s.mu.Unlock()
}

// Capture runs one end-to-end sensing cycle: update the pose and inverse
// transform nodes, refresh the velocity estimate when distortion is enabled,
// and issue asynchronous graph execution. It returns without waiting for the
// trace.
func (s *Sensor) Capture(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	cfg := s.config
	pose := s.worldPose
	s.mu.Unlock()
	if cfg == nil {
		return &ConfigurationError{Sensor: s.name, Err: ErrEmptyRayTemplate}
	}

	origin := pose.Mul(mountTransform(cfg.Mount))

	if err := s.trunk.Update(NodeLidarPose, TransformParams{Transform: origin}); err != nil {
		return err
	}
	if err := s.localBranch.Update(NodeToSensorFrame, TransformParams{Transform: origin.Inverse()}); err != nil {
		return err
	}

	if s.velocityDistortion {
		s.mu.Lock()
		if s.havePrev {
			dt := now.Sub(s.prevStamp).Seconds()
			s.linVel, s.angVel = EstimateVelocity(s.prevOrigin, origin, dt)
		} else {
			s.linVel, s.angVel = r3.Vec{}, r3.Vec{}
		}
		s.mu.Unlock()
		if err := s.trunk.Update(NodeRaytrace, s.raytraceParams()); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.prevOrigin = origin
	s.prevStamp = now
	s.havePrev = true
	s.mu.Unlock()

	return s.trunk.Execute(CaptureContext{
		Sensor:    s.name,
		CaptureID: uuid.NewString(),
		Stamp:     now,
	})
}

// SetWorldPose records the platform pose the next capture will fire from.
func (s *Sensor) SetWorldPose(pose Transform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worldPose = pose
}

// SetRestriction installs a new output restriction policy.
func (s *Sensor) SetRestriction(policy model.RestrictionPolicy) {
	s.mu.Lock()
	cfg := s.config
	s.mu.Unlock()
	s.restriction.Apply(policy, fullRangeOf(cfg))
}

// Restriction exposes the state machine, mainly for fault-injection control.
func (s *Sensor) Restriction() *OutputRestriction { return s.restriction }

// OnDataReady registers a zero-argument observer fired once per successful
// capture, after raytrace issuance for all sensors in that tick. Consumers
// pull cloud output themselves.
func (s *Sensor) OnDataReady(fn func()) {
	s.dataReady = append(s.dataReady, fn)
}

// OnModelChange registers an observer fired whenever configuration is
// (re-)applied, including at startup.
func (s *Sensor) OnModelChange(fn func()) {
	s.modelChanged = append(s.modelChanged, fn)
}

func (s *Sensor) notifyDataReady() {
	for _, fn := range s.dataReady {
		fn()
	}
}

// Name returns the sensor's registry identity.
func (s *Sensor) Name() string { return s.name }

// Rate returns captures per second; 0 means never fires.
func (s *Sensor) Rate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// SetRate changes the capture rate.
func (s *Sensor) SetRate(rate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = rate
}

// Config returns the live configuration object.
func (s *Sensor) Config() *model.LidarConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Mismatches reports the differences found during startup validation.
func (s *Sensor) Mismatches() []ValidationMismatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mismatches
}

// Graph exposes the trunk graph for inspection.
func (s *Sensor) Graph() *Graph { return s.trunk }

// WorldOutput pulls the world-frame cloud of the latest capture, waiting for
// any run in flight.
func (s *Sensor) WorldOutput() *model.PointCloud { return s.worldBranch.Output() }

// SensorOutput pulls the sensor-frame cloud of the latest capture.
func (s *Sensor) SensorOutput() *model.PointCloud { return s.localBranch.Output() }

// Velocity reports the last estimate pushed to the raytrace node.
func (s *Sensor) Velocity() (linear, angular r3.Vec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linVel, s.angVel
}

func mountTransform(m model.Mount) Transform {
	return TransformFromDegrees(r3.Vec{X: m.X, Y: m.Y, Z: m.Z}, m.RollDeg, m.PitchDeg, m.YawDeg)
}

// fullRangeOf is the sensor's unrestricted maximum, taken from the first
// ray's range entry. An empty template is rejected before this is consulted.
func fullRangeOf(cfg *model.LidarConfig) float64 {
	if cfg == nil || len(cfg.Rays) == 0 {
		return 0
	}
	return cfg.Rays[0].MaxRange
}
