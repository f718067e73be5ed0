package model

import "time"

// NoisePlacement selects where angular noise is injected in the pipeline.
type NoisePlacement int

const (
	// NoiseOnRay perturbs ray directions before raytracing.
	NoiseOnRay NoisePlacement = iota
	// NoiseOnHitpoint displaces hit points after raytracing.
	NoiseOnHitpoint
)

func (p NoisePlacement) String() string {
	switch p {
	case NoiseOnRay:
		return "ray"
	case NoiseOnHitpoint:
		return "hitpoint"
	default:
		return "unknown"
	}
}

// ReturnMode selects which return a multi-return capable sensor reports.
type ReturnMode int

const (
	ReturnStrongest ReturnMode = iota
	ReturnLast
	ReturnDual
)

func (m ReturnMode) String() string {
	switch m {
	case ReturnStrongest:
		return "strongest"
	case ReturnLast:
		return "last"
	case ReturnDual:
		return "dual"
	default:
		return "unknown"
	}
}

// Ray is one entry of a sensor's ray template: the firing direction relative
// to the sensor origin, its valid range, the scan line it belongs to, and its
// time offset within one full capture.
type Ray struct {
	AzimuthDeg   float64
	ElevationDeg float64
	MinRange     float64 // metres
	MaxRange     float64 // metres
	RingID       int
	TimeOffset   float64 // seconds from capture start
}

// Mount is the rigid sensor-to-origin offset, degrees at the boundary.
type Mount struct {
	X, Y, Z  float64 // metres
	RollDeg  float64
	PitchDeg float64
	YawDeg   float64
}

// AngularNoise holds gaussian angular noise parameters in degrees.
type AngularNoise struct {
	MeanDeg   float64
	StdevDeg  float64
	Placement NoisePlacement
}

// DistanceNoise holds gaussian distance noise parameters in metres. The
// effective stdev grows linearly with measured distance:
// stdev = StdevBase + StdevRisePerMeter * distance.
type DistanceNoise struct {
	Mean              float64
	StdevBase         float64
	StdevRisePerMeter float64
}

// LidarConfig describes one sensor's ray geometry and post-processing
// parameters. It is a value object: the controller replaces it wholesale on a
// model preset change and otherwise mutates it in place between captures.
type LidarConfig struct {
	ModelID string

	Rays  []Ray
	Mount Mount

	AngularNoise  AngularNoise
	DistanceNoise DistanceNoise

	BeamDivergenceDeg float64
	ReturnMode        ReturnMode
}

// Clone returns a deep copy so a preset's canonical default can be handed out
// without aliasing the catalog's template.
func (c *LidarConfig) Clone() *LidarConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Rays = make([]Ray, len(c.Rays))
	copy(out.Rays, c.Rays)
	return &out
}

// RestrictionPolicy describes the output range restriction applied to a
// sensor, used to simulate intermittent faults. With Periodic unset the
// static MaxRange clamp applies persistently; with Periodic set the clamp
// toggles between the sensor's full range and MaxRange on a timer.
type RestrictionPolicy struct {
	Enabled  bool
	MaxRange float64 // metres; the restricted clamp
	Periodic *PeriodicRestriction
}

// PeriodicRestriction holds the two phase durations of a periodic fault
// cycle: OnDuration at full range followed by OffDuration at restricted
// range, repeating until cancelled.
type PeriodicRestriction struct {
	OnDuration  time.Duration
	OffDuration time.Duration
}

// WeatherKind identifies an optional weather effect subsystem.
type WeatherKind string

const (
	WeatherRain WeatherKind = "rain"
	WeatherSnow WeatherKind = "snow"
	WeatherFog  WeatherKind = "fog"
)

// WeatherParams parameterises one weather effect node. MinRange and MaxRange
// are filled by the controller from the sensor's ray template; the rest come
// from the owning effect provider.
type WeatherParams struct {
	Kind      WeatherKind
	Intensity float64 // mm/h for rain/snow, particle density for fog
	MinRange  float64
	MaxRange  float64
}
