// core/nodes.go
package core

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/lidar-simulator/model"
)

// NodeKind identifies what a graph node does. A node's kind is fixed for the
// sensor's lifetime; reconfiguration only touches its parameters and active
// flag.
type NodeKind string

const (
	KindRaySource     NodeKind = "ray-source"
	KindRangeFilter   NodeKind = "range-filter"
	KindRingIDs       NodeKind = "ring-ids"
	KindTimeOffsets   NodeKind = "time-offsets"
	KindTransform     NodeKind = "transform"
	KindAngularNoise  NodeKind = "angular-noise"
	KindDistanceNoise NodeKind = "distance-noise"
	KindRaytrace      NodeKind = "raytrace"
	KindWeather       NodeKind = "weather"
	KindCompaction    NodeKind = "compaction"
)

// Canonical node names used by the sensor controller. They are stable within
// a sensor's lifetime so Update calls can address them every tick.
const (
	NodeRaySource       = "ray-source"
	NodeRangeFilter     = "range-filter"
	NodeRingIDs         = "ring-ids"
	NodeTimeOffsets     = "time-offsets"
	NodeLidarPose       = "lidar-pose"
	NodeAngularNoiseRay = "angular-noise-ray"
	NodeAngularNoiseHit = "angular-noise-hitpoint"
	NodeDistanceNoise   = "distance-noise"
	NodeRaytrace        = "raytrace"
	NodeToSensorFrame   = "to-sensor-frame"
	NodeCompactionWorld = "compact-world"
	NodeCompactionLocal = "compact-sensor"
)

// WeatherNodeName returns the canonical node name for a weather effect kind.
func WeatherNodeName(kind model.WeatherKind) string {
	return "weather-" + string(kind)
}

// RaySourceParams seeds the pipeline with the sensor's ray template.
type RaySourceParams struct {
	Rays []model.Ray
}

// RangeFilterParams overrides the per-ray valid range. With exactly one span
// it is broadcast to every ray; otherwise spans map to rays by index.
type RangeFilterParams struct {
	Spans []RangeSpan
}

// RangeSpan is a closed distance interval in metres.
type RangeSpan struct {
	Min float64
	Max float64
}

// RingIDParams assigns ring (scan line) identifiers, repeating cyclically
// when there are fewer ids than rays.
type RingIDParams struct {
	IDs []int
}

// TimeOffsetParams assigns per-ray time offsets, repeating cyclically when
// there are fewer offsets than rays.
type TimeOffsetParams struct {
	Offsets []float64
}

// TransformParams parameterises a rigid transform node. On the trunk it
// carries the sensor's world pose; on the sensor-frame branch it carries the
// inverse pose mapping points back to local axes.
type TransformParams struct {
	Transform Transform
}

// AngularNoiseParams parameterises one of the two angular noise nodes.
// Angles are radians; the controller converts from degrees at the boundary.
type AngularNoiseParams struct {
	Mean  float64
	Stdev float64
}

// DistanceNoiseParams parameterises gaussian distance noise. The effective
// stdev is StdevBase + StdevRisePerMeter * distance.
type DistanceNoiseParams struct {
	Mean              float64
	StdevBase         float64
	StdevRisePerMeter float64
}

// RaytraceParams parameterises the raytrace node. MaxRange is the output
// restriction clamp applied on top of per-ray ranges; zero means no clamp.
// BeamDivergence is radians; the controller forces it to zero when beam
// divergence simulation is disabled. Velocities are sensor-local and feed
// motion-distortion compensation when DistortionEnabled is set.
type RaytraceParams struct {
	MaxRange          float64
	BeamDivergence    float64
	ReturnMode        model.ReturnMode
	DistortionEnabled bool
	LinearVelocity    r3.Vec
	AngularVelocity   r3.Vec
}

// WeatherEffectParams parameterises an optional weather node.
type WeatherEffectParams struct {
	Params model.WeatherParams
}

// CompactionParams parameterises a compaction node. The node drops rays that
// produced no return; it has no tunables today but keeps the uniform
// update path.
type CompactionParams struct{}
