// core/scenario_loader.go
package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/lidar-simulator/internal/logging"
	"github.com/signalsfoundry/lidar-simulator/model"
	"github.com/signalsfoundry/lidar-simulator/timectrl"
)

// Scenario is a fully parsed simulation description: the shared scene, the
// loop tick, and one spec per sensor.
type Scenario struct {
	Tick    time.Duration
	Ground  bool
	Spheres []Sphere
	Sensors []SensorSpec
}

// SensorSpec describes one sensor instance to activate.
type SensorSpec struct {
	Name        string
	Model       string
	Rate        int
	Pose        model.Mount // world pose of the platform, degrees
	Mount       model.Mount // sensor-to-origin offset, degrees
	Options     SensorOptions
	Restriction model.RestrictionPolicy
	Weather     map[model.WeatherKind]WeatherSpec
}

// WeatherSpec is one optional effect toggle for a sensor.
type WeatherSpec struct {
	Enabled   bool
	Intensity float64
}

// internal YAML shapes - unexported so the file format can evolve freely.
type scenarioYAML struct {
	Tick  string `yaml:"tick"`
	Scene struct {
		Ground  bool `yaml:"ground"`
		Spheres []struct {
			X            float64 `yaml:"x"`
			Y            float64 `yaml:"y"`
			Z            float64 `yaml:"z"`
			Radius       float64 `yaml:"radius"`
			Reflectivity float64 `yaml:"reflectivity"`
		} `yaml:"spheres"`
	} `yaml:"scene"`
	Sensors []sensorYAML `yaml:"sensors"`
}

type sensorYAML struct {
	Name               string    `yaml:"name"`
	Model              string    `yaml:"model"`
	Rate               int       `yaml:"rate"`
	Pose               poseYAML  `yaml:"pose"`
	Mount              poseYAML  `yaml:"mount"`
	BeamDivergence     bool      `yaml:"beam_divergence"`
	VelocityDistortion bool      `yaml:"velocity_distortion"`
	Seed               uint64    `yaml:"seed"`
	Restriction        *restYAML `yaml:"restriction"`
	Weather            map[string]struct {
		Enabled   bool    `yaml:"enabled"`
		Intensity float64 `yaml:"intensity"`
	} `yaml:"weather"`
}

type poseYAML struct {
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Z     float64 `yaml:"z"`
	Roll  float64 `yaml:"roll"`
	Pitch float64 `yaml:"pitch"`
	Yaw   float64 `yaml:"yaw"`
}

type restYAML struct {
	MaxRange float64 `yaml:"max_range"`
	Periodic *struct {
		On  string `yaml:"on"`
		Off string `yaml:"off"`
	} `yaml:"periodic"`
}

// LoadScenario parses a YAML scenario from r. It fails on structural and
// value errors; sensor construction errors surface later, in Build.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var payload scenarioYAML
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("scenario: decode failed: %w", err)
	}

	sc := &Scenario{Tick: 20 * time.Millisecond, Ground: payload.Scene.Ground}
	if payload.Tick != "" {
		tick, err := time.ParseDuration(payload.Tick)
		if err != nil {
			return nil, fmt.Errorf("scenario: bad tick %q: %w", payload.Tick, err)
		}
		sc.Tick = tick
	}

	for _, sp := range payload.Scene.Spheres {
		sc.Spheres = append(sc.Spheres, Sphere{
			Center:       r3.Vec{X: sp.X, Y: sp.Y, Z: sp.Z},
			Radius:       sp.Radius,
			Reflectivity: sp.Reflectivity,
		})
	}

	for _, sy := range payload.Sensors {
		if sy.Name == "" {
			return nil, fmt.Errorf("scenario: sensor without a name")
		}
		spec := SensorSpec{
			Name:  sy.Name,
			Model: sy.Model,
			Rate:  sy.Rate,
			Pose:  mountFromYAML(sy.Pose),
			Mount: mountFromYAML(sy.Mount),
			Options: SensorOptions{
				CaptureRate:        sy.Rate,
				BeamDivergence:     sy.BeamDivergence,
				VelocityDistortion: sy.VelocityDistortion,
				Seed:               sy.Seed,
			},
		}
		if sy.Restriction != nil {
			spec.Restriction = model.RestrictionPolicy{Enabled: true, MaxRange: sy.Restriction.MaxRange}
			if p := sy.Restriction.Periodic; p != nil {
				on, err := time.ParseDuration(p.On)
				if err != nil {
					return nil, fmt.Errorf("scenario: sensor %q: bad on duration: %w", sy.Name, err)
				}
				off, err := time.ParseDuration(p.Off)
				if err != nil {
					return nil, fmt.Errorf("scenario: sensor %q: bad off duration: %w", sy.Name, err)
				}
				spec.Restriction.Periodic = &model.PeriodicRestriction{OnDuration: on, OffDuration: off}
			}
		}
		if len(sy.Weather) > 0 {
			spec.Weather = make(map[model.WeatherKind]WeatherSpec, len(sy.Weather))
			for kind, w := range sy.Weather {
				spec.Weather[model.WeatherKind(kind)] = WeatherSpec{Enabled: w.Enabled, Intensity: w.Intensity}
			}
		}
		sc.Sensors = append(sc.Sensors, spec)
	}

	if len(sc.Sensors) == 0 {
		return nil, fmt.Errorf("scenario: no sensors defined")
	}
	return sc, nil
}

func mountFromYAML(p poseYAML) model.Mount {
	return model.Mount{X: p.X, Y: p.Y, Z: p.Z, RollDeg: p.Roll, PitchDeg: p.Pitch, YawDeg: p.Yaw}
}

// Build turns the scenario into live objects: the shared scene, a populated
// registry, and the scheduler. Sensor activation failures abort the build.
func (sc *Scenario) Build(ctx context.Context, catalog Catalog, events timectrl.Scheduler, log logging.Logger, metrics SchedulerMetrics) (*Registry, *Scheduler, *SimpleScene, error) {
	scene := NewSimpleScene(sc.Spheres, sc.Ground)
	reg := NewRegistry()

	for _, spec := range sc.Sensors {
		var providers []WeatherProvider
		for kind, w := range spec.Weather {
			providers = append(providers, NewStaticWeatherProvider(kind, w.Enabled, w.Intensity))
		}

		opts := spec.Options
		opts.Restriction = spec.Restriction
		opts.Logger = log

		s, err := NewSensor(spec.Name, spec.Model, catalog, scene, events, providers, opts)
		if err != nil {
			return nil, nil, nil, err
		}

		cfg := s.Config()
		cfg.Mount = spec.Mount
		if err := s.Apply(cfg); err != nil {
			return nil, nil, nil, err
		}

		s.SetWorldPose(mountTransform(spec.Pose))
		if err := reg.Activate(ctx, s); err != nil {
			return nil, nil, nil, err
		}
	}

	sched := NewScheduler(reg, scene, log, metrics)
	return reg, sched, scene, nil
}
