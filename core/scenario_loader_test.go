package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/lidar-simulator/internal/logging"
	"github.com/signalsfoundry/lidar-simulator/model"
	"github.com/signalsfoundry/lidar-simulator/timectrl"
)

const sampleScenario = `
tick: 40ms
scene:
  ground: true
  spheres:
    - { x: 0, y: 12, z: 1, radius: 1, reflectivity: 0.9 }
    - { x: -4, y: 8, z: 0.5, radius: 0.5, reflectivity: 0.6 }
sensors:
  - name: front
    model: rotary16
    rate: 10
    pose: { x: 0, y: 0, z: 0, yaw: 0 }
    mount: { x: 0, y: 1.2, z: 1.8 }
    beam_divergence: true
    seed: 42
    weather:
      fog:
        enabled: true
        intensity: 0.3
  - name: rear
    model: solidstate
    rate: 20
    pose: { yaw: 180 }
    seed: 7
    restriction:
      max_range: 15
      periodic:
        on: 2s
        off: 1s
`

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(strings.NewReader(sampleScenario))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}

	if sc.Tick != 40*time.Millisecond {
		t.Errorf("tick = %v, want 40ms", sc.Tick)
	}
	if !sc.Ground {
		t.Error("scene ground flag not set")
	}
	wantSpheres := []Sphere{
		{Center: r3.Vec{Y: 12, Z: 1}, Radius: 1, Reflectivity: 0.9},
		{Center: r3.Vec{X: -4, Y: 8, Z: 0.5}, Radius: 0.5, Reflectivity: 0.6},
	}
	if diff := cmp.Diff(wantSpheres, sc.Spheres); diff != "" {
		t.Errorf("spheres mismatch (-want +got):\n%s", diff)
	}
	if len(sc.Sensors) != 2 {
		t.Fatalf("sensors = %d, want 2", len(sc.Sensors))
	}

	front := sc.Sensors[0]
	if front.Name != "front" || front.Model != "rotary16" || front.Rate != 10 {
		t.Errorf("front spec = %+v", front)
	}
	if !front.Options.BeamDivergence || front.Options.Seed != 42 {
		t.Errorf("front options = %+v", front.Options)
	}
	if front.Mount.Z != 1.8 {
		t.Errorf("front mount Z = %v, want 1.8", front.Mount.Z)
	}
	w, ok := front.Weather[model.WeatherFog]
	if !ok || !w.Enabled || w.Intensity != 0.3 {
		t.Errorf("front fog spec = %+v (present %v)", w, ok)
	}

	rear := sc.Sensors[1]
	if rear.Pose.YawDeg != 180 {
		t.Errorf("rear pose yaw = %v, want 180", rear.Pose.YawDeg)
	}
	if !rear.Restriction.Enabled || rear.Restriction.MaxRange != 15 {
		t.Errorf("rear restriction = %+v", rear.Restriction)
	}
	p := rear.Restriction.Periodic
	if p == nil || p.OnDuration != 2*time.Second || p.OffDuration != time.Second {
		t.Errorf("rear periodic = %+v", p)
	}
}

func TestLoadScenarioDefaultsTick(t *testing.T) {
	sc, err := LoadScenario(strings.NewReader("sensors:\n  - name: a\n    model: rotary16\n"))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if sc.Tick != 20*time.Millisecond {
		t.Fatalf("default tick = %v, want 20ms", sc.Tick)
	}
}

func TestLoadScenarioRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no sensors", "tick: 20ms\n"},
		{"unnamed sensor", "sensors:\n  - model: rotary16\n"},
		{"bad tick", "tick: sometimes\nsensors:\n  - name: a\n    model: rotary16\n"},
		{"bad periodic", "sensors:\n  - name: a\n    model: rotary16\n    restriction:\n      max_range: 5\n      periodic:\n        on: soon\n        off: 1s\n"},
		{"not yaml", "{{{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadScenario(strings.NewReader(tc.yaml)); err == nil {
				t.Fatal("LoadScenario accepted invalid input")
			}
		})
	}
}

func TestScenarioBuild(t *testing.T) {
	sc, err := LoadScenario(strings.NewReader(sampleScenario))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}

	clock := timectrl.NewFakeClock(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	events := timectrl.NewEventScheduler(clock)

	reg, sched, scene, err := sc.Build(context.Background(), NewBuiltinCatalog(), events, logging.Noop(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if scene == nil || sched == nil {
		t.Fatal("Build returned nil collaborators")
	}

	sensors := reg.Sensors()
	if len(sensors) != 2 {
		t.Fatalf("activated sensors = %d, want 2", len(sensors))
	}
	if reg.Leader().Name() != "front" {
		t.Fatalf("leader = %s, want front (first in the scenario)", reg.Leader().Name())
	}

	rear := sensors[1]
	if got := rear.Restriction().ActiveRange(); got != 30 {
		// Periodic restriction starts in the unrestricted phase; the
		// solid-state preset's full range is 30 m.
		t.Fatalf("rear initial range = %v, want the full 30", got)
	}
	if rear.Rate() != 20 {
		t.Fatalf("rear rate = %d, want 20", rear.Rate())
	}
}

func TestScenarioBuildUnknownModelFails(t *testing.T) {
	sc, err := LoadScenario(strings.NewReader("sensors:\n  - name: a\n    model: missing\n"))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}

	clock := timectrl.NewFakeClock(time.Now())
	events := timectrl.NewEventScheduler(clock)
	_, _, _, err = sc.Build(context.Background(), NewBuiltinCatalog(), events, logging.Noop(), nil)
	if err == nil {
		t.Fatal("Build with an unknown model succeeded")
	}
}
