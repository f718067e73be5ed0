package tests

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/lidar-simulator/core"
	"github.com/signalsfoundry/lidar-simulator/internal/logging"
	"github.com/signalsfoundry/lidar-simulator/model"
	"github.com/signalsfoundry/lidar-simulator/timectrl"
)

const e2eScenario = `
tick: 20ms
scene:
  ground: true
  spheres:
    - { x: 0, y: 12, z: 1, radius: 1, reflectivity: 0.9 }
    - { x: 5, y: 20, z: 2, radius: 2, reflectivity: 0.4 }
sensors:
  - name: front
    model: rotary16
    rate: 10
    mount: { z: 1.8 }
    seed: 42
  - name: rear
    model: solidstate
    rate: 20
    pose: { yaw: 180 }
    mount: { z: 1.5 }
    seed: 7
    restriction:
      max_range: 5
      periodic:
        on: 400ms
        off: 200ms
`

type simEnv struct {
	tc    *timectrl.TimeController
	reg   *core.Registry
	sched *core.Scheduler
}

func newSimEnv(t *testing.T, scenario string) *simEnv {
	t.Helper()

	sc, err := core.LoadScenario(strings.NewReader(scenario))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}

	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	tc := timectrl.NewTimeController(start, sc.Tick, timectrl.Accelerated)

	reg, sched, _, err := sc.Build(context.Background(), core.NewBuiltinCatalog(), tc.Events(), logging.Noop(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := context.Background()
	tc.AddListener(func(now time.Time, dt time.Duration) {
		for _, s := range reg.Sensors() {
			sched.TickFrom(ctx, s, now, dt)
		}
	})
	return &simEnv{tc: tc, reg: reg, sched: sched}
}

func (e *simEnv) run(steps int) {
	for i := 0; i < steps; i++ {
		e.tc.Step()
	}
}

func (e *simEnv) sensor(t *testing.T, name string) *core.Sensor {
	t.Helper()
	for _, s := range e.reg.Sensors() {
		if s.Name() == name {
			return s
		}
	}
	t.Fatalf("sensor %s not activated", name)
	return nil
}

func TestSimulationProducesCloudsEndToEnd(t *testing.T) {
	env := newSimEnv(t, e2eScenario)

	readies := map[string]int{}
	for _, s := range env.reg.Sensors() {
		s := s
		s.OnDataReady(func() { readies[s.Name()]++ })
	}

	// One simulated second at 20 ms ticks.
	env.run(50)

	if got := readies["front"]; got != 10 {
		t.Errorf("front data-ready count = %d, want 10 (10 Hz over 1 s)", got)
	}
	if got := readies["rear"]; got != 20 {
		t.Errorf("rear data-ready count = %d, want 20 (20 Hz over 1 s)", got)
	}

	front := env.sensor(t, "front")
	world := front.WorldOutput()
	if world == nil || len(world.Points) == 0 {
		t.Fatal("front produced no world-frame cloud")
	}
	if world.Frame != model.FrameWorld {
		t.Errorf("world cloud frame = %v", world.Frame)
	}
	if world.ValidCount() == 0 {
		t.Error("front saw nothing despite spheres and ground in view")
	}

	local := front.SensorOutput()
	if local == nil || local.Frame != model.FrameSensor {
		t.Fatalf("front sensor-frame cloud = %+v", local)
	}
	if local.CaptureID != world.CaptureID {
		t.Errorf("branch capture ids differ: %q vs %q", local.CaptureID, world.CaptureID)
	}

	// The compaction branches only carry actual returns.
	for _, p := range world.Points {
		if !p.Valid {
			t.Fatal("world branch leaked an invalid point")
			break
		}
	}
}

func TestPeriodicRestrictionCyclesDuringRun(t *testing.T) {
	env := newSimEnv(t, e2eScenario)
	rear := env.sensor(t, "rear")

	ranges := map[float64]bool{}
	for i := 0; i < 60; i++ {
		env.tc.Step()
		ranges[rear.Restriction().ActiveRange()] = true
	}

	// Over 1.2 s the 400/200 ms cycle visits both phases: the full 30 m
	// range of the solid-state preset and the 5 m restricted clamp.
	if !ranges[30] || !ranges[5] {
		t.Fatalf("observed ranges = %v, want both 30 and 5", ranges)
	}
}

func TestDeactivatedSensorStopsFiring(t *testing.T) {
	env := newSimEnv(t, e2eScenario)

	fired := 0
	rear := env.sensor(t, "rear")
	rear.OnDataReady(func() { fired++ })

	env.run(10)
	if fired == 0 {
		t.Fatal("rear never fired while activated")
	}

	env.reg.Deactivate("rear")
	before := fired
	env.run(20)
	if fired != before {
		t.Fatalf("deactivated sensor fired %d more times", fired-before)
	}
}
