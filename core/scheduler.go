// core/scheduler.go
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/lidar-simulator/internal/logging"
)

const tracerName = "github.com/signalsfoundry/lidar-simulator/core"

// fireEpsilon absorbs floating-point jitter in the per-sensor accumulator so
// a sensor whose interval divides the tick exactly fires on the expected
// tick, not one late.
const fireEpsilon = 1e-9

// Registry is the process-wide ordered collection of currently-enabled
// sensors: the scheduling unit. Membership changes only on activation and
// deactivation, never during a tick's two passes. The first sensor in order
// is the leader that actually drives the shared tick.
type Registry struct {
	mu      sync.Mutex
	sensors []*Sensor
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Activate adds a sensor to the schedule, runs its startup validation, and
// synchronizes its timer to the leader so late joiners fire on correlated
// ticks instead of arbitrary phases.
func (r *Registry) Activate(ctx context.Context, s *Sensor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.sensors {
		if existing.name == s.name {
			return &ConfigurationError{Sensor: s.name, Err: fmt.Errorf("already activated")}
		}
	}

	if err := s.SelectModel(ctx, s.Config().ModelID); err != nil {
		return err
	}

	if len(r.sensors) > 0 {
		leader := r.sensors[0]
		s.mu.Lock()
		s.accum = leader.accum
		s.mu.Unlock()
	}
	r.sensors = append(r.sensors, s)
	return nil
}

// Deactivate removes a sensor from the schedule. Unknown names are a no-op.
func (r *Registry) Deactivate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sensors {
		if s.name == name {
			r.sensors = append(r.sensors[:i], r.sensors[i+1:]...)
			return
		}
	}
}

// Sensors returns the current schedule in activation order.
func (r *Registry) Sensors() []*Sensor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Sensor, len(r.sensors))
	copy(out, r.sensors)
	return out
}

// Leader returns the sensor that drives the shared tick, or nil.
func (r *Registry) Leader() *Sensor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sensors) == 0 {
		return nil
	}
	return r.sensors[0]
}

// SchedulerMetrics receives scheduling observations. The observability
// package provides the Prometheus-backed implementation; a nil recorder
// disables recording.
type SchedulerMetrics interface {
	TickProcessed(fired int)
	CaptureIssued(sensor string)
	CaptureCompleted(sensor string, d time.Duration)
	SetActiveSensors(n int)
}

// Scheduler is the single tick-driven control loop shared by all active
// sensors. Each tick runs two passes: first every due sensor's raytrace is
// issued, then, only after all issuance, every fired sensor's data-ready
// notification runs. The split lets all graphs' asynchronous execution be in
// flight before any downstream consumer starts pulling results.
type Scheduler struct {
	reg     *Registry
	scene   SceneBackend
	log     logging.Logger
	metrics SchedulerMetrics
	tracer  trace.Tracer

	tickCount int
	fired     []*Sensor
	firedAt   []time.Time
}

// NewScheduler wires the loop over a registry and the shared scene backend.
func NewScheduler(reg *Registry, scene SceneBackend, log logging.Logger, metrics SchedulerMetrics) *Scheduler {
	if log == nil {
		log = logging.Noop()
	}
	return &Scheduler{
		reg:     reg,
		scene:   scene,
		log:     log,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

// TickFrom is the per-instance entry point: any sensor's host callback may
// invoke it, but only the leader's call runs the shared tick; all others are
// no-ops.
func (sch *Scheduler) TickFrom(ctx context.Context, s *Sensor, now time.Time, dt time.Duration) {
	if sch.reg.Leader() != s {
		return
	}
	sch.Tick(ctx, now, dt)
}

// Tick advances every sensor's local timer by dt and runs the two-pass
// capture cycle. A sensor fires at most once per tick; on fire the
// accumulator keeps the sub-interval remainder so rates whose interval is
// not a tick multiple still hit their nominal frequency, but anything beyond
// one full interval is backlog and is dropped, not queued.
func (sch *Scheduler) Tick(ctx context.Context, now time.Time, dt time.Duration) {
	sensors := sch.reg.Sensors()
	sch.tickCount++
	sch.fired = sch.fired[:0]
	sch.firedAt = sch.firedAt[:0]

	ctx, span := sch.tracer.Start(ctx, "scheduler.tick",
		trace.WithAttributes(
			attribute.Int("tick", sch.tickCount),
			attribute.Int("sensors", len(sensors)),
		))
	defer span.End()

	refreshed := false
	for _, s := range sensors {
		rate := s.Rate()
		if rate == 0 {
			continue
		}

		interval := 1.0 / float64(rate)
		s.mu.Lock()
		s.accum += dt.Seconds()
		due := s.accum+fireEpsilon >= interval
		if due {
			s.accum -= interval
			if s.accum < 0 || s.accum >= interval {
				s.accum = 0
			}
		}
		s.mu.Unlock()
		if !due {
			continue
		}

		// Shared scene refresh happens once per capturing tick, before
		// the first raytrace is issued. The tick count is opaque to us;
		// the backend decides what to do with it.
		if !refreshed {
			sch.scene.Refresh(sch.tickCount)
			refreshed = true
		}

		if err := sch.capture(ctx, s, now); err != nil {
			sch.log.Error(ctx, "capture failed",
				logging.String("sensor", s.Name()),
				logging.String("error", err.Error()))
			continue
		}
		sch.fired = append(sch.fired, s)
		sch.firedAt = append(sch.firedAt, time.Now())
	}

	// Second pass: completion notifications run only after every firing
	// sensor's raytrace has been issued.
	for i, s := range sch.fired {
		s.notifyDataReady()
		if sch.metrics != nil {
			sch.metrics.CaptureCompleted(s.Name(), time.Since(sch.firedAt[i]))
		}
	}

	if sch.metrics != nil {
		sch.metrics.TickProcessed(len(sch.fired))
		sch.metrics.SetActiveSensors(len(sensors))
	}
}

func (sch *Scheduler) capture(ctx context.Context, s *Sensor, now time.Time) error {
	ctx, span := sch.tracer.Start(ctx, "sensor.capture",
		trace.WithAttributes(attribute.String("sensor", s.Name())))
	defer span.End()

	err := s.Capture(ctx, now)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if sch.metrics != nil {
		sch.metrics.CaptureIssued(s.Name())
	}
	return nil
}

// TickCount reports how many ticks the loop has processed.
func (sch *Scheduler) TickCount() int { return sch.tickCount }
