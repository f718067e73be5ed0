package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for the simulation loop and
// provides a ready-to-serve /metrics handler. It satisfies the core
// scheduler's metrics interface so the loop can record observations without
// depending on Prometheus directly.
type SimCollector struct {
	gatherer prometheus.Gatherer

	TicksTotal      prometheus.Counter
	CapturesTotal   *prometheus.CounterVec
	CaptureDuration *prometheus.HistogramVec
	CloudPoints     *prometheus.GaugeVec
	ActiveSensors   prometheus.Gauge
	TickFired       prometheus.Gauge
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Re-registration reuses existing collectors, so repeated construction in
// tests is safe.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Total scheduler ticks processed.",
	}), "sim_ticks_total")
	if err != nil {
		return nil, err
	}

	captures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_captures_total",
		Help: "Total captures issued, labeled by sensor.",
	}, []string{"sensor"})
	captures, err = registerCounterVec(reg, captures, "sim_captures_total")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sim_capture_duration_seconds",
		Help:    "Wall time from capture issuance to data-ready, labeled by sensor.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	}, []string{"sensor"})
	duration, err = registerHistogramVec(reg, duration, "sim_capture_duration_seconds")
	if err != nil {
		return nil, err
	}

	points := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_cloud_points",
		Help: "Point count of the most recent cloud, labeled by sensor and frame.",
	}, []string{"sensor", "frame"})
	points, err = registerGaugeVec(reg, points, "sim_cloud_points")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_active_sensors",
		Help: "Current number of activated sensors.",
	}), "sim_active_sensors")
	if err != nil {
		return nil, err
	}

	tickFired, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_tick_fired_sensors",
		Help: "Number of sensors that fired in the most recent tick.",
	}), "sim_tick_fired_sensors")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:        gatherer,
		TicksTotal:      ticks,
		CapturesTotal:   captures,
		CaptureDuration: duration,
		CloudPoints:     points,
		ActiveSensors:   active,
		TickFired:       tickFired,
	}, nil
}

// TickProcessed records one completed scheduler tick and how many sensors
// fired in it.
func (c *SimCollector) TickProcessed(fired int) {
	if c == nil {
		return
	}
	c.TicksTotal.Inc()
	c.TickFired.Set(float64(fired))
}

// CaptureIssued records one issued capture for a sensor.
func (c *SimCollector) CaptureIssued(sensor string) {
	if c == nil {
		return
	}
	c.CapturesTotal.WithLabelValues(sensor).Inc()
}

// CaptureCompleted records the wall time of one capture, issuance to
// data-ready.
func (c *SimCollector) CaptureCompleted(sensor string, d time.Duration) {
	if c == nil {
		return
	}
	c.CaptureDuration.WithLabelValues(sensor).Observe(d.Seconds())
}

// SetActiveSensors tracks the registry size.
func (c *SimCollector) SetActiveSensors(n int) {
	if c == nil {
		return
	}
	c.ActiveSensors.Set(float64(n))
}

// SetCloudPoints records the size of the most recent cloud on a branch.
func (c *SimCollector) SetCloudPoints(sensor, frame string, n int) {
	if c == nil {
		return
	}
	c.CloudPoints.WithLabelValues(sensor, frame).Set(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
