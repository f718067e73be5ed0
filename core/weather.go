// core/weather.go
package core

import (
	"sync"

	"github.com/signalsfoundry/lidar-simulator/model"
)

// WeatherProvider is an optional capability plugged into a sensor at
// activation. If a provider exists, its node is appended once at sensor
// startup; every configuration application afterwards re-reads the provider
// and toggles or re-parameterises that node.
type WeatherProvider interface {
	Kind() model.WeatherKind
	Enabled() bool
	Params() model.WeatherParams
}

// StaticWeatherProvider is a provider with operator-settable state, enough
// for scenarios and tests. Real deployments may wrap a live weather service.
type StaticWeatherProvider struct {
	mu        sync.Mutex
	kind      model.WeatherKind
	enabled   bool
	intensity float64
}

// NewStaticWeatherProvider constructs a provider for one effect kind.
func NewStaticWeatherProvider(kind model.WeatherKind, enabled bool, intensity float64) *StaticWeatherProvider {
	return &StaticWeatherProvider{kind: kind, enabled: enabled, intensity: intensity}
}

func (p *StaticWeatherProvider) Kind() model.WeatherKind { return p.kind }

func (p *StaticWeatherProvider) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// SetEnabled toggles the effect; the change takes hold on the sensor's next
// configuration application.
func (p *StaticWeatherProvider) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

// SetIntensity updates the effect strength.
func (p *StaticWeatherProvider) SetIntensity(intensity float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intensity = intensity
}

func (p *StaticWeatherProvider) Params() model.WeatherParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.WeatherParams{Kind: p.kind, Intensity: p.intensity}
}
