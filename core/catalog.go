// core/catalog.go
package core

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/lidar-simulator/model"
)

// Catalog resolves a lidar model id to that model's canonical default
// configuration. Every supported id must resolve; an unknown id is a fatal
// configuration error at sensor activation.
type Catalog interface {
	Lookup(modelID string) (*model.LidarConfig, error)
}

// BuiltinCatalog is an in-memory catalog seeded with a few representative
// presets: three rotating sensors of increasing line count and one
// solid-state unit.
type BuiltinCatalog struct {
	presets map[string]*model.LidarConfig
}

// Builtin model ids.
const (
	ModelRotary16   = "rotary16"
	ModelRotary32   = "rotary32"
	ModelRotary64   = "rotary64"
	ModelSolidState = "solidstate"
)

// NewBuiltinCatalog constructs the default catalog.
func NewBuiltinCatalog() *BuiltinCatalog {
	c := &BuiltinCatalog{presets: make(map[string]*model.LidarConfig)}

	c.presets[ModelRotary16] = &model.LidarConfig{
		ModelID:           ModelRotary16,
		Rays:              rotatingTemplate(16, -15, 15, 1.0, 0.3, 100, 0.1),
		AngularNoise:      model.AngularNoise{StdevDeg: 0.03, Placement: model.NoiseOnRay},
		DistanceNoise:     model.DistanceNoise{StdevBase: 0.02, StdevRisePerMeter: 0.0005},
		BeamDivergenceDeg: 0.17,
		ReturnMode:        model.ReturnStrongest,
	}
	c.presets[ModelRotary32] = &model.LidarConfig{
		ModelID:           ModelRotary32,
		Rays:              rotatingTemplate(32, -25, 15, 0.5, 0.3, 200, 0.1),
		AngularNoise:      model.AngularNoise{StdevDeg: 0.02, Placement: model.NoiseOnRay},
		DistanceNoise:     model.DistanceNoise{StdevBase: 0.02, StdevRisePerMeter: 0.0004},
		BeamDivergenceDeg: 0.15,
		ReturnMode:        model.ReturnStrongest,
	}
	c.presets[ModelRotary64] = &model.LidarConfig{
		ModelID:           ModelRotary64,
		Rays:              rotatingTemplate(64, -24.8, 2, 0.4, 0.3, 120, 0.1),
		AngularNoise:      model.AngularNoise{StdevDeg: 0.015, Placement: model.NoiseOnRay},
		DistanceNoise:     model.DistanceNoise{StdevBase: 0.015, StdevRisePerMeter: 0.0004},
		BeamDivergenceDeg: 0.12,
		ReturnMode:        model.ReturnStrongest,
	}
	c.presets[ModelSolidState] = &model.LidarConfig{
		ModelID:           ModelSolidState,
		Rays:              gridTemplate(120, 32, 120, 25, 0.2, 30, 0.05),
		AngularNoise:      model.AngularNoise{StdevDeg: 0.05, Placement: model.NoiseOnHitpoint},
		DistanceNoise:     model.DistanceNoise{StdevBase: 0.03, StdevRisePerMeter: 0.001},
		BeamDivergenceDeg: 0.25,
		ReturnMode:        model.ReturnStrongest,
	}
	return c
}

// Lookup returns a copy of the preset so callers are free to mutate it.
func (c *BuiltinCatalog) Lookup(modelID string) (*model.LidarConfig, error) {
	preset, ok := c.presets[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
	}
	return preset.Clone(), nil
}

// Models lists the supported model ids, sorted.
func (c *BuiltinCatalog) Models() []string {
	ids := make([]string, 0, len(c.presets))
	for id := range c.presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// rotatingTemplate builds the ray template of a spinning sensor: lines
// elevation channels swept through a full revolution in azimuth steps. Ring
// ids number the channels; time offsets spread one rotationPeriod across the
// sweep, which is what motion-distortion compensation keys off.
func rotatingTemplate(lines int, minElevDeg, maxElevDeg, azStepDeg, minRange, maxRange, rotationPeriod float64) []model.Ray {
	cols := int(360.0 / azStepDeg)
	rays := make([]model.Ray, 0, cols*lines)

	elevStep := 0.0
	if lines > 1 {
		elevStep = (maxElevDeg - minElevDeg) / float64(lines-1)
	}
	for col := 0; col < cols; col++ {
		az := float64(col) * azStepDeg
		tOffset := (az / 360.0) * rotationPeriod
		for line := 0; line < lines; line++ {
			rays = append(rays, model.Ray{
				AzimuthDeg:   az,
				ElevationDeg: minElevDeg + float64(line)*elevStep,
				MinRange:     minRange,
				MaxRange:     maxRange,
				RingID:       line,
				TimeOffset:   tOffset,
			})
		}
	}
	return rays
}

// gridTemplate builds a solid-state template: a rectangular field of view
// scanned row-major, rings numbering the rows.
func gridTemplate(cols, rows int, hFOVDeg, vFOVDeg, minRange, maxRange, framePeriod float64) []model.Ray {
	rays := make([]model.Ray, 0, cols*rows)
	total := float64(cols * rows)

	for row := 0; row < rows; row++ {
		elev := -vFOVDeg/2 + vFOVDeg*float64(row)/float64(rows-1)
		for col := 0; col < cols; col++ {
			az := -hFOVDeg/2 + hFOVDeg*float64(col)/float64(cols-1)
			idx := float64(row*cols + col)
			rays = append(rays, model.Ray{
				AzimuthDeg:   az,
				ElevationDeg: elev,
				MinRange:     minRange,
				MaxRange:     maxRange,
				RingID:       row,
				TimeOffset:   framePeriod * idx / total,
			})
		}
	}
	return rays
}
