// Package risk fuses per-indicator threshold crossings into a composite
// count and derives vulnerability, hazard and risk rasters from it.
package risk

import (
	"fmt"
	"sort"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/indices"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// Names of the composite rasters.
const (
	NameVulnerability = "Vulnerability"
	NameHazard        = "Hazard"
	NameRisk          = indices.NameRisk
)

// Policy is the per-indicator classification configuration.
type Policy struct {
	Thresholds  map[string]domain.ThresholdSpec
	Comparisons map[string]domain.Comparison
}

// DefaultPolicy returns the default seven-indicator policy.
func DefaultPolicy() Policy {
	return Policy{Thresholds: domain.DefaultThresholds(), Comparisons: domain.DefaultComparisons()}
}

// Validate checks every threshold and comparison and that each comparison
// has a threshold.
func (p Policy) Validate() error {
	if err := domain.ValidateThresholds(p.Thresholds); err != nil {
		return err
	}
	for name, c := range p.Comparisons {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("comparison %s: %w", name, err)
		}
		if _, ok := p.Thresholds[name]; !ok {
			return fmt.Errorf("comparison %s has no threshold: %w", name, domain.ErrInvalidThreshold)
		}
	}
	return nil
}

// WithOverrides returns a copy with individual thresholds replaced.
func (p Policy) WithOverrides(overrides map[string]domain.ThresholdSpec) Policy {
	out := Policy{
		Thresholds:  make(map[string]domain.ThresholdSpec, len(p.Thresholds)),
		Comparisons: make(map[string]domain.Comparison, len(p.Comparisons)),
	}
	for k, v := range p.Thresholds {
		out.Thresholds[k] = v
	}
	for k, v := range p.Comparisons {
		out.Comparisons[k] = v
	}
	for k, v := range overrides {
		out.Thresholds[k] = v
	}
	return out
}

// Indicators lists the names the policy classifies, sorted.
func (p Policy) Indicators() []string {
	names := make([]string, 0, len(p.Comparisons))
	for name := range p.Comparisons {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CompositeScore counts, per pixel, the indicators crossing their threshold.
// Values lie in [0, N] for N indicators.
type CompositeScore struct {
	Frame      raster.Frame
	Indicators []string
}

// N is the number of combined indicators.
func (c CompositeScore) N() int { return len(c.Indicators) }

// Band returns the count band.
func (c CompositeScore) Band() raster.Band {
	b, _ := c.Frame.Band(indices.BandValue)
	return b
}

// Vulnerability is the composite count.
func (c CompositeScore) Vulnerability() indices.DerivedRaster {
	return c.derived(NameVulnerability, c.Band())
}

// Hazard is modelled as the same composite as vulnerability.
func (c CompositeScore) Hazard() indices.DerivedRaster {
	return c.derived(NameHazard, c.Band())
}

// Risk is vulnerability times hazard, bounded by [0, N²].
func (c CompositeScore) Risk() indices.DerivedRaster {
	v := c.Vulnerability().Band()
	h := c.Hazard().Band()
	return c.derived(NameRisk, raster.Combine(v, h, func(a, b float64) (float64, bool) { return a * b, true }))
}

func (c CompositeScore) derived(name string, b raster.Band) indices.DerivedRaster {
	n := float64(c.N())
	rng := domain.ValidRange{Min: 0, Max: n}
	if name == NameRisk {
		rng.Max = n * n
	}
	out := raster.NewFrame(c.Frame.Grid, c.Frame.Acquired, nil)
	return indices.DerivedRaster{Name: name, Frame: out.MustWithBand(indices.BandValue, b), Range: rng}
}

// Compose classifies every indicator against its threshold and sums the
// 0/1 results. Every indicator needs a threshold and a comparison, and all
// rasters must share one grid; otherwise domain.ErrIndicatorMismatch.
// A pixel that is no-data in any indicator is no-data in the composite.
func Compose(indicators map[string]indices.DerivedRaster, thresholds map[string]domain.ThresholdSpec, comparisons map[string]domain.Comparison) (CompositeScore, error) {
	if len(indicators) == 0 {
		return CompositeScore{}, fmt.Errorf("compose: no indicators: %w", domain.ErrIndicatorMismatch)
	}
	names := make([]string, 0, len(indicators))
	for name := range indicators {
		names = append(names, name)
	}
	sort.Strings(names)

	grids := make([]raster.Grid, 0, len(names))
	for _, name := range names {
		spec, ok := thresholds[name]
		if !ok {
			return CompositeScore{}, fmt.Errorf("compose: no threshold for %s: %w", name, domain.ErrIndicatorMismatch)
		}
		if err := spec.Validate(); err != nil {
			return CompositeScore{}, fmt.Errorf("compose %s: %w", name, err)
		}
		cmp, ok := comparisons[name]
		if !ok {
			return CompositeScore{}, fmt.Errorf("compose: no comparison for %s: %w", name, domain.ErrIndicatorMismatch)
		}
		if err := cmp.Validate(); err != nil {
			return CompositeScore{}, fmt.Errorf("compose %s: %w", name, err)
		}
		grids = append(grids, indicators[name].Frame.Grid)
	}
	if err := raster.CheckAligned(grids...); err != nil {
		return CompositeScore{}, fmt.Errorf("compose: %w", err)
	}

	grid := grids[0]
	score := raster.NewBand(grid.Len())
	for i := range score.Values {
		score.Set(i, 0)
	}
	for _, name := range names {
		b := indicators[name].Band()
		if b.Len() != grid.Len() {
			return CompositeScore{}, fmt.Errorf("compose: %s has no value band: %w", name, domain.ErrIndicatorMismatch)
		}
		spec, cmp := thresholds[name], comparisons[name]
		for i := range score.Values {
			if !score.Valid[i] {
				continue
			}
			v, ok := b.At(i)
			if !ok {
				score.SetNoData(i)
				continue
			}
			if cmp.Crosses(v, spec) {
				score.Values[i]++
			}
		}
	}

	out := raster.NewFrame(grid, indicators[names[0]].Frame.Acquired, nil)
	return CompositeScore{Frame: out.MustWithBand(indices.BandValue, score), Indicators: names}, nil
}
