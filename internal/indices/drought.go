package indices

import (
	"fmt"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// Droughtness computes (P - ET) / (P + ET) from cumulative precipitation
// and evapotranspiration frames on the same grid.
func Droughtness(precip raster.Frame, precipBand string, et raster.Frame, etBand string) (DerivedRaster, error) {
	if err := raster.CheckAligned(precip.Grid, et.Grid); err != nil {
		return DerivedRaster{}, fmt.Errorf("droughtness: %w", err)
	}
	p, err := precip.Band(precipBand)
	if err != nil {
		return DerivedRaster{}, fmt.Errorf("droughtness: %w: %w", domain.ErrIndicatorMismatch, err)
	}
	e, err := et.Band(etBand)
	if err != nil {
		return DerivedRaster{}, fmt.Errorf("droughtness: %w: %w", domain.ErrIndicatorMismatch, err)
	}
	nd, degenerate := NormalizedDifference(p, e)
	out := raster.NewFrame(precip.Grid, precip.Acquired, nil)
	return DerivedRaster{
		Name:       NameDroughtness,
		Frame:      out.MustWithBand(BandValue, nd),
		Range:      DisplayRanges[NameDroughtness],
		Degenerate: degenerate,
	}, nil
}

// Anomaly computes current - baseline for one band reduced over two
// disjoint windows.
func Anomaly(name string, current, baseline raster.Frame, band string) (DerivedRaster, error) {
	if err := raster.CheckAligned(current.Grid, baseline.Grid); err != nil {
		return DerivedRaster{}, fmt.Errorf("%s: %w", name, err)
	}
	cur, err := current.Band(band)
	if err != nil {
		return DerivedRaster{}, fmt.Errorf("%s: %w: %w", name, domain.ErrIndicatorMismatch, err)
	}
	base, err := baseline.Band(band)
	if err != nil {
		return DerivedRaster{}, fmt.Errorf("%s: %w: %w", name, domain.ErrIndicatorMismatch, err)
	}
	diff := raster.Combine(cur, base, func(c, b float64) (float64, bool) { return c - b, true })
	out := raster.NewFrame(current.Grid, current.Acquired, nil)
	return DerivedRaster{
		Name:  name,
		Frame: out.MustWithBand(BandValue, diff),
		Range: DisplayRanges[name],
	}, nil
}
