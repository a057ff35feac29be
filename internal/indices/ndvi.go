package indices

import (
	"fmt"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// NormalizedDifference computes (a-b)/(a+b). Pixels where a+b == 0 become
// no-data; their count is returned.
func NormalizedDifference(a, b raster.Band) (raster.Band, int64) {
	var degenerate int64
	out := raster.Combine(a, b, func(x, y float64) (float64, bool) {
		sum := x + y
		if sum == 0 {
			degenerate++
			return 0, false
		}
		return (x - y) / sum, true
	})
	return out, degenerate
}

// NDVI adds an NDVI band computed from nir and red to a copy of f.
func NDVI(f raster.Frame, nirBand, redBand string) (raster.Frame, int64, error) {
	nir, err := f.Band(nirBand)
	if err != nil {
		return raster.Frame{}, 0, fmt.Errorf("ndvi: %w", err)
	}
	red, err := f.Band(redBand)
	if err != nil {
		return raster.Frame{}, 0, fmt.Errorf("ndvi: %w", err)
	}
	nd, degenerate := NormalizedDifference(nir, red)
	out := raster.NewFrame(f.Grid, f.Acquired, f.Properties)
	return out.MustWithBand(NameNDVI, nd), degenerate, nil
}

// NDVISequence maps every frame to its NDVI band. Degenerate pixels are
// added to tally as frames are forced.
func NDVISequence(seq raster.Sequence, nirBand, redBand string, tally *Tally) raster.Sequence {
	return seq.Map([]string{NameNDVI}, func(f raster.Frame) (raster.Frame, bool, error) {
		out, degenerate, err := NDVI(f, nirBand, redBand)
		if err != nil {
			return raster.Frame{}, false, fmt.Errorf("%w: %w", domain.ErrIndicatorMismatch, err)
		}
		if tally != nil {
			tally.Add(degenerate)
		}
		return out, true, nil
	})
}
