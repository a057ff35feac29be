package zonal

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// Summarize returns the min and max of band over pixels whose center lies
// inside the AOI at scale. No valid pixel yields nil Min and Max.
func Summarize(ctx context.Context, f raster.Frame, band string, aoi *domain.AOI, scale float64, maxPixels int64) (domain.ZonalSummary, error) {
	if err := ctx.Err(); err != nil {
		return domain.ZonalSummary{}, err
	}
	sampled, err := Rasterize(f, band, aoi, scale, maxPixels)
	if err != nil {
		return domain.ZonalSummary{}, err
	}
	b, _ := sampled.Band(band)

	vals := make([]float64, 0, b.ValidCount())
	for i := range b.Values {
		if v, ok := b.At(i); ok {
			vals = append(vals, v)
		}
	}
	summary := domain.ZonalSummary{Pixels: int64(len(vals)), Scale: scale}
	if len(vals) == 0 {
		return summary, nil
	}
	lo, hi := floats.Min(vals), floats.Max(vals)
	summary.Min, summary.Max = &lo, &hi
	return summary, nil
}

// ClassArea returns km² per integer class code of band inside the AOI.
func ClassArea(ctx context.Context, f raster.Frame, band string, aoi *domain.AOI, scale float64, maxPixels int64) (map[int]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sampled, err := Rasterize(f, band, aoi, scale, maxPixels)
	if err != nil {
		return nil, err
	}
	b, _ := sampled.Band(band)

	counts := make(map[int]float64)
	for i := range b.Values {
		if v, ok := b.At(i); ok {
			counts[int(v)]++
		}
	}
	cellKm2 := scale * scale / 1e6
	for code, n := range counts {
		counts[code] = n * cellKm2
	}
	return counts, nil
}

// TotalArea sums a class-area table.
func TotalArea(areas map[int]float64) float64 {
	vals := make([]float64, 0, len(areas))
	for _, a := range areas {
		vals = append(vals, a)
	}
	return floats.Sum(vals)
}

// String renders a summary for logs.
func String(s domain.ZonalSummary) string {
	if s.Empty() {
		return "{min: null, max: null}"
	}
	return fmt.Sprintf("{min: %g, max: %g}", *s.Min, *s.Max)
}
