// Package zonal computes statistics and resampled exports of rasters over
// an AOI at a requested ground sampling distance, under a pixel ceiling.
package zonal

import (
	"fmt"
	"math"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// MetersPerDegree returns the length of one degree of latitude and of
// longitude at lat (degrees).
func MetersPerDegree(lat float64) (perLat, perLon float64) {
	phi := lat * math.Pi / 180
	perLat = 111132.92 - 559.82*math.Cos(2*phi)
	perLon = 111412.84 * math.Cos(phi)
	return perLat, perLon
}

// Sampling is the AOI bounding box rasterized at one scale.
type Sampling struct {
	Grid   raster.Grid
	Pixels int64
	Scale  float64
}

// Plan rasterizes the AOI bounding box at scale metres in the CRS of ref.
// It returns *domain.PixelBudgetError when the pixel count exceeds
// maxPixels; it never subsamples.
func Plan(aoi *domain.AOI, ref raster.Grid, scale float64, maxPixels int64) (Sampling, error) {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return Sampling{}, fmt.Errorf("scale must be positive, got %v", scale)
	}
	b := aoi.Bounds()
	minX, minY, maxX, maxY := b.Min(0), b.Min(1), b.Max(0), b.Max(1)

	dx, dy := scale, scale
	if ref.Geographic() {
		perLat, perLon := MetersPerDegree((minY + maxY) / 2)
		dy = scale / perLat
		dx = scale / math.Max(perLon, 1e-6)
	}
	cols := math.Max(1, math.Ceil((maxX-minX)/dx))
	rows := math.Max(1, math.Ceil((maxY-minY)/dy))
	count := cols * rows

	if count > float64(maxPixels) {
		pixels := int64(math.MaxInt64)
		if count < math.MaxInt64 {
			pixels = int64(count)
		}
		return Sampling{}, &domain.PixelBudgetError{Pixels: pixels, MaxPixels: maxPixels, Scale: scale}
	}
	return Sampling{
		Grid: raster.Grid{
			Width:     int(cols),
			Height:    int(rows),
			Transform: raster.NorthUp(minX, maxY, dx, dy),
			EPSG:      ref.EPSG,
		},
		Pixels: int64(count),
		Scale:  scale,
	}, nil
}

// Rasterize resamples band of f onto the AOI sampling grid by nearest
// neighbour. Samples whose center lies outside the AOI, outside f, or on
// no-data are no-data.
func Rasterize(f raster.Frame, band string, aoi *domain.AOI, scale float64, maxPixels int64) (raster.Frame, error) {
	src, err := f.Band(band)
	if err != nil {
		return raster.Frame{}, fmt.Errorf("rasterize: %w", err)
	}
	plan, err := Plan(aoi, f.Grid, scale, maxPixels)
	if err != nil {
		return raster.Frame{}, err
	}
	g := plan.Grid
	out := raster.NewBand(g.Len())
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			x, y := g.Center(col, row)
			if !aoi.Contains(x, y) {
				continue
			}
			sc, sr, ok := f.Grid.Locate(x, y)
			if !ok {
				continue
			}
			if v, ok := src.At(f.Grid.Index(sc, sr)); ok {
				out.Set(g.Index(col, row), v)
			}
		}
	}
	props := map[string]any{"scale": scale}
	return raster.NewFrame(g, f.Acquired, props).MustWithBand(band, out), nil
}
