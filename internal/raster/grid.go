// Package raster holds in-memory gridded frames, lazy frame sequences and
// the per-pixel building blocks the index, zonal and risk packages use.
//
// Pixels carry an explicit validity mask; no-data is never encoded as NaN.
package raster

import (
	"fmt"
	"math"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
)

// EPSGWGS84 is geographic longitude/latitude in degrees.
const EPSGWGS84 = 4326

// GeoTransform maps pixel (col, row) to CRS coordinates in GDAL order:
//
//	x = gt[0] + col*gt[1] + row*gt[2]
//	y = gt[3] + col*gt[4] + row*gt[5]
type GeoTransform [6]float64

// NorthUp builds a transform with no rotation terms.
func NorthUp(originX, originY, pixelW, pixelH float64) GeoTransform {
	return GeoTransform{originX, pixelW, 0, originY, 0, -pixelH}
}

// Grid is the shape and georeference shared by all bands of a frame.
type Grid struct {
	Width     int
	Height    int
	Transform GeoTransform
	EPSG      int
}

// Len is the pixel count.
func (g Grid) Len() int { return g.Width * g.Height }

// Index flattens (col, row) in row-major order.
func (g Grid) Index(col, row int) int { return row*g.Width + col }

// Center returns the CRS coordinate of a pixel center.
func (g Grid) Center(col, row int) (float64, float64) {
	c, r := float64(col)+0.5, float64(row)+0.5
	gt := g.Transform
	return gt[0] + c*gt[1] + r*gt[2], gt[3] + c*gt[4] + r*gt[5]
}

// Locate returns the pixel containing (x, y). Only north-up grids are supported.
func (g Grid) Locate(x, y float64) (int, int, bool) {
	gt := g.Transform
	if gt[1] == 0 || gt[5] == 0 {
		return 0, 0, false
	}
	col := int(math.Floor((x - gt[0]) / gt[1]))
	row := int(math.Floor((y - gt[3]) / gt[5]))
	if col < 0 || row < 0 || col >= g.Width || row >= g.Height {
		return 0, 0, false
	}
	return col, row, true
}

// Geographic reports whether coordinates are degrees.
func (g Grid) Geographic() bool { return g.EPSG == EPSGWGS84 }

// Aligned reports whether two grids share shape, CRS and transform.
func (g Grid) Aligned(o Grid) bool {
	if g.Width != o.Width || g.Height != o.Height || g.EPSG != o.EPSG {
		return false
	}
	for i := range g.Transform {
		if math.Abs(g.Transform[i]-o.Transform[i]) > 1e-9 {
			return false
		}
	}
	return true
}

// CheckAligned returns ErrIndicatorMismatch unless all grids match the first.
func CheckAligned(grids ...Grid) error {
	for i := 1; i < len(grids); i++ {
		if !grids[0].Aligned(grids[i]) {
			return fmt.Errorf("grid %d (%dx%d epsg:%d) differs from %dx%d epsg:%d: %w",
				i, grids[i].Width, grids[i].Height, grids[i].EPSG,
				grids[0].Width, grids[0].Height, grids[0].EPSG, domain.ErrIndicatorMismatch)
		}
	}
	return nil
}
