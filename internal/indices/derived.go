// Package indices computes single-band derived rasters from source frames.
// All functions are pure; zero denominators degrade pixels to no-data and
// are counted rather than returned as errors.
package indices

import (
	"fmt"
	"sync/atomic"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// BandValue is the band name every DerivedRaster stores its samples under.
const BandValue = "value"

// Semantic names of the derived rasters.
const (
	NameSoilMoisture  = "Soil Moisture"
	NameNDVI          = "NDVI"
	NameLST           = "Land Surface Temperature"
	NameDEM           = "DEM"
	NamePrecipitation = "Total Precipitation"
	NameMeanPrecip    = "Mean Precipitation"
	NameLandCover     = "Land Cover"
	NameET            = "Evapotranspiration"
	NameDroughtness   = "Droughtness Index"
	NameTempAnomaly   = "Temperature Anomaly"
	NamePrecipAnomaly = "Precipitation Anomaly"
	NameRunoff        = "Runoff"
	NameRisk          = "Risk"
)

// DisplayRanges are the declared valid ranges. They scale rendering only
// and are never enforced on pixel values.
var DisplayRanges = map[string]domain.ValidRange{
	NameSoilMoisture:  {Min: -24, Max: 19},
	NameNDVI:          {Min: 0, Max: 0.6},
	NameLST:           {Min: 290, Max: 324},
	NameDEM:           {Min: 122, Max: 2214},
	NamePrecipitation: {Min: 11292, Max: 27233},
	NameET:            {Min: 9805, Max: 90990},
	NameDroughtness:   {Min: -0.7, Max: 0.3},
	NameTempAnomaly:   {Min: -46, Max: 62},
	NamePrecipAnomaly: {Min: 0, Max: 100},
	NameRunoff:        {Min: 0, Max: 100},
	NameRisk:          {Min: 0, Max: 5},
}

// DerivedRaster is a named single-band frame with a declared valid range.
type DerivedRaster struct {
	Name  string
	Frame raster.Frame
	Range domain.ValidRange
	// Degenerate counts pixel samples dropped or limited because of a zero
	// denominator, summed over every frame that fed the raster.
	Degenerate int64
	// SkippedFrames counts source frames dropped before reduction.
	SkippedFrames int64
}

// Derive wraps one band of f as a DerivedRaster using the default display range for name.
func Derive(name string, f raster.Frame, band string) (DerivedRaster, error) {
	b, err := f.Band(band)
	if err != nil {
		return DerivedRaster{}, fmt.Errorf("derive %s: %w", name, err)
	}
	out := raster.NewFrame(f.Grid, f.Acquired, f.Properties)
	return DerivedRaster{
		Name:  name,
		Frame: out.MustWithBand(BandValue, b),
		Range: DisplayRanges[name],
	}, nil
}

// Band returns the value band.
func (d DerivedRaster) Band() raster.Band {
	b, _ := d.Frame.Band(BandValue)
	return b
}

// Clip masks pixels outside r.
func (d DerivedRaster) Clip(r raster.Region) DerivedRaster {
	d.Frame = raster.Clip(d.Frame, r)
	return d
}

// Tally is a concurrency-safe counter for skipped frames or degenerate pixels.
type Tally struct {
	n atomic.Int64
}

// Add increments the tally.
func (t *Tally) Add(n int64) { t.n.Add(n) }

// Load reads the tally.
func (t *Tally) Load() int64 { return t.n.Load() }
