// Package source resolves named gridded datasets into lazy frame sequences.
package source

import (
	"fmt"
	"slices"
	"sort"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
)

// Supported dataset identifiers.
const (
	DatasetSentinel1  = "COPERNICUS/S1_GRD"
	DatasetSentinel2  = "COPERNICUS/S2"
	DatasetLandsat8L2 = "LANDSAT/LC08/C02/T1_L2"
	DatasetSRTM       = "USGS/SRTMGL1_003"
	DatasetMODISLST   = "MODIS/006/MOD11A1"
	DatasetCHIRPS     = "UCSB-CHG/CHIRPS/DAILY"
	DatasetMODISET    = "MODIS/006/MOD16A2"
	DatasetWorldCover = "ESA/WorldCover/v100"
)

// Scene metadata keys the recipes filter or calibrate on.
const (
	PropInstrumentMode   = "instrumentMode"
	PropCloudyPixelPct   = "CLOUDY_PIXEL_PERCENTAGE"
	PropCloudCover       = "CLOUD_COVER"
	PropThermalGainB10   = "TEMPERATURE_MULT_BAND_ST_B10"
	PropThermalOffsetB10 = "TEMPERATURE_ADD_BAND_ST_B10"
)

// Dataset describes one gridded source and its band schema.
type Dataset struct {
	ID          string
	Description string
	Bands       []string
	// Static datasets hold a single timeless frame; time windows are ignored.
	Static bool
}

// HasBands reports whether every name is in the schema.
func (d Dataset) HasBands(names ...string) bool {
	for _, n := range names {
		if !slices.Contains(d.Bands, n) {
			return false
		}
	}
	return true
}

// Catalog is the fixed set of datasets a deployment can fetch.
type Catalog struct {
	datasets map[string]Dataset
}

// NewCatalog builds a catalog from the given datasets.
func NewCatalog(datasets ...Dataset) *Catalog {
	c := &Catalog{datasets: make(map[string]Dataset, len(datasets))}
	for _, d := range datasets {
		c.datasets[d.ID] = d
	}
	return c
}

// DefaultCatalog lists the radar, optical, thermal, elevation,
// precipitation, evapotranspiration and land-cover sources.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Dataset{ID: DatasetSentinel1, Description: "Sentinel-1 C-band SAR backscatter (dB)", Bands: []string{"VV", "VH"}},
		Dataset{ID: DatasetSentinel2, Description: "Sentinel-2 MSI top-of-atmosphere reflectance", Bands: []string{"B4", "B8"}},
		Dataset{ID: DatasetLandsat8L2, Description: "Landsat 8 collection 2 level 2 surface temperature", Bands: []string{"ST_B10"}},
		Dataset{ID: DatasetSRTM, Description: "SRTM 1 arc-second elevation (m)", Bands: []string{"elevation"}, Static: true},
		Dataset{ID: DatasetMODISLST, Description: "MODIS daily land surface temperature (K)", Bands: []string{"LST_Day_1km"}},
		Dataset{ID: DatasetCHIRPS, Description: "CHIRPS daily precipitation (mm)", Bands: []string{"precipitation"}},
		Dataset{ID: DatasetMODISET, Description: "MODIS 8-day evapotranspiration", Bands: []string{"ET"}},
		Dataset{ID: DatasetWorldCover, Description: "ESA WorldCover land-cover classes", Bands: []string{"Map"}},
	)
}

// Lookup resolves a dataset handle.
func (c *Catalog) Lookup(id string) (Dataset, error) {
	d, ok := c.datasets[id]
	if !ok {
		return Dataset{}, fmt.Errorf("dataset %q: %w", id, domain.ErrDataUnavailable)
	}
	return d, nil
}

// IDs lists dataset identifiers in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.datasets))
	for id := range c.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
