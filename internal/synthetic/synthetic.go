// Package synthetic generates a small deterministic world with a scene for
// every catalog dataset. It backs end-to-end tests, the offline demo mode
// of riskrun and the genscene fixture writer.
package synthetic

import (
	"maps"
	"math"
	"slices"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
	"github.com/couchcryptid/climate-risk-service/internal/source"
)

// Landsat Collection 2 surface temperature scale factors.
const (
	ThermalGain   = 0.00341802
	ThermalOffset = 149.0
)

// Region is the boundary filter that resolves to World.Boundary.
var Region = domain.FeatureFilter{Field: "District", Value: "Synthetic"}

// World is a square study area on a projected grid. Fine datasets use Fine;
// precipitation, evapotranspiration and MODIS temperature use Coarse, which
// covers the same extent at half the resolution.
type World struct {
	Fine     raster.Grid
	Coarse   raster.Grid
	Boundary *geom.Polygon
}

// Default is a 16x16 grid of 30 m pixels in UTM zone 43N with a boundary
// inset by two pixels on every side.
func Default() World {
	const (
		originX = 500000.0
		originY = 1400480.0
		pixel   = 30.0
		size    = 16
	)
	fine := raster.Grid{Width: size, Height: size, Transform: raster.NorthUp(originX, originY, pixel, pixel), EPSG: 32643}
	coarse := raster.Grid{Width: size / 2, Height: size / 2, Transform: raster.NorthUp(originX, originY, 2*pixel, 2*pixel), EPSG: 32643}

	x0, x1 := originX+2*pixel, originX+(size-2)*pixel
	y0, y1 := originY-(size-2)*pixel, originY-2*pixel
	boundary := geom.Must(geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{
		{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}},
	})).(*geom.Polygon)
	return World{Fine: fine, Coarse: coarse, Boundary: boundary}
}

// Features returns the boundary as a feature list for a feature store.
func (w World) Features() []geom.T { return []geom.T{w.Boundary} }

// Scene pairs scene metadata with its pixels.
type Scene struct {
	Scene source.Scene
	Frame raster.Frame
}

// Scenes generates every dataset's scenes. The set deliberately includes
// scenes the climate-risk recipe must drop: a non-IW radar pass, cloudy
// optical scenes and a Landsat scene without calibration metadata.
func (w World) Scenes() []Scene {
	var out []Scene
	add := func(dataset string, t time.Time, props map[string]any, g raster.Grid, bands map[string]func(x, y float64) float64) {
		f := raster.NewFrame(g, t, nil)
		for _, name := range slices.Sorted(maps.Keys(bands)) {
			f = f.MustWithBand(name, fill(g, bands[name]))
		}
		bounds := footprint(g)
		out = append(out, Scene{
			Scene: source.Scene{Dataset: dataset, Acquired: t, Footprint: bounds, Properties: props},
			Frame: f,
		})
	}

	// Sentinel-1 VV backscatter in dB, one pass a month.
	for m := 1; m <= 12; m++ {
		mode := "IW"
		if m == 6 {
			mode = "EW"
		}
		shift := float64(m%3) - 1
		add(source.DatasetSentinel1, date(2023, m, 5), map[string]any{source.PropInstrumentMode: mode}, w.Fine,
			map[string]func(x, y float64) float64{"VV": func(x, y float64) float64 { return -14 + 6*x - 3*y + shift }})
	}

	// Sentinel-2 red and NIR reflectance; every third scene is cloudy.
	for m := 1; m <= 12; m++ {
		cloud := 1.0
		if m%3 == 0 {
			cloud = 45
		}
		add(source.DatasetSentinel2, date(2023, m, 10), map[string]any{source.PropCloudyPixelPct: cloud}, w.Fine,
			map[string]func(x, y float64) float64{
				"B4": func(x, y float64) float64 { return 0.08 + 0.05*y },
				"B8": func(x, y float64) float64 { return 0.2 + 0.3*x },
			})
	}

	// Landsat 8 ST_B10 digital numbers; the last scene lacks calibration.
	for m := 2; m <= 11; m += 3 {
		props := map[string]any{
			source.PropCloudCover:       0.5,
			source.PropThermalGainB10:   ThermalGain,
			source.PropThermalOffsetB10: ThermalOffset,
			"SPACECRAFT_ID":             "LANDSAT_8",
		}
		if m == 11 {
			delete(props, source.PropThermalGainB10)
		}
		add(source.DatasetLandsat8L2, date(2023, m, 15), props, w.Fine,
			map[string]func(x, y float64) float64{"ST_B10": func(x, y float64) float64 { return 44000 + 1500*x + 500*y }})
	}

	// SRTM elevation, a single timeless frame.
	add(source.DatasetSRTM, date(2000, 2, 11), nil, w.Fine,
		map[string]func(x, y float64) float64{"elevation": func(x, y float64) float64 { return 600 + 900*y + 100*x }})

	// ESA WorldCover classes in vertical bands.
	classes := []float64{10, 20, 30, 40, 50, 60, 80, 90}
	add(source.DatasetWorldCover, date(2020, 1, 1), nil, w.Fine,
		map[string]func(x, y float64) float64{"Map": func(x, _ float64) float64 {
			i := int(x * float64(len(classes)))
			if i >= len(classes) {
				i = len(classes) - 1
			}
			return classes[i]
		}})

	for year := 2001; year <= 2023; year++ {
		warming := 0.0
		if year > 2015 {
			warming = 1.5
		}
		// MODIS daytime LST in kelvin, one composite a year.
		add(source.DatasetMODISLST, date(year, 7, 1), nil, w.Coarse,
			map[string]func(x, y float64) float64{"LST_Day_1km": func(x, y float64) float64 { return 300 + 4*x - 2*y + warming }})

		for m := 1; m <= 12; m++ {
			wet := 1.0
			if year > 2015 {
				wet = 0.9
			}
			season := 60 + 50*math.Sin(float64(m-1)*math.Pi/6)
			// CHIRPS precipitation in mm per month.
			add(source.DatasetCHIRPS, date(year, m, 1), nil, w.Coarse,
				map[string]func(x, y float64) float64{"precipitation": func(x, y float64) float64 { return wet * season * (0.6 + 0.8*y) }})
			if year > 2015 {
				// MOD16A2 evapotranspiration in mm per month.
				add(source.DatasetMODISET, date(year, m, 1), nil, w.Coarse,
					map[string]func(x, y float64) float64{"ET": func(x, y float64) float64 { return 40 + 30*x }})
			}
		}
	}
	return out
}

// Populate adds every scene to mem.
func (w World) Populate(mem *source.MemoryBackend) {
	for _, s := range w.Scenes() {
		mem.Add(s.Scene, s.Frame)
	}
}

// fill evaluates fn at every pixel center, passing coordinates normalized
// to [0, 1) across the grid.
func fill(g raster.Grid, fn func(x, y float64) float64) raster.Band {
	b := raster.NewBand(g.Len())
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			x := (float64(col) + 0.5) / float64(g.Width)
			y := (float64(row) + 0.5) / float64(g.Height)
			b.Set(g.Index(col, row), fn(x, y))
		}
	}
	return b
}

func footprint(g raster.Grid) *geom.Bounds {
	t := g.Transform
	minX, maxY := t[0], t[3]
	maxX := minX + float64(g.Width)*t[1]
	minY := maxY + float64(g.Height)*t[5]
	return geom.NewBounds(geom.XY).Set(minX, minY, maxX, maxY)
}

func date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
