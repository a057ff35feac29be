package geotiff

import (
	"fmt"
	"sync"
	"time"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// NoData is written to pixels outside a band's validity mask.
const NoData = -9999.0

var registerOnce sync.Once

func register() { registerOnce.Do(godal.RegisterAll) }

// ReadFrame loads the wanted bands of the file at path. names labels the
// file bands in order; an empty want reads all of them.
func ReadFrame(path string, names []string, epsg int, acquired time.Time, want []string) (raster.Frame, error) {
	register()
	ds, err := godal.Open(path)
	if err != nil {
		return raster.Frame{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return raster.Frame{}, fmt.Errorf("geotransform %s: %w", path, err)
	}
	grid := raster.Grid{Width: st.SizeX, Height: st.SizeY, Transform: raster.GeoTransform(gt), EPSG: epsg}

	bands := ds.Bands()
	if len(bands) != len(names) {
		return raster.Frame{}, fmt.Errorf("%s has %d bands, catalog names %d", path, len(bands), len(names))
	}
	if len(want) == 0 {
		want = names
	}

	f := raster.NewFrame(grid, acquired, nil)
	for _, name := range want {
		idx := -1
		for i, n := range names {
			if n == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return raster.Frame{}, fmt.Errorf("%s: %w: %s", path, raster.ErrBandNotFound, name)
		}
		b, err := readBand(bands[idx], grid)
		if err != nil {
			return raster.Frame{}, fmt.Errorf("read %s band %s: %w", path, name, err)
		}
		if f, err = f.WithBand(name, b); err != nil {
			return raster.Frame{}, err
		}
	}
	return f, nil
}

func readBand(band godal.Band, grid raster.Grid) (raster.Band, error) {
	data := make([]float64, grid.Len())
	if err := band.Read(0, 0, data, grid.Width, grid.Height); err != nil {
		return raster.Band{}, err
	}
	nd, hasNoData := band.NoData()
	out := raster.NewBand(grid.Len())
	for i, v := range data {
		if hasNoData && v == nd {
			continue
		}
		out.Set(i, v)
	}
	return out, nil
}

// WriteFrame writes the named bands of f to a Float64 GeoTIFF at path.
// Invalid pixels are written as NoData.
func WriteFrame(path string, f raster.Frame, bands ...string) error {
	register()
	if len(bands) == 0 {
		bands = f.BandNames()
	}
	g := f.Grid
	ds, err := godal.Create(godal.GTiff, path, len(bands), godal.Float64, g.Width, g.Height)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := writeDataset(ds, f, bands); err != nil {
		_ = ds.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func writeDataset(ds *godal.Dataset, f raster.Frame, bands []string) error {
	g := f.Grid
	if err := ds.SetGeoTransform([6]float64(g.Transform)); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}
	if g.EPSG != 0 {
		sr, err := godal.NewSpatialRefFromEPSG(g.EPSG)
		if err != nil {
			return fmt.Errorf("spatial ref EPSG:%d: %w", g.EPSG, err)
		}
		defer sr.Close()
		if err := ds.SetSpatialRef(sr); err != nil {
			return fmt.Errorf("set spatial ref: %w", err)
		}
	}
	out := ds.Bands()
	buf := make([]float64, g.Len())
	for i, name := range bands {
		b, err := f.Band(name)
		if err != nil {
			return err
		}
		for j := range buf {
			v, ok := b.At(j)
			if !ok {
				v = NoData
			}
			buf[j] = v
		}
		if err := out[i].SetNoData(NoData); err != nil {
			return fmt.Errorf("band %s nodata: %w", name, err)
		}
		if err := out[i].Write(0, 0, buf, g.Width, g.Height); err != nil {
			return fmt.Errorf("band %s: %w", name, err)
		}
	}
	return nil
}
