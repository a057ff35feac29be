package geotiff

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
	"github.com/couchcryptid/climate-risk-service/internal/source"
)

// Backend serves scenes listed in a manifest from local GeoTIFF files.
type Backend struct {
	scenes  map[string][]source.Scene
	entries map[string]SceneEntry
}

// Open loads the manifest at catalogPath. Scene paths resolve relative to
// its directory.
func Open(catalogPath string) (*Backend, error) {
	m, err := ReadManifest(catalogPath)
	if err != nil {
		return nil, err
	}
	return NewBackend(m, filepath.Dir(catalogPath)), nil
}

// NewBackend indexes m with paths relative to root.
func NewBackend(m *Manifest, root string) *Backend {
	b := &Backend{
		scenes:  make(map[string][]source.Scene),
		entries: make(map[string]SceneEntry, len(m.Scenes)),
	}
	for _, e := range m.Scenes {
		if !filepath.IsAbs(e.Path) {
			e.Path = filepath.Join(root, e.Path)
		}
		b.entries[e.ID] = e
		b.scenes[e.Dataset] = append(b.scenes[e.Dataset], source.Scene{
			ID:         e.ID,
			Dataset:    e.Dataset,
			Acquired:   e.Acquired,
			Footprint:  geom.NewBounds(geom.XY).Set(e.BBox[0], e.BBox[1], e.BBox[2], e.BBox[3]),
			Properties: e.Properties,
			Location:   e.Path,
		})
	}
	for _, s := range b.scenes {
		sort.Slice(s, func(i, j int) bool { return s[i].Acquired.Before(s[j].Acquired) })
	}
	return b
}

// Datasets lists the datasets with at least one scene.
func (b *Backend) Datasets() []string {
	out := make([]string, 0, len(b.scenes))
	for id := range b.scenes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Scenes lists the scenes of dataset.
func (b *Backend) Scenes(_ context.Context, dataset string) ([]source.Scene, error) {
	s, ok := b.scenes[dataset]
	if !ok {
		return nil, fmt.Errorf("geotiff catalog: %s: %w", dataset, domain.ErrDataUnavailable)
	}
	out := make([]source.Scene, len(s))
	copy(out, s)
	return out, nil
}

// Load reads the scene's file.
func (b *Backend) Load(ctx context.Context, scene source.Scene, bands []string) (raster.Frame, error) {
	if err := ctx.Err(); err != nil {
		return raster.Frame{}, err
	}
	e, ok := b.entries[scene.ID]
	if !ok {
		return raster.Frame{}, fmt.Errorf("geotiff catalog: scene %s: %w", scene.ID, domain.ErrDataUnavailable)
	}
	return ReadFrame(e.Path, e.Bands, e.EPSG, e.Acquired, bands)
}

// Footprint returns the bounding box of g in manifest order.
func Footprint(g raster.Grid) [4]float64 {
	t := g.Transform
	minX, maxY := t[0], t[3]
	maxX := minX + float64(g.Width)*t[1]
	minY := maxY + float64(g.Height)*t[5]
	return [4]float64{minX, minY, maxX, maxY}
}
