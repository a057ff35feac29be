// Command genscene writes the synthetic world as a local GeoTIFF catalog
// plus a GeoJSON boundary file, ready for riskrun or the service.
//
// Usage:
//
//	go run ./cmd/genscene -out data
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/climate-risk-service/internal/adapter/geojsonfile"
	"github.com/couchcryptid/climate-risk-service/internal/adapter/geotiff"
	"github.com/couchcryptid/climate-risk-service/internal/synthetic"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data", "output directory")
	flag.Parse()

	m, err := generate(*out, synthetic.Default())
	if err != nil {
		return err
	}
	log.Printf("wrote %d scenes to %s", len(m.Scenes), *out)
	return nil
}

// generate writes one GeoTIFF per scene under dir/scenes, then the manifest
// and boundary file.
func generate(dir string, world synthetic.World) (*geotiff.Manifest, error) {
	sceneDir := filepath.Join(dir, "scenes")
	if err := os.MkdirAll(sceneDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", sceneDir, err)
	}

	counts := map[string]int{}
	m := &geotiff.Manifest{}
	for _, s := range world.Scenes() {
		counts[s.Scene.Dataset]++
		id := fmt.Sprintf("%s_%s", slug(s.Scene.Dataset), s.Scene.Acquired.Format("20060102"))
		rel := filepath.Join("scenes", id+".tif")
		bands := s.Frame.BandNames()
		if err := geotiff.WriteFrame(filepath.Join(dir, rel), s.Frame, bands...); err != nil {
			return nil, err
		}
		m.Scenes = append(m.Scenes, geotiff.SceneEntry{
			ID:         id,
			Dataset:    s.Scene.Dataset,
			Acquired:   s.Scene.Acquired,
			Path:       filepath.ToSlash(rel),
			Bands:      bands,
			EPSG:       s.Frame.Grid.EPSG,
			BBox:       geotiff.Footprint(s.Frame.Grid),
			Properties: s.Scene.Properties,
		})
	}
	for ds, n := range counts {
		log.Printf("%s: %d scenes", ds, n)
	}

	if err := geotiff.WriteManifest(filepath.Join(dir, "catalog.json"), m); err != nil {
		return nil, err
	}

	fc := geojsonfile.Collection(synthetic.Region, world.Features()...)
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode aoi: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "aoi.geojson"), data, 0o644); err != nil {
		return nil, fmt.Errorf("write aoi: %w", err)
	}
	return m, nil
}

func slug(dataset string) string {
	return strings.ToLower(strings.NewReplacer("/", "_", "-", "_").Replace(dataset))
}
