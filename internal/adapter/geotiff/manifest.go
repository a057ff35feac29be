// Package geotiff reads and writes raster frames as GeoTIFF files through
// GDAL. A JSON manifest indexes the files of a local scene catalog.
package geotiff

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Manifest indexes scene files. Paths are relative to the manifest.
type Manifest struct {
	Scenes []SceneEntry `json:"scenes"`
}

// SceneEntry describes one GeoTIFF. Bands name the file bands in order.
type SceneEntry struct {
	ID         string         `json:"id"`
	Dataset    string         `json:"dataset"`
	Acquired   time.Time      `json:"acquired"`
	Path       string         `json:"path"`
	Bands      []string       `json:"bands"`
	EPSG       int            `json:"epsg"`
	BBox       [4]float64     `json:"bbox"`
	Properties map[string]any `json:"properties,omitempty"`
}

// ReadManifest decodes the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	for i, s := range m.Scenes {
		if s.ID == "" || s.Dataset == "" || s.Path == "" || len(s.Bands) == 0 {
			return nil, fmt.Errorf("catalog %s: scene %d needs id, dataset, path and bands", path, i)
		}
	}
	return &m, nil
}

// WriteManifest encodes m to path.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}
