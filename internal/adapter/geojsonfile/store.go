// Package geojsonfile resolves AOI filters against a GeoJSON
// FeatureCollection held in memory.
package geojsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
)

// Store matches features whose property named by the filter field equals
// the filter value. Property names and values compare case-insensitively.
type Store struct {
	features []*geojson.Feature
}

// Open reads a FeatureCollection from path.
func Open(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aoi file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a FeatureCollection.
func Parse(data []byte) (*Store, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	return New(&fc), nil
}

// New holds the features of fc.
func New(fc *geojson.FeatureCollection) *Store {
	return &Store{features: fc.Features}
}

// Len is the number of features held.
func (s *Store) Len() int { return len(s.features) }

// Resolve returns the geometries of every matching feature. No match is
// domain.ErrAOINotFound.
func (s *Store) Resolve(ctx context.Context, filter domain.FeatureFilter) ([]geom.T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []geom.T
	for _, f := range s.features {
		if f.Geometry == nil || !matches(f.Properties, filter) {
			continue
		}
		out = append(out, f.Geometry)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("geojson %s: %w", filter, domain.ErrAOINotFound)
	}
	return out, nil
}

func matches(props map[string]any, filter domain.FeatureFilter) bool {
	for k, v := range props {
		if !strings.EqualFold(k, filter.Field) || v == nil {
			continue
		}
		if strings.EqualFold(fmt.Sprint(v), filter.Value) {
			return true
		}
	}
	return false
}

// Collection builds a FeatureCollection with one feature per geometry, each
// carrying field=value.
func Collection(filter domain.FeatureFilter, geoms ...geom.T) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{}
	for _, g := range geoms {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   g,
			Properties: map[string]any{filter.Field: filter.Value},
		})
	}
	return fc
}
