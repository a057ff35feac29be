package geojsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
)

const districts = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"District": "WAYANAD", "code": 12},
     "geometry": {"type": "Polygon", "coordinates": [[[75.7,11.5],[76.4,11.5],[76.4,11.9],[75.7,11.9],[75.7,11.5]]]}},
    {"type": "Feature", "properties": {"District": "Kolar", "code": 7},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[77.8,12.9],[78.5,12.9],[78.5,13.5],[77.8,13.5],[77.8,12.9]]]]}},
    {"type": "Feature", "properties": {"District": "Kolar"}, "geometry": null}
  ]
}`

func TestResolve(t *testing.T) {
	s, err := Parse([]byte(districts))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	tests := []struct {
		name   string
		filter domain.FeatureFilter
		want   int
	}{
		{name: "exact", filter: domain.FeatureFilter{Field: "District", Value: "WAYANAD"}, want: 1},
		{name: "case-insensitive value", filter: domain.FeatureFilter{Field: "District", Value: "wayanad"}, want: 1},
		{name: "case-insensitive field", filter: domain.FeatureFilter{Field: "district", Value: "Kolar"}, want: 1},
		{name: "numeric property", filter: domain.FeatureFilter{Field: "code", Value: "7"}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Resolve(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	s, err := Parse([]byte(districts))
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), domain.FeatureFilter{Field: "District", Value: "Atlantis"})
	require.ErrorIs(t, err, domain.ErrAOINotFound)
}

func TestResolveCancelled(t *testing.T) {
	s, err := Parse([]byte(districts))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Resolve(ctx, domain.FeatureFilter{Field: "District", Value: "Kolar"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCollectionRoundTrip(t *testing.T) {
	filter := domain.FeatureFilter{Field: "District", Value: "Synthetic"}
	poly := geom.Must(geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{
		{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
	}))
	data, err := json.Marshal(Collection(filter, poly))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "aoi.geojson")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	s, err := Open(path)
	require.NoError(t, err)
	got, err := s.Resolve(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, poly.FlatCoords(), got[0].FlatCoords())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.geojson"))
	require.Error(t, err)
}
