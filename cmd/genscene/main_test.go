package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-risk-service/internal/adapter/geojsonfile"
	"github.com/couchcryptid/climate-risk-service/internal/adapter/geotiff"
	"github.com/couchcryptid/climate-risk-service/internal/source"
	"github.com/couchcryptid/climate-risk-service/internal/synthetic"
)

func TestGenerateWritesReadableCatalog(t *testing.T) {
	dir := t.TempDir()
	world := synthetic.Default()

	m, err := generate(dir, world)
	require.NoError(t, err)
	assert.Len(t, m.Scenes, len(world.Scenes()))

	b, err := geotiff.Open(filepath.Join(dir, "catalog.json"))
	require.NoError(t, err)
	assert.Contains(t, b.Datasets(), source.DatasetWorldCover)

	scenes, err := b.Scenes(context.Background(), source.DatasetLandsat8L2)
	require.NoError(t, err)
	require.Len(t, scenes, 4)
	assert.Equal(t, synthetic.ThermalOffset, scenes[0].Properties[source.PropThermalOffsetB10])

	f, err := b.Load(context.Background(), scenes[0], nil)
	require.NoError(t, err)
	assert.Equal(t, world.Fine, f.Grid)

	store, err := geojsonfile.Open(filepath.Join(dir, "aoi.geojson"))
	require.NoError(t, err)
	got, err := store.Resolve(context.Background(), synthetic.Region)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "ucsb_chg_chirps_daily", slug(source.DatasetCHIRPS))
}
