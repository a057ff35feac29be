package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func square(t *testing.T, x0, y0, x1, y1 float64) *geom.Polygon {
	t.Helper()
	p, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{{
		{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
	}})
	require.NoError(t, err)
	return p
}

func TestNewAOIEmpty(t *testing.T) {
	filter := FeatureFilter{Field: "District", Value: "NOWHERE"}

	_, err := NewAOI(filter, nil)
	require.ErrorIs(t, err, ErrAOINotFound)

	_, err = NewAOI(filter, []geom.T{geom.NewPolygon(geom.XY)})
	assert.ErrorIs(t, err, ErrAOINotFound)
}

func TestNewAOIRejectsPoints(t *testing.T) {
	_, err := NewAOI(FeatureFilter{Field: "f", Value: "v"}, []geom.T{geom.NewPointFlat(geom.XY, []float64{1, 2})})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAOINotFound)
}

func TestAOIContains(t *testing.T) {
	outer := square(t, 0, 0, 10, 10)
	hole, err := geom.NewLinearRing(geom.XY).SetCoords([]geom.Coord{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}})
	require.NoError(t, err)
	require.NoError(t, outer.Push(hole))

	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(square(t, 20, 20, 22, 22)))

	aoi, err := NewAOI(FeatureFilter{Field: "District", Value: "WAYANAD"}, []geom.T{outer, mp})
	require.NoError(t, err)
	assert.Equal(t, 2, aoi.Geometry.NumPolygons())

	tests := []struct {
		name string
		x, y float64
		want bool
	}{
		{"inside outer", 1, 1, true},
		{"inside hole", 5, 5, false},
		{"second polygon", 21, 21, true},
		{"outside", 15, 15, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, aoi.Contains(tt.x, tt.y))
		})
	}

	b := aoi.Bounds()
	assert.Equal(t, []float64{0, 0}, []float64{b.Min(0), b.Min(1)})
	assert.Equal(t, []float64{22, 22}, []float64{b.Max(0), b.Max(1)})
}

func TestFeatureFilterKey(t *testing.T) {
	assert.Equal(t, "district=WAYANAD", FeatureFilter{Field: "District", Value: "WAYANAD"}.Key())
}

func TestFeatureFilter_String(t *testing.T) {
	assert.Equal(t, `District="Bangalore Urban"`, FeatureFilter{Field: "District", Value: "Bangalore Urban"}.String())
}
