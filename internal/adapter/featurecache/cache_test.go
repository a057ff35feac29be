package featurecache

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/observability"
)

// --- mock for cache tests ---

type countingResolver struct {
	calls int
	geoms []geom.T
	err   error
}

func (m *countingResolver) Resolve(_ context.Context, _ domain.FeatureFilter) ([]geom.T, error) {
	m.calls++
	return m.geoms, m.err
}

func square(x float64) geom.T {
	return geom.Must(geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{
		{{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 1}, {x, 0}},
	}))
}

var wayanad = domain.FeatureFilter{Field: "District", Value: "WAYANAD"}

// --- Cached tests ---

func TestCached_Hit(t *testing.T) {
	inner := &countingResolver{geoms: []geom.T{square(0)}}
	metrics := observability.NewMetricsForTesting()
	cached := New(inner, 10, metrics)

	g1, err := cached.Resolve(context.Background(), wayanad)
	require.NoError(t, err)
	g2, err := cached.Resolve(context.Background(), wayanad)
	require.NoError(t, err)

	assert.Equal(t, g1, g2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AOICache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AOICache.WithLabelValues("miss")))
}

func TestCached_FieldCaseSharesEntry(t *testing.T) {
	inner := &countingResolver{geoms: []geom.T{square(0)}}
	cached := New(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.Resolve(context.Background(), wayanad)
	_, _ = cached.Resolve(context.Background(), domain.FeatureFilter{Field: "district", Value: "WAYANAD"})

	assert.Equal(t, 1, inner.calls)
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	inner := &countingResolver{err: fmt.Errorf("nope: %w", domain.ErrAOINotFound)}
	cached := New(inner, 10, observability.NewMetricsForTesting())

	for range 2 {
		_, err := cached.Resolve(context.Background(), wayanad)
		require.ErrorIs(t, err, domain.ErrAOINotFound)
	}
	assert.Equal(t, 2, inner.calls)
}

func TestCached_DoesNotCacheEmpty(t *testing.T) {
	inner := &countingResolver{}
	cached := New(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.Resolve(context.Background(), wayanad)
	_, _ = cached.Resolve(context.Background(), wayanad)

	assert.Equal(t, 2, inner.calls)
}

// --- LRU cache unit tests ---

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", []geom.T{square(0)})
	c.put("b", []geom.T{square(1)})
	c.put("c", []geom.T{square(2)}) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")
	_, ok = c.get("b")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.size())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", []geom.T{square(0)})
	c.put("b", []geom.T{square(1)})
	c.get("a")
	c.put("c", []geom.T{square(2)})

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")
	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", []geom.T{square(0)})
	c.put("a", []geom.T{square(5)})

	got, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, square(5).FlatCoords(), got[0].FlatCoords())
	assert.Equal(t, 1, c.size())
}

// --- Redis codec ---

func TestGeometryCodec(t *testing.T) {
	multi := geom.Must(geom.NewMultiPolygon(geom.XY).SetCoords([][][]geom.Coord{
		{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		{{{5, 5}, {6, 5}, {6, 6}, {5, 5}}},
	}))
	in := []geom.T{square(0), multi}

	data, err := encodeGeometries(in)
	require.NoError(t, err)
	out, err := decodeGeometries(data)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.IsType(t, &geom.Polygon{}, out[0])
	assert.IsType(t, &geom.MultiPolygon{}, out[1])
	assert.Equal(t, multi.FlatCoords(), out[1].FlatCoords())

	_, err = decodeGeometries([]byte(`["AQ=="]`))
	require.Error(t, err)
	_, err = decodeGeometries([]byte(`{`))
	require.Error(t, err)
}
