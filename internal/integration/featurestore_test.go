//go:build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/couchcryptid/climate-risk-service/internal/adapter/featurecache"
	"github.com/couchcryptid/climate-risk-service/internal/adapter/postgis"
	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/observability"
)

func TestPostGISResolve(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := startPostGIS(ctx, t)
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	db.MustExecContext(ctx, `CREATE TABLE admin_boundaries (id serial PRIMARY KEY, "District" text, geom geometry(MultiPolygon, 4326))`)
	db.MustExecContext(ctx, `INSERT INTO admin_boundaries ("District", geom) VALUES
		('WAYANAD', ST_Multi(ST_GeomFromText('POLYGON((75.7 11.5, 76.4 11.5, 76.4 11.9, 75.7 11.9, 75.7 11.5))', 4326))),
		('KOLAR',   ST_Multi(ST_GeomFromText('POLYGON((77.8 12.9, 78.5 12.9, 78.5 13.5, 77.8 13.5, 77.8 12.9))', 4326)))`)

	store := postgis.New(db, "admin_boundaries", postgis.DefaultGeometryColumn)
	require.NoError(t, store.CheckReadiness(ctx))

	got, err := store.Resolve(ctx, domain.FeatureFilter{Field: "District", Value: "WAYANAD"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	mp, ok := got[0].(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 1, mp.NumPolygons())

	aoi, err := domain.NewAOI(domain.FeatureFilter{Field: "District", Value: "WAYANAD"}, got)
	require.NoError(t, err)
	assert.True(t, aoi.Contains(76.0, 11.7))

	_, err = store.Resolve(ctx, domain.FeatureFilter{Field: "District", Value: "Atlantis"})
	require.ErrorIs(t, err, domain.ErrAOINotFound)
}

type countingResolver struct {
	calls int
	geoms []geom.T
}

func (c *countingResolver) Resolve(_ context.Context, _ domain.FeatureFilter) ([]geom.T, error) {
	c.calls++
	return c.geoms, nil
}

func TestRedisCacheSharesAcrossInstances(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	addr := startRedis(ctx, t)
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	poly := geom.Must(geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{
		{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
	}))
	inner := &countingResolver{geoms: []geom.T{poly}}
	filter := domain.FeatureFilter{Field: "District", Value: "Synthetic"}

	first := featurecache.NewRedis(inner, client, time.Hour, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, first.CheckReadiness(ctx))
	_, err := first.Resolve(ctx, filter)
	require.NoError(t, err)

	metrics := observability.NewMetricsForTesting()
	second := featurecache.NewRedis(inner, client, time.Hour, discardLogger(), metrics)
	got, err := second.Resolve(ctx, filter)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls, "second instance should read the shared entry")
	require.Len(t, got, 1)
	assert.Equal(t, poly.FlatCoords(), got[0].FlatCoords())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AOICache.WithLabelValues("hit")))

	ttl, err := client.TTL(ctx, "aoi:"+filter.Key()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}
