package featurecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/observability"
)

const keyPrefix = "aoi:"

// Redis shares resolved geometries between service instances. Entries are
// WKB encoded and expire after ttl. Redis failures fall through to the
// inner resolver.
type Redis struct {
	inner   Resolver
	client  redis.UniversalClient
	ttl     time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRedis creates a Redis-backed cache decorator.
func NewRedis(inner Resolver, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Redis {
	return &Redis{inner: inner, client: client, ttl: ttl, logger: logger, metrics: metrics}
}

func (r *Redis) Resolve(ctx context.Context, filter domain.FeatureFilter) ([]geom.T, error) {
	key := keyPrefix + filter.Key()
	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		geoms, decodeErr := decodeGeometries(data)
		if decodeErr == nil {
			r.metrics.AOICache.WithLabelValues("hit").Inc()
			return geoms, nil
		}
		r.logger.Warn("discarding corrupt aoi cache entry", "key", key, "error", decodeErr)
	case errors.Is(err, redis.Nil):
	default:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("aoi cache read failed", "key", key, "error", err)
	}
	r.metrics.AOICache.WithLabelValues("miss").Inc()

	geoms, err := r.inner.Resolve(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(geoms) == 0 {
		return geoms, nil
	}
	data, err = encodeGeometries(geoms)
	if err != nil {
		r.logger.Warn("aoi cache encode failed", "key", key, "error", err)
		return geoms, nil
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("aoi cache write failed", "key", key, "error", err)
	}
	return geoms, nil
}

// CheckReadiness pings Redis.
func (r *Redis) CheckReadiness(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func encodeGeometries(geoms []geom.T) ([]byte, error) {
	blobs := make([][]byte, len(geoms))
	for i, g := range geoms {
		b, err := wkb.Marshal(g, wkb.NDR)
		if err != nil {
			return nil, fmt.Errorf("encode geometry %d: %w", i, err)
		}
		blobs[i] = b
	}
	return json.Marshal(blobs)
}

func decodeGeometries(data []byte) ([]geom.T, error) {
	var blobs [][]byte
	if err := json.Unmarshal(data, &blobs); err != nil {
		return nil, err
	}
	out := make([]geom.T, len(blobs))
	for i, b := range blobs {
		g, err := wkb.Unmarshal(b)
		if err != nil {
			return nil, fmt.Errorf("decode geometry %d: %w", i, err)
		}
		out[i] = g
	}
	return out, nil
}
