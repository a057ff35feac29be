package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/climate-risk-service/internal/adapter/featurecache"
	"github.com/couchcryptid/climate-risk-service/internal/adapter/geojsonfile"
	"github.com/couchcryptid/climate-risk-service/internal/adapter/geotiff"
	"github.com/couchcryptid/climate-risk-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/climate-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/climate-risk-service/internal/adapter/objectstore"
	"github.com/couchcryptid/climate-risk-service/internal/adapter/overpass"
	"github.com/couchcryptid/climate-risk-service/internal/adapter/postgis"
	"github.com/couchcryptid/climate-risk-service/internal/config"
	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/observability"
	"github.com/couchcryptid/climate-risk-service/internal/pipeline"
	"github.com/couchcryptid/climate-risk-service/internal/risk"
	"github.com/couchcryptid/climate-risk-service/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	features, err := newFeatureStore(ctx, cfg, logger, metrics, &closers)
	if err != nil {
		logger.Error("failed to open feature store", "error", err)
		os.Exit(1)
	}

	backend, err := geotiff.Open(cfg.CatalogPath)
	if err != nil {
		logger.Error("failed to open raster catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}
	logger.Info("raster catalog loaded", "path", cfg.CatalogPath, "datasets", backend.Datasets())
	fetcher := source.NewAdapter(source.DefaultCatalog(), backend, logger, metrics)

	exporter, err := newExporter(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure exports", "error", err)
		os.Exit(1)
	}

	orchestrator := pipeline.NewOrchestrator(features, fetcher, exporter, pipeline.Options{
		Policy:                risk.Policy{Thresholds: cfg.Thresholds, Comparisons: domain.DefaultComparisons()},
		MaxConcurrentBranches: cfg.MaxConcurrentBranches,
		RetryDelay:            cfg.FetchRetryDelay,
		Scale:                 cfg.ZonalScale,
		MaxPixels:             cfg.MaxPixels,
	}, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	p := pipeline.New(reader, orchestrator, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, orchestrator, cfg.RunTimeout, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the request pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	// Start the standing schedule, if configured.
	if cfg.ScheduleRequest != nil {
		sched, err := pipeline.NewScheduler(cfg.ScheduleCron, *cfg.ScheduleRequest, orchestrator, writer, logger)
		if err != nil {
			logger.Error("failed to configure schedule", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := sched.Run(ctx); err != nil {
				logger.Error("scheduler error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	for _, c := range closers {
		if err := c(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// newFeatureStore opens the configured AOI source behind an in-process LRU
// and, when REDIS_ADDR is set, a shared Redis tier.
func newFeatureStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, closers *[]func() error) (pipeline.FeatureStore, error) {
	var store featurecache.Resolver
	switch cfg.FeatureStore {
	case config.FeatureStorePostGIS:
		pg, err := postgis.Open(ctx, cfg.DatabaseURL, cfg.FeatureTable)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, pg.Close)
		store = pg
	case config.FeatureStoreOverpass:
		store = overpass.New(cfg.OverpassURL, cfg.OverpassTimeout)
	default:
		gj, err := geojsonfile.Open(cfg.AOIFile)
		if err != nil {
			return nil, err
		}
		store = gj
	}
	logger.Info("feature store ready", "kind", cfg.FeatureStore)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		*closers = append(*closers, client.Close)
		store = featurecache.NewRedis(store, client, cfg.AOICacheTTL, logger, metrics)
		logger.Info("redis aoi cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.AOICacheTTL)
	}
	return featurecache.New(store, cfg.AOICacheSize, metrics), nil
}

// newExporter writes GeoTIFFs under EXPORT_DIR and uploads them when MinIO
// is configured.
func newExporter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipeline.Exporter, error) {
	local := geotiff.NewExporter(cfg.ExportDir)
	if !cfg.MinioEnabled() {
		logger.Info("exports written locally", "dir", cfg.ExportDir)
		return local, nil
	}
	up, err := objectstore.Connect(ctx, objectstore.Options{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		Secure:    cfg.MinioSecure,
	}, local, logger)
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}
	logger.Info("exports uploaded to object storage", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
	return up, nil
}
