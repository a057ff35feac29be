package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
)

// Feature store backends for AOI resolution.
const (
	FeatureStoreGeoJSON  = "geojson"
	FeatureStorePostGIS  = "postgis"
	FeatureStoreOverpass = "overpass"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Raster catalog.
	CatalogPath string

	// AOI resolution.
	FeatureStore    string
	AOIFile         string
	DatabaseURL     string
	FeatureTable    string
	OverpassURL     string
	OverpassTimeout time.Duration
	AOICacheSize    int
	RedisAddr       string
	AOICacheTTL     time.Duration

	// Export.
	ExportDir      string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioSecure    bool

	// Run defaults.
	ZonalScale            float64
	MaxPixels             int64
	FetchRetryDelay       time.Duration
	MaxConcurrentBranches int
	Thresholds            map[string]domain.ThresholdSpec
	// RunTimeout bounds a synchronous POST /runs request.
	RunTimeout time.Duration

	// Standing scheduled run; disabled when ScheduleCron is empty.
	ScheduleCron    string
	ScheduleRequest *domain.RunRequest
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	overpassTimeout, err := parseDuration("OVERPASS_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("AOI_CACHE_TTL", "24h")
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration("FETCH_RETRY_DELAY", "2s")
	if err != nil {
		return nil, err
	}
	runTimeout, err := parseDuration("RUN_TIMEOUT", "10m")
	if err != nil {
		return nil, err
	}

	scale, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("ZONAL_SCALE", "30"), 64)
	if err != nil || scale <= 0 {
		return nil, errors.New("invalid ZONAL_SCALE")
	}
	// A rasterized band costs about nine bytes per pixel, so 1e8 holds one
	// band under 1 GB.
	maxPixels, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("MAX_PIXELS", "1e8"), 64)
	if err != nil || maxPixels < 1 {
		return nil, errors.New("invalid MAX_PIXELS")
	}

	thresholds, err := parseThresholds(os.Getenv("RISK_THRESHOLDS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "aoi-run-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "aoi-risk-reports"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "climate-risk"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		CatalogPath: sharedcfg.EnvOrDefault("CATALOG_PATH", "data/catalog.json"),

		FeatureStore:    sharedcfg.EnvOrDefault("FEATURE_STORE", FeatureStoreGeoJSON),
		AOIFile:         sharedcfg.EnvOrDefault("AOI_FILE", "data/aoi.geojson"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		FeatureTable:    sharedcfg.EnvOrDefault("FEATURE_TABLE", "admin_boundaries"),
		OverpassURL:     sharedcfg.EnvOrDefault("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		OverpassTimeout: overpassTimeout,
		AOICacheSize:    parsePositiveInt("AOI_CACHE_SIZE", 256),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		AOICacheTTL:     cacheTTL,

		ExportDir:      sharedcfg.EnvOrDefault("EXPORT_DIR", "exports"),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    sharedcfg.EnvOrDefault("MINIO_BUCKET", "climate-risk-exports"),
		MinioSecure:    os.Getenv("MINIO_SECURE") == "true",

		ZonalScale:            scale,
		MaxPixels:             int64(maxPixels),
		FetchRetryDelay:       retryDelay,
		MaxConcurrentBranches: parsePositiveInt("MAX_CONCURRENT_BRANCHES", 4),
		Thresholds:            thresholds,
		RunTimeout:            runTimeout,

		ScheduleCron: os.Getenv("SCHEDULE_CRON"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	switch cfg.FeatureStore {
	case FeatureStoreGeoJSON:
		if cfg.AOIFile == "" {
			return nil, errors.New("AOI_FILE is required for FEATURE_STORE=geojson")
		}
	case FeatureStorePostGIS:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for FEATURE_STORE=postgis")
		}
	case FeatureStoreOverpass:
		if cfg.OverpassURL == "" {
			return nil, errors.New("OVERPASS_URL is required for FEATURE_STORE=overpass")
		}
	default:
		return nil, fmt.Errorf("FEATURE_STORE must be one of geojson, postgis, overpass; got %q", cfg.FeatureStore)
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "") {
		return nil, errors.New("MINIO_ENDPOINT is set but MINIO_ACCESS_KEY or MINIO_SECRET_KEY is not")
	}
	if cfg.ScheduleCron != "" {
		req, err := parseScheduleRequest(os.Getenv("SCHEDULE_REQUEST"))
		if err != nil {
			return nil, err
		}
		cfg.ScheduleRequest = req
	}

	return cfg, nil
}

// MinioEnabled reports whether exports are uploaded to object storage.
func (c *Config) MinioEnabled() bool { return c.MinioEndpoint != "" }

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// parseThresholds reads a JSON object of indicator -> {low, mid, high}
// overrides on top of the defaults.
func parseThresholds(raw string) (map[string]domain.ThresholdSpec, error) {
	specs := domain.DefaultThresholds()
	if raw == "" {
		return specs, nil
	}
	var overrides map[string]domain.ThresholdSpec
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		return nil, fmt.Errorf("invalid RISK_THRESHOLDS: %w", err)
	}
	for name, spec := range overrides {
		specs[name] = spec
	}
	if err := domain.ValidateThresholds(specs); err != nil {
		return nil, fmt.Errorf("invalid RISK_THRESHOLDS: %w", err)
	}
	return specs, nil
}

func parseScheduleRequest(raw string) (*domain.RunRequest, error) {
	if raw == "" {
		return nil, errors.New("SCHEDULE_REQUEST is required when SCHEDULE_CRON is set")
	}
	var req domain.RunRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE_REQUEST: %w", err)
	}
	// IDs are assigned per scheduled run.
	req.ID = ""
	if err := req.WithDefaults().Validate(); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE_REQUEST: %w", err)
	}
	return &req, nil
}
