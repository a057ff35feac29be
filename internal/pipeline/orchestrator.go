package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/twpayne/go-geom"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/graph"
	"github.com/couchcryptid/climate-risk-service/internal/indices"
	"github.com/couchcryptid/climate-risk-service/internal/observability"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
	"github.com/couchcryptid/climate-risk-service/internal/risk"
	"github.com/couchcryptid/climate-risk-service/internal/source"
	"github.com/couchcryptid/climate-risk-service/internal/zonal"
)

// FeatureStore resolves an administrative boundary filter to its geometries.
// A filter matching nothing returns an empty slice or domain.ErrAOINotFound.
type FeatureStore interface {
	Resolve(ctx context.Context, filter domain.FeatureFilter) ([]geom.T, error)
}

// Fetcher returns lazy frame sequences for a query.
type Fetcher interface {
	Fetch(ctx context.Context, q source.Query) (raster.Sequence, error)
}

// Exporter persists a single-band frame under key and returns its URI.
type Exporter interface {
	Export(ctx context.Context, key string, f raster.Frame, band string) (string, error)
}

// Options tunes run execution.
type Options struct {
	Policy risk.Policy
	// MaxConcurrentBranches bounds independent branches evaluated at once.
	MaxConcurrentBranches int
	// RetryDelay is the pause before the single retry of an unavailable fetch.
	RetryDelay time.Duration
	// Scale and MaxPixels replace the built-in request defaults when set.
	Scale     float64
	MaxPixels int64
}

// DefaultOptions uses the default risk policy.
func DefaultOptions() Options {
	return Options{Policy: risk.DefaultPolicy(), MaxConcurrentBranches: 4, RetryDelay: 2 * time.Second}
}

// Orchestrator turns run requests into reports. Each run resolves its AOI,
// builds a deferred computation graph for the run kind and forces every
// output branch concurrently. A failing branch is recorded in the report
// without stopping its siblings.
type Orchestrator struct {
	features FeatureStore
	fetcher  Fetcher
	exporter Exporter
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewOrchestrator wires the run dependencies. exporter may be nil, in which
// case export requests are ignored.
func NewOrchestrator(features FeatureStore, fetcher Fetcher, exporter Exporter, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	if opts.Policy.Thresholds == nil {
		opts.Policy = risk.DefaultPolicy()
	}
	return &Orchestrator{
		features: features,
		fetcher:  fetcher,
		exporter: exporter,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
}

// Execute runs one request to completion. A non-nil error means the run
// produced no report: the request was invalid, the AOI did not resolve, or
// ctx was cancelled. Branch failures are reported per indicator instead.
func (o *Orchestrator) Execute(ctx context.Context, req domain.RunRequest) (*domain.Report, error) {
	start := time.Now()
	if req.Scale == 0 {
		req.Scale = o.opts.Scale
	}
	if req.MaxPixels == 0 {
		req.MaxPixels = o.opts.MaxPixels
	}
	req = req.WithDefaults()
	outcome := "error"
	defer func() {
		o.metrics.RunsTotal.WithLabelValues(string(req.Kind), outcome).Inc()
		o.metrics.RunDuration.WithLabelValues(string(req.Kind)).Observe(time.Since(start).Seconds())
	}()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	policy := o.opts.Policy.WithOverrides(req.Thresholds)
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	aoi, err := o.resolve(ctx, req.Region)
	if err != nil {
		if errors.Is(err, domain.ErrAOINotFound) {
			outcome = "aoi_not_found"
		}
		return nil, err
	}

	r := &run{o: o, req: req, aoi: aoi, extent: aoi.Bounds()}
	var p *plan
	switch req.Kind {
	case domain.KindRunoff:
		p = r.runoffPlan()
	default:
		p = r.climateRiskPlan(policy)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.logger.Info("run started",
		"run_id", req.ID, "kind", req.Kind, "region", req.Region.String(), "branches", len(p.branches))

	failures := graph.ForceAll(ctx, o.opts.MaxConcurrentBranches, p.terminals()...)
	if err := ctx.Err(); err != nil {
		o.logger.Info("run cancelled", "run_id", req.ID, "reason", err)
		return nil, err
	}

	report := domain.NewReport(req)
	p.assemble(ctx, report)

	outcome = "success"
	if report.Failed() {
		outcome = "partial"
	}
	o.logger.Info("run finished",
		"run_id", req.ID, "outcome", outcome, "failed_branches", len(failures),
		"duration", time.Since(start))
	return report, nil
}

func (o *Orchestrator) resolve(ctx context.Context, filter domain.FeatureFilter) (*domain.AOI, error) {
	features, err := o.features.Resolve(ctx, filter)
	if err != nil {
		if errors.Is(err, domain.ErrAOINotFound) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("resolve aoi %s: %w", filter, err)
	}
	return domain.NewAOI(filter, features)
}

// run carries the per-request state shared by every node of one graph.
type run struct {
	o      *Orchestrator
	req    domain.RunRequest
	aoi    *domain.AOI
	extent *geom.Bounds
}

// reduced is a reduction result plus the frame and pixel counts gathered on
// the way.
type reduced struct {
	frame      raster.Frame
	skipped    int64
	degenerate int64
}

// prepare transforms a fetched sequence before reduction. The tallies are
// fresh for every fetch attempt.
type prepare func(seq raster.Sequence, skipped, degenerate *indices.Tally) raster.Sequence

// reduce defers fetching q and reducing it with op. A fetch reporting
// domain.ErrDataUnavailable is retried once.
func (r *run) reduce(name string, q source.Query, op raster.Op, prep prepare) *graph.Node[reduced] {
	q.Extent = r.extent
	return graph.New(name, func(ctx context.Context) (reduced, error) {
		return withRetry(ctx, r, name, func(ctx context.Context) (reduced, error) {
			seq, err := r.o.fetcher.Fetch(ctx, q)
			if err != nil {
				return reduced{}, err
			}
			var skipped, degenerate indices.Tally
			if prep != nil {
				seq = prep(seq, &skipped, &degenerate)
			}
			f, err := raster.Reduce(ctx, seq, op)
			if err != nil {
				return reduced{}, err
			}
			if n := skipped.Load(); n > 0 {
				r.o.metrics.FramesSkipped.WithLabelValues(q.Dataset, "missing_calibration").Add(float64(n))
			}
			return reduced{frame: f, skipped: skipped.Load(), degenerate: degenerate.Load()}, nil
		})
	})
}

// first defers fetching q and taking its earliest frame.
func (r *run) first(name string, q source.Query) *graph.Node[raster.Frame] {
	q.Extent = r.extent
	return graph.New(name, func(ctx context.Context) (raster.Frame, error) {
		return withRetry(ctx, r, name, func(ctx context.Context) (raster.Frame, error) {
			seq, err := r.o.fetcher.Fetch(ctx, q)
			if err != nil {
				return raster.Frame{}, err
			}
			f, ok, err := seq.First(ctx)
			if err != nil {
				return raster.Frame{}, err
			}
			if !ok {
				return raster.Frame{}, fmt.Errorf("%s in %s: %w", q.Dataset, q.Window, domain.ErrEmptyReduction)
			}
			return f, nil
		})
	})
}

// derive wraps band of a reduction as a clipped DerivedRaster.
func (r *run) derive(name, label string, in *graph.Node[reduced], band string) *graph.Node[indices.DerivedRaster] {
	return graph.Map(name, in, func(_ context.Context, red reduced) (indices.DerivedRaster, error) {
		d, err := indices.Derive(label, red.frame, band)
		if err != nil {
			return indices.DerivedRaster{}, err
		}
		d.SkippedFrames = red.skipped
		d.Degenerate = red.degenerate
		return d.Clip(r.aoi), nil
	})
}

// align resamples a derived raster onto the AOI sampling grid at scale so
// rasters from different sources can be combined pixel by pixel.
func (r *run) align(d indices.DerivedRaster, scale float64) (indices.DerivedRaster, error) {
	f, err := zonal.Rasterize(d.Frame, indices.BandValue, r.aoi, scale, r.req.MaxPixels)
	if err != nil {
		return indices.DerivedRaster{}, err
	}
	d.Frame = f
	return d, nil
}

func (r *run) summarize(ctx context.Context, d indices.DerivedRaster) (*domain.ZonalSummary, error) {
	s, err := zonal.Summarize(ctx, d.Frame, indices.BandValue, r.aoi, r.req.Scale, r.req.MaxPixels)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// export writes d at the export scale. It returns "" without error when no
// exporter is configured or the request did not ask for exports.
func (r *run) export(ctx context.Context, key string, d indices.DerivedRaster) (string, error) {
	if !r.req.Export || r.o.exporter == nil {
		return "", nil
	}
	f, err := zonal.Rasterize(d.Frame, indices.BandValue, r.aoi, r.req.ExportScale, r.req.MaxPixels)
	if err != nil {
		r.o.metrics.Exports.WithLabelValues("error").Inc()
		return "", err
	}
	uri, err := r.o.exporter.Export(ctx, r.req.ID+"/"+key, f, indices.BandValue)
	if err != nil {
		r.o.metrics.Exports.WithLabelValues("error").Inc()
		return "", err
	}
	r.o.metrics.Exports.WithLabelValues("success").Inc()
	r.o.logger.Info("raster exported", "run_id", r.req.ID, "indicator", key, "uri", uri)
	return uri, nil
}

// withRetry calls fn and retries it once after the configured delay when it
// fails with domain.ErrDataUnavailable.
func withRetry[T any](ctx context.Context, r *run, name string, fn func(context.Context) (T, error)) (T, error) {
	delay := r.o.opts.RetryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	var (
		out      T
		attempts int
	)
	err := retry.Do(ctx, retry.WithMaxRetries(1, retry.NewConstant(delay)), func(ctx context.Context) error {
		attempts++
		v, err := fn(ctx)
		if err == nil {
			out = v
			return nil
		}
		if !errors.Is(err, domain.ErrDataUnavailable) {
			return err
		}
		if attempts == 1 {
			r.o.metrics.FetchRetries.WithLabelValues(name).Inc()
			r.o.logger.Warn("fetch unavailable, retrying",
				"run_id", r.req.ID, "node", name, "delay", delay, "error", err)
		}
		return retry.RetryableError(err)
	})
	return out, err
}

// failureReason labels a branch error for metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrPixelBudgetExceeded):
		return "pixel_budget"
	case errors.Is(err, domain.ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, domain.ErrEmptyReduction):
		return "empty_reduction"
	case errors.Is(err, domain.ErrIndicatorMismatch):
		return "indicator_mismatch"
	case errors.Is(err, domain.ErrDivisionByZero):
		return "division_by_zero"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}
