package pipeline_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/observability"
	"github.com/couchcryptid/climate-risk-service/internal/pipeline"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
	"github.com/couchcryptid/climate-risk-service/internal/source"
	"github.com/couchcryptid/climate-risk-service/internal/synthetic"
	"github.com/couchcryptid/climate-risk-service/internal/zonal"
)

// --- fakes ---

type stubFeatures struct {
	features []geom.T
	err      error
	calls    atomic.Int32
}

func (s *stubFeatures) Resolve(_ context.Context, _ domain.FeatureFilter) ([]geom.T, error) {
	s.calls.Add(1)
	return s.features, s.err
}

// flakyBackend counts Scenes calls per dataset and fails the first n of
// them for datasets listed in failures.
type flakyBackend struct {
	source.Backend
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
}

func newFlakyBackend(b source.Backend) *flakyBackend {
	return &flakyBackend{Backend: b, calls: map[string]int{}, failures: map[string]int{}}
}

func (f *flakyBackend) Scenes(ctx context.Context, dataset string) ([]source.Scene, error) {
	f.mu.Lock()
	f.calls[dataset]++
	fail := f.failures[dataset] > 0
	if fail {
		f.failures[dataset]--
	}
	f.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("transient outage: %w", domain.ErrDataUnavailable)
	}
	return f.Backend.Scenes(ctx, dataset)
}

func (f *flakyBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *flakyBackend) callsFor(dataset string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[dataset]
}

type recordingExporter struct {
	mu    sync.Mutex
	keys  []string
	grids []raster.Grid
}

func (e *recordingExporter) Export(_ context.Context, key string, f raster.Frame, _ string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys = append(e.keys, key)
	e.grids = append(e.grids, f.Grid)
	return "mem://" + key, nil
}

// --- helpers ---

// worldBackend holds every synthetic scene except those of the skipped datasets.
func worldBackend(skip ...string) *flakyBackend {
	mem := source.NewMemoryBackend()
	for _, s := range synthetic.Default().Scenes() {
		if slices.Contains(skip, s.Scene.Dataset) {
			continue
		}
		mem.Add(s.Scene, s.Frame)
	}
	return newFlakyBackend(mem)
}

func newOrchestrator(features pipeline.FeatureStore, backend source.Backend, exporter pipeline.Exporter) (*pipeline.Orchestrator, *observability.Metrics) {
	metrics := newTestMetrics()
	adapter := source.NewAdapter(source.DefaultCatalog(), backend, discardLogger(), metrics)
	opts := pipeline.DefaultOptions()
	opts.RetryDelay = time.Millisecond
	var exp pipeline.Exporter
	if exporter != nil {
		exp = exporter
	}
	return pipeline.NewOrchestrator(features, adapter, exp, opts, discardLogger(), metrics), metrics
}

func worldFeatures() *stubFeatures {
	return &stubFeatures{features: synthetic.Default().Features()}
}

func request(kind domain.RunKind) domain.RunRequest {
	return domain.RunRequest{ID: "run-test", Kind: kind, Region: synthetic.Region}
}

// --- tests ---

func TestExecute_AOINotFoundFetchesNothing(t *testing.T) {
	backend := worldBackend()
	o, metrics := newOrchestrator(&stubFeatures{}, backend, nil)

	report, err := o.Execute(context.Background(), request(domain.KindClimateRisk))
	require.ErrorIs(t, err, domain.ErrAOINotFound)
	assert.Nil(t, report)
	assert.Zero(t, backend.total())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("climate-risk", "aoi_not_found")))
}

func TestExecute_FeatureStoreError(t *testing.T) {
	backend := worldBackend()
	o, _ := newOrchestrator(&stubFeatures{err: fmt.Errorf("connection refused")}, backend, nil)

	_, err := o.Execute(context.Background(), request(domain.KindRunoff))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrAOINotFound)
	assert.Contains(t, err.Error(), `resolve aoi District="Synthetic"`)
	assert.Zero(t, backend.total())
}

func TestExecute_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  domain.RunRequest
	}{
		{name: "missing region", req: domain.RunRequest{Kind: domain.KindClimateRisk}},
		{name: "unknown kind", req: domain.RunRequest{Kind: "flood", Region: synthetic.Region}},
		{
			name: "inverted threshold override",
			req: domain.RunRequest{
				Kind:       domain.KindClimateRisk,
				Region:     synthetic.Region,
				Thresholds: map[string]domain.ThresholdSpec{domain.IndicatorNDVI: {Low: 0.7, Mid: 0.5, High: 0.3}},
			},
		},
		{
			name: "anomaly windows overlap",
			req: domain.RunRequest{
				Kind:     domain.KindClimateRisk,
				Region:   synthetic.Region,
				Current:  domain.MustDateRange("2010-01-01", "2023-12-31"),
				Baseline: domain.MustDateRange("2001-01-01", "2015-12-31"),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			features := worldFeatures()
			o, _ := newOrchestrator(features, worldBackend(), nil)
			_, err := o.Execute(context.Background(), tt.req)
			require.ErrorIs(t, err, domain.ErrInvalidRequest)
			assert.Zero(t, features.calls.Load())
		})
	}
}

func TestExecute_CancelledBeforeStart(t *testing.T) {
	features := worldFeatures()
	backend := worldBackend()
	o, _ := newOrchestrator(features, backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := o.Execute(ctx, request(domain.KindClimateRisk))
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
	assert.Zero(t, features.calls.Load())
	assert.Zero(t, backend.total())
}

func TestExecute_ClimateRisk(t *testing.T) {
	o, metrics := newOrchestrator(worldFeatures(), worldBackend(), nil)

	report, err := o.Execute(context.Background(), request(domain.KindClimateRisk))
	require.NoError(t, err)
	require.False(t, report.Failed(), "report: %+v", report)

	names := make([]string, 0, len(report.Indicators))
	for _, ind := range report.Indicators {
		names = append(names, ind.Name)
		require.NotNil(t, ind.Summary, ind.Name)
		assert.Equal(t, int64(144), ind.Summary.Pixels, ind.Name)
		assert.Equal(t, 30.0, ind.Summary.Scale, ind.Name)
	}
	// Indicators are reported in name order.
	assert.Equal(t, []string{
		domain.IndicatorDEM, domain.IndicatorDroughtIndex, pipeline.KeyEvapotranspiration,
		domain.IndicatorLST, domain.IndicatorNDVI, domain.IndicatorPrecipitationAnomaly,
		domain.IndicatorSoilMoisture, domain.IndicatorTempAnomaly, pipeline.KeyTotalPrecipitation,
	}, names)

	lst, ok := report.Indicator(domain.IndicatorLST)
	require.True(t, ok)
	assert.Equal(t, int64(1), lst.SkippedFrames)
	assert.Equal(t, "Land Surface Temperature", lst.Label)
	assert.Greater(t, *lst.Summary.Min, 290.0)

	temp, ok := report.Indicator(domain.IndicatorTempAnomaly)
	require.True(t, ok)
	assert.InDelta(t, 1.5, *temp.Summary.Min, 1e-9)
	assert.InDelta(t, 1.5, *temp.Summary.Max, 1e-9)

	c := report.Composite
	require.NotNil(t, c)
	assert.Len(t, c.Indicators, 7)
	require.NotNil(t, c.Vulnerability.Max)
	assert.GreaterOrEqual(t, *c.Vulnerability.Min, 0.0)
	assert.LessOrEqual(t, *c.Vulnerability.Max, 7.0)
	assert.Equal(t, *c.Vulnerability, *c.Hazard)
	assert.Equal(t, *c.Vulnerability.Max**c.Vulnerability.Max, *c.Risk.Max)
	assert.Empty(t, c.ExportURI)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("climate-risk", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FramesSkipped.WithLabelValues(source.DatasetLandsat8L2, "missing_calibration")))
}

func TestExecute_ClimateRiskExportsRisk(t *testing.T) {
	exp := &recordingExporter{}
	o, _ := newOrchestrator(worldFeatures(), worldBackend(), exp)

	req := request(domain.KindClimateRisk)
	req.Export = true
	report, err := o.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "mem://run-test/risk", report.Composite.ExportURI)
	assert.Equal(t, []string{"run-test/risk"}, exp.keys)
}

func TestExecute_SharedReductionFetchedOnce(t *testing.T) {
	backend := worldBackend()
	o, _ := newOrchestrator(worldFeatures(), backend, nil)

	_, err := o.Execute(context.Background(), request(domain.KindClimateRisk))
	require.NoError(t, err)
	// Current and baseline precipitation, each forced once and shared by
	// total precipitation, droughtness and the precipitation anomaly.
	assert.Equal(t, 2, backend.callsFor(source.DatasetCHIRPS))
	assert.Equal(t, 1, backend.callsFor(source.DatasetSentinel2))
}

func TestExecute_BranchFailureIsIsolated(t *testing.T) {
	o, metrics := newOrchestrator(worldFeatures(), worldBackend(source.DatasetSentinel2), nil)

	report, err := o.Execute(context.Background(), request(domain.KindClimateRisk))
	require.NoError(t, err)
	require.True(t, report.Failed())

	ndvi, ok := report.Indicator(domain.IndicatorNDVI)
	require.True(t, ok)
	assert.Nil(t, ndvi.Summary)
	assert.Contains(t, ndvi.Error, "data unavailable")
	assert.Equal(t, "NDVI", ndvi.Label)

	for _, name := range []string{domain.IndicatorSoilMoisture, domain.IndicatorLST, domain.IndicatorDEM, domain.IndicatorDroughtIndex} {
		ind, ok := report.Indicator(name)
		require.True(t, ok, name)
		assert.Empty(t, ind.Error, name)
		assert.NotNil(t, ind.Summary, name)
	}

	require.NotNil(t, report.Composite)
	assert.NotEmpty(t, report.Composite.Error)
	assert.Nil(t, report.Composite.Risk)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BranchFailures.WithLabelValues(domain.IndicatorNDVI, "data_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BranchFailures.WithLabelValues("composite", "data_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("climate-risk", "partial")))
}

func TestExecute_RetriesUnavailableFetchOnce(t *testing.T) {
	backend := worldBackend()
	backend.failures[source.DatasetCHIRPS] = 1
	o, metrics := newOrchestrator(worldFeatures(), backend, nil)

	report, err := o.Execute(context.Background(), request(domain.KindRunoff))
	require.NoError(t, err)
	assert.False(t, report.Failed(), "report: %+v", report)
	assert.Equal(t, 2, backend.callsFor(source.DatasetCHIRPS))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FetchRetries.WithLabelValues("precipitation mean")))
}

func TestExecute_RetryExhausted(t *testing.T) {
	backend := worldBackend()
	backend.failures[source.DatasetCHIRPS] = 100
	o, _ := newOrchestrator(worldFeatures(), backend, nil)

	report, err := o.Execute(context.Background(), request(domain.KindRunoff))
	require.NoError(t, err)
	require.True(t, report.Failed())
	assert.Equal(t, 2, backend.callsFor(source.DatasetCHIRPS))

	for _, name := range []string{pipeline.KeyRunoff, pipeline.KeyMeanPrecipitation} {
		ind, ok := report.Indicator(name)
		require.True(t, ok, name)
		assert.Contains(t, ind.Error, "data unavailable", name)
	}
	assert.NotEmpty(t, report.ClassAreas)
}

func TestExecute_Runoff(t *testing.T) {
	exp := &recordingExporter{}
	o, _ := newOrchestrator(worldFeatures(), worldBackend(), exp)

	req := request(domain.KindRunoff)
	req.Export = true
	report, err := o.Execute(context.Background(), req)
	require.NoError(t, err)
	require.False(t, report.Failed(), "report: %+v", report)
	assert.Nil(t, report.Composite)

	q, ok := report.Indicator(pipeline.KeyRunoff)
	require.True(t, ok)
	require.NotNil(t, q.Summary)
	assert.GreaterOrEqual(t, *q.Summary.Min, 0.0)
	assert.Equal(t, "mem://run-test/runoff", q.ExportURI)

	require.Equal(t, []string{"run-test/runoff"}, exp.keys)
	assert.Equal(t, 36, exp.grids[0].Width)
	assert.Equal(t, 36, exp.grids[0].Height)

	// One 500 m sample lands in the class-60 column of the synthetic land cover.
	assert.Equal(t, map[int]float64{60: 0.25}, report.ClassAreas)
	assert.InDelta(t, 0.25, zonal.TotalArea(report.ClassAreas), 1e-12)
}

func TestExecute_RunoffEmptyLandCoverWindow(t *testing.T) {
	o, _ := newOrchestrator(worldFeatures(), worldBackend(), nil)

	req := request(domain.KindRunoff)
	req.LandCover = domain.MustDateRange("2019-01-01", "2019-12-31")
	report, err := o.Execute(context.Background(), req)
	require.NoError(t, err)

	q, ok := report.Indicator(pipeline.KeyRunoff)
	require.True(t, ok)
	assert.Contains(t, q.Error, "empty reduction")
	mean, ok := report.Indicator(pipeline.KeyMeanPrecipitation)
	require.True(t, ok)
	assert.Empty(t, mean.Error)
	assert.Nil(t, report.ClassAreas)
}

func TestExecute_PixelBudget(t *testing.T) {
	o, metrics := newOrchestrator(worldFeatures(), worldBackend(), nil)

	req := request(domain.KindRunoff)
	req.MaxPixels = 100
	report, err := o.Execute(context.Background(), req)
	require.NoError(t, err)

	for _, name := range []string{pipeline.KeyRunoff, pipeline.KeyMeanPrecipitation} {
		ind, ok := report.Indicator(name)
		require.True(t, ok, name)
		assert.Contains(t, ind.Error, "pixel budget exceeded", name)
	}
	// The single 500 m class-area sample stays within budget.
	assert.NotEmpty(t, report.ClassAreas)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PixelBudgetRejections))
}

func TestExecute_ConfiguredScaleDefault(t *testing.T) {
	metrics := newTestMetrics()
	adapter := source.NewAdapter(source.DefaultCatalog(), worldBackend(), discardLogger(), metrics)
	opts := pipeline.DefaultOptions()
	opts.Scale = 60
	o := pipeline.NewOrchestrator(worldFeatures(), adapter, nil, opts, discardLogger(), metrics)

	report, err := o.Execute(context.Background(), request(domain.KindClimateRisk))
	require.NoError(t, err)
	assert.Equal(t, 60.0, report.Scale)

	dem, ok := report.Indicator(domain.IndicatorDEM)
	require.True(t, ok)
	require.NotNil(t, dem.Summary)
	assert.Equal(t, 60.0, dem.Summary.Scale)
}
