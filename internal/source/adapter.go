package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/observability"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// Scene is the metadata of one acquisition before its pixels are read.
type Scene struct {
	ID         string
	Dataset    string
	Acquired   time.Time
	Footprint  *geom.Bounds
	Properties map[string]any
	// Location is backend specific, e.g. a file path or object key.
	Location string
}

// Backend lists and reads scenes. Scenes returns domain.ErrDataUnavailable
// for datasets it does not hold.
type Backend interface {
	Scenes(ctx context.Context, dataset string) ([]Scene, error)
	Load(ctx context.Context, scene Scene, bands []string) (raster.Frame, error)
}

// Query selects frames of one dataset.
type Query struct {
	Dataset string
	// Extent drops scenes whose footprint does not overlap it. Nil keeps all.
	Extent  *geom.Bounds
	Window  domain.DateRange
	Filters []Filter
	// Bands narrows the schema; empty means every dataset band.
	Bands []string
}

// Adapter turns queries into lazy frame sequences.
type Adapter struct {
	catalog *Catalog
	backend Backend
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAdapter wires a catalog to a backend.
func NewAdapter(catalog *Catalog, backend Backend, logger *slog.Logger, metrics *observability.Metrics) *Adapter {
	return &Adapter{catalog: catalog, backend: backend, logger: logger, metrics: metrics}
}

// Fetch resolves the dataset and compiles filters immediately, but reads no
// scene until the returned sequence is forced. An unknown dataset is
// domain.ErrDataUnavailable; a query matching nothing is an empty sequence.
func (a *Adapter) Fetch(_ context.Context, q Query) (raster.Sequence, error) {
	ds, err := a.catalog.Lookup(q.Dataset)
	if err != nil {
		return raster.Sequence{}, err
	}
	bands := q.Bands
	if len(bands) == 0 {
		bands = ds.Bands
	}
	if !ds.HasBands(bands...) {
		return raster.Sequence{}, fmt.Errorf("dataset %s has bands %v, requested %v: %w",
			ds.ID, ds.Bands, bands, domain.ErrIndicatorMismatch)
	}
	matcher, err := CompileFilters(q.Filters)
	if err != nil {
		return raster.Sequence{}, fmt.Errorf("dataset %s: %w", ds.ID, err)
	}

	return raster.NewSequence(bands, func(ctx context.Context, yield func(raster.Frame) error) error {
		scenes, err := a.backend.Scenes(ctx, ds.ID)
		if err != nil {
			return unavailable(ds.ID, err)
		}
		scenes = a.selectScenes(ds, scenes, q, matcher)
		a.logger.Debug("scenes selected",
			"dataset", ds.ID, "window", q.Window.String(), "filters", matcher.String(), "count", len(scenes))

		for _, sc := range scenes {
			frame, err := a.backend.Load(ctx, sc, bands)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return unavailable(ds.ID, fmt.Errorf("scene %s: %w", sc.ID, err))
			}
			frame, err = frame.Select(bands...)
			if err != nil {
				return unavailable(ds.ID, fmt.Errorf("scene %s malformed: %w", sc.ID, err))
			}
			frame.Properties = mergeProps(sc.Properties, frame.Properties)
			if frame.Acquired.IsZero() {
				frame.Acquired = sc.Acquired
			}
			if a.metrics != nil {
				a.metrics.FramesFetched.WithLabelValues(ds.ID).Inc()
			}
			if err := yield(frame); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

func (a *Adapter) selectScenes(ds Dataset, scenes []Scene, q Query, m *Matcher) []Scene {
	out := make([]Scene, 0, len(scenes))
	for _, sc := range scenes {
		if !ds.Static && !q.Window.IsZero() && !q.Window.Contains(sc.Acquired) {
			continue
		}
		if q.Extent != nil && sc.Footprint != nil && !sc.Footprint.Overlaps(geom.XY, q.Extent) {
			continue
		}
		if !m.Match(sc.Properties) {
			continue
		}
		out = append(out, sc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Acquired.Equal(out[j].Acquired) {
			return out[i].Acquired.Before(out[j].Acquired)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func unavailable(dataset string, err error) error {
	if errors.Is(err, domain.ErrDataUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("dataset %s: %w", dataset, err)
	}
	return fmt.Errorf("dataset %s: %w: %w", dataset, domain.ErrDataUnavailable, err)
}

func mergeProps(scene, frame map[string]any) map[string]any {
	out := make(map[string]any, len(scene)+len(frame))
	maps.Copy(out, scene)
	maps.Copy(out, frame)
	return out
}
