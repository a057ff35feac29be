package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunKind selects the derivation recipe.
type RunKind string

const (
	KindClimateRisk RunKind = "climate-risk"
	KindRunoff      RunKind = "runoff"
)

const (
	// DefaultScale is the zonal sampling distance in metres.
	DefaultScale = 30.0
	// DefaultExportScale is the runoff export resolution in metres.
	DefaultExportScale = 10.0
	// DefaultMaxPixels is the rasterization ceiling for zonal and export requests.
	DefaultMaxPixels int64 = 1e13
)

const dateLayout = "2006-01-02"

// DateRange is a closed interval of calendar dates. End covers its whole day.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange parses two YYYY-MM-DD dates.
func NewDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse start date: %w", err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse end date: %w", err)
	}
	return DateRange{Start: s, End: e}, nil
}

// MustDateRange is NewDateRange for literals known to be valid.
func MustDateRange(start, end string) DateRange {
	r, err := NewDateRange(start, end)
	if err != nil {
		panic(err)
	}
	return r
}

// IsZero reports whether the range is unset.
func (r DateRange) IsZero() bool { return r.Start.IsZero() && r.End.IsZero() }

// Contains reports whether t falls on or between the start and end dates.
func (r DateRange) Contains(t time.Time) bool {
	t = t.UTC()
	start := truncateDay(r.Start)
	end := truncateDay(r.End).AddDate(0, 0, 1)
	return !t.Before(start) && t.Before(end)
}

// Validate requires both ends set and Start on or before End.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return errors.New("date range requires start and end")
	}
	if truncateDay(r.Start).After(truncateDay(r.End)) {
		return fmt.Errorf("date range start %s after end %s", r.Start.Format(dateLayout), r.End.Format(dateLayout))
	}
	return nil
}

// Overlaps reports whether r and o share at least one calendar day.
func (r DateRange) Overlaps(o DateRange) bool {
	return !truncateDay(r.Start).After(truncateDay(o.End)) && !truncateDay(o.Start).After(truncateDay(r.End))
}

func (r DateRange) String() string {
	return r.Start.Format(dateLayout) + ".." + r.End.Format(dateLayout)
}

type dateRangeJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r DateRange) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(dateRangeJSON{Start: r.Start.Format(dateLayout), End: r.End.Format(dateLayout)})
}

// UnmarshalJSON accepts YYYY-MM-DD or RFC 3339 timestamps.
func (r *DateRange) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = DateRange{}
		return nil
	}
	var raw dateRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := parseDate(raw.Start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := parseDate(raw.End)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	*r = DateRange{Start: start, End: end}
	return nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RunRequest describes one pipeline run. Zero-valued windows and sizes are
// filled by WithDefaults.
type RunRequest struct {
	ID     string        `json:"id"`
	Kind   RunKind       `json:"kind"`
	Region FeatureFilter `json:"region"`

	// Current is the window for present-day aggregates.
	Current DateRange `json:"current"`
	// Baseline is the historical window anomalies are measured against.
	Baseline DateRange `json:"baseline"`
	// Optical is the recent window for radar soil moisture, NDVI and Landsat LST.
	Optical DateRange `json:"optical"`
	// LandCover is the window the runoff land-cover frame is taken from.
	LandCover DateRange `json:"land_cover"`

	Scale       float64 `json:"scale"`
	ExportScale float64 `json:"export_scale"`
	MaxPixels   int64   `json:"max_pixels"`
	Export      bool    `json:"export"`

	// Thresholds overrides individual entries of the configured table.
	Thresholds map[string]ThresholdSpec `json:"thresholds,omitempty"`
}

// WithID returns a copy carrying a fresh run ID when none is set.
func (r RunRequest) WithID() RunRequest {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return r
}

// WithDefaults returns a copy with unset fields filled for the run kind.
func (r RunRequest) WithDefaults() RunRequest {
	r = r.WithID()
	if r.Kind == "" {
		r.Kind = KindClimateRisk
	}
	switch r.Kind {
	case KindRunoff:
		if r.Current.IsZero() {
			r.Current = MustDateRange("2023-11-01", "2023-12-31")
		}
		if r.LandCover.IsZero() {
			r.LandCover = MustDateRange("2020-01-01", "2020-12-31")
		}
		if r.ExportScale == 0 {
			r.ExportScale = DefaultExportScale
		}
	default:
		if r.Current.IsZero() {
			r.Current = MustDateRange("2016-01-01", "2023-12-31")
		}
		if r.Baseline.IsZero() {
			r.Baseline = MustDateRange("2001-01-01", "2015-12-31")
		}
		if r.Optical.IsZero() {
			r.Optical = MustDateRange("2023-01-01", "2023-12-31")
		}
		if r.ExportScale == 0 {
			r.ExportScale = DefaultScale
		}
	}
	if r.Scale == 0 {
		r.Scale = DefaultScale
	}
	if r.MaxPixels == 0 {
		r.MaxPixels = DefaultMaxPixels
	}
	return r
}

// Validate checks a defaulted request.
func (r RunRequest) Validate() error {
	switch r.Kind {
	case KindClimateRisk, KindRunoff:
	default:
		return fmt.Errorf("unknown run kind %q", r.Kind)
	}
	if r.Region.Field == "" || r.Region.Value == "" {
		return errors.New("region field and value are required")
	}
	if r.Scale <= 0 || r.ExportScale <= 0 {
		return errors.New("scale must be positive")
	}
	if r.MaxPixels <= 0 {
		return errors.New("max_pixels must be positive")
	}
	windows := map[string]DateRange{"current": r.Current}
	if r.Kind == KindClimateRisk {
		windows["baseline"] = r.Baseline
		windows["optical"] = r.Optical
	} else {
		windows["land_cover"] = r.LandCover
	}
	for name, w := range windows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("%s window: %w", name, err)
		}
	}
	if r.Kind == KindClimateRisk && r.Current.Overlaps(r.Baseline) {
		return fmt.Errorf("current window %s overlaps baseline window %s", r.Current, r.Baseline)
	}
	if err := ValidateThresholds(r.Thresholds); err != nil {
		return err
	}
	return nil
}
