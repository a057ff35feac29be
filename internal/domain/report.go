package domain

import (
	"sort"
	"time"
)

// ZonalSummary is the {min, max} of a raster over an AOI at one scale.
// Min and Max are nil when no valid pixel fell inside the AOI.
type ZonalSummary struct {
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Pixels int64    `json:"pixels"`
	Scale  float64  `json:"scale"`
}

// Empty reports whether the summary saw no valid pixels.
func (s ZonalSummary) Empty() bool { return s.Min == nil || s.Max == nil }

// ValidRange is the declared display range of a derived raster.
type ValidRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// IndicatorResult is one branch of a run. Error is set when the branch
// failed and Summary is nil in that case. DegenerateSamples counts
// zero-denominator pixel samples over every input frame before reduction,
// so one pixel degenerate in three frames counts three times.
type IndicatorResult struct {
	Name              string        `json:"name"`
	Label             string        `json:"label"`
	Range             ValidRange    `json:"range"`
	Summary           *ZonalSummary `json:"summary,omitempty"`
	SkippedFrames     int64         `json:"skipped_frames,omitempty"`
	DegenerateSamples int64         `json:"degenerate_samples,omitempty"`
	ExportURI         string        `json:"export_uri,omitempty"`
	Error             string        `json:"error,omitempty"`
}

// CompositeResult summarizes the fused threshold count.
type CompositeResult struct {
	Indicators    []string      `json:"indicators"`
	Vulnerability *ZonalSummary `json:"vulnerability,omitempty"`
	Hazard        *ZonalSummary `json:"hazard,omitempty"`
	Risk          *ZonalSummary `json:"risk,omitempty"`
	ExportURI     string        `json:"export_uri,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Report is the output of one run.
type Report struct {
	RunID       string            `json:"run_id"`
	Kind        RunKind           `json:"kind"`
	Region      FeatureFilter     `json:"region"`
	Current     DateRange         `json:"current"`
	Baseline    DateRange         `json:"baseline"`
	Scale       float64           `json:"scale"`
	GeneratedAt time.Time         `json:"generated_at"`
	Indicators  []IndicatorResult `json:"indicators"`
	Composite   *CompositeResult  `json:"composite,omitempty"`
	// ClassAreas maps land-cover class codes to km² inside the AOI.
	ClassAreas map[int]float64 `json:"class_areas,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// NewReport starts a report for a defaulted request.
func NewReport(req RunRequest) *Report {
	return &Report{
		RunID:       req.ID,
		Kind:        req.Kind,
		Region:      req.Region,
		Current:     req.Current,
		Baseline:    req.Baseline,
		Scale:       req.Scale,
		GeneratedAt: Now(),
	}
}

// Indicator returns the named result, if present.
func (r *Report) Indicator(name string) (IndicatorResult, bool) {
	for _, ind := range r.Indicators {
		if ind.Name == name {
			return ind, true
		}
	}
	return IndicatorResult{}, false
}

// SortIndicators orders results by name for stable output.
func (r *Report) SortIndicators() {
	sort.Slice(r.Indicators, func(i, j int) bool { return r.Indicators[i].Name < r.Indicators[j].Name })
}

// Failed reports whether the run halted or any branch failed.
func (r *Report) Failed() bool {
	if r.Error != "" {
		return true
	}
	if r.Composite != nil && r.Composite.Error != "" {
		return true
	}
	for _, ind := range r.Indicators {
		if ind.Error != "" {
			return true
		}
	}
	return false
}
