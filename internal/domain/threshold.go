package domain

import (
	"fmt"
	"math"
)

// ThresholdSpec holds the per-indicator breakpoints. Low <= Mid <= High.
type ThresholdSpec struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

// Validate rejects non-finite or out-of-order breakpoints.
func (t ThresholdSpec) Validate() error {
	for _, v := range []float64{t.Low, t.Mid, t.High} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite breakpoint in %+v", ErrInvalidThreshold, t)
		}
	}
	if t.Low > t.Mid || t.Mid > t.High {
		return fmt.Errorf("%w: want low <= mid <= high, got %+v", ErrInvalidThreshold, t)
	}
	return nil
}

// Value returns the breakpoint selected by b.
func (t ThresholdSpec) Value(b Boundary) float64 {
	switch b {
	case BoundaryLow:
		return t.Low
	case BoundaryHigh:
		return t.High
	default:
		return t.Mid
	}
}

// CompareOp is the operator an indicator is tested with.
type CompareOp string

const (
	OpLT  CompareOp = "lt"
	OpLTE CompareOp = "lte"
	OpGT  CompareOp = "gt"
	OpGTE CompareOp = "gte"
)

// Boundary selects which breakpoint of a ThresholdSpec a comparison uses.
type Boundary string

const (
	BoundaryLow  Boundary = "low"
	BoundaryMid  Boundary = "mid"
	BoundaryHigh Boundary = "high"
)

// Comparison is the fixed classification rule for one indicator.
type Comparison struct {
	Op       CompareOp `json:"op"`
	Boundary Boundary  `json:"boundary"`
}

// Validate checks the operator and boundary are known.
func (c Comparison) Validate() error {
	switch c.Op {
	case OpLT, OpLTE, OpGT, OpGTE:
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidThreshold, c.Op)
	}
	switch c.Boundary {
	case BoundaryLow, BoundaryMid, BoundaryHigh:
	default:
		return fmt.Errorf("%w: unknown boundary %q", ErrInvalidThreshold, c.Boundary)
	}
	return nil
}

// Crosses reports whether v crosses the threshold under this comparison.
func (c Comparison) Crosses(v float64, spec ThresholdSpec) bool {
	b := spec.Value(c.Boundary)
	switch c.Op {
	case OpLT:
		return v < b
	case OpLTE:
		return v <= b
	case OpGT:
		return v > b
	case OpGTE:
		return v >= b
	}
	return false
}

// Indicator names shared by the climate-risk recipe and its defaults.
const (
	IndicatorSoilMoisture         = "soilMoisture"
	IndicatorNDVI                 = "ndvi"
	IndicatorLST                  = "lst"
	IndicatorDEM                  = "dem"
	IndicatorDroughtIndex         = "droughtIndex"
	IndicatorTempAnomaly          = "tempAnomaly"
	IndicatorPrecipitationAnomaly = "precipitationAnomaly"
)

// DefaultThresholds returns a fresh copy of the default breakpoint table.
func DefaultThresholds() map[string]ThresholdSpec {
	return map[string]ThresholdSpec{
		IndicatorSoilMoisture:         {Low: -15, Mid: 0, High: 19},
		IndicatorNDVI:                 {Low: 0.3, Mid: 0.5, High: 0.7},
		IndicatorLST:                  {Low: 290, Mid: 305, High: 324},
		IndicatorDEM:                  {Low: 122, Mid: 1000, High: 2214},
		IndicatorDroughtIndex:         {Low: -0.3, Mid: 0, High: 0.3},
		IndicatorTempAnomaly:          {Low: -10, Mid: 20, High: 62},
		IndicatorPrecipitationAnomaly: {Low: 0, Mid: 500, High: 1000},
	}
}

// DefaultComparisons returns a fresh copy of the default classification rules.
func DefaultComparisons() map[string]Comparison {
	return map[string]Comparison{
		IndicatorSoilMoisture:         {Op: OpLTE, Boundary: BoundaryMid},
		IndicatorNDVI:                 {Op: OpLTE, Boundary: BoundaryLow},
		IndicatorLST:                  {Op: OpGTE, Boundary: BoundaryMid},
		IndicatorDEM:                  {Op: OpLTE, Boundary: BoundaryMid},
		IndicatorDroughtIndex:         {Op: OpLTE, Boundary: BoundaryMid},
		IndicatorTempAnomaly:          {Op: OpLTE, Boundary: BoundaryMid},
		IndicatorPrecipitationAnomaly: {Op: OpLT, Boundary: BoundaryMid},
	}
}

// ValidateThresholds checks every spec in the table.
func ValidateThresholds(specs map[string]ThresholdSpec) error {
	for name, spec := range specs {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("threshold %s: %w", name, err)
		}
	}
	return nil
}
