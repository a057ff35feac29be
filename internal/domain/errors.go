package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAOINotFound means the AOI filter matched no geometry.
	ErrAOINotFound = errors.New("aoi not found")
	// ErrDataUnavailable means a dataset could not be resolved or read.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrEmptyReduction means a temporal reduction saw zero frames.
	ErrEmptyReduction = errors.New("empty reduction")
	// ErrDivisionByZero is only used to label per-pixel degeneracy counts.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrPixelBudgetExceeded is the sentinel behind *PixelBudgetError.
	ErrPixelBudgetExceeded = errors.New("pixel budget exceeded")
	// ErrIndicatorMismatch means rasters were not aligned to the same grid or schema.
	ErrIndicatorMismatch = errors.New("indicator mismatch")
	// ErrInvalidThreshold means a ThresholdSpec or Comparison is malformed.
	ErrInvalidThreshold = errors.New("invalid threshold")
	// ErrInvalidRequest wraps run request validation failures.
	ErrInvalidRequest = errors.New("invalid run request")
	// ErrMissingCalibration marks a frame without gain/offset metadata.
	ErrMissingCalibration = errors.New("missing calibration metadata")
)

// PixelBudgetError reports the pixel count an AOI would rasterize to at a
// given scale so the caller can retry with a coarser one.
type PixelBudgetError struct {
	Pixels    int64
	MaxPixels int64
	Scale     float64
}

func (e *PixelBudgetError) Error() string {
	return fmt.Sprintf("pixel budget exceeded: %d pixels at %gm scale (max %d)", e.Pixels, e.Scale, e.MaxPixels)
}

func (e *PixelBudgetError) Unwrap() error { return ErrPixelBudgetExceeded }
