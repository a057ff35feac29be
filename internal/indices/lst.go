package indices

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// Calibrate applies raw*gain + offset to band using per-acquisition
// metadata. Frames lacking either key return domain.ErrMissingCalibration.
func Calibrate(f raster.Frame, band, gainKey, offsetKey string) (raster.Frame, error) {
	gain, okGain := f.Property(gainKey)
	offset, okOffset := f.Property(offsetKey)
	if !okGain || !okOffset {
		return raster.Frame{}, fmt.Errorf("frame %s: %w", f.Acquired.Format("2006-01-02"), domain.ErrMissingCalibration)
	}
	raw, err := f.Band(band)
	if err != nil {
		return raster.Frame{}, fmt.Errorf("calibrate: %w", err)
	}
	scaled := raw.Map(func(v float64) (float64, bool) { return v*gain + offset, true })
	return f.MustWithBand(band, scaled), nil
}

// CalibrateSequence calibrates every frame, dropping and counting frames
// without calibration metadata.
func CalibrateSequence(seq raster.Sequence, band, gainKey, offsetKey string, skipped *Tally) raster.Sequence {
	return seq.Map(seq.Bands(), func(f raster.Frame) (raster.Frame, bool, error) {
		out, err := Calibrate(f, band, gainKey, offsetKey)
		if err == nil {
			return out, true, nil
		}
		if errors.Is(err, domain.ErrMissingCalibration) {
			if skipped != nil {
				skipped.Add(1)
			}
			return raster.Frame{}, false, nil
		}
		return raster.Frame{}, false, fmt.Errorf("%w: %w", domain.ErrIndicatorMismatch, err)
	})
}
