package raster

import "math"

// Band is one layer of samples with a parallel validity mask.
type Band struct {
	Values []float64
	Valid  []bool
}

// NewBand allocates an all-no-data band of n pixels.
func NewBand(n int) Band {
	return Band{Values: make([]float64, n), Valid: make([]bool, n)}
}

// BandFromValues marks every finite value valid.
func BandFromValues(values []float64) Band {
	b := NewBand(len(values))
	for i, v := range values {
		b.Set(i, v)
	}
	return b
}

// Len is the pixel count.
func (b Band) Len() int { return len(b.Values) }

// At returns the sample and whether it is valid.
func (b Band) At(i int) (float64, bool) {
	if !b.Valid[i] {
		return 0, false
	}
	return b.Values[i], true
}

// Set stores v; NaN and infinities are stored as no-data.
func (b Band) Set(i int, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		b.SetNoData(i)
		return
	}
	b.Values[i] = v
	b.Valid[i] = true
}

// SetNoData clears pixel i.
func (b Band) SetNoData(i int) {
	b.Values[i] = 0
	b.Valid[i] = false
}

// ValidCount counts valid pixels.
func (b Band) ValidCount() int {
	n := 0
	for _, ok := range b.Valid {
		if ok {
			n++
		}
	}
	return n
}

// Map applies fn to every valid pixel. fn returning false marks the output no-data.
func (b Band) Map(fn func(v float64) (float64, bool)) Band {
	out := NewBand(b.Len())
	for i := range b.Values {
		v, ok := b.At(i)
		if !ok {
			continue
		}
		if r, keep := fn(v); keep {
			out.Set(i, r)
		}
	}
	return out
}

// Combine applies fn where both a and b are valid. Lengths must match.
func Combine(a, b Band, fn func(x, y float64) (float64, bool)) Band {
	out := NewBand(a.Len())
	for i := range a.Values {
		x, okA := a.At(i)
		y, okB := b.At(i)
		if !okA || !okB {
			continue
		}
		if r, keep := fn(x, y); keep {
			out.Set(i, r)
		}
	}
	return out
}
