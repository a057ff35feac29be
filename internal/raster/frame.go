package raster

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// ErrBandNotFound is returned when a frame lacks a requested band.
var ErrBandNotFound = errors.New("band not found")

type namedBand struct {
	name string
	band Band
}

// Frame is an immutable multi-band raster with acquisition time and scalar
// metadata. Transforms return new frames; band slices are shared and must
// not be written after a frame is built.
type Frame struct {
	Grid       Grid
	Acquired   time.Time
	Properties map[string]any
	bands      []namedBand
}

// NewFrame returns a frame with no bands.
func NewFrame(grid Grid, acquired time.Time, props map[string]any) Frame {
	return Frame{Grid: grid, Acquired: acquired, Properties: props}
}

// WithBand returns a copy of f with name set to b.
func (f Frame) WithBand(name string, b Band) (Frame, error) {
	if b.Len() != f.Grid.Len() || len(b.Valid) != b.Len() {
		return Frame{}, fmt.Errorf("band %s has %d pixels, grid has %d", name, b.Len(), f.Grid.Len())
	}
	bands := make([]namedBand, 0, len(f.bands)+1)
	for _, nb := range f.bands {
		if nb.name != name {
			bands = append(bands, nb)
		}
	}
	f.bands = append(bands, namedBand{name: name, band: b})
	return f, nil
}

// MustWithBand is WithBand for bands built from f.Grid.Len().
func (f Frame) MustWithBand(name string, b Band) Frame {
	out, err := f.WithBand(name, b)
	if err != nil {
		panic(err)
	}
	return out
}

// Band looks up a band by name.
func (f Frame) Band(name string) (Band, error) {
	for _, nb := range f.bands {
		if nb.name == name {
			return nb.band, nil
		}
	}
	return Band{}, fmt.Errorf("%w: %s", ErrBandNotFound, name)
}

// BandNames lists bands in insertion order.
func (f Frame) BandNames() []string {
	names := make([]string, len(f.bands))
	for i, nb := range f.bands {
		names[i] = nb.name
	}
	return names
}

// HasBands reports whether every name is present.
func (f Frame) HasBands(names ...string) bool {
	have := f.BandNames()
	for _, n := range names {
		if !slices.Contains(have, n) {
			return false
		}
	}
	return true
}

// Select returns a frame holding only the named bands.
func (f Frame) Select(names ...string) (Frame, error) {
	out := NewFrame(f.Grid, f.Acquired, f.Properties)
	for _, n := range names {
		b, err := f.Band(n)
		if err != nil {
			return Frame{}, err
		}
		out.bands = append(out.bands, namedBand{name: n, band: b})
	}
	return out, nil
}

// Property reads a numeric metadata value. Strings holding numbers are accepted.
func (f Frame) Property(key string) (float64, bool) {
	return NumericProperty(f.Properties, key)
}

// NumericProperty coerces a metadata value to float64.
func NumericProperty(props map[string]any, key string) (float64, bool) {
	v, ok := props[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
