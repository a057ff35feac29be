package raster

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
)

// Op names a temporal aggregation.
type Op string

const (
	OpMean   Op = "mean"
	OpSum    Op = "sum"
	OpMedian Op = "median"
	OpMinMax Op = "minMax"
)

// Suffixes of the two bands OpMinMax emits per input band.
const (
	SuffixMin = "_min"
	SuffixMax = "_max"
)

// PropertyFrameCount is set on reduced frames to the number of inputs.
const PropertyFrameCount = "frame_count"

// Valid reports whether op is a known aggregation.
func (op Op) Valid() bool {
	switch op {
	case OpMean, OpSum, OpMedian, OpMinMax:
		return true
	}
	return false
}

type accumulator interface {
	add(i int, v float64)
	emit(name string, f Frame) Frame
}

// Reduce collapses a sequence into one frame, pixel by pixel, ignoring
// no-data samples. A pixel with no valid sample in any frame stays no-data.
// An empty sequence yields domain.ErrEmptyReduction; frames on different
// grids yield domain.ErrIndicatorMismatch.
func Reduce(ctx context.Context, seq Sequence, op Op) (Frame, error) {
	if !op.Valid() {
		return Frame{}, fmt.Errorf("reduce: unknown op %q", op)
	}

	var (
		grid    Grid
		bands   = seq.Bands()
		accs    []accumulator
		count   int
		started time.Time
	)
	err := seq.Each(ctx, func(f Frame) error {
		if count == 0 {
			grid = f.Grid
			started = f.Acquired
			if len(bands) == 0 {
				bands = f.BandNames()
			}
			accs = make([]accumulator, len(bands))
			for i := range bands {
				accs[i] = newAccumulator(op, grid.Len())
			}
		} else if err := CheckAligned(grid, f.Grid); err != nil {
			return fmt.Errorf("frame %d: %w", count, err)
		}
		for bi, name := range bands {
			b, err := f.Band(name)
			if err != nil {
				return fmt.Errorf("frame %d: %w: %w", count, domain.ErrIndicatorMismatch, err)
			}
			for i := range b.Values {
				if v, ok := b.At(i); ok {
					accs[bi].add(i, v)
				}
			}
		}
		count++
		return nil
	})
	if err != nil {
		return Frame{}, fmt.Errorf("reduce %s: %w", op, err)
	}
	if count == 0 {
		return Frame{}, fmt.Errorf("reduce %s: %w", op, domain.ErrEmptyReduction)
	}

	out := NewFrame(grid, started, map[string]any{PropertyFrameCount: count})
	for bi, name := range bands {
		out = accs[bi].emit(name, out)
	}
	return out, nil
}

func newAccumulator(op Op, n int) accumulator {
	switch op {
	case OpSum:
		return &sumAcc{sum: make([]float64, n), seen: make([]int, n)}
	case OpMedian:
		return &medianAcc{samples: make([][]float64, n)}
	case OpMinMax:
		return &minMaxAcc{min: make([]float64, n), max: make([]float64, n), seen: make([]bool, n)}
	default:
		return &sumAcc{sum: make([]float64, n), seen: make([]int, n), mean: true}
	}
}

type sumAcc struct {
	sum  []float64
	seen []int
	mean bool
}

func (a *sumAcc) add(i int, v float64) {
	a.sum[i] += v
	a.seen[i]++
}

func (a *sumAcc) emit(name string, f Frame) Frame {
	b := NewBand(len(a.sum))
	for i, s := range a.sum {
		if a.seen[i] == 0 {
			continue
		}
		if a.mean {
			s /= float64(a.seen[i])
		}
		b.Set(i, s)
	}
	return f.MustWithBand(name, b)
}

type medianAcc struct {
	samples [][]float64
}

func (a *medianAcc) add(i int, v float64) {
	a.samples[i] = append(a.samples[i], v)
}

func (a *medianAcc) emit(name string, f Frame) Frame {
	b := NewBand(len(a.samples))
	for i, s := range a.samples {
		if len(s) == 0 {
			continue
		}
		b.Set(i, median(s))
	}
	return f.MustWithBand(name, b)
}

// median averages the two middle values for even counts. s is sorted in place.
func median(s []float64) float64 {
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

type minMaxAcc struct {
	min, max []float64
	seen     []bool
}

func (a *minMaxAcc) add(i int, v float64) {
	if !a.seen[i] {
		a.min[i], a.max[i], a.seen[i] = v, v, true
		return
	}
	a.min[i] = math.Min(a.min[i], v)
	a.max[i] = math.Max(a.max[i], v)
}

func (a *minMaxAcc) emit(name string, f Frame) Frame {
	lo, hi := NewBand(len(a.min)), NewBand(len(a.max))
	for i, ok := range a.seen {
		if ok {
			lo.Set(i, a.min[i])
			hi.Set(i, a.max[i])
		}
	}
	return f.MustWithBand(name+SuffixMin, lo).MustWithBand(name+SuffixMax, hi)
}
