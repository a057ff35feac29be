package raster

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/climate-risk-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testGrid is a 2x2 grid of 1-unit pixels with origin (0, 2).
var testGrid = Grid{Width: 2, Height: 2, Transform: NorthUp(0, 2, 1, 1), EPSG: 32643}

// frameOf builds a single-band frame; NaN entries become no-data.
func frameOf(t *testing.T, band string, day int, values ...float64) Frame {
	t.Helper()
	f, err := NewFrame(testGrid, time.Date(2023, 1, day, 0, 0, 0, 0, time.UTC), nil).WithBand(band, BandFromValues(values))
	require.NoError(t, err)
	return f
}

func values(t *testing.T, f Frame, band string) []any {
	t.Helper()
	b, err := f.Band(band)
	require.NoError(t, err)
	out := make([]any, b.Len())
	for i := range out {
		if v, ok := b.At(i); ok {
			out[i] = v
		}
	}
	return out
}

func TestBand_SetRejectsNonFinite(t *testing.T) {
	b := BandFromValues([]float64{1, math.NaN(), math.Inf(-1), 0})
	assert.Equal(t, 2, b.ValidCount())
	v, ok := b.At(3)
	assert.True(t, ok, "zero is a valid sample")
	assert.Zero(t, v)
}

func TestGrid_CenterAndLocate(t *testing.T) {
	x, y := testGrid.Center(1, 0)
	assert.Equal(t, 1.5, x)
	assert.Equal(t, 1.5, y)

	col, row, ok := testGrid.Locate(0.2, 0.2)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, []int{col, row})

	_, _, ok = testGrid.Locate(3, 1)
	assert.False(t, ok)
}

func TestCheckAligned_Grids(t *testing.T) {
	other := testGrid
	other.Transform = NorthUp(0.5, 2, 1, 1)
	assert.NoError(t, CheckAligned(testGrid, testGrid))
	assert.ErrorIs(t, CheckAligned(testGrid, other), domain.ErrIndicatorMismatch)
}

func TestReduce_Ops(t *testing.T) {
	nan := math.NaN()
	seq := FromFrames([]string{"b"},
		frameOf(t, "b", 1, 1, 4, nan, nan),
		frameOf(t, "b", 2, 3, 2, 5, nan),
		frameOf(t, "b", 3, 2, 6, nan, nan),
		frameOf(t, "b", 4, 10, 0, nan, nan),
	)

	tests := []struct {
		op   Op
		band string
		want []any
	}{
		{OpMean, "b", []any{4.0, 3.0, 5.0, nil}},
		{OpSum, "b", []any{16.0, 12.0, 5.0, nil}},
		{OpMedian, "b", []any{2.5, 3.0, 5.0, nil}},
		{OpMinMax, "b_min", []any{1.0, 0.0, 5.0, nil}},
		{OpMinMax, "b_max", []any{10.0, 6.0, 5.0, nil}},
	}
	for _, tt := range tests {
		t.Run(string(tt.op)+"/"+tt.band, func(t *testing.T) {
			out, err := Reduce(context.Background(), seq, tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, values(t, out, tt.band))
			n, ok := out.Property(PropertyFrameCount)
			assert.True(t, ok)
			assert.Equal(t, 4.0, n)
		})
	}
}

func TestReduce_MinMaxBandNames(t *testing.T) {
	out, err := Reduce(context.Background(), FromFrames(nil, frameOf(t, "VV", 1, 1, 2, 3, 4)), OpMinMax)
	require.NoError(t, err)
	assert.Equal(t, []string{"VV_min", "VV_max"}, out.BandNames())
}

func TestReduce_Empty(t *testing.T) {
	for _, op := range []Op{OpMean, OpSum, OpMedian, OpMinMax} {
		t.Run(string(op), func(t *testing.T) {
			_, err := Reduce(context.Background(), Empty([]string{"b"}), op)
			assert.ErrorIs(t, err, domain.ErrEmptyReduction)
		})
	}
}

func TestReduce_Misaligned(t *testing.T) {
	shifted := frameOf(t, "b", 2, 1, 1, 1, 1)
	shifted.Grid.Transform = NorthUp(10, 2, 1, 1)

	_, err := Reduce(context.Background(), FromFrames([]string{"b"}, frameOf(t, "b", 1, 1, 1, 1, 1), shifted), OpMean)
	assert.ErrorIs(t, err, domain.ErrIndicatorMismatch)

	_, err = Reduce(context.Background(), FromFrames([]string{"other"}, frameOf(t, "b", 1, 1, 1, 1, 1)), OpMean)
	assert.ErrorIs(t, err, domain.ErrIndicatorMismatch)
}

func TestSequence_IsLazyAndRestartable(t *testing.T) {
	calls := 0
	seq := NewSequence([]string{"b"}, func(ctx context.Context, yield func(Frame) error) error {
		calls++
		for day := 1; day <= 3; day++ {
			if err := yield(frameOf(t, "b", day, float64(day), 0, 0, 0)); err != nil {
				return err
			}
		}
		return nil
	})

	odd := seq.Filter(func(f Frame) bool { return f.Acquired.Day()%2 == 1 })
	assert.Zero(t, calls, "building a pipeline must not force the producer")

	frames, err := odd.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, frames, 2)

	frames, err = odd.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, frames, 2)
	assert.Equal(t, 2, calls)

	first, ok, err := seq.First(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, first.Acquired.Day())

	limited, err := seq.Limit(2).Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSequence_MapAndErrors(t *testing.T) {
	boom := errors.New("boom")
	seq := FromFrames([]string{"b"}, frameOf(t, "b", 1, 1, 1, 1, 1), frameOf(t, "b", 2, 2, 2, 2, 2))

	dropped := seq.Map([]string{"b"}, func(f Frame) (Frame, bool, error) { return f, f.Acquired.Day() == 2, nil })
	frames, err := dropped.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, frames, 1)

	failing := seq.Map([]string{"b"}, func(Frame) (Frame, bool, error) { return Frame{}, false, boom })
	_, err = failing.Collect(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSequence_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FromFrames([]string{"b"}, frameOf(t, "b", 1, 1, 1, 1, 1)).Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type halfPlane struct{ maxX float64 }

func (h halfPlane) Contains(x, _ float64) bool { return x < h.maxX }

func TestClip_IsIdempotent(t *testing.T) {
	f := frameOf(t, "b", 1, 1, 2, 3, 4)
	once := Clip(f, halfPlane{maxX: 1})
	twice := Clip(once, halfPlane{maxX: 1})

	assert.Equal(t, []any{1.0, nil, 3.0, nil}, values(t, once, "b"))
	assert.Equal(t, values(t, once, "b"), values(t, twice, "b"))
}

func TestNumericProperty_Types(t *testing.T) {
	props := map[string]any{"f": 0.5, "i": 3, "s": "2.5", "bad": "x", "b": true}
	for key, want := range map[string]float64{"f": 0.5, "i": 3, "s": 2.5} {
		v, ok := NumericProperty(props, key)
		assert.True(t, ok, key)
		assert.Equal(t, want, v, key)
	}
	for _, key := range []string{"bad", "b", "missing"} {
		_, ok := NumericProperty(props, key)
		assert.False(t, ok, key)
	}
}
