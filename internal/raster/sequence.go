package raster

import (
	"context"
	"errors"
	"slices"
)

// errStop ends an iteration early without surfacing as an error.
var errStop = errors.New("stop iteration")

// Producer emits frames to yield in order. It must stop and return the
// error yield returns.
type Producer func(ctx context.Context, yield func(Frame) error) error

// Sequence is an ordered, finite, lazily produced run of frames sharing a
// band schema. Nothing is read until a terminal method is called, and every
// call re-runs the producer from the start.
type Sequence struct {
	bands   []string
	produce Producer
}

// NewSequence wraps a producer declaring the given band schema.
func NewSequence(bands []string, produce Producer) Sequence {
	return Sequence{bands: slices.Clone(bands), produce: produce}
}

// FromFrames builds a sequence over already materialized frames.
func FromFrames(bands []string, frames ...Frame) Sequence {
	frames = slices.Clone(frames)
	return NewSequence(bands, func(ctx context.Context, yield func(Frame) error) error {
		for _, f := range frames {
			if err := yield(f); err != nil {
				return err
			}
		}
		return nil
	})
}

// Empty returns a sequence with the schema and no frames.
func Empty(bands []string) Sequence {
	return FromFrames(bands)
}

// Bands is the declared schema.
func (s Sequence) Bands() []string { return slices.Clone(s.bands) }

// Each forces the sequence, calling fn per frame. Cancellation is checked
// before every frame.
func (s Sequence) Each(ctx context.Context, fn func(Frame) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.run(ctx, func(f Frame) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(f)
	})
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

func (s Sequence) run(ctx context.Context, yield func(Frame) error) error {
	if s.produce == nil {
		return nil
	}
	return s.produce(ctx, yield)
}

// Filter keeps frames for which keep returns true.
func (s Sequence) Filter(keep func(Frame) bool) Sequence {
	parent := s
	return NewSequence(s.bands, func(ctx context.Context, yield func(Frame) error) error {
		return parent.run(ctx, func(f Frame) error {
			if !keep(f) {
				return nil
			}
			return yield(f)
		})
	})
}

// Map transforms each frame. fn returns false to drop a frame; bands is the
// output schema.
func (s Sequence) Map(bands []string, fn func(Frame) (Frame, bool, error)) Sequence {
	parent := s
	return NewSequence(bands, func(ctx context.Context, yield func(Frame) error) error {
		return parent.run(ctx, func(f Frame) error {
			out, keep, err := fn(f)
			if err != nil {
				return err
			}
			if !keep {
				return nil
			}
			return yield(out)
		})
	})
}

// Collect forces the sequence into a slice.
func (s Sequence) Collect(ctx context.Context) ([]Frame, error) {
	var frames []Frame
	err := s.Each(ctx, func(f Frame) error {
		frames = append(frames, f)
		return nil
	})
	return frames, err
}

// First forces only as far as the first frame.
func (s Sequence) First(ctx context.Context) (Frame, bool, error) {
	var first Frame
	found := false
	err := s.Each(ctx, func(f Frame) error {
		first, found = f, true
		return errStop
	})
	return first, found, err
}

// Limit truncates the sequence to n frames.
func (s Sequence) Limit(n int) Sequence {
	parent := s
	return NewSequence(s.bands, func(ctx context.Context, yield func(Frame) error) error {
		seen := 0
		if n <= 0 {
			return nil
		}
		return parent.run(ctx, func(f Frame) error {
			if err := yield(f); err != nil {
				return err
			}
			seen++
			if seen >= n {
				return errStop
			}
			return nil
		})
	})
}
