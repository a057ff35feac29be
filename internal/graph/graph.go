// Package graph builds deferred computations as memoized nodes. Building a
// node never evaluates it; Force evaluates the node and its dependencies
// once and caches the result for every later caller.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Node is a deferred value of type T.
type Node[T any] struct {
	name string
	fn   func(ctx context.Context) (T, error)

	mu    sync.Mutex
	done  bool
	value T
	err   error
}

// New defers fn under name. fn runs at most once successfully; context
// cancellation is not memoized so a later Force may retry.
func New[T any](name string, fn func(ctx context.Context) (T, error)) *Node[T] {
	return &Node[T]{name: name, fn: fn}
}

// Value wraps an already computed value.
func Value[T any](name string, v T) *Node[T] {
	return &Node[T]{name: name, done: true, value: v}
}

// Name identifies the node in errors and logs.
func (n *Node[T]) Name() string { return n.name }

// Force evaluates the node, blocking concurrent callers until the first
// evaluation finishes. It returns ctx.Err() without evaluating if ctx is
// already done.
func (n *Node[T]) Force(ctx context.Context) (T, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done {
		return n.value, n.err
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	v, err := n.fn(ctx)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		var zero T
		return zero, err
	}
	if err != nil {
		err = fmt.Errorf("%s: %w", n.name, err)
	}
	n.value, n.err, n.done = v, err, true
	return v, err
}

// Forced reports whether the node has a cached result.
func (n *Node[T]) Forced() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.done
}

// Map defers fn over the value of in.
func Map[A, B any](name string, in *Node[A], fn func(ctx context.Context, a A) (B, error)) *Node[B] {
	return New(name, func(ctx context.Context) (B, error) {
		a, err := in.Force(ctx)
		if err != nil {
			var zero B
			return zero, err
		}
		return fn(ctx, a)
	})
}

// Map2 defers fn over two inputs, forcing them concurrently.
func Map2[A, B, C any](name string, a *Node[A], b *Node[B], fn func(ctx context.Context, a A, b B) (C, error)) *Node[C] {
	return New(name, func(ctx context.Context) (C, error) {
		var (
			va A
			vb B
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			va, err = a.Force(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			vb, err = b.Force(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			var zero C
			return zero, err
		}
		return fn(ctx, va, vb)
	})
}

// Forcer is any node whose value is not needed by the caller.
type Forcer interface {
	Name() string
	force(ctx context.Context) error
}

func (n *Node[T]) force(ctx context.Context) error {
	_, err := n.Force(ctx)
	return err
}

// ForceAll evaluates independent nodes concurrently, at most limit at a
// time (limit <= 0 means unbounded). One node failing does not cancel the
// others. The result maps node names to their errors; nodes that succeeded
// are absent.
func ForceAll(ctx context.Context, limit int, nodes ...Forcer) map[string]error {
	var (
		mu   sync.Mutex
		errs = make(map[string]error)
		g    errgroup.Group
	)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, n := range nodes {
		g.Go(func() error {
			if err := n.force(ctx); err != nil {
				mu.Lock()
				errs[n.Name()] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
