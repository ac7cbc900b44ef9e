// Package series implements the time-windowed buffers shared between the
// control loops (writers) and the renderer (reader).
//
// Points are appended in non-decreasing time order. Eviction is incremental:
// each Prune call drops at most the single oldest point that has fallen out
// of the window. The renderer calls Prune once per frame, so a backlog of
// stale points (after a pause, say) drains one per frame rather than all at
// once. Without a renderer, Drain evicts the whole backlog in one call.
package series

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrArity          = errors.New("series: point arity mismatch")
	ErrTimeRegression = errors.New("series: point time earlier than latest")
)

// Point is one timestamped tuple. T is seconds since loop start.
type Point struct {
	T float64
	V []float64
}

type Buffer struct {
	name   string
	arity  int
	window float64

	mu     sync.RWMutex
	points []Point
	head   int
}

// New returns a buffer holding tuples of arity values and retaining window
// of history once pruned.
func New(name string, arity int, window time.Duration) *Buffer {
	return &Buffer{
		name:   name,
		arity:  arity,
		window: window.Seconds(),
	}
}

func (b *Buffer) Name() string    { return b.name }
func (b *Buffer) Arity() int      { return b.arity }
func (b *Buffer) Window() float64 { return b.window }

func (b *Buffer) Append(p Point) error {
	if len(p.V) != b.arity {
		return fmt.Errorf("%w: %s wants %d values, got %d", ErrArity, b.name, b.arity, len(p.V))
	}
	v := make([]float64, len(p.V))
	copy(v, p.V)

	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.points); n > b.head && p.T < b.points[n-1].T {
		return fmt.Errorf("%w: %s at t=%.3f, latest t=%.3f", ErrTimeRegression, b.name, p.T, b.points[n-1].T)
	}
	b.points = append(b.points, Point{T: p.T, V: v})
	return nil
}

// Prune removes the oldest point if it lies outside the window and reports
// whether a point was removed.
func (b *Buffer) Prune() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pruneOne()
}

// Drain prunes until nothing is left outside the window and returns the
// number of points removed.
func (b *Buffer) Drain() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for b.pruneOne() {
		n++
	}
	return n
}

func (b *Buffer) pruneOne() bool {
	if b.head >= len(b.points) {
		return false
	}
	latest := b.points[len(b.points)-1].T
	if b.points[b.head].T >= latest-b.window {
		return false
	}
	b.points[b.head] = Point{}
	b.head++
	b.compact()
	return true
}

// compact reclaims the evicted prefix once it dominates the backing array.
func (b *Buffer) compact() {
	if b.head < 64 || b.head*2 < len(b.points) {
		return
	}
	live := copy(b.points, b.points[b.head:])
	for i := live; i < len(b.points); i++ {
		b.points[i] = Point{}
	}
	b.points = b.points[:live]
	b.head = 0
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.points) - b.head
}

// Snapshot copies the live points.
func (b *Buffer) Snapshot() []Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Point, 0, len(b.points)-b.head)
	for _, p := range b.points[b.head:] {
		v := make([]float64, len(p.V))
		copy(v, p.V)
		out = append(out, Point{T: p.T, V: v})
	}
	return out
}

// Column returns value i of every live point.
func (b *Buffer) Column(i int) []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= b.arity {
		return nil
	}
	out := make([]float64, 0, len(b.points)-b.head)
	for _, p := range b.points[b.head:] {
		out = append(out, p.V[i])
	}
	return out
}

func (b *Buffer) Latest() (Point, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.points) == b.head {
		return Point{}, false
	}
	p := b.points[len(b.points)-1]
	v := make([]float64, len(p.V))
	copy(v, p.V)
	return Point{T: p.T, V: v}, true
}

// Oldest returns the time of the oldest live point.
func (b *Buffer) Oldest() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.points) == b.head {
		return 0, false
	}
	return b.points[b.head].T, true
}
