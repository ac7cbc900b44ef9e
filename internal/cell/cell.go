// Package cell holds the scalar values shared between the long-running tasks
// of the process.
//
// A Cell is readable by anyone and writable by exactly one role. The first
// role to Claim a cell owns it for the lifetime of the process; later claims
// by the same role return the same writer, claims by any other role fail
// with ErrWriterClaimed. No ordering is kept between distinct cells.
package cell

import (
	"errors"
	"fmt"
	"sync"
)

// ErrWriterClaimed is returned when a second role tries to claim a cell.
var ErrWriterClaimed = errors.New("cell: writer already claimed by another role")

type Role string

const (
	Operator   Role = "operator"
	Telemetry  Role = "telemetry"
	Controller Role = "controller"
	Simulation Role = "simulation"
)

type Cell[T any] struct {
	name string

	mu    sync.RWMutex
	value T

	claimMu sync.Mutex
	writer  *Writer[T]
}

func New[T any](name string, initial T) *Cell[T] {
	return &Cell[T]{name: name, value: initial}
}

func (c *Cell[T]) Name() string { return c.name }

// Read returns the latest committed value.
func (c *Cell[T]) Read() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Owner reports the role holding the writer, or "" if unclaimed.
func (c *Cell[T]) Owner() Role {
	c.claimMu.Lock()
	defer c.claimMu.Unlock()
	if c.writer == nil {
		return ""
	}
	return c.writer.role
}

func (c *Cell[T]) Claim(role Role) (*Writer[T], error) {
	c.claimMu.Lock()
	defer c.claimMu.Unlock()
	if c.writer != nil {
		if c.writer.role == role {
			return c.writer, nil
		}
		return nil, fmt.Errorf("%w: %s held by %s, wanted by %s", ErrWriterClaimed, c.name, c.writer.role, role)
	}
	c.writer = &Writer[T]{cell: c, role: role}
	return c.writer, nil
}

type Writer[T any] struct {
	cell *Cell[T]
	role Role
}

func (w *Writer[T]) Role() Role { return w.role }

func (w *Writer[T]) Write(v T) {
	w.cell.mu.Lock()
	w.cell.value = v
	w.cell.mu.Unlock()
}

// Update applies fn to the current value under the cell's lock.
func (w *Writer[T]) Update(fn func(T) T) T {
	w.cell.mu.Lock()
	defer w.cell.mu.Unlock()
	w.cell.value = fn(w.cell.value)
	return w.cell.value
}

func (w *Writer[T]) Read() T { return w.cell.Read() }
