package series

import "time"

const (
	FlowWindow        = 10 * time.Second
	TemperatureWindow = 45 * time.Second
)

// Set is the fixed collection of named buffers the process maintains.
type Set struct {
	// Flow holds (pump pressure Pa, heater branch flow kg/s).
	Flow *Buffer
	// Heater holds (BT-11 degC, heater power kW, BT-12 degC).
	Heater *Buffer
	// Reference holds (expected BT-12 degC).
	Reference *Buffer
	// Probe holds (operator input, operator output).
	Probe *Buffer
}

type Windows struct {
	Flow        time.Duration
	Temperature time.Duration
}

func DefaultWindows() Windows {
	return Windows{Flow: FlowWindow, Temperature: TemperatureWindow}
}

func NewSet(w Windows) *Set {
	return &Set{
		Flow:      New("flow", 2, w.Flow),
		Heater:    New("heater", 3, w.Temperature),
		Reference: New("reference", 1, w.Temperature),
		Probe:     New("probe", 2, w.Temperature),
	}
}

func (s *Set) All() []*Buffer {
	return []*Buffer{s.Flow, s.Heater, s.Reference, s.Probe}
}

// PruneAll calls Prune once on every buffer.
func (s *Set) PruneAll() int {
	n := 0
	for _, b := range s.All() {
		if b.Prune() {
			n++
		}
	}
	return n
}

// DrainAll drains every buffer and returns the number of points removed.
// Headless runs call it in place of the renderer's per-frame prune.
func (s *Set) DrainAll() int {
	n := 0
	for _, b := range s.All() {
		n += b.Drain()
	}
	return n
}
