package metrics

import "github.com/san-kum/heaterloop/internal/loop"

// Metric is a running summary fed by committed control ticks.
type Metric interface {
	loop.Observer
	Name() string
	Value() float64
	Reset()
}

// Standard returns the summaries shown for a run around the nominal power.
func Standard(nominal, band float64) []Metric {
	return []Metric{
		NewControlEffort(nominal),
		NewTracking(band),
		NewEnergy(),
	}
}

// Values snapshots every metric by name.
func Values(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
