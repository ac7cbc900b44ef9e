package metrics

import (
	"sync"

	"github.com/san-kum/heaterloop/internal/loop"
)

// Energy integrates the heater power over tick time (trapezoidal), in kWh.
type Energy struct {
	name string

	mu     sync.Mutex
	joules float64
	lastT  float64
	lastW  float64
	primed bool
}

func NewEnergy() *Energy {
	return &Energy{name: "energy_kwh"}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) OnTick(r loop.Record) {
	w := r.HeaterPower.Watts()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.primed && r.Time > e.lastT {
		e.joules += 0.5 * (w + e.lastW) * (r.Time - e.lastT)
	}
	e.lastT, e.lastW, e.primed = r.Time, w, true
}

func (e *Energy) Value() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.joules / 3.6e6
}

func (e *Energy) Reset() {
	e.mu.Lock()
	e.joules = 0
	e.primed = false
	e.mu.Unlock()
}
