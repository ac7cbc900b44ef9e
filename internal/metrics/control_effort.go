package metrics

import (
	"math"
	"sync"

	"github.com/san-kum/heaterloop/internal/loop"
)

// ControlEffort is the mean absolute departure of the heater power from the
// nominal bias, in watts.
type ControlEffort struct {
	name    string
	nominal float64

	mu      sync.Mutex
	sum     float64
	samples int
}

func NewControlEffort(nominal float64) *ControlEffort {
	return &ControlEffort{
		name:    "control_effort",
		nominal: nominal,
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) OnTick(r loop.Record) {
	c.mu.Lock()
	c.sum += math.Abs(r.HeaterPower.Watts() - c.nominal)
	c.samples++
	c.mu.Unlock()
}

func (c *ControlEffort) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.mu.Lock()
	c.sum = 0
	c.samples = 0
	c.mu.Unlock()
}
