package plant

import (
	"fmt"
	"math"

	"github.com/san-kum/heaterloop/internal/config"
	"github.com/san-kum/heaterloop/internal/dynamo"
	"github.com/san-kum/heaterloop/internal/integrators"
	"github.com/san-kum/heaterloop/internal/units"
)

// Inputs are held constant across one Advance.
type Inputs struct {
	Power units.Power
	Inlet units.Temperature
	Flow  units.MassRate
}

// Heater is a lumped shell plus a chain of well-mixed fluid nodes.
// State layout: x[0] shell, x[1..N] fluid nodes inlet to outlet, all in degC.
// BT-12 sits at node N whichever way the fluid moves.
type Heater struct {
	nodes      int
	cp         float64
	nodeCap    float64
	shellCap   float64
	nodeCond   float64
	ambCond    float64
	ambient    float64
	resolution float64
	maxStep    float64

	// fluid node indices upstream to downstream for each flow direction
	forward, reverse []int

	integ dynamo.Integrator
	x     dynamo.State
	t     float64
}

func NewHeater(cfg config.PlantConfig) (*Heater, error) {
	integ := integrators.ByName(cfg.Integrator)
	if integ == nil {
		return nil, fmt.Errorf("%w: integrator %q", dynamo.ErrParameterBounds, cfg.Integrator)
	}
	if cfg.Nodes < 1 {
		return nil, fmt.Errorf("%w: %d nodes", dynamo.ErrParameterBounds, cfg.Nodes)
	}
	n := cfg.Nodes
	h := &Heater{
		nodes:      n,
		cp:         cfg.SpecificHeat,
		nodeCap:    cfg.FluidCapacity / float64(n),
		shellCap:   cfg.ShellCapacity,
		nodeCond:   cfg.ShellConductance / float64(n),
		ambCond:    cfg.AmbientConductance,
		ambient:    cfg.Ambient,
		resolution: cfg.OutletResolution,
		maxStep:    0.05,
		integ:      integ,
		x:          make(dynamo.State, n+1),
	}
	for i := range h.x {
		h.x[i] = cfg.Ambient
	}
	h.forward = make([]int, n)
	h.reverse = make([]int, n)
	for k := 0; k < n; k++ {
		h.forward[k] = k + 1
		h.reverse[k] = n - k
	}
	return h, nil
}

func (h *Heater) StateDim() int { return h.nodes + 1 }

// Derive: u = [power W, inlet degC, mass flow kg/s].
func (h *Heater) Derive(x dynamo.State, u dynamo.Input, t float64) dynamo.State {
	power, inlet, flow := u[0], u[1], u[2]
	adv := math.Abs(flow) * h.cp

	dx := make(dynamo.State, len(x))
	shell := x[0]
	q := power - h.ambCond*(shell-h.ambient)
	upstream := inlet
	for _, i := range h.flowOrder(flow) {
		toFluid := h.nodeCond * (shell - x[i])
		q -= toFluid
		dx[i] = (adv*(upstream-x[i]) + toFluid) / h.nodeCap
		upstream = x[i]
	}
	dx[0] = q / h.shellCap
	return dx
}

// flowOrder lists the fluid nodes from upstream to downstream. Reverse flow
// enters at the outlet end, still at the loop temperature BT-11.
func (h *Heater) flowOrder(flow float64) []int {
	if flow < 0 {
		return h.reverse
	}
	return h.forward
}

// Advance integrates dt seconds under in.
func (h *Heater) Advance(in Inputs, dt float64) error {
	if dt < 0 {
		return fmt.Errorf("%w: dt=%v", dynamo.ErrParameterBounds, dt)
	}
	u := dynamo.Input{in.Power.Watts(), in.Inlet.Celsius(), in.Flow.KilogramsPerSecond()}
	if !dynamo.State(u).IsValid() {
		return &dynamo.SimulationError{Time: h.t, State: h.x.Clone(), Wrapped: dynamo.ErrInvalidState}
	}
	next := integrators.Integrate(h.integ, h, h.x, u, h.t, dt, h.maxStep)
	if !next.IsValid() {
		return &dynamo.SimulationError{Time: h.t + dt, State: h.x.Clone(), Wrapped: dynamo.ErrInvalidState}
	}
	h.x = next
	h.t += dt
	return nil
}

// Settle places the heater at the steady state for in.
func (h *Heater) Settle(in Inputs) {
	flow := in.Flow.KilogramsPerSecond()
	adv := math.Abs(flow) * h.cp
	g := h.nodeCond
	if adv <= 0 && h.ambCond <= 0 {
		// no path for the heat to leave: there is no steady state
		return
	}
	order := h.flowOrder(flow)
	for iter := 0; iter < 2000; iter++ {
		sum := 0.0
		upstream := in.Inlet.Celsius()
		for _, i := range order {
			h.x[i] = (adv*upstream + g*h.x[0]) / (adv + g)
			upstream = h.x[i]
			sum += h.x[i]
		}
		h.x[0] = (in.Power.Watts() + g*sum + h.ambCond*h.ambient) / (float64(h.nodes)*g + h.ambCond)
	}
}

// Outlet is the last fluid node, quantised like the physical sensor.
func (h *Heater) Outlet() units.Temperature {
	v := h.x[h.nodes]
	if h.resolution > 0 {
		v = math.Round(v/h.resolution) * h.resolution
	}
	return units.Celsius(v)
}

func (h *Heater) Shell() units.Temperature { return units.Celsius(h.x[0]) }
func (h *Heater) Time() float64            { return h.t }
func (h *Heater) State() dynamo.State      { return h.x.Clone() }
