package feedback

import (
	"fmt"
	"strings"

	"github.com/san-kum/heaterloop/internal/control"
	"github.com/san-kum/heaterloop/internal/dynamo"
	"github.com/san-kum/heaterloop/internal/units"
)

// PIDCascade has no floor on its command; a large enough positive outlet
// deviation drives the command negative.
type PIDCascade struct {
	ref   Reference
	inner *control.PID
	outer *control.PID
	gain  units.ThermalConductance
	bias  units.Power
	ops   opSet
}

func NewPIDCascade(ref Reference, inner, outer *control.PID, gain units.ThermalConductance, bias units.Power) *PIDCascade {
	return &PIDCascade{
		ref:   ref,
		inner: inner,
		outer: outer,
		gain:  gain,
		bias:  bias,
		ops:   opSet{ref.Model, inner, outer},
	}
}

func (p *PIDCascade) Name() string           { return "pid-cascade" }
func (p *PIDCascade) Snapshot() any          { return p.ops.Snapshot() }
func (p *PIDCascade) Restore(snap any) error { return p.ops.Restore(snap) }

// GetParams lists the gains of both blocks as "inner.Kp", "outer.Ki" and so on.
func (p *PIDCascade) GetParams() map[string]float64 {
	params := make(map[string]float64, 8)
	for prefix, blk := range p.blocks() {
		for k, v := range blk.GetParams() {
			params[prefix+"."+k] = v
		}
	}
	return params
}

// SetParam changes one gain between ticks. The caller serialises it with
// Compute.
func (p *PIDCascade) SetParam(name string, value float64) error {
	prefix, param, ok := strings.Cut(name, ".")
	blk, found := p.blocks()[prefix]
	if !ok || !found {
		return fmt.Errorf("%w: %q", dynamo.ErrUnknownParameter, name)
	}
	return blk.SetParam(param, value)
}

func (p *PIDCascade) blocks() map[string]*control.PID {
	return map[string]*control.PID{"inner": p.inner, "outer": p.outer}
}

func (p *PIDCascade) Compute(s Sample, t float64) (Result, error) {
	return p.ops.guard(func() (Result, error) {
		dev := p.ref.deviation(s)
		expected, err := p.ref.expected(dev, t)
		if err != nil {
			return Result{}, err
		}
		setpoint := expected.Sub(p.ref.Outlet)

		outletDev := s.Outlet.Sub(p.ref.Outlet)
		corr, err := p.inner.Advance(outletDev.Ratio().Float(), t)
		if err != nil {
			return Result{}, &StageError{Stage: "inner", Wrapped: err}
		}

		e := setpoint - units.Ratio(corr).Kelvin()
		out, err := p.outer.Advance(e.Ratio().Float(), t)
		if err != nil {
			return Result{}, &StageError{Stage: "outer", Wrapped: err}
		}

		return Result{
			Command:        p.bias + p.gain.Times(units.Ratio(out).Kelvin()),
			ExpectedOutlet: expected,
			InletDeviation: dev,
			ErrorSignal:    e,
		}, nil
	})
}

var _ dynamo.Configurable = (*PIDCascade)(nil)

// Manual leaves the heater power to the operator and only runs the
// reference model.
type Manual struct {
	ref   Reference
	power func() units.Power
	ops   opSet
}

func NewManual(ref Reference, power func() units.Power) *Manual {
	return &Manual{ref: ref, power: power, ops: opSet{ref.Model}}
}

func (m *Manual) Name() string           { return "manual" }
func (m *Manual) Snapshot() any          { return m.ops.Snapshot() }
func (m *Manual) Restore(snap any) error { return m.ops.Restore(snap) }

func (m *Manual) Compute(s Sample, t float64) (Result, error) {
	return m.ops.guard(func() (Result, error) {
		dev := m.ref.deviation(s)
		expected, err := m.ref.expected(dev, t)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Command:        m.power(),
			ExpectedOutlet: expected,
			InletDeviation: dev,
			Hold:           true,
		}, nil
	})
}
