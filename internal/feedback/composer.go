package feedback

import (
	"fmt"

	"github.com/san-kum/heaterloop/internal/tf"
	"github.com/san-kum/heaterloop/internal/units"
)

// Branch is one operator whose dimensionless output is scaled by Gain.
type Branch struct {
	Name string
	Gain units.ThermalConductance
	Op   tf.Operator
}

type ParallelSum struct {
	ref      Reference
	branches []Branch
	bias     units.Power
	floor    units.Power
	ops      opSet
}

func NewParallelSum(ref Reference, bias, floor units.Power, branches ...Branch) *ParallelSum {
	ops := opSet{ref.Model}
	for _, b := range branches {
		ops = append(ops, b.Op)
	}
	return &ParallelSum{ref: ref, branches: branches, bias: bias, floor: floor, ops: ops}
}

func (p *ParallelSum) Name() string           { return "parallel-sum" }
func (p *ParallelSum) Snapshot() any          { return p.ops.Snapshot() }
func (p *ParallelSum) Restore(snap any) error { return p.ops.Restore(snap) }

func (p *ParallelSum) Compute(s Sample, t float64) (Result, error) {
	return p.ops.guard(func() (Result, error) {
		dev := p.ref.deviation(s)
		expected, err := p.ref.expected(dev, t)
		if err != nil {
			return Result{}, err
		}

		in := dev.Ratio().Float()
		total := p.bias
		for _, b := range p.branches {
			y, err := b.Op.Advance(in, t)
			if err != nil {
				return Result{}, &StageError{Stage: b.Name, Wrapped: err}
			}
			total += b.Gain.Times(units.Ratio(y).Kelvin())
		}

		cmd, clamped := total.AtLeast(p.floor)
		return Result{
			Command:        cmd,
			ExpectedOutlet: expected,
			InletDeviation: dev,
			Clamped:        clamped,
		}, nil
	})
}

type Cascade struct {
	ref    Reference
	stages []tf.Operator
	gain   units.ThermalConductance
	bias   units.Power
	floor  units.Power
	ops    opSet
}

func NewCascade(ref Reference, gain units.ThermalConductance, bias, floor units.Power, stages ...tf.Operator) *Cascade {
	ops := append(opSet{ref.Model}, stages...)
	return &Cascade{ref: ref, stages: stages, gain: gain, bias: bias, floor: floor, ops: ops}
}

func (c *Cascade) Name() string           { return "cascade" }
func (c *Cascade) Snapshot() any          { return c.ops.Snapshot() }
func (c *Cascade) Restore(snap any) error { return c.ops.Restore(snap) }

func (c *Cascade) Compute(s Sample, t float64) (Result, error) {
	return c.ops.guard(func() (Result, error) {
		dev := c.ref.deviation(s)
		expected, err := c.ref.expected(dev, t)
		if err != nil {
			return Result{}, err
		}

		v := dev.Ratio().Float()
		for i, op := range c.stages {
			if v, err = op.Advance(v, t); err != nil {
				return Result{}, &StageError{Stage: stageName(i), Wrapped: err}
			}
		}

		cmd, clamped := (c.bias + c.gain.Times(units.Ratio(v).Kelvin())).AtLeast(c.floor)
		return Result{
			Command:        cmd,
			ExpectedOutlet: expected,
			InletDeviation: dev,
			Clamped:        clamped,
		}, nil
	})
}

func stageName(i int) string {
	return fmt.Sprintf("cascade[%d]", i)
}
