package feedback

import (
	"fmt"

	"github.com/san-kum/heaterloop/internal/tf"
	"github.com/san-kum/heaterloop/internal/units"
)

type Sample struct {
	Inlet  units.Temperature // BT-11
	Outlet units.Temperature // BT-12
}

type Result struct {
	Command        units.Power
	ExpectedOutlet units.Temperature
	// InletDeviation is BT-11 relative to the inlet reference.
	InletDeviation units.TemperatureInterval
	// ErrorSignal is the outer loop error; zero for open-loop strategies.
	ErrorSignal units.TemperatureInterval
	Clamped     bool
	// Hold means the command belongs to the operator and must not be written.
	Hold bool
}

type Strategy interface {
	Name() string
	Compute(s Sample, t float64) (Result, error)
	Snapshot() any
	Restore(snap any) error
}

// StageError names the block that failed inside a strategy.
type StageError struct {
	Stage   string
	Wrapped error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("feedback stage %s: %v", e.Stage, e.Wrapped)
}

func (e *StageError) Unwrap() error { return e.Wrapped }

// Reference predicts the outlet temperature from the inlet deviation.
type Reference struct {
	Inlet  units.Temperature
	Outlet units.Temperature
	Model  tf.Operator
}

func (r Reference) deviation(s Sample) units.TemperatureInterval {
	return s.Inlet.Sub(r.Inlet)
}

func (r Reference) expected(dev units.TemperatureInterval, t float64) (units.Temperature, error) {
	y, err := r.Model.Advance(dev.Ratio().Float(), t)
	if err != nil {
		return r.Outlet, &StageError{Stage: "reference", Wrapped: err}
	}
	return r.Outlet.Add(units.Ratio(y).Kelvin()), nil
}

// opSet snapshots and restores a fixed list of operators together.
type opSet []tf.Operator

type opSetMemento struct {
	owner *tf.Operator
	parts []any
}

func (o opSet) Snapshot() any {
	parts := make([]any, len(o))
	for i, op := range o {
		parts[i] = op.Snapshot()
	}
	var owner *tf.Operator
	if len(o) > 0 {
		owner = &o[0]
	}
	return opSetMemento{owner: owner, parts: parts}
}

func (o opSet) Restore(snap any) error {
	m, ok := snap.(opSetMemento)
	if !ok || len(m.parts) != len(o) || (len(o) > 0 && m.owner != &o[0]) {
		return tf.ErrSnapshot
	}
	for i, op := range o {
		if err := op.Restore(m.parts[i]); err != nil {
			return err
		}
	}
	return nil
}

// guard runs fn and rolls every operator back if it fails.
func (o opSet) guard(fn func() (Result, error)) (Result, error) {
	snap := o.Snapshot()
	res, err := fn()
	if err != nil {
		if rerr := o.Restore(snap); rerr != nil {
			return Result{}, fmt.Errorf("%w (restore: %v)", err, rerr)
		}
		return Result{}, err
	}
	return res, nil
}
