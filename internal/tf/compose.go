package tf

import "fmt"

// StageError reports which operator of a composition failed.
type StageError struct {
	Stage   int
	Wrapped error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d: %v", e.Stage, e.Wrapped)
}

func (e *StageError) Unwrap() error { return e.Wrapped }

type composite struct {
	ops    []Operator
	series bool
}

// Chain feeds each operator's output into the next one.
func Chain(ops ...Operator) Operator {
	return &composite{ops: ops, series: true}
}

// Sum evaluates every operator on the same input and adds the outputs.
func Sum(ops ...Operator) Operator {
	return &composite{ops: ops}
}

func (c *composite) Advance(input, t float64) (float64, error) {
	snap := c.Snapshot()
	v, sum := input, 0.0
	for i, op := range c.ops {
		in := input
		if c.series {
			in = v
		}
		out, err := op.Advance(in, t)
		if err != nil {
			if rerr := c.Restore(snap); rerr != nil {
				err = fmt.Errorf("%w (restore: %v)", err, rerr)
			}
			return 0, &StageError{Stage: i, Wrapped: err}
		}
		v = out
		sum += out
	}
	if c.series {
		return v, nil
	}
	return sum, nil
}

type compositeMemento struct {
	owner *composite
	parts []any
}

func (c *composite) Snapshot() any {
	parts := make([]any, len(c.ops))
	for i, op := range c.ops {
		parts[i] = op.Snapshot()
	}
	return compositeMemento{owner: c, parts: parts}
}

func (c *composite) Restore(snap any) error {
	m, ok := snap.(compositeMemento)
	if !ok || m.owner != c {
		return ErrSnapshot
	}
	for i, op := range c.ops {
		if err := op.Restore(m.parts[i]); err != nil {
			return err
		}
	}
	return nil
}
