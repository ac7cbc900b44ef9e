package dynamo

import "math"

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Dot returns the inner product with c, ignoring trailing entries of the
// longer vector.
func (s State) Dot(c []float64) float64 {
	sum := 0.0
	for i := range s {
		if i < len(c) {
			sum += s[i] * c[i]
		}
	}
	return sum
}

// Input is the exogenous signal held constant across one integration step.
type Input []float64

type System interface {
	Derive(x State, u Input, t float64) State
	StateDim() int
}

type Integrator interface {
	Step(sys System, x State, u Input, t float64, dt float64) State
}

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}
