package integrators

import "github.com/san-kum/heaterloop/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(sys dynamo.System, x dynamo.State, u dynamo.Input, t float64, dt float64) dynamo.State {
	dx := sys.Derive(x, u, t)
	next := make(dynamo.State, len(x))
	for i := range x {
		next[i] = x[i] + dt*dx[i]
	}
	return next
}

// ByName returns the stepper registered under name, or nil.
func ByName(name string) dynamo.Integrator {
	switch name {
	case "rk4", "":
		return NewRK4()
	case "euler":
		return NewEuler()
	}
	return nil
}
