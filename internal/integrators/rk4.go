package integrators

import "github.com/san-kum/heaterloop/internal/dynamo"

// RK4 is the classic fourth-order Runge-Kutta stepper. It keeps scratch
// buffers between calls and is therefore owned by a single operator.
type RK4 struct {
	k1, k2, k3, k4 dynamo.State
	scratch        dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.State, n)
		r.k2 = make(dynamo.State, n)
		r.k3 = make(dynamo.State, n)
		r.k4 = make(dynamo.State, n)
		r.scratch = make(dynamo.State, n)
	}
}

func (r *RK4) Step(sys dynamo.System, x dynamo.State, u dynamo.Input, t, dt float64) dynamo.State {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k1, sys.Derive(x, u, t))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	copy(r.k2, sys.Derive(r.scratch, u, t+dt*0.5))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	copy(r.k3, sys.Derive(r.scratch, u, t+dt*0.5))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	copy(r.k4, sys.Derive(r.scratch, u, t+dt))

	next := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		next[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return next
}

// Integrate advances x from t over span using steps no longer than maxStep.
func Integrate(integ dynamo.Integrator, sys dynamo.System, x dynamo.State, u dynamo.Input, t, span, maxStep float64) dynamo.State {
	if span <= 0 {
		return x.Clone()
	}
	steps := int(span/maxStep) + 1
	h := span / float64(steps)
	for i := 0; i < steps; i++ {
		x = integ.Step(sys, x, u, t+float64(i)*h, h)
	}
	return x
}
