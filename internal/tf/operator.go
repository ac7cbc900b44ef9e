package tf

import (
	"fmt"
	"math"

	"github.com/san-kum/heaterloop/internal/dynamo"
	"github.com/san-kum/heaterloop/internal/integrators"
)

type Operator interface {
	Advance(input, t float64) (float64, error)
	Snapshot() any
	Restore(snap any) error
}

// DefaultMaxStep bounds the RK4 sub-step between two Advance calls.
const DefaultMaxStep = 0.005

type sample struct {
	t, u float64
}

type TransferFunction struct {
	num, den []float64

	// monic denominator and output row, lowest power first
	a []float64
	c []float64
	d float64

	delay   float64
	maxStep float64
	integ   dynamo.Integrator

	x       dynamo.State
	prevT   float64
	started bool
	hist    []sample
	out     float64
}

// New builds num(s)/den(s) with an input dead time of delay seconds.
func New(num, den []float64, delay float64) (*TransferFunction, error) {
	num = trimLeading(num)
	den = trimLeading(den)
	if len(den) == 0 {
		return nil, fmt.Errorf("%w: empty denominator", ErrSingular)
	}
	if len(num) > len(den) {
		return nil, fmt.Errorf("%w: numerator degree %d exceeds denominator degree %d", ErrSingular, len(num)-1, len(den)-1)
	}
	if !finite(num...) || !finite(den...) || !finite(delay) {
		return nil, fmt.Errorf("%w: coefficient", ErrNonFinite)
	}
	if delay < 0 {
		return nil, fmt.Errorf("%w: negative delay %v", dynamo.ErrParameterBounds, delay)
	}

	n := len(den) - 1
	lead := den[0]
	padded := make([]float64, n+1)
	copy(padded[n+1-len(num):], num)

	g := &TransferFunction{
		num:     append([]float64(nil), num...),
		den:     append([]float64(nil), den...),
		a:       make([]float64, n),
		c:       make([]float64, n),
		d:       padded[0] / lead,
		delay:   delay,
		maxStep: DefaultMaxStep,
		integ:   integrators.NewRK4(),
		x:       make(dynamo.State, n),
	}
	for i := 0; i < n; i++ {
		g.a[i] = den[n-i] / lead
		g.c[i] = padded[n-i]/lead - g.d*g.a[i]
	}
	return g, nil
}

func trimLeading(p []float64) []float64 {
	for len(p) > 0 && p[0] == 0 {
		p = p[1:]
	}
	return p
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// WithIntegrator replaces the stepper and the sub-step bound.
func (g *TransferFunction) WithIntegrator(integ dynamo.Integrator, maxStep float64) *TransferFunction {
	g.integ = integ
	if maxStep > 0 {
		g.maxStep = maxStep
	}
	return g
}

func (g *TransferFunction) Order() int      { return len(g.a) }
func (g *TransferFunction) Delay() float64  { return g.delay }
func (g *TransferFunction) Output() float64 { return g.out }
func (g *TransferFunction) StateDim() int   { return len(g.a) }

// DCGain is num(0)/den(0), or Inf for a pure integrator.
func (g *TransferFunction) DCGain() float64 {
	n0 := 0.0
	if len(g.num) > 0 {
		n0 = g.num[len(g.num)-1]
	}
	return n0 / g.den[len(g.den)-1]
}

func (g *TransferFunction) Derive(x dynamo.State, u dynamo.Input, t float64) dynamo.State {
	n := len(g.a)
	dx := make(dynamo.State, n)
	for i := 0; i < n-1; i++ {
		dx[i] = x[i+1]
	}
	acc := u[0]
	for i := 0; i < n; i++ {
		acc -= g.a[i] * x[i]
	}
	dx[n-1] = acc
	return dx
}

func (g *TransferFunction) Advance(input, t float64) (float64, error) {
	if !finite(input, t) {
		return g.out, fmt.Errorf("%w: input %v at t=%v", ErrNonFinite, input, t)
	}
	if !g.started {
		hist := []sample{{t: t, u: input}}
		y := g.x.Dot(g.c) + g.d*delayed(hist, t, g.delay)
		if !finite(y) {
			return g.out, fmt.Errorf("%w: output at t=%v", ErrNonFinite, t)
		}
		g.started = true
		g.prevT = t
		g.hist = hist
		g.out = y
		return y, nil
	}
	if t < g.prevT {
		return g.out, fmt.Errorf("%w: t=%v after t=%v", ErrTimeReversed, t, g.prevT)
	}

	x := g.x
	if len(x) > 0 {
		cur := g.prevT
		for cur < t {
			end := t
			if bp, ok := nextBreak(g.hist, cur, g.delay); ok && bp < end {
				end = bp
			}
			u := dynamo.Input{delayed(g.hist, cur, g.delay)}
			x = integrators.Integrate(g.integ, g, x, u, cur, end-cur, g.maxStep)
			cur = end
		}
		if !x.IsValid() {
			return g.out, fmt.Errorf("%w: state diverged at t=%v", ErrNonFinite, t)
		}
	}

	hist := append(append(make([]sample, 0, len(g.hist)+1), g.hist...), sample{t: t, u: input})
	y := x.Dot(g.c) + g.d*delayed(hist, t, g.delay)
	if !finite(y) {
		return g.out, fmt.Errorf("%w: output at t=%v", ErrNonFinite, t)
	}

	g.x = x
	g.prevT = t
	g.hist = trimHistory(hist, t, g.delay)
	g.out = y
	return y, nil
}

const timeEps = 1e-12

// delayed returns the held input seen at time at, or zero before the first
// sample has propagated through the dead time.
func delayed(hist []sample, at, delay float64) float64 {
	u := 0.0
	for _, s := range hist {
		if s.t+delay > at+timeEps {
			break
		}
		u = s.u
	}
	return u
}

func nextBreak(hist []sample, after, delay float64) (float64, bool) {
	for _, s := range hist {
		if bp := s.t + delay; bp > after+timeEps {
			return bp, true
		}
	}
	return 0, false
}

// trimHistory keeps the samples still inside the dead time plus the one
// currently being applied.
func trimHistory(hist []sample, now, delay float64) []sample {
	keep := 0
	for i, s := range hist {
		if s.t+delay <= now+timeEps {
			keep = i
		}
	}
	return hist[keep:]
}

type memento struct {
	owner   *TransferFunction
	x       dynamo.State
	prevT   float64
	started bool
	hist    []sample
	out     float64
}

func (g *TransferFunction) Snapshot() any {
	return memento{
		owner:   g,
		x:       g.x.Clone(),
		prevT:   g.prevT,
		started: g.started,
		hist:    append([]sample(nil), g.hist...),
		out:     g.out,
	}
}

func (g *TransferFunction) Restore(snap any) error {
	m, ok := snap.(memento)
	if !ok || m.owner != g {
		return ErrSnapshot
	}
	g.x = m.x.Clone()
	g.prevT = m.prevT
	g.started = m.started
	g.hist = append([]sample(nil), m.hist...)
	g.out = m.out
	return nil
}

// Reset returns the operator to its initial rest state.
func (g *TransferFunction) Reset() {
	g.x = make(dynamo.State, len(g.a))
	g.prevT = 0
	g.started = false
	g.hist = nil
	g.out = 0
}

func (g *TransferFunction) String() string {
	return fmt.Sprintf("tf(num=%v, den=%v, delay=%gs)", g.num, g.den, g.delay)
}
