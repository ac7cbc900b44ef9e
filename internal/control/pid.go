package control

import (
	"fmt"
	"math"

	"github.com/san-kum/heaterloop/internal/dynamo"
	"github.com/san-kum/heaterloop/internal/tf"
)

// PID acts on an error signal supplied by the caller. The derivative term is
// taken on the error and low-pass filtered with time constant Tf.
type PID struct {
	Kp float64
	Ki float64
	Kd float64
	Tf float64

	// output limits; the integral stops accumulating while saturated
	OutMin float64
	OutMax float64

	integral float64
	deriv    float64
	prevErr  float64
	prevT    float64
	first    bool
	out      float64
}

func NewPID(kp, ki, kd float64) *PID {
	return &PID{
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		OutMin: math.Inf(-1),
		OutMax: math.Inf(1),
		first:  true,
	}
}

// NewIntegral is an integral-leading PI block, gain*(1 + 1/(Ti s)).
func NewIntegral(gain, integralTime float64) (*PID, error) {
	if integralTime <= 0 {
		return nil, fmt.Errorf("%w: integral time %v", dynamo.ErrParameterBounds, integralTime)
	}
	return NewPID(gain, gain/integralTime, 0), nil
}

// NewDerivative is a derivative-leading PD block,
// gain*(1 + Td s/(alpha Td s + 1)).
func NewDerivative(gain, derivativeTime, alpha float64) (*PID, error) {
	if derivativeTime < 0 || alpha < 0 {
		return nil, fmt.Errorf("%w: Td=%v alpha=%v", dynamo.ErrParameterBounds, derivativeTime, alpha)
	}
	p := NewPID(gain, 0, gain*derivativeTime)
	p.Tf = alpha * derivativeTime
	return p, nil
}

// Advance satisfies tf.Operator; e is the error at time t.
func (p *PID) Advance(e, t float64) (float64, error) {
	if math.IsNaN(e) || math.IsInf(e, 0) {
		return p.out, fmt.Errorf("%w: error signal %v", tf.ErrNonFinite, e)
	}
	if p.first {
		p.prevErr = e
		p.prevT = t
		p.first = false
		p.out = p.clamp(p.Kp*e + p.Ki*p.integral)
		return p.out, nil
	}

	dt := t - p.prevT
	if dt < 0 {
		return p.out, fmt.Errorf("%w: t=%v after t=%v", tf.ErrTimeReversed, t, p.prevT)
	}
	if dt == 0 {
		return p.out, nil
	}

	integral := p.integral + e*dt
	raw := (e - p.prevErr) / dt
	deriv := raw
	if p.Tf > 0 {
		deriv = (p.Tf*p.deriv + dt*raw) / (p.Tf + dt)
	}

	u := p.Kp*e + p.Ki*integral + p.Kd*deriv
	if math.IsNaN(u) || math.IsInf(u, 0) {
		return p.out, fmt.Errorf("%w: output at t=%v", tf.ErrNonFinite, t)
	}
	out := p.clamp(u)
	if (u > p.OutMax && e > 0) || (u < p.OutMin && e < 0) {
		integral = p.integral
	}

	p.integral = integral
	p.deriv = deriv
	p.prevErr = e
	p.prevT = t
	p.out = out
	return out, nil
}

func (p *PID) clamp(u float64) float64 {
	return math.Max(p.OutMin, math.Min(p.OutMax, u))
}

func (p *PID) Output() float64   { return p.out }
func (p *PID) Integral() float64 { return p.integral }

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integral = 0
	p.deriv = 0
	p.prevErr = 0
	p.out = 0
	p.first = true
}

type pidMemento struct {
	owner                                   *PID
	integral, deriv, prevErr, prevT, output float64
	first                                   bool
}

func (p *PID) Snapshot() any {
	return pidMemento{
		owner:    p,
		integral: p.integral,
		deriv:    p.deriv,
		prevErr:  p.prevErr,
		prevT:    p.prevT,
		output:   p.out,
		first:    p.first,
	}
}

func (p *PID) Restore(snap any) error {
	m, ok := snap.(pidMemento)
	if !ok || m.owner != p {
		return tf.ErrSnapshot
	}
	p.integral = m.integral
	p.deriv = m.deriv
	p.prevErr = m.prevErr
	p.prevT = m.prevT
	p.out = m.output
	p.first = m.first
	return nil
}

// GetParams returns tunable parameters for live adjustment
func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp": p.Kp,
		"Ki": p.Ki,
		"Kd": p.Kd,
		"Tf": p.Tf,
	}
}

// SetParam adjusts a PID parameter
func (p *PID) SetParam(name string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s=%v", dynamo.ErrParameterBounds, name, value)
	}
	switch name {
	case "Kp":
		p.Kp = value
	case "Ki":
		p.Ki = value
	case "Kd":
		p.Kd = value
	case "Tf":
		if value < 0 {
			return fmt.Errorf("%w: Tf=%v", dynamo.ErrParameterBounds, value)
		}
		p.Tf = value
	default:
		return fmt.Errorf("%w: %q", dynamo.ErrUnknownParameter, name)
	}
	return nil
}

var (
	_ tf.Operator         = (*PID)(nil)
	_ dynamo.Configurable = (*PID)(nil)
)
