package tf

import (
	"fmt"
	"math"

	"github.com/san-kum/heaterloop/internal/dynamo"
)

// FirstOrder is gain/(tau s + 1). A zero tau gives a pure gain.
func FirstOrder(gain, tau, delay float64) (*TransferFunction, error) {
	if tau < 0 {
		return nil, fmt.Errorf("%w: time constant %v", dynamo.ErrParameterBounds, tau)
	}
	return New([]float64{gain}, []float64{tau, 1}, delay)
}

// SecondOrder is (b2 s^2 + b1 s + b0)/(a2 s^2 + a1 s + a0).
func SecondOrder(num, den [3]float64, delay float64) (*TransferFunction, error) {
	return New(num[:], den[:], delay)
}

// Underdamped is gain/(tau^2 s^2 + 2 zeta tau s + 1).
func Underdamped(gain, tau, zeta, delay float64) (*TransferFunction, error) {
	if tau <= 0 || zeta < 0 {
		return nil, fmt.Errorf("%w: tau=%v zeta=%v", dynamo.ErrParameterBounds, tau, zeta)
	}
	return New([]float64{gain}, []float64{tau * tau, 2 * zeta * tau, 1}, delay)
}

// DecayingSine has the impulse response amplitude * exp(-l t) * sin(w t),
// with w = 2 pi freq and l = 2 pi decay, both given in hertz.
func DecayingSine(amplitude, freq, decay, delay float64) (*TransferFunction, error) {
	w, l, err := angular(freq, decay)
	if err != nil {
		return nil, err
	}
	return New([]float64{amplitude * w}, []float64{1, 2 * l, l*l + w*w}, delay)
}

func angular(freq, decay float64) (float64, float64, error) {
	if freq <= 0 || decay < 0 {
		return 0, 0, fmt.Errorf("%w: freq=%vHz decay=%vHz", dynamo.ErrParameterBounds, freq, decay)
	}
	return 2 * math.Pi * freq, 2 * math.Pi * decay, nil
}
