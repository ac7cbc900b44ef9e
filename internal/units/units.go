// Package units carries the physical quantities exchanged by the control loop.
//
// Each quantity is its own named type so that a temperature interval cannot be
// multiplied by a conductance gain without first being expressed as a
// dimensionless [Ratio] through [OneKelvin], and converted back afterwards:
//
//	dev := bt11.Sub(units.Celsius(79.12)) // TemperatureInterval
//	in := dev.Ratio()                     // Ratio, controller math
//	p := gain.Times(out.Kelvin())         // Power
//
// Absolute temperatures are held in degrees Celsius; intervals in kelvin.
package units

import "math"

type (
	// Temperature is an absolute temperature in degrees Celsius.
	Temperature float64
	// TemperatureInterval is a temperature difference in kelvin.
	TemperatureInterval float64
	// Power in watts.
	Power float64
	// Ratio is dimensionless.
	Ratio float64
	// ThermalConductance in watts per kelvin.
	ThermalConductance float64
	// MassRate in kilograms per second.
	MassRate float64
	// Pressure in pascals.
	Pressure float64
)

// OneKelvin is the unit interval used to move between intervals and ratios.
const OneKelvin TemperatureInterval = 1.0

func Celsius(v float64) Temperature        { return Temperature(v) }
func Kelvin(v float64) TemperatureInterval { return TemperatureInterval(v) }
func Watts(v float64) Power                { return Power(v) }
func Kilowatts(v float64) Power            { return Power(v * 1000) }

func (t Temperature) Celsius() float64 { return float64(t) }

// Sub returns the deviation of t from ref.
func (t Temperature) Sub(ref Temperature) TemperatureInterval {
	return TemperatureInterval(t - ref)
}

func (t Temperature) Add(d TemperatureInterval) Temperature {
	return t + Temperature(d)
}

// Ratio expresses the interval as a multiple of one kelvin.
func (d TemperatureInterval) Ratio() Ratio { return Ratio(d / OneKelvin) }

// Kelvin converts a dimensionless controller output back into an interval.
func (r Ratio) Kelvin() TemperatureInterval { return TemperatureInterval(r) * OneKelvin }

func (r Ratio) Float() float64 { return float64(r) }

// Times applies a conductance gain to an interval, yielding power.
func (g ThermalConductance) Times(d TemperatureInterval) Power {
	return Power(float64(g) * float64(d))
}

func (p Power) Watts() float64     { return float64(p) }
func (p Power) Kilowatts() float64 { return float64(p) / 1000 }

// Scale multiplies the power by a dimensionless factor.
func (p Power) Scale(r Ratio) Power { return Power(float64(p) * float64(r)) }

// AtLeast clamps p to floor and reports whether clamping happened.
func (p Power) AtLeast(floor Power) (Power, bool) {
	if p < floor {
		return floor, true
	}
	return p, false
}

func (m MassRate) KilogramsPerSecond() float64 { return float64(m) }

func (p Pressure) Pascals() float64 { return float64(p) }

// Finite reports whether every value is a real number.
func Finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
