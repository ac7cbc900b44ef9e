package plant

import (
	"math"

	"github.com/san-kum/heaterloop/internal/cell"
	"github.com/san-kum/heaterloop/internal/units"
)

// Flows are the isothermal branch mass flow rates.
type Flows struct {
	Heater units.MassRate
	CTAH   units.MassRate
	DHX    units.MassRate
}

// BranchFlows returns the loop flow for pump pressure p. Flow through the
// heater needs its valve and at least one open return branch; the return
// splits evenly between the open branches.
func BranchFlows(p units.Pressure, v cell.Valves, coefficient float64) Flows {
	if !v.Heater || (!v.CTAH && !v.DHX) {
		return Flows{}
	}
	pa := p.Pascals()
	q := coefficient * math.Copysign(math.Sqrt(math.Abs(pa)), pa)

	returns := 0
	if v.CTAH {
		returns++
	}
	if v.DHX {
		returns++
	}
	f := Flows{Heater: units.MassRate(q)}
	if v.CTAH {
		f.CTAH = units.MassRate(q / float64(returns))
	}
	if v.DHX {
		f.DHX = units.MassRate(q / float64(returns))
	}
	return f
}
