package cell

import "github.com/san-kum/heaterloop/internal/units"

// Valves are the three branch isolation valves of the loop.
type Valves struct {
	Heater bool
	DHX    bool
	CTAH   bool
}

// Board bundles every shared cell of the process. It is built once at
// startup and passed by pointer to each task.
type Board struct {
	Address *Cell[string]

	PumpPressure *Cell[units.Pressure]
	InletTemp    *Cell[units.Temperature]
	HeaterPower  *Cell[units.Power]
	OutletTemp   *Cell[units.Temperature]

	CTAHFlow   *Cell[units.MassRate]
	HeaterFlow *Cell[units.MassRate]
	CalcTime   *Cell[float64]
	Valves     *Cell[Valves]

	ProbeInput *Cell[float64]
}

type Seed struct {
	Address      string
	PumpPressure units.Pressure
	InletTemp    units.Temperature
	HeaterPower  units.Power
	OutletTemp   units.Temperature
	HeaterFlow   units.MassRate
	ProbeInput   float64
}

func NewBoard(s Seed) *Board {
	return &Board{
		Address:      New("address", s.Address),
		PumpPressure: New("ctah_pump_pressure", s.PumpPressure),
		InletTemp:    New("bt11_temperature", s.InletTemp),
		HeaterPower:  New("heater_power", s.HeaterPower),
		OutletTemp:   New("bt12_temperature", s.OutletTemp),
		CTAHFlow:     New("ctah_branch_mass_flowrate", units.MassRate(0)),
		HeaterFlow:   New("heater_branch_flowrate", s.HeaterFlow),
		CalcTime:     New("calculation_time", 0.0),
		Valves:       New("valves", Valves{Heater: true, DHX: false, CTAH: true}),
		ProbeInput:   New("probe_input", s.ProbeInput),
	}
}
