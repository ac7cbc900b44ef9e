package telemetry

import (
	"fmt"
	"math"

	"github.com/san-kum/heaterloop/internal/cell"
	"github.com/san-kum/heaterloop/internal/units"
)

type Kind uint8

const (
	KindEmpty Kind = iota
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	}
	return "empty"
}

// Value is a wire value after the protocol layer has classified it.
type Value struct {
	kind Kind
	f    float64
	b    bool
	// status is the server's reason for an empty value
	status string
}

func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func Bool(v bool) Value     { return Value{kind: KindBool, b: v} }

// Empty is a value the server did not deliver.
func Empty(status string) Value { return Value{status: status} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Float() (float64, error) {
	if v.kind != KindFloat {
		return 0, &DecodeError{Want: KindFloat, Got: v.kind, Status: v.status}
	}
	if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
		return 0, &DecodeError{Want: KindFloat, Got: v.kind, Status: "non-finite"}
	}
	return v.f, nil
}

func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, &DecodeError{Want: KindBool, Got: v.kind, Status: v.status}
	}
	return v.b, nil
}

func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	}
	return "<empty " + v.status + ">"
}

type DecodeError struct {
	Node   string
	Index  int
	Want   Kind
	Got    Kind
	Status string
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("telemetry: decode %s (index %d): want %s, got %s", e.Node, e.Index, e.Want, e.Got)
	if e.Status != "" {
		msg += " (" + e.Status + ")"
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

// Readings is one decoded read batch.
type Readings struct {
	CTAHFlow     units.MassRate
	PumpPressure units.Pressure
	CalcTime     float64
	HeaterFlow   units.MassRate
	Inlet        units.Temperature
	HeaterPower  units.Power
	Outlet       units.Temperature
	Valves       cell.Valves
}

// DecodeReadings applies the index contract of ReadList to vals.
func DecodeReadings(vals []Value) (Readings, error) {
	if len(vals) != readCount {
		return Readings{}, fmt.Errorf("%w: got %d values, want %d", ErrDecode, len(vals), readCount)
	}
	d := decoder{vals: vals}
	r := Readings{
		CTAHFlow:     units.MassRate(d.float(IdxCTAHFlow)),
		PumpPressure: units.Pressure(d.float(IdxPumpPressure)),
		CalcTime:     d.float(IdxCalcTime),
		HeaterFlow:   units.MassRate(d.float(IdxHeaterFlow)),
		Inlet:        units.Celsius(d.float(IdxInletTemp)),
		HeaterPower:  units.Kilowatts(d.float(IdxHeaterPower)),
		Outlet:       units.Celsius(d.float(IdxOutletTemp)),
		Valves: cell.Valves{
			Heater: d.bool(IdxHeaterValve),
			DHX:    d.bool(IdxDHXValve),
			CTAH:   d.bool(IdxCTAHValve),
		},
	}
	return r, d.err
}

// decoder keeps the first error so DecodeReadings reads as a plain list.
type decoder struct {
	vals []Value
	err  error
}

func (d *decoder) float(i int) float64 {
	v, err := d.vals[i].Float()
	d.fail(i, err)
	return v
}

func (d *decoder) bool(i int) bool {
	v, err := d.vals[i].Bool()
	d.fail(i, err)
	return v
}

func (d *decoder) fail(i int, err error) {
	if err == nil || d.err != nil {
		return
	}
	if de, ok := err.(*DecodeError); ok {
		de.Node = readNames[i]
		de.Index = i
	}
	d.err = err
}

// Commands are the actuator values written each tick.
type Commands struct {
	PumpPressure units.Pressure
	Inlet        units.Temperature
	HeaterPower  units.Power
}

type WriteValue struct {
	Node  NodeID
	Value Value
}

// Encode pairs the commands with WriteList(ns). Heater power goes out in kW.
func (c Commands) Encode(ns uint16) []WriteValue {
	nodes := WriteList(ns)
	return []WriteValue{
		{Node: nodes[0], Value: Float(c.PumpPressure.Pascals())},
		{Node: nodes[1], Value: Float(c.Inlet.Celsius())},
		{Node: nodes[2], Value: Float(c.HeaterPower.Kilowatts())},
	}
}
