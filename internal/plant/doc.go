// Package plant simulates the heater test loop served to the telemetry
// client: an electrically heated section of N fluid nodes around a steel
// shell, fed by an isothermal pumped loop whose branch flows follow the pump
// pressure and valve line-up.
//
// The plant is stepped as an opaque entity by [Runner], which exchanges
// values with an in-process server every period (15 ms by default).
package plant
