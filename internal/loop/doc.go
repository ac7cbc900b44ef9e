// Package loop runs the periodic control computation.
//
// A [Driver] tick reads BT-11 and BT-12 from the board, asks the configured
// feedback strategy for a heater command, writes it back for the telemetry
// bridge to send, and appends the tick to the series buffers. A failed or
// panicking tick leaves the strategy exactly as it was before the tick.
//
// [Probe] drives the transfer-function demonstration from an operator input.
package loop
