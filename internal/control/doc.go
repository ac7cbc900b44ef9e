// Package control provides the PID family of controller blocks used by the
// feedback strategies.
//
// Blocks act on an error signal and satisfy [tf.Operator], so they compose
// with transfer functions and share their snapshot/restore contract:
//
//   - [NewIntegral]: integral-leading PI block, gain*(1 + 1/(Ti s))
//   - [NewDerivative]: derivative-leading PD block with a first-order
//     filter on the derivative term
//   - [NewPID]: the general form
//
// # Usage
//
//	outer, _ := control.NewIntegral(2.0, 30)
//	u, err := outer.Advance(setpoint-measured, t)
//
// Blocks implement [dynamo.Configurable]; the pid-cascade strategy exposes
// them so the loop driver can retune gains between ticks.
package control
