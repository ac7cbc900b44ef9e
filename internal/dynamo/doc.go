// Package dynamo provides the numeric primitives shared by the transfer
// functions and the heater plant.
//
// The package defines the fundamental interfaces and types for stepping
// ordinary differential equations (ODEs) forward under a held input:
//
//   - [State]: vector representing internal state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical stepper interface
//   - [Configurable]: live parameter access for controller blocks
//
// # Example
//
//	g, _ := tf.FirstOrder(4.5, 0.1, 0) // a System under the hood
//	rk := integrators.NewRK4()
//	x = rk.Step(g, x, dynamo.Input{u}, t, dt)
//
// # Thread Safety
//
// Nothing here is safe for concurrent use. Each stateful operator is owned by
// exactly one loop.
package dynamo
