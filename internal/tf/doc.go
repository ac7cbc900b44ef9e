// Package tf implements stateful linear transfer-function operators.
//
// An [Operator] maps a time-indexed scalar input to a scalar output:
//
//	y, err := g.Advance(u, t)
//
// t is in seconds and must not decrease between calls. The input is held
// constant between calls (zero-order hold) and the internal state is
// integrated with RK4 sub-steps. A call that would produce a non-finite
// state or output returns an error and leaves the operator untouched, so the
// caller can retry or carry on with the previous output.
//
// Rational transfer functions are realised in controllable canonical form.
// Coefficients are given highest power of s first:
//
//	//        0.000119 s - 2.201e-7
//	// G(s) = ----------------------------
//	//        s^2 + 0.0007903 s + 6.667e-7
//	g, err := tf.New([]float64{0.000119, -2.201e-7}, []float64{1, 0.0007903, 6.667e-7}, 0)
//
// Callers that need all-or-nothing semantics across several operators take a
// Snapshot of each before the tick and Restore them on failure.
package tf
