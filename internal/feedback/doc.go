// Package feedback turns heater inlet/outlet temperatures into a heater power
// command once per control tick.
//
// A [Strategy] is selected by configuration:
//
//   - [ParallelSum]: every branch sees the inlet deviation, the branch powers
//     are summed with a nominal bias and clipped to a floor.
//   - [Cascade]: the inlet deviation runs through a chain of operators, the
//     result is scaled, biased and clipped.
//   - [PIDCascade]: a derivative-leading inner block on the outlet deviation
//     corrects the reference model setpoint and an integral-leading outer
//     block turns the remaining error into power. There is no floor.
//   - [Manual]: the operator sets the power; only the reference model runs.
//
// Every strategy also advances the reference model, which predicts the outlet
// temperature from the inlet deviation.
//
// All temperature arithmetic goes through the units package. A Compute that
// fails leaves every operator exactly as it was before the call.
package feedback
