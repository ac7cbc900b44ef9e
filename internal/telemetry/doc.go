// Package telemetry exchanges process variables with the plant server.
//
// A [Bridge] owns one [Session] and, every period, reads the fixed list of
// process variables into the shared cells and writes the actuator cells back
// to the server. Failures of a single read or write are logged and counted;
// the next tick retries. A session-level failure ends [Bridge.Run] and hands
// control back to the [Supervisor].
//
// The Supervisor builds the endpoint from the operator's address cell,
// dials, and runs exactly one Bridge task at a time. Before a new task is
// started the previous one is cancelled and joined.
//
//	Disconnected -> Connecting -> Connected -> (session lost) Disconnected
//	Failed: the address cannot form an endpoint; waits for a new address.
//
// Two sessions are provided: [OPCUADialer] talks OPC UA over TCP and
// [Loopback] is an in-process server used for demos and tests.
package telemetry
