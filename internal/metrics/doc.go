// Package metrics observes the running loops.
//
// [Collector] exports Prometheus series for every periodic loop, the
// connection state machine and the series buffers. The in-process
// observers ([ControlEffort], [Tracking], [Energy]) summarise the control
// ticks for the terminal view and the run recorder.
package metrics
