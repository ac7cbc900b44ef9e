// Package app wires the board, the loops, the connection supervisor and the
// optional plant, recorder, metrics endpoint and terminal view into one
// process.
package app
