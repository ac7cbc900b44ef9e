// Package viz is the terminal view of the running loop.
//
// [Model] is a Bubble Tea program that only reads the shared series buffers
// and writes the operator cells. Every frame it prunes each buffer once, so
// the sliding windows catch up incrementally while the view keeps redrawing.
//
// # Key Bindings
//
//	Tab     - Select the next operator input
//	Up/K    - Raise the selected input
//	Down/J  - Lower the selected input
//	A       - Edit the server address (Enter applies, Esc cancels)
//	T       - Cycle color themes
//	?       - Show help overlay
//	Q       - Quit
package viz
