// Package progress renders download progress as a single redrawn terminal line.
//
// A Bar is a pure value that formats (current, lower, upper) as text. A Sink
// receives updates from a transfer loop; Renderer draws them at a capped rate
// and Nop discards them for non-interactive output.
package progress
