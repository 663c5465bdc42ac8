// Package audit implements async delivery of controller events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered relay with drop-if-full / block-if-full semantics.
//   - [Event]: record of a session observation, navigation or fetch outcome.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the controller does.
//
// # What this package must NOT do
//
//   - Filter or suppress events.
//   - Import authstatus or any sibling package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
