// Package primitives provides the foundational, zero-dependency data structures
// for the real-time FSM engine.
//
// This package uses ONLY the Go standard library. Everything here is plain data:
// definitions (state tables, routing, wave declarations), the command and reply
// shapes exchanged with the control program, transition records, and the typed
// bit sets used for events and channels.
//
// Core invariants:
//   - Every next-state in a valid Definition is < len(Rows)
//   - Event ids live in [-1, NumEventCols]; -1 means unrouted
//   - Bit sets are fixed width (32) and are iterated with PopLowest
package primitives
