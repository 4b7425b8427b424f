// Package queue owns the durable set of pending scheduled events.
//
// The in-memory side is a min-heap keyed by fire instant with insertion
// order as tiebreak; the durable side is a pluggable Store (SQLite or
// memory). Restart recovery is the store's contract: every non-terminal
// event is reloaded on open, and past-due events fire immediately instead
// of being dropped.
package queue
