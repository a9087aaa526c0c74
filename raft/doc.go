// Package raft implements the Raft consensus protocol as a deterministic,
// single-threaded state machine.
//
// A node is driven entirely by its caller: every input is one of a logical
// clock tick, an inbound peer message, or a client request, and every input
// is processed by a single synchronous step that mutates durable state and
// accumulates outbound messages in a mailbox. Between steps the node is
// quiescent; nothing inside the package spawns goroutines or blocks.
//
// The package covers leader election with log up-to-date checks, log
// replication with base matching and truncation, quorum commit restricted
// to current-term entries, linearizable reads via heartbeat read sequence
// numbers, and abort of pending client requests on loss of leadership.
// Membership changes and log compaction are not implemented.
package raft
