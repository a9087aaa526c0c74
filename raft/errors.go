package raft

import "errors"

var (
	// ErrStopped is returned when a Node has been stopped.
	ErrStopped = errors.New("raft: stopped")

	// ErrCompacted indicates that requested index is unavailable
	// because it predates the first index in storage.
	ErrCompacted = errors.New("raft: requested index is unavailable (already compacted)")

	// ErrUnavailable is returned when the requested log entries
	// aren't available.
	ErrUnavailable = errors.New("raft: requested entry at index is unavailable")
)
