package raft

import "github.com/CrystalAnalyst/toydb/raft/raftpb"

// GenesisIndex is the reserved first log position. Every log starts with
// the implicit genesis entry (index=1, term=1, no command), so two empty
// logs always share a common base for replication.
const GenesisIndex uint64 = 1

// GenesisEntry returns the implicit first entry of every log.
func GenesisEntry() raftpb.Entry {
	return raftpb.Entry{Index: GenesisIndex, Term: 1}
}

// StorageStable defines the durable storage contract for a Raft node:
// term and vote persistence plus the entry log. Every mutating call is
// synchronous; durability is guaranteed on return.
type StorageStable interface {
	// GetState returns the saved HardState.
	GetState() (raftpb.HardState, error)

	// SetState persists the HardState. It must be durable before any
	// message reflecting the state is sent.
	SetState(st raftpb.HardState) error

	// FirstIndex returns the index of the first-available log entry,
	// which is the genesis index unless entries were dropped.
	FirstIndex() (uint64, error)

	// LastIndex returns the index of the last log entry in storage.
	LastIndex() (uint64, error)

	// Term returns the term of the entry at index, which must be in the
	// range [FirstIndex, LastIndex].
	Term(index uint64) (uint64, error)

	// Entries returns the slice of log entries in [startIndex, endIndex).
	// limitSize limits the total size of log entries to return.
	// It returns at least one entry if any.
	Entries(startIndex, endIndex, limitSize uint64) ([]raftpb.Entry, error)

	// Append writes entries, truncating any existing diverging suffix:
	// entries at or above entries[0].Index are discarded first. The
	// genesis entry can never be truncated.
	Append(entries ...raftpb.Entry) error
}
