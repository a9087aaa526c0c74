package raft

import (
	"sync"

	"github.com/CrystalAnalyst/toydb/raft/raftpb"
)

// StorageStableInMemory implements StorageStable interface backed by
// in-memory storage. Writes are "durable" only for the lifetime of the
// process; it exists for tests and single-run experiments.
type StorageStableInMemory struct {
	mu sync.Mutex

	hardState raftpb.HardState

	// entries[i] holds the entry at log index i+1;
	// entries[0] is always the genesis entry.
	entries []raftpb.Entry
}

// NewStorageStableInMemory creates an empty StorageStable in memory,
// seeded with the genesis entry.
func NewStorageStableInMemory() *StorageStableInMemory {
	return &StorageStableInMemory{
		entries: []raftpb.Entry{GenesisEntry()},
	}
}

// GetState returns the saved HardState.
func (ms *StorageStableInMemory) GetState() (raftpb.HardState, error) {
	ms.mu.Lock()
	st := ms.hardState
	ms.mu.Unlock()

	return st, nil
}

// SetState persists the HardState.
func (ms *StorageStableInMemory) SetState(st raftpb.HardState) error {
	ms.mu.Lock()
	ms.hardState = st
	ms.mu.Unlock()

	return nil
}

// FirstIndex returns the first index, which in memory is always genesis.
func (ms *StorageStableInMemory) FirstIndex() (uint64, error) {
	return GenesisIndex, nil
}

func (ms *StorageStableInMemory) lastIndex() uint64 {
	return ms.entries[len(ms.entries)-1].Index
}

// LastIndex returns the last index.
func (ms *StorageStableInMemory) LastIndex() (uint64, error) {
	ms.mu.Lock()
	idx := ms.lastIndex()
	ms.mu.Unlock()

	return idx, nil
}

// Term returns the term of the given index.
func (ms *StorageStableInMemory) Term(index uint64) (uint64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if index < GenesisIndex {
		return 0, ErrCompacted
	}
	if index > ms.lastIndex() {
		return 0, ErrUnavailable
	}

	return ms.entries[index-GenesisIndex].Term, nil
}

// Entries returns the slice of log entries of [startIndex, endIndex).
func (ms *StorageStableInMemory) Entries(startIndex, endIndex, limitSize uint64) ([]raftpb.Entry, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if startIndex < GenesisIndex {
		return nil, ErrCompacted
	}
	if endIndex > ms.lastIndex()+1 {
		raftLogger.Panicf("end index '%d' out of bound (entries last index = %d)", endIndex, ms.lastIndex())
	}
	if startIndex >= endIndex {
		return nil, nil
	}

	sub := ms.entries[startIndex-GenesisIndex : endIndex-GenesisIndex]
	entries := make([]raftpb.Entry, len(sub))
	copy(entries, sub)
	return limitEntries(limitSize, entries...), nil
}

// Append writes entries, truncating any diverging suffix at or above
// entries[0].Index.
func (ms *StorageStableInMemory) Append(entries ...raftpb.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	first := entries[0].Index
	if first <= GenesisIndex {
		raftLogger.Panicf("cannot truncate genesis entry (append at index %d)", first)
	}
	if first > ms.lastIndex()+1 {
		raftLogger.Panicf("append at index %d leaves gap after last index %d", first, ms.lastIndex())
	}

	ms.entries = append(ms.entries[:first-GenesisIndex], entries...)
	return nil
}
