package raft

import (
	"fmt"
	"math"

	"github.com/CrystalAnalyst/toydb/raft/raftpb"
)

// raftLog tracks the commit and apply positions over the durable entry
// store. The storage adapter guarantees durability on return, so entries
// are written straight through; there is no unstable buffer.
type raftLog struct {
	storageStable StorageStable

	// committedIndex is the highest log position that is known to be
	// stored on a quorum of nodes. Never decreases.
	committedIndex uint64

	// appliedIndex is the highest log position that has been handed to
	// the application state machine.
	// Must: appliedIndex <= committedIndex
	appliedIndex uint64
}

// newRaftLog returns a new raftLog over the given stable storage.
// The genesis entry is committed and applied by definition.
func newRaftLog(storageStable StorageStable) *raftLog {
	if storageStable == nil {
		raftLogger.Panic("stable storage must not be nil")
	}

	lg := &raftLog{
		storageStable:  storageStable,
		committedIndex: GenesisIndex,
		appliedIndex:   GenesisIndex,
	}

	if firstIndex := lg.firstIndex(); firstIndex != GenesisIndex {
		raftLogger.Panicf("stable storage first index must be the genesis index (got %d)", firstIndex)
	}

	return lg
}

func (lg *raftLog) String() string {
	return fmt.Sprintf("[committed index=%d | applied index=%d | last index=%d]",
		lg.committedIndex, lg.appliedIndex, lg.lastIndex())
}

func (lg *raftLog) firstIndex() uint64 {
	index, err := lg.storageStable.FirstIndex()
	if err != nil {
		raftLogger.Panicf("raftLog.storageStable.FirstIndex error (%v)", err)
	}
	return index
}

func (lg *raftLog) lastIndex() uint64 {
	index, err := lg.storageStable.LastIndex()
	if err != nil {
		raftLogger.Panicf("raftLog.storageStable.LastIndex error (%v)", err)
	}
	return index
}

// term gets the term of specified index, returning 0 for positions
// outside the log.
func (lg *raftLog) term(index uint64) uint64 {
	if index < lg.firstIndex() || index > lg.lastIndex() {
		return 0
	}

	tm, err := lg.storageStable.Term(index)
	if err != nil {
		raftLogger.Panicf("raftLog.storageStable.Term(%d) error (%v)", index, err)
	}
	return tm
}

// lastTerm returns the term of the last log entry.
func (lg *raftLog) lastTerm() uint64 {
	return lg.term(lg.lastIndex())
}

// matchTerm returns true if the log has an entry at index with the
// given term.
func (lg *raftLog) matchTerm(index, term uint64) bool {
	if index < lg.firstIndex() || index > lg.lastIndex() {
		return false
	}
	return lg.term(index) == term
}

// slice returns the entries[startIndex, endIndex) with limit size.
func (lg *raftLog) slice(startIndex, endIndex, limitSize uint64) []raftpb.Entry {
	if startIndex > endIndex {
		raftLogger.Panicf("invalid raft log indexes [start index=%d | end index=%d]", startIndex, endIndex)
	}
	if startIndex == endIndex {
		return nil
	}
	if endIndex > lg.lastIndex()+1 {
		raftLogger.Panicf("entries[%d, %d) is out of bound [first index=%d | last index=%d]",
			startIndex, endIndex, lg.firstIndex(), lg.lastIndex())
	}

	entries, err := lg.storageStable.Entries(startIndex, endIndex, limitSize)
	if err != nil {
		raftLogger.Panicf("raftLog.storageStable.Entries(%d, %d) error (%v)", startIndex, endIndex, err)
	}
	return entries
}

// entries returns the entries[startIndex, lastIndex+1) with size limit.
func (lg *raftLog) entries(startIndex, limitSize uint64) []raftpb.Entry {
	if startIndex > lg.lastIndex() {
		return nil
	}
	return lg.slice(startIndex, lg.lastIndex()+1, limitSize)
}

// allEntries returns all entries in the log, including genesis.
func (lg *raftLog) allEntries() []raftpb.Entry {
	return lg.entries(lg.firstIndex(), math.MaxUint64)
}

// isUpToDate returns true if the given (index, term) is at least as
// up-to-date as the last entry in the existing log, comparing
// (term, index) lexicographically.
func (lg *raftLog) isUpToDate(index, term uint64) bool {
	return term > lg.lastTerm() || (term == lg.lastTerm() && index >= lg.lastIndex())
}

// appendToStorage appends entries whose index and term were already
// assigned by the caller, truncating any diverging suffix.
func (lg *raftLog) appendToStorage(entries ...raftpb.Entry) uint64 {
	if len(entries) == 0 {
		return lg.lastIndex()
	}

	if expectedLastIndex := entries[0].Index - 1; expectedLastIndex < lg.committedIndex {
		raftLogger.Panicf("appending at index %d would truncate below committed index %d",
			entries[0].Index, lg.committedIndex)
	}

	if err := lg.storageStable.Append(entries...); err != nil {
		raftLogger.Panicf("raftLog.storageStable.Append error (%v)", err)
	}
	return lg.lastIndex()
}

// findConflict finds the first entry index with conflicting term.
// An entry is conflicting if it has the same index but different term.
// It returns 0 when every given entry is already present with a
// matching term.
func (lg *raftLog) findConflict(entries ...raftpb.Entry) uint64 {
	for _, ent := range entries {
		if !lg.matchTerm(ent.Index, ent.Term) {
			if ent.Index <= lg.lastIndex() {
				raftLogger.Infof("conflicting entry at index %d [existing term %d != conflicting term %d]",
					ent.Index, lg.term(ent.Index), ent.Term)
			}
			return ent.Index
		}
	}
	return 0
}

// maybeAppend accepts a replication from (baseIndex, baseTerm): the base
// must match by term, any diverging suffix strictly above the last
// matching position is truncated, and the new entries are written.
// It returns the last new index and true, or 0 and false when the base
// does not match. Re-delivery of the same (base, entries) is idempotent.
func (lg *raftLog) maybeAppend(baseIndex, baseTerm uint64, entries ...raftpb.Entry) (uint64, bool) {
	if !lg.matchTerm(baseIndex, baseTerm) {
		return 0, false
	}

	conflictingIndex := lg.findConflict(entries...)
	switch {
	case conflictingIndex == 0:
		// fully contained already

	case conflictingIndex <= lg.committedIndex:
		raftLogger.Panicf("conflicting entry index '%d' must be greater than committed index '%d'",
			conflictingIndex, lg.committedIndex)

	default:
		lg.appendToStorage(entries[conflictingIndex-(baseIndex+1):]...)
	}

	return baseIndex + uint64(len(entries)), true
}

// commitTo updates committedIndex. A lower index is a no-op; commit
// never goes backward.
func (lg *raftLog) commitTo(indexToCommit uint64) {
	if lg.committedIndex < indexToCommit {
		if lg.lastIndex() < indexToCommit {
			raftLogger.Panicf("got wrong commit index '%d', greater than last index '%d' (possible log corruption, truncation, lost)",
				indexToCommit, lg.lastIndex())
		}
		lg.committedIndex = indexToCommit
	}
}

// maybeCommit is only successful if 'indexToCommit' is greater than the
// current committed index and the entry at 'indexToCommit' carries
// 'termToCommit'. Committing entries of older terms by counting
// replicas is unsafe across leader changes.
func (lg *raftLog) maybeCommit(indexToCommit, termToCommit uint64) bool {
	if indexToCommit > lg.committedIndex && lg.term(indexToCommit) == termToCommit {
		lg.commitTo(indexToCommit)
		return true
	}
	return false
}

// appliedTo updates appliedIndex.
func (lg *raftLog) appliedTo(indexToApply uint64) {
	if indexToApply == 0 {
		return
	}

	if lg.committedIndex < indexToApply || indexToApply < lg.appliedIndex {
		raftLogger.Panicf("got wrong applied index '%d' [commit index=%d | previous applied index=%d]",
			indexToApply, lg.committedIndex, lg.appliedIndex)
	}

	lg.appliedIndex = indexToApply
}

// hasNextEntriesToApply returns true if there are committed entries not
// yet handed to the application state machine.
func (lg *raftLog) hasNextEntriesToApply() (uint64, bool) {
	maxStart := maxUint64(lg.appliedIndex+1, lg.firstIndex())
	return maxStart, lg.committedIndex >= maxStart
}

// nextEntriesToApply returns all committed-but-unapplied entries in order.
func (lg *raftLog) nextEntriesToApply() []raftpb.Entry {
	maxStart, ok := lg.hasNextEntriesToApply()
	if !ok {
		return nil
	}
	return lg.slice(maxStart, lg.committedIndex+1, math.MaxUint64)
}
