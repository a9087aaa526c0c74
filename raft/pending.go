package raft

// pendingWrite is a client write accepted by the leader, waiting for its
// log index to be committed and applied.
type pendingWrite struct {
	requestID string

	// from is the node the request entered the cluster through; the
	// response is routed back to it (the local node for direct clients).
	from uint64

	// index is the log position the write was appended at.
	index uint64
}

// pendingRead is a client read accepted by the leader, waiting for a
// quorum echo of its read sequence and for the apply index to reach the
// commit index recorded at acceptance.
type pendingRead struct {
	requestID string
	from      uint64

	readSeq     uint64
	commitIndex uint64

	// data is the query payload, handed to the state machine once the
	// read becomes serveable.
	data []byte
}

// pendingRequests is the leader's table of outstanding client requests.
// Everything in it is flushed with an abort on any transition out of
// leadership.
type pendingRequests struct {
	// writes is keyed by log index; one client write occupies exactly
	// one log position.
	writes map[uint64]*pendingWrite

	// reads is ordered by read sequence number.
	reads []*pendingRead
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{
		writes: make(map[uint64]*pendingWrite),
	}
}

func (ps *pendingRequests) addWrite(w *pendingWrite) {
	if prev, ok := ps.writes[w.index]; ok {
		raftLogger.Panicf("two pending writes at log index %d (request ids %s, %s)", w.index, prev.requestID, w.requestID)
	}
	ps.writes[w.index] = w
}

func (ps *pendingRequests) addRead(r *pendingRead) {
	ps.reads = append(ps.reads, r)
}

// takeWrite removes and returns the pending write at the given log
// index, if any.
func (ps *pendingRequests) takeWrite(index uint64) (*pendingWrite, bool) {
	w, ok := ps.writes[index]
	if ok {
		delete(ps.writes, index)
	}
	return w, ok
}

// takeServeableReads removes and returns, in issue order, every pending
// read whose sequence is covered by ackedSeq and whose recorded commit
// point is covered by appliedIndex.
func (ps *pendingRequests) takeServeableReads(ackedSeq, appliedIndex uint64) []*pendingRead {
	var (
		served  []*pendingRead
		waiting []*pendingRead
	)
	for _, r := range ps.reads {
		if r.readSeq <= ackedSeq && r.commitIndex <= appliedIndex {
			served = append(served, r)
			continue
		}
		waiting = append(waiting, r)
	}
	ps.reads = waiting
	return served
}

// drain empties the table, returning everything that was pending.
func (ps *pendingRequests) drain() ([]*pendingWrite, []*pendingRead) {
	writes := make([]*pendingWrite, 0, len(ps.writes))
	for _, w := range ps.writes {
		writes = append(writes, w)
	}
	reads := ps.reads

	ps.writes = make(map[uint64]*pendingWrite)
	ps.reads = nil
	return writes, reads
}

func (ps *pendingRequests) empty() bool {
	return len(ps.writes) == 0 && len(ps.reads) == 0
}
