package raft

import (
	"sort"

	"github.com/CrystalAnalyst/toydb/pkg/types"
	"github.com/CrystalAnalyst/toydb/raft/raftpb"
)

// tickFuncLeaderHeartbeatTimeout triggers an internal message to leader,
// so that leader can send out heartbeats to its followers.
func (rnd *raftNode) tickFuncLeaderHeartbeatTimeout() {
	rnd.heartbeatTimeoutElapsedTickNum++

	if rnd.heartbeatTimeoutElapsedTickNum >= rnd.heartbeatTimeoutTickNum {
		rnd.heartbeatTimeoutElapsedTickNum = 0
		rnd.Step(raftpb.Message{
			Type: raftpb.MESSAGE_TYPE_INTERNAL_TRIGGER_LEADER_HEARTBEAT,
			From: rnd.id,
		})
	}
}

// leaderSendHeartbeatTo sends a heartbeat carrying the leader's commit
// position and the current read sequence number.
func (rnd *raftNode) leaderSendHeartbeatTo(targetID uint64) {
	committedIndex := rnd.raftLog.committedIndex
	rnd.sendToMailbox(raftpb.Message{
		Type:        raftpb.MESSAGE_TYPE_LEADER_HEARTBEAT,
		To:          targetID,
		CommitIndex: committedIndex,
		CommitTerm:  rnd.raftLog.term(committedIndex),
		ReadSeq:     rnd.readIndex.seq,
	})
}

func (rnd *raftNode) leaderSendHeartbeats() {
	for id := range rnd.allProgresses {
		if id == rnd.id {
			continue
		}
		rnd.leaderSendHeartbeatTo(id)
	}
}

// leaderSendAppend replicates entries to the target from its probed base
// position (NextIndex-1). The base entry always exists locally because
// the log is never compacted.
func (rnd *raftNode) leaderSendAppend(targetID uint64) {
	followerProgress := rnd.allProgresses[targetID]

	baseIndex := followerProgress.NextIndex - 1
	rnd.sendToMailbox(raftpb.Message{
		Type:     raftpb.MESSAGE_TYPE_LEADER_APPEND,
		To:       targetID,
		LogIndex: baseIndex,
		LogTerm:  rnd.raftLog.term(baseIndex),
		Entries:  rnd.raftLog.entries(followerProgress.NextIndex, rnd.maxEntryNumPerMsg),
	})
}

// leaderReplicateAppends replicates append requests to all followers.
func (rnd *raftNode) leaderReplicateAppends() {
	for id := range rnd.allProgresses {
		if id == rnd.id {
			continue
		}
		rnd.leaderSendAppend(id)
	}
}

// leaderMaybeCommitWithQuorumMatchIndex tries to commit with the quorum
// index of its progresses' match indexes. For example, if given [5, 5, 4],
// it tries to commit with 5 because quorum of cluster shares that match
// index. The commit only succeeds when the entry at that index carries
// the current term.
func (rnd *raftNode) leaderMaybeCommitWithQuorumMatchIndex() bool {
	matchIndexSlice := make(uint64Slice, 0, len(rnd.allProgresses))
	for id := range rnd.allProgresses {
		matchIndexSlice = append(matchIndexSlice, rnd.allProgresses[id].MatchIndex)
	}
	sort.Sort(sort.Reverse(matchIndexSlice))
	indexToCommit := matchIndexSlice[rnd.quorum()-1]

	return rnd.raftLog.maybeCommit(indexToCommit, rnd.currentTerm)
}

// leaderAppendEntries assigns positions in the current term and appends
// to the leader's own log, advancing its own progress.
func (rnd *raftNode) leaderAppendEntries(entries ...raftpb.Entry) uint64 {
	lastIndex := rnd.raftLog.lastIndex()
	for i := range entries {
		entries[i].Index = lastIndex + 1 + uint64(i)
		entries[i].Term = rnd.currentTerm
	}

	rnd.raftLog.appendToStorage(entries...)
	rnd.allProgresses[rnd.id].maybeUpdate(rnd.raftLog.lastIndex())

	// a single-node cluster commits immediately
	rnd.leaderMaybeCommitWithQuorumMatchIndex()

	return rnd.raftLog.lastIndex()
}

func (rnd *raftNode) becomeLeader() {
	// cannot be leader without going through candidate state
	rnd.assertUnexpectedNodeState(raftpb.NODE_STATE_FOLLOWER)

	oldState := rnd.state

	rnd.resetWithTerm(rnd.currentTerm)
	rnd.leaderID = rnd.id
	rnd.state = raftpb.NODE_STATE_LEADER
	rnd.stepFunc = stepLeader
	rnd.tickFunc = rnd.tickFuncLeaderHeartbeatTimeout
	rnd.pendings = newPendingRequests()

	// The new leader may not know which entries are committed. Raft makes
	// each leader commit a blank no-op entry at the start of its term, so
	// the quorum count can advance the commit index in this term and
	// everything before it commits with it.
	rnd.leaderAppendEntries(raftpb.Entry{})

	raftLogger.Infof("%s transitioned from %q [last log index=%d]", rnd.describe(), oldState, rnd.raftLog.lastIndex())

	rnd.leaderReplicateAppends()
	rnd.leaderSendHeartbeats()
}

// leaderHandleClientRequest accepts a write into the log or a read into
// the read-index protocol. The origin node (the local node for direct
// clients) is remembered so the response can be routed back.
func (rnd *raftNode) leaderHandleClientRequest(msg raftpb.Message) {
	switch msg.RequestKind {
	case raftpb.REQUEST_KIND_WRITE:
		index := rnd.leaderAppendEntries(raftpb.Entry{Data: msg.Data})
		rnd.pendings.addWrite(&pendingWrite{
			requestID: msg.RequestID,
			from:      msg.From,
			index:     index,
		})
		rnd.leaderReplicateAppends()

	case raftpb.REQUEST_KIND_READ:
		seq := rnd.readIndex.next()
		rnd.pendings.addRead(&pendingRead{
			requestID:   msg.RequestID,
			from:        msg.From,
			readSeq:     seq,
			commitIndex: rnd.raftLog.committedIndex,
			data:        msg.Data,
		})

		// the read is serveable once a quorum echoes this sequence and
		// the recorded commit point is applied
		rnd.leaderSendHeartbeats()

	default:
		raftLogger.Panicf("%s got client request %s of unknown kind %d", rnd.describe(), msg.RequestID, msg.RequestKind)
	}
}

func stepLeader(rnd *raftNode, msg raftpb.Message) {
	rnd.assertNodeState(raftpb.NODE_STATE_LEADER)

	switch msg.Type {
	case raftpb.MESSAGE_TYPE_INTERNAL_TRIGGER_LEADER_HEARTBEAT:
		rnd.leaderSendHeartbeats()
		return

	case raftpb.MESSAGE_TYPE_LEADER_APPEND, raftpb.MESSAGE_TYPE_LEADER_HEARTBEAT:
		// term normalization already filtered lower and higher terms,
		// so this is a second leader in the current term
		raftLogger.Panicf("%s saw other leader %s in term %d (multiple leaders in term)",
			rnd.describe(), types.ID(msg.From), rnd.currentTerm)

	case raftpb.MESSAGE_TYPE_CAMPAIGN:
		// a vote in this term elected this node
		rnd.sendToMailbox(raftpb.Message{
			Type: raftpb.MESSAGE_TYPE_RESPONSE_TO_CAMPAIGN,
			To:   msg.From,
		})
		return

	case raftpb.MESSAGE_TYPE_CLIENT_REQUEST:
		rnd.leaderHandleClientRequest(msg)
		return

	case raftpb.MESSAGE_TYPE_CLIENT_RESPONSE:
		rnd.relayClientResponse(msg)
		return
	}

	followerProgress, ok := rnd.allProgresses[msg.From]
	if !ok {
		raftLogger.Infof("%s has no progress of follower %s; dropping %q", rnd.describe(), types.ID(msg.From), msg.Type)
		return
	}

	switch msg.Type {
	case raftpb.MESSAGE_TYPE_RESPONSE_TO_LEADER_APPEND:
		followerProgress.RecentActive = true

		if msg.Reject {
			raftLogger.Infof("%s sent append, rejected by %s [follower last index=%d | %s]",
				rnd.describe(), types.ID(msg.From), msg.LogIndex, followerProgress)
			if followerProgress.maybeDecrease(msg.LogIndex) {
				rnd.leaderSendAppend(msg.From) // retry with the backed-off base
			}
			return
		}

		if followerProgress.maybeUpdate(msg.LogIndex) {
			// the commit index moves when a quorum matches an entry of
			// the current term; followers learn of it on the next
			// heartbeat
			rnd.leaderMaybeCommitWithQuorumMatchIndex()

			if rnd.raftLog.lastIndex() > followerProgress.MatchIndex {
				rnd.leaderSendAppend(msg.From)
			}
		}

	case raftpb.MESSAGE_TYPE_RESPONSE_TO_LEADER_HEARTBEAT:
		followerProgress.RecentActive = true

		if msg.ReadSeq > followerProgress.AckedReadSeq {
			followerProgress.AckedReadSeq = msg.ReadSeq
		}

		if rnd.raftLog.lastIndex() > followerProgress.MatchIndex {
			rnd.leaderSendAppend(msg.From)
		}
	}
}
