package raft

import (
	"github.com/CrystalAnalyst/toydb/pkg/types"
	"github.com/CrystalAnalyst/toydb/raft/raftpb"
)

// promotableToLeader return true if the local state machine can be
// promoted to leader.
func (rnd *raftNode) promotableToLeader() bool {
	_, ok := rnd.allProgresses[rnd.id]
	return ok
}

// tickFuncFollowerElectionTimeout triggers an internal campaign message
// once the randomized election timeout elapses without a word from a
// valid leader.
func (rnd *raftNode) tickFuncFollowerElectionTimeout() {
	if rnd.id == rnd.leaderID {
		raftLogger.Panicf("tickFuncFollowerElectionTimeout must be called by follower or candidate [id=%x | leader id=%x]", rnd.id, rnd.leaderID)
	}

	rnd.electionTimeoutElapsedTickNum++
	if rnd.promotableToLeader() && rnd.pastElectionTimeout() {
		rnd.electionTimeoutElapsedTickNum = 0
		rnd.Step(raftpb.Message{
			Type: raftpb.MESSAGE_TYPE_INTERNAL_TRIGGER_CAMPAIGN,
			From: rnd.id,
		})
	}
}

func (rnd *raftNode) becomeFollower(term, leaderID uint64) {
	oldState := rnd.state
	if oldState == raftpb.NODE_STATE_LEADER {
		// losing leadership is terminal for every request the leader
		// was still serving
		rnd.abortPendingRequests()
	}

	rnd.resetWithTerm(term)
	rnd.leaderID = leaderID
	rnd.state = raftpb.NODE_STATE_FOLLOWER
	rnd.stepFunc = stepFollower
	rnd.tickFunc = rnd.tickFuncFollowerElectionTimeout

	rnd.persistHardState()

	raftLogger.Infof("%s transitioned from %q", rnd.describe(), oldState)
}

// followerCheckLeader records the sender of an append or heartbeat of the
// current term as the term's leader. Two different nodes claiming
// leadership in one term breaks the protocol's safety argument, so the
// node halts rather than continue on corrupt state.
func (rnd *raftNode) followerCheckLeader(msg raftpb.Message) {
	if rnd.leaderID != NoNodeID && rnd.leaderID != msg.From {
		raftLogger.Panicf("%s saw other leader %s in term %d (multiple leaders in term)",
			rnd.describe(), types.ID(msg.From), rnd.currentTerm)
	}

	rnd.leaderID = msg.From
	rnd.electionTimeoutElapsedTickNum = 0
}

// followerHandleAppend accepts replicated entries when the base position
// matches the local log, truncating any diverging suffix above it.
// Re-delivery of the same append is idempotent.
func (rnd *raftNode) followerHandleAppend(msg raftpb.Message) {
	lastNewIndex, ok := rnd.raftLog.maybeAppend(msg.LogIndex, msg.LogTerm, msg.Entries...)
	if !ok {
		raftLogger.Infof("%s rejects append from %s [base index=%d | base term=%d | local last index=%d]",
			rnd.describe(), types.ID(msg.From), msg.LogIndex, msg.LogTerm, rnd.raftLog.lastIndex())
		rnd.sendToMailbox(raftpb.Message{
			Type:     raftpb.MESSAGE_TYPE_RESPONSE_TO_LEADER_APPEND,
			To:       msg.From,
			LogIndex: rnd.raftLog.lastIndex(),
			LogTerm:  rnd.raftLog.lastTerm(),
			Reject:   true,
		})
		return
	}

	rnd.sendToMailbox(raftpb.Message{
		Type:     raftpb.MESSAGE_TYPE_RESPONSE_TO_LEADER_APPEND,
		To:       msg.From,
		LogIndex: lastNewIndex,
		LogTerm:  rnd.raftLog.term(lastNewIndex),
	})
}

// followerHandleHeartbeat advances the commit index to the leader's,
// but only when the local entry at that position carries the commit
// term; otherwise the advance is deferred until replication catches up.
func (rnd *raftNode) followerHandleHeartbeat(msg raftpb.Message) {
	if rnd.raftLog.matchTerm(msg.CommitIndex, msg.CommitTerm) {
		rnd.raftLog.commitTo(minUint64(msg.CommitIndex, rnd.raftLog.lastIndex()))
	}

	rnd.sendToMailbox(raftpb.Message{
		Type:     raftpb.MESSAGE_TYPE_RESPONSE_TO_LEADER_HEARTBEAT,
		To:       msg.From,
		LogIndex: rnd.raftLog.lastIndex(),
		LogTerm:  rnd.raftLog.lastTerm(),
		ReadSeq:  msg.ReadSeq,
	})
}

// followerHandleCampaign votes for the candidate iff this node has not
// voted for anyone else in the current term and the candidate's log is
// at least as up-to-date as the local one.
func (rnd *raftNode) followerHandleCampaign(msg raftpb.Message) {
	canVote := rnd.votedFor == NoNodeID || rnd.votedFor == msg.From
	if canVote && rnd.raftLog.isUpToDate(msg.LogIndex, msg.LogTerm) {
		raftLogger.Infof("%s votes for %s [candidate last index=%d | candidate last term=%d]",
			rnd.describe(), types.ID(msg.From), msg.LogIndex, msg.LogTerm)

		rnd.votedFor = msg.From
		rnd.persistHardState()
		rnd.electionTimeoutElapsedTickNum = 0

		rnd.sendToMailbox(raftpb.Message{
			Type:        raftpb.MESSAGE_TYPE_RESPONSE_TO_CAMPAIGN,
			To:          msg.From,
			VoteGranted: true,
		})
		return
	}

	raftLogger.Infof("%s rejects vote request from %s [voted for=%s | candidate last index=%d | candidate last term=%d | local last index=%d | local last term=%d]",
		rnd.describe(), types.ID(msg.From), types.ID(rnd.votedFor),
		msg.LogIndex, msg.LogTerm, rnd.raftLog.lastIndex(), rnd.raftLog.lastTerm())

	rnd.sendToMailbox(raftpb.Message{
		Type: raftpb.MESSAGE_TYPE_RESPONSE_TO_CAMPAIGN,
		To:   msg.From,
	})
}

// followerForwardClientRequest forwards a local client request to the
// known leader. With no leader known the request is dropped: the core
// does not buffer, retry, or answer it, and the caller's own timeout is
// the only way out.
func (rnd *raftNode) followerForwardClientRequest(msg raftpb.Message) {
	if msg.From != rnd.id {
		raftLogger.Infof("%s drops forwarded client request %s from %s; not leader",
			rnd.describe(), msg.RequestID, types.ID(msg.From))
		return
	}

	if rnd.leaderID == NoNodeID {
		raftLogger.Infof("%s drops client request %s; no known leader", rnd.describe(), msg.RequestID)
		return
	}

	rnd.forwarded[msg.RequestID] = true
	rnd.sendToMailbox(raftpb.Message{
		Type:        raftpb.MESSAGE_TYPE_CLIENT_REQUEST,
		To:          rnd.leaderID,
		RequestID:   msg.RequestID,
		RequestKind: msg.RequestKind,
		Data:        msg.Data,
	})
}

func stepFollower(rnd *raftNode, msg raftpb.Message) {
	rnd.assertNodeState(raftpb.NODE_STATE_FOLLOWER)

	switch msg.Type {
	case raftpb.MESSAGE_TYPE_LEADER_APPEND:
		rnd.followerCheckLeader(msg)
		rnd.followerHandleAppend(msg)

	case raftpb.MESSAGE_TYPE_LEADER_HEARTBEAT:
		rnd.followerCheckLeader(msg)
		rnd.followerHandleHeartbeat(msg)

	case raftpb.MESSAGE_TYPE_CAMPAIGN:
		rnd.followerHandleCampaign(msg)

	case raftpb.MESSAGE_TYPE_CLIENT_REQUEST:
		rnd.followerForwardClientRequest(msg)

	case raftpb.MESSAGE_TYPE_CLIENT_RESPONSE:
		rnd.relayClientResponse(msg)

	default:
		// stale responses from an earlier role; nothing to do
	}
}
