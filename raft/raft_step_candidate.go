package raft

import (
	"github.com/CrystalAnalyst/toydb/pkg/types"
	"github.com/CrystalAnalyst/toydb/raft/raftpb"
)

func (rnd *raftNode) becomeCandidate() {
	// a leader steps down before it could ever campaign again
	rnd.assertUnexpectedNodeState(raftpb.NODE_STATE_LEADER)

	oldState := rnd.state

	rnd.resetWithTerm(rnd.currentTerm + 1)
	rnd.state = raftpb.NODE_STATE_CANDIDATE
	rnd.votedFor = rnd.id
	rnd.stepFunc = stepCandidate
	rnd.tickFunc = rnd.tickFuncFollowerElectionTimeout

	rnd.persistHardState()

	raftLogger.Infof("%s transitioned from %q", rnd.describe(), oldState)
}

// candidateReceivedVoteFrom records a vote (or rejection) from a peer,
// once per peer, and returns the number of granted votes so far.
// Re-delivered responses are ignored.
func (rnd *raftNode) candidateReceivedVoteFrom(fromID uint64, granted bool) int {
	if _, ok := rnd.votedFrom[fromID]; !ok {
		if granted {
			raftLogger.Infof("%s received vote from %s", rnd.describe(), types.ID(fromID))
		} else {
			raftLogger.Infof("%s received vote-rejection from %s", rnd.describe(), types.ID(fromID))
		}
		rnd.votedFrom[fromID] = granted
	}

	grantedN := 0
	for _, g := range rnd.votedFrom {
		if g {
			grantedN++
		}
	}
	return grantedN
}

// campaign starts a new election: term+1, vote for self, vote requests
// broadcast with the last log position for up-to-date checks.
func (rnd *raftNode) campaign() {
	rnd.becomeCandidate()

	// vote for itself, and then if voted from quorum, become leader
	if rnd.quorum() == rnd.candidateReceivedVoteFrom(rnd.id, true) {
		rnd.becomeLeader()
		return
	}

	for id := range rnd.allProgresses {
		if id == rnd.id {
			continue
		}

		raftLogger.Infof("%s sends vote request to %s [last log index=%d | last log term=%d]",
			rnd.describe(), types.ID(id), rnd.raftLog.lastIndex(), rnd.raftLog.lastTerm())
		rnd.sendToMailbox(raftpb.Message{
			Type:     raftpb.MESSAGE_TYPE_CAMPAIGN,
			To:       id,
			LogIndex: rnd.raftLog.lastIndex(),
			LogTerm:  rnd.raftLog.lastTerm(),
		})
	}
}

func stepCandidate(rnd *raftNode, msg raftpb.Message) {
	rnd.assertNodeState(raftpb.NODE_STATE_CANDIDATE)

	switch msg.Type {
	case raftpb.MESSAGE_TYPE_RESPONSE_TO_CAMPAIGN:
		grantedN := rnd.candidateReceivedVoteFrom(msg.From, msg.VoteGranted)
		if grantedN >= rnd.quorum() {
			rnd.becomeLeader()
		}

	case raftpb.MESSAGE_TYPE_LEADER_APPEND, raftpb.MESSAGE_TYPE_LEADER_HEARTBEAT:
		// another candidate won this term; follow it and let the
		// follower logic process the message
		rnd.becomeFollower(rnd.currentTerm, msg.From)
		stepFollower(rnd, msg)

	case raftpb.MESSAGE_TYPE_CAMPAIGN:
		// already voted for itself this term
		rnd.sendToMailbox(raftpb.Message{
			Type: raftpb.MESSAGE_TYPE_RESPONSE_TO_CAMPAIGN,
			To:   msg.From,
		})

	case raftpb.MESSAGE_TYPE_CLIENT_REQUEST:
		raftLogger.Infof("%s drops client request %s; election in progress", rnd.describe(), msg.RequestID)

	case raftpb.MESSAGE_TYPE_CLIENT_RESPONSE:
		rnd.relayClientResponse(msg)
	}
}
