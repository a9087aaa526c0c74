package raft

import (
	"github.com/CrystalAnalyst/toydb/pkg/types"
	"github.com/CrystalAnalyst/toydb/raft/raftpb"
)

// Step defines how each Raft node behaves for the given message.
// Term normalization runs first; the state-specific step function
// gets called at the end.
func (rnd *raftNode) Step(msg raftpb.Message) error {
	switch {
	case msg.SenderCurrentTerm == 0:
		// internal trigger, or client request/response; term-exempt

	case msg.SenderCurrentTerm > rnd.currentTerm:
		raftLogger.Infof("%s received %q with higher term from %s [message term=%d]",
			rnd.describe(), msg.Type, types.ID(msg.From), msg.SenderCurrentTerm)
		rnd.becomeFollower(msg.SenderCurrentTerm, NoNodeID)

	case msg.SenderCurrentTerm < rnd.currentTerm:
		// a stale leader must learn the newer term and step down, so its
		// append/heartbeat gets a response carrying the current term;
		// everything else from an older term is dropped
		switch msg.Type {
		case raftpb.MESSAGE_TYPE_LEADER_APPEND:
			rnd.sendToMailbox(raftpb.Message{
				Type:     raftpb.MESSAGE_TYPE_RESPONSE_TO_LEADER_APPEND,
				To:       msg.From,
				LogIndex: rnd.raftLog.lastIndex(),
				LogTerm:  rnd.raftLog.lastTerm(),
				Reject:   true,
			})

		case raftpb.MESSAGE_TYPE_LEADER_HEARTBEAT:
			rnd.sendToMailbox(raftpb.Message{
				Type:     raftpb.MESSAGE_TYPE_RESPONSE_TO_LEADER_HEARTBEAT,
				To:       msg.From,
				LogIndex: rnd.raftLog.lastIndex(),
				LogTerm:  rnd.raftLog.lastTerm(),
				ReadSeq:  msg.ReadSeq,
			})

		default:
			raftLogger.Infof("%s drops %q with lower term from %s [message term=%d]",
				rnd.describe(), msg.Type, types.ID(msg.From), msg.SenderCurrentTerm)
		}
		return nil
	}

	if msg.Type == raftpb.MESSAGE_TYPE_INTERNAL_TRIGGER_CAMPAIGN {
		if rnd.state == raftpb.NODE_STATE_LEADER {
			raftLogger.Infof("%s ignores campaign trigger; already leader", rnd.describe())
			return nil
		}
		rnd.campaign()
		return nil
	}

	rnd.stepFunc(rnd, msg)
	return nil
}

// relayClientResponse passes a response for a previously-forwarded client
// request back out to the local client. Responses for unknown request ids
// are dropped; the core never retries and never times requests out.
func (rnd *raftNode) relayClientResponse(msg raftpb.Message) {
	if !rnd.forwarded[msg.RequestID] {
		raftLogger.Infof("%s drops client response for unknown request %s from %s",
			rnd.describe(), msg.RequestID, types.ID(msg.From))
		return
	}
	delete(rnd.forwarded, msg.RequestID)

	rnd.sendToMailbox(raftpb.Message{
		Type:          raftpb.MESSAGE_TYPE_CLIENT_RESPONSE,
		To:            rnd.id,
		RequestID:     msg.RequestID,
		ResponseError: msg.ResponseError,
		Data:          msg.Data,
	})
}
