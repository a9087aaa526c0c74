package raft

import (
	"fmt"
	"sort"

	"github.com/CrystalAnalyst/toydb/pkg/types"
	"github.com/CrystalAnalyst/toydb/raft/raftpb"
)

// NoNodeID is a placeholder node ID, only used when there is
// no leader in the cluster.
const NoNodeID uint64 = 0

// raftNode contains all Raft-algorithm-specific data, wrapping raftLog.
type raftNode struct {
	id    uint64
	state raftpb.NODE_STATE

	leaderID      uint64
	allProgresses map[uint64]*Progress

	raftLog *raftLog

	stateMachine StateMachine

	// electionTimeoutTickNum is the minimum number of ticks for an
	// election to time out.
	electionTimeoutTickNum int

	// electionTimeoutElapsedTickNum is the number of ticks elapsed
	// since the last message from a valid leader (or vote grant).
	electionTimeoutElapsedTickNum int

	// randomizedElectionTimeoutTickNum is the random number between
	// [electionTimeoutTickNum, 2 * electionTimeoutTickNum), and gets
	// reset on every transition to follower or candidate.
	randomizedElectionTimeoutTickNum int

	// heartbeatTimeoutTickNum is the number of ticks for a leader to
	// send heartbeats to its followers.
	heartbeatTimeoutTickNum int

	// heartbeatTimeoutElapsedTickNum is the number of ticks elapsed
	// since the last heartbeat broadcast.
	heartbeatTimeoutElapsedTickNum int

	tickFunc func()
	stepFunc func(rnd *raftNode, msg raftpb.Message)

	maxEntryNumPerMsg uint64

	currentTerm uint64
	votedFor    uint64
	votedFrom   map[uint64]bool

	// readIndex issues read sequence numbers while leader.
	readIndex readIndex

	// pendings is the leader's table of outstanding client requests.
	pendings *pendingRequests

	// forwarded records the ids of local client requests forwarded to
	// the leader, so the eventual responses can be relayed back out.
	// Entries for requests lost on a partition are never removed; the
	// core does not time requests out.
	forwarded map[string]bool

	// mailbox contains accumulated outbound messages, to be drained
	// by the driver after each step. Client responses are addressed
	// to this node itself.
	mailbox []raftpb.Message
}

// newRaftNode creates a new raftNode with the given Config.
func newRaftNode(c *Config) *raftNode {
	if err := c.validate(); err != nil {
		raftLogger.Panicf("invalid raft.Config %v (%+v)", err, c)
	}

	if c.Logger != nil {
		raftLogger.SetLogger(c.Logger)
	}
	// otherwise use default logger

	rnd := &raftNode{
		id:    c.ID,
		state: raftpb.NODE_STATE_FOLLOWER,

		leaderID:      NoNodeID,
		allProgresses: make(map[uint64]*Progress),

		raftLog:      newRaftLog(c.StorageStable),
		stateMachine: c.StateMachine,

		electionTimeoutTickNum:  c.ElectionTickNum,
		heartbeatTimeoutTickNum: c.HeartbeatTimeoutTickNum,

		maxEntryNumPerMsg: c.MaxEntryNumPerMsg,

		pendings:  newPendingRequests(),
		forwarded: make(map[string]bool),
	}

	hardState, err := c.StorageStable.GetState()
	if err != nil {
		raftLogger.Panicf("newRaftNode c.StorageStable.GetState error (%v)", err)
	}
	if !raftpb.IsEmptyHardState(hardState) {
		rnd.currentTerm = hardState.Term
		rnd.votedFor = hardState.VotedFor
	}

	for _, id := range c.PeerIDs {
		rnd.allProgresses[id] = &Progress{NextIndex: rnd.raftLog.lastIndex() + 1}
	}

	if c.LastAppliedIndex > 0 {
		rnd.raftLog.commitTo(c.LastAppliedIndex)
		rnd.raftLog.appliedTo(c.LastAppliedIndex)
	}

	rnd.becomeFollower(rnd.currentTerm, NoNodeID)

	raftLogger.Infof("NEW NODE %s", rnd.describeLong())
	return rnd
}

// sendToMailbox sends a message, given that the requested message
// has already set msg.To for its receiver.
func (rnd *raftNode) sendToMailbox(msg raftpb.Message) {
	msg.From = rnd.id

	// client requests and responses are routed, not term-checked;
	// they stay term-0 so forwarding cannot disturb elections
	if !raftpb.IsClientMessage(msg.Type) {
		msg.SenderCurrentTerm = rnd.currentTerm
	}

	rnd.mailbox = append(rnd.mailbox, msg)
}

// readResetMailbox drains the accumulated outbound messages.
func (rnd *raftNode) readResetMailbox() []raftpb.Message {
	msgs := rnd.mailbox
	rnd.mailbox = nil
	return msgs
}

func (rnd *raftNode) quorum() int {
	return len(rnd.allProgresses)/2 + 1
}

func (rnd *raftNode) randomizeElectionTickTimeout() {
	// [electiontimeout, 2 * electiontimeout)
	rnd.randomizedElectionTimeoutTickNum = rnd.electionTimeoutTickNum + globalRand.Intn(rnd.electionTimeoutTickNum)
}

func (rnd *raftNode) pastElectionTimeout() bool {
	return rnd.electionTimeoutElapsedTickNum >= rnd.randomizedElectionTimeoutTickNum
}

// persistHardState makes the current term and vote durable. Must happen
// before any message reflecting them is sent.
func (rnd *raftNode) persistHardState() {
	if err := rnd.raftLog.storageStable.SetState(rnd.hardState()); err != nil {
		raftLogger.Panicf("%s failed to persist hard state (%v)", rnd.describe(), err)
	}
}

func (rnd *raftNode) hardState() raftpb.HardState {
	return raftpb.HardState{
		Term:     rnd.currentTerm,
		VotedFor: rnd.votedFor,
	}
}

// resetWithTerm clears all role-specific volatile state for the given term.
func (rnd *raftNode) resetWithTerm(term uint64) {
	if rnd.currentTerm != term {
		rnd.currentTerm = term
		rnd.votedFor = NoNodeID
	}

	rnd.leaderID = NoNodeID
	rnd.votedFrom = make(map[uint64]bool)

	rnd.electionTimeoutElapsedTickNum = 0
	rnd.heartbeatTimeoutElapsedTickNum = 0
	rnd.randomizeElectionTickTimeout()

	rnd.readIndex.seq = 0

	for id := range rnd.allProgresses {
		rnd.allProgresses[id] = &Progress{
			// NextIndex is the starting index of entries for next replication.
			NextIndex: rnd.raftLog.lastIndex() + 1,
		}

		if id == rnd.id {
			// MatchIndex is the highest known matched entry index of this node.
			rnd.allProgresses[id].MatchIndex = rnd.raftLog.lastIndex()
		}
	}
}

// abortPendingRequests responds to every outstanding client request with
// an abort. Called on every transition out of leadership; the errors are
// terminal for those request ids.
func (rnd *raftNode) abortPendingRequests() {
	if rnd.pendings.empty() {
		return
	}

	writes, reads := rnd.pendings.drain()
	for _, w := range writes {
		raftLogger.Infof("%s aborts pending write %s (log index=%d)", rnd.describe(), w.requestID, w.index)
		rnd.sendToMailbox(raftpb.Message{
			Type:          raftpb.MESSAGE_TYPE_CLIENT_RESPONSE,
			To:            w.from,
			RequestID:     w.requestID,
			ResponseError: raftpb.ERROR_TYPE_ABORT,
		})
	}
	for _, r := range reads {
		raftLogger.Infof("%s aborts pending read %s (read seq=%d)", rnd.describe(), r.requestID, r.readSeq)
		rnd.sendToMailbox(raftpb.Message{
			Type:          raftpb.MESSAGE_TYPE_CLIENT_RESPONSE,
			To:            r.from,
			RequestID:     r.requestID,
			ResponseError: raftpb.ERROR_TYPE_ABORT,
		})
	}
}

// applyCommittedEntries hands newly committed commands to the
// application state machine in log order, resolving the pending write
// at each position when leader.
func (rnd *raftNode) applyCommittedEntries() {
	for _, ent := range rnd.raftLog.nextEntriesToApply() {
		var result []byte
		if len(ent.Data) > 0 {
			result = rnd.stateMachine.Apply(ent.Data)
		}
		// no-op entries are not handed to the state machine

		rnd.raftLog.appliedTo(ent.Index)

		if w, ok := rnd.pendings.takeWrite(ent.Index); ok {
			rnd.sendToMailbox(raftpb.Message{
				Type:      raftpb.MESSAGE_TYPE_CLIENT_RESPONSE,
				To:        w.from,
				RequestID: w.requestID,
				Data:      result,
			})
		}
	}
}

// resolvePendingReads serves every read whose sequence number a quorum
// has echoed and whose recorded commit point has been applied.
func (rnd *raftNode) resolvePendingReads() {
	if rnd.state != raftpb.NODE_STATE_LEADER || len(rnd.pendings.reads) == 0 {
		return
	}

	ackedSeq := rnd.readIndex.quorumAckedSeq(rnd.quorum(), rnd.allProgresses, rnd.id)
	for _, r := range rnd.pendings.takeServeableReads(ackedSeq, rnd.raftLog.appliedIndex) {
		rnd.sendToMailbox(raftpb.Message{
			Type:      raftpb.MESSAGE_TYPE_CLIENT_RESPONSE,
			To:        r.from,
			RequestID: r.requestID,
			Data:      rnd.stateMachine.Query(r.data),
		})
	}
}

func (rnd *raftNode) allNodeIDs() []uint64 {
	allNodeIDs := make([]uint64, 0, len(rnd.allProgresses))
	for id := range rnd.allProgresses {
		allNodeIDs = append(allNodeIDs, id)
	}
	sort.Sort(uint64Slice(allNodeIDs))
	return allNodeIDs
}

func (rnd *raftNode) describe() string {
	return fmt.Sprintf("%q %s [term=%d | leader=%s]", rnd.state, types.ID(rnd.id), rnd.currentTerm, types.ID(rnd.leaderID))
}

func (rnd *raftNode) describeLong() string {
	return fmt.Sprintf(`%q %s [node current term=%d | voted for %s | leader=%s]
	[committed index=%d | applied index=%d | last log index=%d | last log term=%d]`,
		rnd.state, types.ID(rnd.id), rnd.currentTerm, types.ID(rnd.votedFor), types.ID(rnd.leaderID),
		rnd.raftLog.committedIndex, rnd.raftLog.appliedIndex,
		rnd.raftLog.lastIndex(), rnd.raftLog.lastTerm())
}

func (rnd *raftNode) assertNodeState(expected raftpb.NODE_STATE) {
	if rnd.state != expected {
		raftLogger.Panicf("%s in unexpected state (expected %q)", rnd.describe(), expected)
	}
}

func (rnd *raftNode) assertUnexpectedNodeState(unexpected raftpb.NODE_STATE) {
	if rnd.state == unexpected {
		raftLogger.Panicf("%s in unexpected state", rnd.describe())
	}
}

// setRandomizedElectionTimeoutTickNum sets up the value by caller instead
// of choosing by system; some test scenarios need a fixed value to
// ensure certainty.
func (rnd *raftNode) setRandomizedElectionTimeoutTickNum(num int) {
	rnd.randomizedElectionTimeoutTickNum = num
}
