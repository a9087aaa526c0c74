package raft

import "github.com/CrystalAnalyst/toydb/raft/raftpb"

// StateMachine is the application state machine that the replicated log
// drives. Apply executes a committed command and returns its result;
// Query serves a read-only request against current state. Both must be
// deterministic. Apply is invoked exactly once per committed entry per
// node, in log order; no-op entries are skipped.
type StateMachine interface {
	Apply(command []byte) []byte
	Query(query []byte) []byte
}

// Batch is the output of one event step: messages for the transport to
// deliver to peers, and responses for the node's own clients.
type Batch struct {
	Messages  []raftpb.Message
	Responses []raftpb.Message
}

// Node is a single Raft member driven synchronously by its caller.
// Every method runs one event step to completion on the calling
// goroutine: it mutates durable state, applies newly committed entries
// to the state machine, resolves pending client requests, and returns
// the accumulated outbound messages. Methods must not be called
// concurrently; between calls the node is quiescent.
type Node struct {
	rnd *raftNode
}

// StartNode creates and boots a Node with the given Config.
func StartNode(c *Config) *Node {
	return &Node{rnd: newRaftNode(c)}
}

// ID returns the node's ID.
func (nd *Node) ID() uint64 { return nd.rnd.id }

// Status reports the node's current view for observability and tests.
type Status struct {
	ID       uint64
	State    raftpb.NODE_STATE
	Term     uint64
	LeaderID uint64

	CommittedIndex uint64
	AppliedIndex   uint64
	LastIndex      uint64
}

// Status returns a snapshot of the node's current state.
func (nd *Node) Status() Status {
	return Status{
		ID:       nd.rnd.id,
		State:    nd.rnd.state,
		Term:     nd.rnd.currentTerm,
		LeaderID: nd.rnd.leaderID,

		CommittedIndex: nd.rnd.raftLog.committedIndex,
		AppliedIndex:   nd.rnd.raftLog.appliedIndex,
		LastIndex:      nd.rnd.raftLog.lastIndex(),
	}
}

// Tick advances the node's logical clock by one tick.
func (nd *Node) Tick() Batch {
	nd.rnd.tickFunc()
	return nd.finishStep()
}

// Step processes one inbound peer message.
func (nd *Node) Step(msg raftpb.Message) Batch {
	nd.rnd.Step(msg)
	return nd.finishStep()
}

// Propose submits a client write with the given request id. The command
// bytes are opaque to Raft; the eventual response carries the state
// machine's result, or an abort if leadership is lost first.
func (nd *Node) Propose(requestID string, command []byte) Batch {
	return nd.Step(raftpb.Message{
		Type:        raftpb.MESSAGE_TYPE_CLIENT_REQUEST,
		From:        nd.rnd.id,
		To:          nd.rnd.id,
		RequestID:   requestID,
		RequestKind: raftpb.REQUEST_KIND_WRITE,
		Data:        command,
	})
}

// Read submits a linearizable client read with the given request id.
func (nd *Node) Read(requestID string, query []byte) Batch {
	return nd.Step(raftpb.Message{
		Type:        raftpb.MESSAGE_TYPE_CLIENT_REQUEST,
		From:        nd.rnd.id,
		To:          nd.rnd.id,
		RequestID:   requestID,
		RequestKind: raftpb.REQUEST_KIND_READ,
		Data:        query,
	})
}

// finishStep drains newly committed entries into the state machine,
// resolves whatever became serveable, and splits the mailbox into peer
// messages and local client responses.
func (nd *Node) finishStep() Batch {
	nd.rnd.applyCommittedEntries()
	nd.rnd.resolvePendingReads()

	var batch Batch
	for _, msg := range nd.rnd.readResetMailbox() {
		if msg.Type == raftpb.MESSAGE_TYPE_CLIENT_RESPONSE && msg.To == nd.rnd.id {
			batch.Responses = append(batch.Responses, msg)
			continue
		}
		batch.Messages = append(batch.Messages, msg)
	}
	return batch
}
