package raft

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/CrystalAnalyst/toydb/raft/raftpb"
)

const (
	defaultTestElectionTickNum         = 10
	defaultTestHeartbeatTimeoutTickNum = 1
	defaultTestMaxEntryNumPerMsg       = math.MaxUint64
)

// testStateMachine records applied commands in order. Apply echoes the
// command back as its result; Query reports how many commands have been
// applied, which makes state versions observable to read tests.
type testStateMachine struct {
	applied [][]byte
}

func (sm *testStateMachine) Apply(command []byte) []byte {
	sm.applied = append(sm.applied, append([]byte{}, command...))
	return append([]byte{}, command...)
}

func (sm *testStateMachine) Query(query []byte) []byte {
	return []byte(fmt.Sprintf("%s@%d", query, len(sm.applied)))
}

func newTestRaftNode(id uint64, allPeerIDs []uint64, electionTick, heartbeatTick int, stableStorage StorageStable) *raftNode {
	return newTestRaftNodeWithApp(id, allPeerIDs, electionTick, heartbeatTick, stableStorage, &testStateMachine{})
}

func newTestRaftNodeWithApp(id uint64, allPeerIDs []uint64, electionTick, heartbeatTick int, stableStorage StorageStable, app StateMachine) *raftNode {
	return newRaftNode(&Config{
		ID:                      id,
		PeerIDs:                 allPeerIDs,
		ElectionTickNum:         electionTick,
		HeartbeatTimeoutTickNum: heartbeatTick,
		StorageStable:           stableStorage,
		StateMachine:            app,
		MaxEntryNumPerMsg:       defaultTestMaxEntryNumPerMsg,
	})
}

// newTestStorageWithTerms seeds an in-memory storage with entries at
// indexes 2..len(terms)+1 carrying the given terms.
func newTestStorageWithTerms(terms ...uint64) *StorageStableInMemory {
	st := NewStorageStableInMemory()
	for i := range terms {
		st.Append(raftpb.Entry{Index: uint64(i + 2), Term: terms[i]})
	}
	return st
}

func generateIDs(n int) []uint64 {
	ids := make([]uint64, n)
	for i := 0; i < n; i++ {
		ids[i] = uint64(i) + 1
	}
	return ids
}

type stateMachineStepper interface {
	Step(msg raftpb.Message) error
	readResetMailbox() []raftpb.Message
}

type blackHole struct{}

func (blackHole) Step(raftpb.Message) error          { return nil }
func (blackHole) readResetMailbox() []raftpb.Message { return nil }

var noOpBlackHole = &blackHole{}

type connection struct {
	from, to uint64
}

// fakeNetwork simulates network message passing for Raft tests. Message
// delivery mirrors the driver: after each step the stepped node applies
// newly committed entries and resolves pending requests, then its
// mailbox drains back into the network.
type fakeNetwork struct {
	allStateMachines         map[uint64]stateMachineStepper
	allStableStorageInMemory map[uint64]*StorageStableInMemory
	allAppStateMachines      map[uint64]*testStateMachine

	allDroppedConnections  map[connection]float64
	allIgnoredMessageTypes map[raftpb.MESSAGE_TYPE]bool

	// clientResponses collects responses each node handed to its own
	// clients, keyed by node id.
	clientResponses map[uint64][]raftpb.Message
}

func newFakeNetwork(machines ...stateMachineStepper) *fakeNetwork {
	peerIDs := generateIDs(len(machines))

	allStateMachines := make(map[uint64]stateMachineStepper, len(peerIDs))
	allStableStorageInMemory := make(map[uint64]*StorageStableInMemory, len(peerIDs))
	allAppStateMachines := make(map[uint64]*testStateMachine, len(peerIDs))

	for i := range machines {
		id := peerIDs[i]
		switch v := machines[i].(type) {
		case nil:
			storage := NewStorageStableInMemory()
			app := &testStateMachine{}
			allStableStorageInMemory[id] = storage
			allAppStateMachines[id] = app
			allStateMachines[id] = newTestRaftNodeWithApp(id, peerIDs, defaultTestElectionTickNum, defaultTestHeartbeatTimeoutTickNum, storage, app)

		case *raftNode:
			allStateMachines[id] = v
			if app, ok := v.stateMachine.(*testStateMachine); ok {
				allAppStateMachines[id] = app
			}

		case *blackHole:
			allStateMachines[id] = v

		default:
			raftLogger.Panicf("unknown state machine type: %T", v)
		}
	}

	return &fakeNetwork{
		allStateMachines:         allStateMachines,
		allStableStorageInMemory: allStableStorageInMemory,
		allAppStateMachines:      allAppStateMachines,

		allDroppedConnections:  make(map[connection]float64),
		allIgnoredMessageTypes: make(map[raftpb.MESSAGE_TYPE]bool),

		clientResponses: make(map[uint64][]raftpb.Message),
	}
}

func (fn *fakeNetwork) nodeByID(id uint64) *raftNode {
	return fn.allStateMachines[id].(*raftNode)
}

// stepFirstFrontMessage delivers messages breadth-first until the
// network is quiescent.
func (fn *fakeNetwork) stepFirstFrontMessage(msgs ...raftpb.Message) {
	for len(msgs) > 0 {
		m := msgs[0]
		msgs = msgs[1:]

		st, ok := fn.allStateMachines[m.To]
		if !ok {
			continue
		}
		st.Step(m)
		if rnd, ok := st.(*raftNode); ok {
			rnd.applyCommittedEntries()
			rnd.resolvePendingReads()
		}

		msgs = append(msgs, fn.collect(m.To, st.readResetMailbox())...)
	}
}

// collect splits a node's outbound messages: responses to its own
// clients are recorded, everything else is filtered for delivery.
func (fn *fakeNetwork) collect(senderID uint64, msgs []raftpb.Message) []raftpb.Message {
	var out []raftpb.Message
	for _, msg := range msgs {
		if msg.Type == raftpb.MESSAGE_TYPE_CLIENT_RESPONSE && msg.To == senderID {
			fn.clientResponses[senderID] = append(fn.clientResponses[senderID], msg)
			continue
		}
		out = append(out, msg)
	}
	return fn.filter(out)
}

func (fn *fakeNetwork) filter(msgs []raftpb.Message) []raftpb.Message {
	var filtered []raftpb.Message
	for _, msg := range msgs {
		if fn.allIgnoredMessageTypes[msg.Type] {
			continue
		}

		if prob := fn.allDroppedConnections[connection{from: msg.From, to: msg.To}]; rand.Float64() < prob {
			continue
		}

		filtered = append(filtered, msg)
	}
	return filtered
}

// drainMailbox flushes one node's accumulated mailbox into the network.
func (fn *fakeNetwork) drainMailbox(id uint64) {
	st := fn.allStateMachines[id]
	fn.stepFirstFrontMessage(fn.collect(id, st.readResetMailbox())...)
}

// tick advances one node's logical clock and delivers everything that
// follows.
func (fn *fakeNetwork) tick(id uint64) {
	rnd := fn.nodeByID(id)
	rnd.tickFunc()
	rnd.applyCommittedEntries()
	rnd.resolvePendingReads()
	fn.drainMailbox(id)
}

// triggerCampaign makes the node start an election and delivers
// everything that follows.
func (fn *fakeNetwork) triggerCampaign(id uint64) {
	fn.stepFirstFrontMessage(raftpb.Message{
		Type: raftpb.MESSAGE_TYPE_INTERNAL_TRIGGER_CAMPAIGN,
		From: id, To: id,
	})
}

// triggerHeartbeat makes the leader broadcast heartbeats and delivers
// everything that follows.
func (fn *fakeNetwork) triggerHeartbeat(id uint64) {
	fn.stepFirstFrontMessage(raftpb.Message{
		Type: raftpb.MESSAGE_TYPE_INTERNAL_TRIGGER_LEADER_HEARTBEAT,
		From: id, To: id,
	})
}

// propose submits a client request at the given node and delivers
// everything that follows.
func (fn *fakeNetwork) propose(id uint64, requestID string, kind raftpb.REQUEST_KIND, data []byte) {
	fn.stepFirstFrontMessage(raftpb.Message{
		Type:        raftpb.MESSAGE_TYPE_CLIENT_REQUEST,
		From:        id,
		To:          id,
		RequestID:   requestID,
		RequestKind: kind,
		Data:        data,
	})
}

// responsesTo drains the responses node id has handed to its clients.
func (fn *fakeNetwork) responsesTo(id uint64) []raftpb.Message {
	resps := fn.clientResponses[id]
	delete(fn.clientResponses, id)
	return resps
}

func (fn *fakeNetwork) cutConnection(id1, id2 uint64) {
	fn.allDroppedConnections[connection{from: id1, to: id2}] = 1
	fn.allDroppedConnections[connection{from: id2, to: id1}] = 1
}

func (fn *fakeNetwork) isolate(id uint64) {
	for sid := range fn.allStateMachines {
		if sid != id {
			fn.cutConnection(id, sid)
		}
	}
}

func (fn *fakeNetwork) recoverAll() {
	fn.allDroppedConnections = make(map[connection]float64)
	fn.allIgnoredMessageTypes = make(map[raftpb.MESSAGE_TYPE]bool)
}

func (fn *fakeNetwork) ignoreMessageType(tp raftpb.MESSAGE_TYPE) {
	fn.allIgnoredMessageTypes[tp] = true
}
