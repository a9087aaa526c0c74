package raft

import (
	"errors"
	"fmt"
)

// Config contains the parameters to start a Raft node.
type Config struct {
	// Logger implements system logging for Raft.
	// If nil, the package-level default is kept.
	Logger Logger

	// ID is the id of the Raft node. 0 is reserved for "no node".
	ID uint64

	// PeerIDs contains the IDs of all cluster members, including the
	// node itself. Cluster size n gives quorum ⌊n/2⌋+1.
	PeerIDs []uint64

	// ElectionTickNum is the minimum number of ticks between elections.
	// If a follower does not receive any message from a valid leader
	// before its randomized timeout in [ElectionTickNum, 2*ElectionTickNum)
	// has elapsed, it becomes a candidate and starts an election.
	ElectionTickNum int

	// HeartbeatTimeoutTickNum is the number of ticks between heartbeats
	// by a leader. Must be much smaller than ElectionTickNum.
	HeartbeatTimeoutTickNum int

	// StorageStable persists term, vote, and log entries. Writes are
	// durable on return.
	StorageStable StorageStable

	// StateMachine is the application state machine that committed
	// commands are applied to and reads are served from.
	StateMachine StateMachine

	// MaxEntryNumPerMsg is the maximum total byte size of entries for
	// each append message. If 0, every append carries one entry.
	MaxEntryNumPerMsg uint64

	// LastAppliedIndex is the last applied index of Raft entries.
	// It is only set when restarting a Raft node whose state machine
	// survived, so that committed entries are not re-applied.
	LastAppliedIndex uint64
}

func (c *Config) validate() error {
	if c.StorageStable == nil {
		return errors.New("raft storage cannot be nil")
	}

	if c.StateMachine == nil {
		return errors.New("application state machine cannot be nil")
	}

	if c.ID == NoNodeID {
		return errors.New("cannot use 0 for node ID")
	}

	if c.HeartbeatTimeoutTickNum <= 0 {
		return fmt.Errorf("heartbeat tick (%d) must be greater than 0", c.HeartbeatTimeoutTickNum)
	}

	if c.ElectionTickNum <= c.HeartbeatTimeoutTickNum {
		return fmt.Errorf("election tick (%d) must be greater than heartbeat tick (%d)", c.ElectionTickNum, c.HeartbeatTimeoutTickNum)
	}

	selfFound := false
	seen := make(map[uint64]bool, len(c.PeerIDs))
	for _, id := range c.PeerIDs {
		if id == NoNodeID {
			return errors.New("cannot use 0 for peer ID")
		}
		if seen[id] {
			return fmt.Errorf("duplicate peer ID %x", id)
		}
		seen[id] = true
		if id == c.ID {
			selfFound = true
		}
	}
	if !selfFound {
		return fmt.Errorf("node ID %x must be in PeerIDs %v", c.ID, c.PeerIDs)
	}

	return nil
}
