package raft

import "sort"

// readIndex issues the per-leader read sequence numbers that make
// read-only queries linearizable without going through the log.
//
// The leader increments the sequence for every accepted read and
// piggy-backs it on heartbeats. Followers echo the sequence back in
// their heartbeat responses. Once a quorum has echoed a sequence at
// least as large as the one a read was issued under, the leader knows
// no other leader could have existed when the heartbeat round started,
// so its recorded commit index was current and the read may be served
// as soon as the state machine has applied up to it.
type readIndex struct {
	// seq is the last issued read sequence number. Monotonic within
	// one leader's tenure; reset to 0 on every promotion.
	seq uint64
}

// next issues the next read sequence number.
func (ri *readIndex) next() uint64 {
	ri.seq++
	return ri.seq
}

// quorumAckedSeq returns the highest read sequence number echoed by a
// quorum of the cluster. The leader's own sequence counts as one ack.
func (ri *readIndex) quorumAckedSeq(quorum int, progresses map[uint64]*Progress, selfID uint64) uint64 {
	acked := make(uint64Slice, 0, len(progresses))
	for id, pr := range progresses {
		if id == selfID {
			acked = append(acked, ri.seq)
			continue
		}
		acked = append(acked, pr.AckedReadSeq)
	}

	sort.Sort(sort.Reverse(acked))
	return acked[quorum-1]
}
