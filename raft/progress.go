package raft

import "fmt"

// Progress is a follower's replication state in the leader's view.
type Progress struct {
	// MatchIndex is the highest entry index known to be replicated
	// on this follower.
	MatchIndex uint64

	// NextIndex is the index of the next entry to send to this follower.
	// Invariant: MatchIndex < NextIndex.
	NextIndex uint64

	// AckedReadSeq is the highest heartbeat read sequence number this
	// follower has echoed back during the current leader's tenure.
	AckedReadSeq uint64

	// RecentActive is true once the leader has received an append or
	// heartbeat response from this follower during the current leader's
	// tenure. Heartbeat broadcasts do not clear it.
	RecentActive bool
}

func (pr *Progress) String() string {
	return fmt.Sprintf("p:%d→%d", pr.MatchIndex, pr.NextIndex)
}

// maybeUpdate returns false if the given index comes from an outdated
// response. Otherwise it updates the progress and returns true.
func (pr *Progress) maybeUpdate(lastIndex uint64) bool {
	updated := false
	if pr.MatchIndex < lastIndex {
		pr.MatchIndex = lastIndex
		updated = true
	}
	if pr.NextIndex < lastIndex+1 {
		pr.NextIndex = lastIndex + 1
	}
	return updated
}

// maybeDecrease backs NextIndex off after a rejected append, clamped to
// the follower's reported last index so the retry cycle finds the
// follower's log without probing positions it cannot have. Returns false
// when there is nothing left to back off, i.e. the rejection is stale
// and NextIndex already sits just above an acknowledged position.
func (pr *Progress) maybeDecrease(followerLastIndex uint64) bool {
	if pr.NextIndex-1 <= pr.MatchIndex {
		return false
	}

	pr.NextIndex = maxUint64(minUint64(pr.NextIndex-1, followerLastIndex+1), pr.MatchIndex+1)
	return true
}
