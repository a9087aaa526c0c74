package raft

import "testing"

func Test_pendingRequests_writes(t *testing.T) {
	ps := newPendingRequests()

	ps.addWrite(&pendingWrite{requestID: "w1", from: 1, index: 2})
	ps.addWrite(&pendingWrite{requestID: "w2", from: 3, index: 3})

	if _, ok := ps.takeWrite(9); ok {
		t.Fatal("unexpected pending write at index 9")
	}

	w, ok := ps.takeWrite(2)
	if !ok || w.requestID != "w1" {
		t.Fatalf("expected w1 at index 2, got (%+v, %v)", w, ok)
	}

	// taking is destructive
	if _, ok := ps.takeWrite(2); ok {
		t.Fatal("write at index 2 taken twice")
	}
}

func Test_pendingRequests_duplicate_index_panics(t *testing.T) {
	ps := newPendingRequests()
	ps.addWrite(&pendingWrite{requestID: "w1", index: 2})

	defer func() {
		if err := recover(); err == nil {
			t.Fatal("expected panic on duplicate log index")
		}
	}()
	ps.addWrite(&pendingWrite{requestID: "w2", index: 2})
}

func Test_pendingRequests_takeServeableReads(t *testing.T) {
	ps := newPendingRequests()
	ps.addRead(&pendingRead{requestID: "r1", readSeq: 1, commitIndex: 2})
	ps.addRead(&pendingRead{requestID: "r2", readSeq: 2, commitIndex: 4})
	ps.addRead(&pendingRead{requestID: "r3", readSeq: 3, commitIndex: 4})

	// seq 2 acked but apply only at 3: just r1 is serveable
	served := ps.takeServeableReads(2, 3)
	if len(served) != 1 || served[0].requestID != "r1" {
		t.Fatalf("expected [r1], got %+v", served)
	}

	// apply catches up: r2 serveable, r3 still missing its ack
	served = ps.takeServeableReads(2, 4)
	if len(served) != 1 || served[0].requestID != "r2" {
		t.Fatalf("expected [r2], got %+v", served)
	}

	served = ps.takeServeableReads(3, 4)
	if len(served) != 1 || served[0].requestID != "r3" {
		t.Fatalf("expected [r3], got %+v", served)
	}

	if !ps.empty() {
		t.Fatal("expected empty table")
	}
}

func Test_pendingRequests_drain(t *testing.T) {
	ps := newPendingRequests()
	ps.addWrite(&pendingWrite{requestID: "w1", index: 2})
	ps.addRead(&pendingRead{requestID: "r1", readSeq: 1})

	writes, reads := ps.drain()
	if len(writes) != 1 || len(reads) != 1 {
		t.Fatalf("drain expected (1, 1), got (%d, %d)", len(writes), len(reads))
	}
	if !ps.empty() {
		t.Fatal("expected empty table after drain")
	}
}
