package raft

import (
	"reflect"
	"testing"

	"github.com/CrystalAnalyst/toydb/raft/raftpb"
)

func Test_StorageStableInMemory_genesis(t *testing.T) {
	ms := NewStorageStableInMemory()

	first, _ := ms.FirstIndex()
	last, _ := ms.LastIndex()
	if first != 1 || last != 1 {
		t.Fatalf("fresh storage expected [1, 1], got [%d, %d]", first, last)
	}

	term, err := ms.Term(1)
	if err != nil || term != 1 {
		t.Fatalf("genesis term expected (1, nil), got (%d, %v)", term, err)
	}
}

func Test_StorageStableInMemory_SetState_GetState(t *testing.T) {
	ms := NewStorageStableInMemory()

	st, err := ms.GetState()
	if err != nil || !raftpb.IsEmptyHardState(st) {
		t.Fatalf("expected empty hard state, got (%+v, %v)", st, err)
	}

	want := raftpb.HardState{Term: 5, VotedFor: 3}
	if err := ms.SetState(want); err != nil {
		t.Fatal(err)
	}

	st, _ = ms.GetState()
	if !raftpb.CheckHardStateEqual(st, want) {
		t.Fatalf("hard state expected %+v, got %+v", want, st)
	}
}

func Test_StorageStableInMemory_Term(t *testing.T) {
	ms := newTestStorageWithTerms(2, 2, 3)

	tests := []struct {
		index uint64
		wTerm uint64
		wErr  error
	}{
		{0, 0, ErrCompacted},
		{1, 1, nil},
		{2, 2, nil},
		{4, 3, nil},
		{5, 0, ErrUnavailable},
	}
	for i, tt := range tests {
		term, err := ms.Term(tt.index)
		if term != tt.wTerm || err != tt.wErr {
			t.Fatalf("#%d: Term(%d) expected (%d, %v), got (%d, %v)", i, tt.index, tt.wTerm, tt.wErr, term, err)
		}
	}
}

func Test_StorageStableInMemory_Append_truncates(t *testing.T) {
	ms := newTestStorageWithTerms(2, 2, 2) // entries 2,3,4 at term 2

	if err := ms.Append(raftpb.Entry{Index: 3, Term: 3}); err != nil {
		t.Fatal(err)
	}

	last, _ := ms.LastIndex()
	if last != 3 {
		t.Fatalf("last index expected 3, got %d", last)
	}

	term, _ := ms.Term(3)
	if term != 3 {
		t.Fatalf("term at 3 expected 3, got %d", term)
	}
}

func Test_StorageStableInMemory_Append_genesis_protected(t *testing.T) {
	ms := NewStorageStableInMemory()

	defer func() {
		if err := recover(); err == nil {
			t.Fatal("expected panic on genesis truncation")
		}
	}()
	ms.Append(raftpb.Entry{Index: 1, Term: 9})
}

func Test_StorageStableInMemory_Append_gap_panics(t *testing.T) {
	ms := NewStorageStableInMemory()

	defer func() {
		if err := recover(); err == nil {
			t.Fatal("expected panic on gapped append")
		}
	}()
	ms.Append(raftpb.Entry{Index: 5, Term: 2})
}

func Test_StorageStableInMemory_Entries(t *testing.T) {
	ms := newTestStorageWithTerms(2, 2, 3)

	entries, err := ms.Entries(2, 5, defaultTestMaxEntryNumPerMsg)
	if err != nil {
		t.Fatal(err)
	}
	want := []raftpb.Entry{{Index: 2, Term: 2}, {Index: 3, Term: 2}, {Index: 4, Term: 3}}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("entries expected %+v, got %+v", want, entries)
	}

	// limit always admits at least one entry
	entries, err = ms.Entries(2, 5, 0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("limited entries expected 1, got (%+v, %v)", entries, err)
	}
}
