package raftbolt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CrystalAnalyst/toydb/raft"
	"github.com/CrystalAnalyst/toydb/raft/raftpb"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "raft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func Test_Storage_genesis(t *testing.T) {
	s := openTestStorage(t)

	first, err := s.FirstIndex()
	require.NoError(t, err)
	require.Equal(t, raft.GenesisIndex, first)

	last, err := s.LastIndex()
	require.NoError(t, err)
	require.Equal(t, raft.GenesisIndex, last)

	term, err := s.Term(raft.GenesisIndex)
	require.NoError(t, err)
	require.Equal(t, uint64(1), term)
}

func Test_Storage_SetState_GetState(t *testing.T) {
	s := openTestStorage(t)

	st, err := s.GetState()
	require.NoError(t, err)
	require.True(t, raftpb.IsEmptyHardState(st))

	want := raftpb.HardState{Term: 3, VotedFor: 2}
	require.NoError(t, s.SetState(want))

	st, err = s.GetState()
	require.NoError(t, err)
	require.Equal(t, want, st)
}

func Test_Storage_Append_Entries(t *testing.T) {
	s := openTestStorage(t)

	require.NoError(t, s.Append(
		raftpb.Entry{Index: 2, Term: 1, Data: []byte("a")},
		raftpb.Entry{Index: 3, Term: 1, Data: []byte("b")},
		raftpb.Entry{Index: 4, Term: 2, Data: []byte("c")},
	))

	last, err := s.LastIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(4), last)

	entries, err := s.Entries(2, 5, 1<<20)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, []byte("b"), entries[1].Data)

	term, err := s.Term(4)
	require.NoError(t, err)
	require.Equal(t, uint64(2), term)

	_, err = s.Term(5)
	require.ErrorIs(t, err, raft.ErrUnavailable)
}

func Test_Storage_Append_truncates_suffix(t *testing.T) {
	s := openTestStorage(t)

	require.NoError(t, s.Append(
		raftpb.Entry{Index: 2, Term: 1, Data: []byte("a")},
		raftpb.Entry{Index: 3, Term: 1, Data: []byte("b")},
		raftpb.Entry{Index: 4, Term: 1, Data: []byte("c")},
	))

	// a new leader overwrites the stale suffix
	require.NoError(t, s.Append(raftpb.Entry{Index: 3, Term: 2}))

	last, err := s.LastIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(3), last)

	term, err := s.Term(3)
	require.NoError(t, err)
	require.Equal(t, uint64(2), term)
}

func Test_Storage_Append_genesis_protected(t *testing.T) {
	s := openTestStorage(t)

	require.Error(t, s.Append(raftpb.Entry{Index: 1, Term: 2}))
}

func Test_Storage_Entries_limit(t *testing.T) {
	s := openTestStorage(t)

	require.NoError(t, s.Append(
		raftpb.Entry{Index: 2, Term: 1, Data: []byte("aaaa")},
		raftpb.Entry{Index: 3, Term: 1, Data: []byte("bbbb")},
	))

	// the limit always admits at least one entry
	entries, err := s.Entries(2, 4, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint64(2), entries[0].Index)
}

func Test_Storage_restart_restores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raft.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetState(raftpb.HardState{Term: 7, VotedFor: 1}))
	require.NoError(t, s.Append(raftpb.Entry{Index: 2, Term: 7, Data: []byte("x")}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	st, err := s.GetState()
	require.NoError(t, err)
	require.Equal(t, raftpb.HardState{Term: 7, VotedFor: 1}, st)

	last, err := s.LastIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(2), last)
}
