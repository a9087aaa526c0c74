package kvsm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CrystalAnalyst/toydb/raft"
)

// both implementations must satisfy the raft contract
var (
	_ raft.StateMachine = (*BTreeKV)(nil)
	_ raft.StateMachine = (*LevelDBKV)(nil)
)

func Test_Command_encode_decode(t *testing.T) {
	tests := []Command{
		{Kind: CommandPut, Key: []byte("a"), Value: []byte{0x01}},
		{Kind: CommandPut, Key: []byte("answer"), Value: []byte("42")},
		{Kind: CommandPut, Key: []byte("empty-value")},
		{Kind: CommandDelete, Key: []byte("a")},
	}

	for i, cmd := range tests {
		b, err := EncodeCommand(cmd)
		require.NoError(t, err, "#%d", i)

		decoded, err := DecodeCommand(b)
		require.NoError(t, err, "#%d", i)
		require.Equal(t, cmd.Kind, decoded.Kind, "#%d", i)
		require.Equal(t, cmd.Key, decoded.Key, "#%d", i)
		require.Equal(t, len(cmd.Value), len(decoded.Value), "#%d", i)
	}
}

func Test_Command_encode_rejects_empty_key(t *testing.T) {
	_, err := EncodeCommand(Command{Kind: CommandPut})
	require.Error(t, err)
}

func Test_Command_decode_malformed(t *testing.T) {
	for _, b := range [][]byte{
		nil,
		{byte(CommandPut)},
		{byte(CommandPut), 0x00, 0x05, 'a'},
		{0xff, 0x00, 0x01, 'a'},
	} {
		_, err := DecodeCommand(b)
		require.Error(t, err)
	}
}

func mustEncode(t *testing.T, cmd Command) []byte {
	t.Helper()
	b, err := EncodeCommand(cmd)
	require.NoError(t, err)
	return b
}

func testStateMachine(t *testing.T, sm raft.StateMachine) {
	t.Helper()

	require.Nil(t, sm.Query([]byte("a")))

	result := sm.Apply(mustEncode(t, Command{Kind: CommandPut, Key: []byte("a"), Value: []byte{0x01}}))
	require.Equal(t, []byte{0x01}, result)
	require.Equal(t, []byte{0x01}, sm.Query([]byte("a")))

	sm.Apply(mustEncode(t, Command{Kind: CommandPut, Key: []byte("a"), Value: []byte{0x02}}))
	require.Equal(t, []byte{0x02}, sm.Query([]byte("a")))

	prev := sm.Apply(mustEncode(t, Command{Kind: CommandDelete, Key: []byte("a")}))
	require.Equal(t, []byte{0x02}, prev)
	require.Nil(t, sm.Query([]byte("a")))

	// malformed commands consume the log position without effect
	require.Nil(t, sm.Apply([]byte{0xde, 0xad}))
}

func Test_BTreeKV(t *testing.T) {
	kv := NewBTreeKV()
	testStateMachine(t, kv)
	require.Equal(t, 0, kv.Len())
}

func Test_LevelDBKV(t *testing.T) {
	kv, err := OpenLevelDBKV(t.TempDir())
	require.NoError(t, err)
	defer kv.Close()

	testStateMachine(t, kv)
}

func Test_LevelDBKV_restart(t *testing.T) {
	dir := t.TempDir()

	kv, err := OpenLevelDBKV(dir)
	require.NoError(t, err)
	kv.Apply(mustEncode(t, Command{Kind: CommandPut, Key: []byte("a"), Value: []byte{0x01}}))
	require.NoError(t, kv.Close())

	kv, err = OpenLevelDBKV(dir)
	require.NoError(t, err)
	defer kv.Close()
	require.Equal(t, []byte{0x01}, kv.Query([]byte("a")))
}
