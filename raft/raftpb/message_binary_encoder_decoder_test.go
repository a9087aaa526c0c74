package raftpb

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Message_Marshal_Unmarshal(t *testing.T) {
	tests := []Message{
		{Type: MESSAGE_TYPE_CAMPAIGN, From: 1, To: 2, SenderCurrentTerm: 3, LogIndex: 7, LogTerm: 2},
		{Type: MESSAGE_TYPE_RESPONSE_TO_CAMPAIGN, From: 2, To: 1, SenderCurrentTerm: 3, VoteGranted: true},
		{
			Type: MESSAGE_TYPE_LEADER_APPEND, From: 1, To: 3, SenderCurrentTerm: 2,
			LogIndex: 1, LogTerm: 1,
			Entries: []Entry{
				{Index: 2, Term: 2, Data: nil},
				{Index: 3, Term: 2, Data: []byte("put a=1")},
			},
		},
		{Type: MESSAGE_TYPE_RESPONSE_TO_LEADER_APPEND, From: 3, To: 1, SenderCurrentTerm: 2, LogIndex: 3, LogTerm: 2, Reject: true},
		{Type: MESSAGE_TYPE_LEADER_HEARTBEAT, From: 1, To: 2, SenderCurrentTerm: 2, CommitIndex: 3, CommitTerm: 2, ReadSeq: 9},
		{Type: MESSAGE_TYPE_CLIENT_REQUEST, From: 2, To: 1, RequestID: "c1-01", RequestKind: REQUEST_KIND_READ, Data: []byte("get a")},
		{Type: MESSAGE_TYPE_CLIENT_RESPONSE, From: 1, To: 2, RequestID: "c1-01", ResponseError: ERROR_TYPE_ABORT},
	}

	for i, msg := range tests {
		bts, err := msg.Marshal()
		require.NoError(t, err)
		require.Equal(t, msg.Size(), len(bts), "#%d: size mismatch", i)

		var decoded Message
		require.NoError(t, decoded.Unmarshal(bts))

		if !reflect.DeepEqual(msg, decoded) {
			t.Fatalf("#%d: expected %+v, got %+v", i, msg, decoded)
		}
	}
}

func Test_MessageBinaryEncoder_Decoder(t *testing.T) {
	buf := new(bytes.Buffer)
	enc := NewMessageBinaryEncoder(buf)

	msgs := []Message{
		{Type: MESSAGE_TYPE_LEADER_HEARTBEAT, From: 1, To: 2, SenderCurrentTerm: 5, CommitIndex: 4, CommitTerm: 5, ReadSeq: 2},
		{Type: MESSAGE_TYPE_LEADER_APPEND, From: 1, To: 2, SenderCurrentTerm: 5, LogIndex: 4, LogTerm: 5, Entries: []Entry{{Index: 5, Term: 5, Data: []byte{0x01}}}},
	}
	for i := range msgs {
		require.NoError(t, enc.Encode(&msgs[i]))
	}

	dec := NewMessageBinaryDecoder(buf)
	for i := range msgs {
		decoded, err := dec.Decode()
		require.NoError(t, err)
		if !reflect.DeepEqual(msgs[i], decoded) {
			t.Fatalf("#%d: expected %+v, got %+v", i, msgs[i], decoded)
		}
	}
}

func Test_Message_Unmarshal_truncated(t *testing.T) {
	msg := Message{Type: MESSAGE_TYPE_CLIENT_REQUEST, RequestID: "x", Data: []byte("abc")}
	bts, err := msg.Marshal()
	require.NoError(t, err)

	for _, n := range []int{0, 1, messageHeaderSize - 1, len(bts) - 1} {
		var decoded Message
		require.Error(t, decoded.Unmarshal(bts[:n]))
	}
}
