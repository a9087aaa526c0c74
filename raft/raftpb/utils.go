package raftpb

import (
	"bytes"
	"fmt"
)

// EmptyHardState is an empty hard state.
var EmptyHardState = HardState{}

// CheckHardStateEqual returns true if two states are equal.
func CheckHardStateEqual(a, b HardState) bool {
	return a.Term == b.Term && a.VotedFor == b.VotedFor
}

// IsEmptyHardState returns true if the given HardState is empty.
func IsEmptyHardState(st HardState) bool {
	return CheckHardStateEqual(st, EmptyHardState)
}

// IsResponseMessage returns true if the message type is response.
func IsResponseMessage(tp MESSAGE_TYPE) bool {
	return tp == MESSAGE_TYPE_RESPONSE_TO_CAMPAIGN ||
		tp == MESSAGE_TYPE_RESPONSE_TO_LEADER_APPEND ||
		tp == MESSAGE_TYPE_RESPONSE_TO_LEADER_HEARTBEAT
}

// IsInternalMessage returns true if the message type never crosses
// the network.
func IsInternalMessage(tp MESSAGE_TYPE) bool {
	return tp == MESSAGE_TYPE_INTERNAL_TRIGGER_CAMPAIGN ||
		tp == MESSAGE_TYPE_INTERNAL_TRIGGER_LEADER_HEARTBEAT
}

// IsClientMessage returns true if the message carries a client request
// or response. Client messages are exempt from term normalization.
func IsClientMessage(tp MESSAGE_TYPE) bool {
	return tp == MESSAGE_TYPE_CLIENT_REQUEST ||
		tp == MESSAGE_TYPE_CLIENT_RESPONSE
}

// DescribeEntry describes Entry in human-readable format.
func DescribeEntry(e Entry) string {
	return fmt.Sprintf("[index=%d | term=%d | data=%q]", e.Index, e.Term, e.Data)
}

// DescribeMessage describes Message in human-readable format.
func DescribeMessage(msg Message) string {
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "Message [type=%q | from=%x ➝ to=%x | term=%d | log index=%d, log term=%d | commit index=%d, commit term=%d | read seq=%d | reject=%v | vote granted=%v]",
		msg.Type, msg.From, msg.To, msg.SenderCurrentTerm, msg.LogIndex, msg.LogTerm, msg.CommitIndex, msg.CommitTerm, msg.ReadSeq, msg.Reject, msg.VoteGranted)

	if msg.RequestID != "" {
		fmt.Fprintf(buf, ", Request [id=%s | kind=%q | error=%q]", msg.RequestID, msg.RequestKind, msg.ResponseError)
	}

	if len(msg.Entries) > 0 {
		buf.WriteString(", Entries: [")
		for i, e := range msg.Entries {
			if i != 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(DescribeEntry(e))
		}
		buf.WriteString("]")
	}

	return buf.String()
}
