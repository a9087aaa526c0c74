// Package kvsm provides key-value application state machines for the
// replicated log: an in-memory btree-indexed store and a leveldb-backed
// durable store. Both speak the same binary command format, so a cluster
// can mix them in tests and deployments.
package kvsm

import (
	"encoding/binary"
	"fmt"
)

// CommandKind is the operation a replicated command performs.
type CommandKind uint8

const (
	CommandPut CommandKind = iota
	CommandDelete
)

// Command is a single mutation of the key-value state.
type Command struct {
	Kind  CommandKind
	Key   []byte
	Value []byte
}

// maxKeyLen bounds keys to keep malformed commands from allocating
// unbounded buffers.
const maxKeyLen = 1 << 16

/*
EncodeCommand encodes a command as:

	[0]                    - CommandKind
	[1..3]                 - key length, uint16
	[3..3+keyLen]          - key
	[3+keyLen..3+keyLen+4] - value length, uint32 (put only)
	[..]                   - value (put only)
*/
func EncodeCommand(cmd Command) ([]byte, error) {
	if len(cmd.Key) == 0 {
		return nil, fmt.Errorf("kvsm: key cannot be empty")
	}
	if len(cmd.Key) >= maxKeyLen {
		return nil, fmt.Errorf("kvsm: key too long (%d bytes)", len(cmd.Key))
	}

	b := make([]byte, 0, 3+len(cmd.Key)+4+len(cmd.Value))
	b = append(b, byte(cmd.Kind))
	b = binary.BigEndian.AppendUint16(b, uint16(len(cmd.Key)))
	b = append(b, cmd.Key...)

	switch cmd.Kind {
	case CommandPut:
		b = binary.BigEndian.AppendUint32(b, uint32(len(cmd.Value)))
		b = append(b, cmd.Value...)
	case CommandDelete:
	default:
		return nil, fmt.Errorf("kvsm: unsupported command kind %d", cmd.Kind)
	}

	return b, nil
}

// DecodeCommand decodes bytes produced by EncodeCommand.
func DecodeCommand(msg []byte) (Command, error) {
	var cmd Command

	if len(msg) < 3 {
		return cmd, fmt.Errorf("kvsm: command too short (%d bytes)", len(msg))
	}
	cmd.Kind = CommandKind(msg[0])

	keyLen := int(binary.BigEndian.Uint16(msg[1:3]))
	if keyLen == 0 || len(msg) < 3+keyLen {
		return cmd, fmt.Errorf("kvsm: incomplete command key (key length %d in %d bytes)", keyLen, len(msg))
	}
	cmd.Key = msg[3 : 3+keyLen]

	switch cmd.Kind {
	case CommandPut:
		off := 3 + keyLen
		if len(msg) < off+4 {
			return cmd, fmt.Errorf("kvsm: command too short for value length")
		}
		valueLen := int(binary.BigEndian.Uint32(msg[off : off+4]))
		if len(msg) < off+4+valueLen {
			return cmd, fmt.Errorf("kvsm: incomplete command value (value length %d)", valueLen)
		}
		cmd.Value = msg[off+4 : off+4+valueLen]

	case CommandDelete:

	default:
		return cmd, fmt.Errorf("kvsm: unsupported command kind %d", cmd.Kind)
	}

	return cmd, nil
}
