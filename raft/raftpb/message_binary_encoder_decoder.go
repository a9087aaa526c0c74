package raftpb

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrBadMessageEncoding is returned when decoding malformed bytes.
var ErrBadMessageEncoding = errors.New("raftpb: bad message encoding")

const (
	entryHeaderSize   = 8 + 8 + 4
	messageHeaderSize = 1 + 8 + 8 + 8 + /* five uint64 position fields */ 5*8 + /* flag byte */ 1 + /* kind, error */ 2
)

// Size returns the encoded size of the message in bytes.
func (msg *Message) Size() int {
	n := messageHeaderSize
	n += 2 + len(msg.RequestID)
	n += 4 + len(msg.Data)
	n += 4
	for i := range msg.Entries {
		n += msg.Entries[i].Size()
	}
	return n
}

// Marshal encodes Message in big-endian binary format.
func (msg *Message) Marshal() ([]byte, error) {
	b := make([]byte, 0, msg.Size())

	b = append(b, byte(msg.Type))
	b = appendUint64(b, msg.From)
	b = appendUint64(b, msg.To)
	b = appendUint64(b, msg.SenderCurrentTerm)
	b = appendUint64(b, msg.LogIndex)
	b = appendUint64(b, msg.LogTerm)
	b = appendUint64(b, msg.CommitIndex)
	b = appendUint64(b, msg.CommitTerm)
	b = appendUint64(b, msg.ReadSeq)

	var flags byte
	if msg.Reject {
		flags |= 1
	}
	if msg.VoteGranted {
		flags |= 2
	}
	b = append(b, flags, byte(msg.RequestKind), byte(msg.ResponseError))

	if len(msg.RequestID) > 1<<16-1 {
		return nil, ErrBadMessageEncoding
	}
	b = appendUint16(b, uint16(len(msg.RequestID)))
	b = append(b, msg.RequestID...)

	b = appendUint32(b, uint32(len(msg.Data)))
	b = append(b, msg.Data...)

	b = appendUint32(b, uint32(len(msg.Entries)))
	for i := range msg.Entries {
		b = appendUint64(b, msg.Entries[i].Index)
		b = appendUint64(b, msg.Entries[i].Term)
		b = appendUint32(b, uint32(len(msg.Entries[i].Data)))
		b = append(b, msg.Entries[i].Data...)
	}

	return b, nil
}

// Unmarshal decodes bytes produced by Marshal.
func (msg *Message) Unmarshal(b []byte) error {
	rd := &byteReader{src: b}

	tp, err := rd.readByte()
	if err != nil {
		return err
	}
	msg.Type = MESSAGE_TYPE(tp)

	for _, fp := range []*uint64{
		&msg.From, &msg.To, &msg.SenderCurrentTerm,
		&msg.LogIndex, &msg.LogTerm,
		&msg.CommitIndex, &msg.CommitTerm, &msg.ReadSeq,
	} {
		if *fp, err = rd.readUint64(); err != nil {
			return err
		}
	}

	flags, err := rd.readByte()
	if err != nil {
		return err
	}
	msg.Reject = flags&1 != 0
	msg.VoteGranted = flags&2 != 0

	kind, err := rd.readByte()
	if err != nil {
		return err
	}
	msg.RequestKind = REQUEST_KIND(kind)

	rerr, err := rd.readByte()
	if err != nil {
		return err
	}
	msg.ResponseError = ERROR_TYPE(rerr)

	idN, err := rd.readUint16()
	if err != nil {
		return err
	}
	idBytes, err := rd.readBytes(int(idN))
	if err != nil {
		return err
	}
	msg.RequestID = string(idBytes)

	dataN, err := rd.readUint32()
	if err != nil {
		return err
	}
	if msg.Data, err = rd.readBytes(int(dataN)); err != nil {
		return err
	}

	entryN, err := rd.readUint32()
	if err != nil {
		return err
	}
	msg.Entries = nil
	for i := uint32(0); i < entryN; i++ {
		var ent Entry
		if ent.Index, err = rd.readUint64(); err != nil {
			return err
		}
		if ent.Term, err = rd.readUint64(); err != nil {
			return err
		}
		edN, err := rd.readUint32()
		if err != nil {
			return err
		}
		if ent.Data, err = rd.readBytes(int(edN)); err != nil {
			return err
		}
		msg.Entries = append(msg.Entries, ent)
	}

	return nil
}

// MessageBinaryEncoder encodes(marshals) Message in binary format,
// prefixed with the encoded size.
type MessageBinaryEncoder struct {
	w io.Writer
}

// NewMessageBinaryEncoder returns a new MessageBinaryEncoder with given writer.
func NewMessageBinaryEncoder(w io.Writer) *MessageBinaryEncoder {
	return &MessageBinaryEncoder{w: w}
}

// Encode encodes Message to writer.
func (enc *MessageBinaryEncoder) Encode(msg *Message) error {
	bts, err := msg.Marshal()
	if err != nil {
		return err
	}

	if err := binary.Write(enc.w, binary.BigEndian, uint64(len(bts))); err != nil {
		return err
	}

	_, err = enc.w.Write(bts)
	return err
}

// MessageBinaryDecoder decodes(unmarshals) bytes to Message.
type MessageBinaryDecoder struct {
	r io.Reader
}

// NewMessageBinaryDecoder returns a new MessageBinaryDecoder with given reader.
func NewMessageBinaryDecoder(r io.Reader) *MessageBinaryDecoder {
	return &MessageBinaryDecoder{r: r}
}

// Decode decodes Message from reader.
func (dec *MessageBinaryDecoder) Decode() (Message, error) {
	var bNum uint64
	if err := binary.Read(dec.r, binary.BigEndian, &bNum); err != nil {
		return Message{}, err
	}

	src := make([]byte, int(bNum))
	if _, err := io.ReadFull(dec.r, src); err != nil {
		return Message{}, err
	}

	var msg Message
	err := msg.Unmarshal(src)
	return msg, err
}

type byteReader struct {
	src []byte
	off int
}

func (rd *byteReader) readByte() (byte, error) {
	if rd.off+1 > len(rd.src) {
		return 0, ErrBadMessageEncoding
	}
	b := rd.src[rd.off]
	rd.off++
	return b, nil
}

func (rd *byteReader) readBytes(n int) ([]byte, error) {
	if n < 0 || rd.off+n > len(rd.src) {
		return nil, ErrBadMessageEncoding
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	copy(b, rd.src[rd.off:rd.off+n])
	rd.off += n
	return b, nil
}

func (rd *byteReader) readUint16() (uint16, error) {
	if rd.off+2 > len(rd.src) {
		return 0, ErrBadMessageEncoding
	}
	v := binary.BigEndian.Uint16(rd.src[rd.off:])
	rd.off += 2
	return v, nil
}

func (rd *byteReader) readUint32() (uint32, error) {
	if rd.off+4 > len(rd.src) {
		return 0, ErrBadMessageEncoding
	}
	v := binary.BigEndian.Uint32(rd.src[rd.off:])
	rd.off += 4
	return v, nil
}

func (rd *byteReader) readUint64() (uint64, error) {
	if rd.off+8 > len(rd.src) {
		return 0, ErrBadMessageEncoding
	}
	v := binary.BigEndian.Uint64(rd.src[rd.off:])
	rd.off += 8
	return v, nil
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v>>8), byte(v))
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendUint64(b []byte, v uint64) []byte {
	return append(b,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
