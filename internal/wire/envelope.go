package wire

import (
	"encoding/binary"
	"errors"

	"github.com/CamiloWG/adhocfabric/internal/ids"
)

// StrongMagic identifies a well-formed strong envelope header on the data
// channel. Anything else and the receiver silently drops the frame.
const StrongMagic uint32 = 0xDEADBEEF

// StrongHeaderLen is the fixed header preceding a strong envelope's payload:
// magic(4) + version(4) + msg_type(4) + sender_node_id(8) + sequence(4) +
// payload_size(4), all big-endian.
const StrongHeaderLen = 4 + 4 + 4 + 8 + 4 + 4

var (
	ErrBadMagic       = errors.New("wire: strong envelope magic mismatch")
	ErrHeaderTooShort = errors.New("wire: strong envelope header truncated")
	ErrFrameTooLarge  = errors.New("wire: strong envelope payload_size exceeds buffer capacity")
)

// StrongEnvelope is the data-channel's framed header, big-endian on wire.
type StrongEnvelope struct {
	Version     uint32
	MsgType     uint32
	SenderNode  ids.NodeID
	Sequence    uint32
	PayloadSize uint32
	Payload     []byte
}

// Encode serializes the fixed header followed by Payload. The caller is
// responsible for keeping PayloadSize consistent with len(Payload); Encode
// always writes len(Payload) regardless of the PayloadSize field's value.
func (e *StrongEnvelope) Encode() []byte {
	buf := make([]byte, StrongHeaderLen+len(e.Payload))
	binary.BigEndian.PutUint32(buf[0:4], StrongMagic)
	binary.BigEndian.PutUint32(buf[4:8], e.Version)
	binary.BigEndian.PutUint32(buf[8:12], e.MsgType)
	binary.BigEndian.PutUint64(buf[12:20], uint64(e.SenderNode))
	binary.BigEndian.PutUint32(buf[20:24], e.Sequence)
	binary.BigEndian.PutUint32(buf[24:28], uint32(len(e.Payload)))
	copy(buf[StrongHeaderLen:], e.Payload)
	return buf
}

// DecodeStrongHeader parses just the fixed header, returning the number of
// payload bytes the caller must still read. maxPayload bounds the receive
// buffer; a declared payload_size beyond it is rejected rather than
// truncated.
func DecodeStrongHeader(raw []byte, maxPayload uint32) (*StrongEnvelope, error) {
	if len(raw) < StrongHeaderLen {
		return nil, ErrHeaderTooShort
	}
	magic := binary.BigEndian.Uint32(raw[0:4])
	if magic != StrongMagic {
		return nil, ErrBadMagic
	}
	e := &StrongEnvelope{}
	e.Version = binary.BigEndian.Uint32(raw[4:8])
	e.MsgType = binary.BigEndian.Uint32(raw[8:12])
	e.SenderNode = ids.NodeID(binary.BigEndian.Uint64(raw[12:20]))
	e.Sequence = binary.BigEndian.Uint32(raw[20:24])
	e.PayloadSize = binary.BigEndian.Uint32(raw[24:28])
	if e.PayloadSize > maxPayload {
		return nil, ErrFrameTooLarge
	}
	return e, nil
}

// DecodeStrongEnvelope parses a full header+payload buffer in one call, used
// by tests and any caller that already has the whole frame in memory.
func DecodeStrongEnvelope(raw []byte, maxPayload uint32) (*StrongEnvelope, error) {
	e, err := DecodeStrongHeader(raw, maxPayload)
	if err != nil {
		return nil, err
	}
	if uint32(len(raw)-StrongHeaderLen) < e.PayloadSize {
		return nil, ErrHeaderTooShort
	}
	e.Payload = make([]byte, e.PayloadSize)
	copy(e.Payload, raw[StrongHeaderLen:StrongHeaderLen+int(e.PayloadSize)])
	return e, nil
}
