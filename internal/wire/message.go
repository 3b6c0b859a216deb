// Package wire implements the on-wire encodings used by the fabric: the
// beacon-channel Message envelope carrying a bit-exact DiscoveryPayload, and
// the data-channel's framed "strong" envelope. Both are fixed-width
// encoding/binary layouts rather than a general serialization library so
// that the byte layout stays stable for non-Go peers.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/CamiloWG/adhocfabric/internal/ids"
)

// MessageType tags the beacon-channel envelope.
type MessageType uint8

const (
	Discovery MessageType = iota
	Heartbeat
	TaskAssign
	TaskResult
	MemRequest
	MemResponse
	MemReplicate
	SyncLock
	SyncUnlock
	NodeFailure
	TaskMigrate
)

func (t MessageType) String() string {
	switch t {
	case Discovery:
		return "Discovery"
	case Heartbeat:
		return "Heartbeat"
	case TaskAssign:
		return "TaskAssign"
	case TaskResult:
		return "TaskResult"
	case MemRequest:
		return "MemRequest"
	case MemResponse:
		return "MemResponse"
	case MemReplicate:
		return "MemReplicate"
	case SyncLock:
		return "SyncLock"
	case SyncUnlock:
		return "SyncUnlock"
	case NodeFailure:
		return "NodeFailure"
	case TaskMigrate:
		return "TaskMigrate"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// MaxPayload bounds the envelope's fixed-capacity payload array. A message
// declaring a larger payload_size is rejected outright, never truncated.
const MaxPayload = 4096

var (
	ErrPayloadTooLarge = errors.New("wire: declared payload_size exceeds buffer capacity")
	ErrTruncated       = errors.New("wire: buffer shorter than declared payload_size")
)

// Message is the beacon-channel envelope: type, sender, timestamp, and a
// fixed-capacity payload.
type Message struct {
	Type      MessageType
	SenderID  ids.NodeID
	Timestamp int64 // seconds since epoch
	Payload   []byte
}

// NewMessage builds an envelope, rejecting oversized payloads up front so a
// caller never constructs a Message that Encode would refuse to serialize.
func NewMessage(typ MessageType, sender ids.NodeID, timestamp int64, payload []byte) (*Message, error) {
	if len(payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	return &Message{Type: typ, SenderID: sender, Timestamp: timestamp, Payload: payload}, nil
}

// Encode serializes the envelope: 1-byte type, 8-byte sender, 8-byte
// timestamp, 2-byte payload_size, followed by the payload bytes.
func (m *Message) Encode() ([]byte, error) {
	if len(m.Payload) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(m.Type))
	var sender [8]byte
	binary.LittleEndian.PutUint64(sender[:], uint64(m.SenderID))
	buf.Write(sender[:])
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(m.Timestamp))
	buf.Write(ts[:])
	var size [2]byte
	binary.LittleEndian.PutUint16(size[:], uint16(len(m.Payload)))
	buf.Write(size[:])
	buf.Write(m.Payload)
	return buf.Bytes(), nil
}

// DecodeMessage parses an envelope from raw bytes, rejecting a declared
// payload_size that exceeds either MaxPayload or the bytes actually present.
func DecodeMessage(raw []byte) (*Message, error) {
	const headerLen = 1 + 8 + 8 + 2
	if len(raw) < headerLen {
		return nil, ErrTruncated
	}
	typ := MessageType(raw[0])
	sender := ids.NodeID(binary.LittleEndian.Uint64(raw[1:9]))
	ts := int64(binary.LittleEndian.Uint64(raw[9:17]))
	size := binary.LittleEndian.Uint16(raw[17:19])
	if int(size) > MaxPayload {
		return nil, ErrPayloadTooLarge
	}
	if len(raw) < headerLen+int(size) {
		return nil, ErrTruncated
	}
	payload := make([]byte, size)
	copy(payload, raw[headerLen:headerLen+int(size)])
	return &Message{Type: typ, SenderID: sender, Timestamp: ts, Payload: payload}, nil
}
