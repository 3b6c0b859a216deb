package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"

	"github.com/CamiloWG/adhocfabric/internal/ids"
)

// PeerStatus mirrors PeerRecord.status across the wire.
type PeerStatus uint8

const (
	StatusUnknown PeerStatus = iota
	StatusActive
	StatusBusy
	StatusFailed
	StatusRecovering
)

const (
	hostNameLen  = 64
	addressLen   = 16
	DiscoveryLen = 8 + hostNameLen + addressLen + 2 + 4 + 4 + 4 + 4 + 4 + 1 // 111
)

// ErrDiscoveryLen signals a buffer that isn't exactly DiscoveryLen bytes.
var ErrDiscoveryLen = errors.New("wire: DiscoveryPayload must be exactly 111 bytes")

// DiscoveryPayload is the bit-exact, little-endian layout carried inside a
// Discovery/Heartbeat Message's payload: a refreshed snapshot of the
// announcing node's PeerRecord.
type DiscoveryPayload struct {
	NodeID         ids.NodeID
	HostName       string
	AddressText    string
	DataPort       uint16
	CPULoad        float32
	MemoryUsage    float32
	Reputation     float32
	TasksCompleted uint32
	TasksFailed    uint32
	Status         PeerStatus
}

// Encode writes the fixed 111-byte layout. Strings longer than their field
// are truncated; shorter strings are NUL-padded.
func (d *DiscoveryPayload) Encode() []byte {
	buf := make([]byte, DiscoveryLen)
	off := 0

	binary.LittleEndian.PutUint64(buf[off:], uint64(d.NodeID))
	off += 8

	putFixedString(buf[off:off+hostNameLen], d.HostName)
	off += hostNameLen

	putFixedString(buf[off:off+addressLen], d.AddressText)
	off += addressLen

	binary.LittleEndian.PutUint16(buf[off:], d.DataPort)
	off += 2

	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(d.CPULoad))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(d.MemoryUsage))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(d.Reputation))
	off += 4

	binary.LittleEndian.PutUint32(buf[off:], d.TasksCompleted)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], d.TasksFailed)
	off += 4

	buf[off] = byte(d.Status)
	off++

	return buf
}

// DecodeDiscoveryPayload parses the fixed 111-byte layout.
func DecodeDiscoveryPayload(raw []byte) (*DiscoveryPayload, error) {
	if len(raw) != DiscoveryLen {
		return nil, ErrDiscoveryLen
	}
	off := 0
	d := &DiscoveryPayload{}

	d.NodeID = ids.NodeID(binary.LittleEndian.Uint64(raw[off:]))
	off += 8

	d.HostName = getFixedString(raw[off : off+hostNameLen])
	off += hostNameLen

	d.AddressText = getFixedString(raw[off : off+addressLen])
	off += addressLen

	d.DataPort = binary.LittleEndian.Uint16(raw[off:])
	off += 2

	d.CPULoad = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
	off += 4
	d.MemoryUsage = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
	off += 4
	d.Reputation = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
	off += 4

	d.TasksCompleted = binary.LittleEndian.Uint32(raw[off:])
	off += 4
	d.TasksFailed = binary.LittleEndian.Uint32(raw[off:])
	off += 4

	d.Status = PeerStatus(raw[off])
	off++

	return d, nil
}

func putFixedString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, s)
}

func getFixedString(src []byte) string {
	i := bytes.IndexByte(src, 0)
	if i < 0 {
		i = len(src)
	}
	return string(src[:i])
}
