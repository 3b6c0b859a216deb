// Package ids mints the identifiers that flow through every other
// component: NodeId at process startup, and the local-monotonic
// TaskId/BlockId/LockId counters each table hands out.
package ids

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// NodeID is a 64-bit opaque identifier, stable for the process lifetime.
// Uniqueness across a fleet is probabilistic, not guaranteed.
type NodeID uint64

// NewNodeID mints a NodeID by combining a high-resolution clock reading,
// the process id, and a random source. For fleets of up to 2^16 nodes this
// is effectively collision-free.
func NewNodeID() NodeID {
	return newNodeIDFrom(time.Now(), os.Getpid(), uuid.New())
}

func newNodeIDFrom(now time.Time, pid int, seed uuid.UUID) NodeID {
	var h uint64 = 1469598103934665603 // FNV offset basis
	mix := func(v uint64) {
		h ^= v
		h *= 1099511628211 // FNV prime
	}
	mix(uint64(now.UnixNano()))
	mix(uint64(uint32(pid)))
	mix(binary.LittleEndian.Uint64(seed[:8]))
	mix(binary.LittleEndian.Uint64(seed[8:]))
	if h == 0 {
		h = 1
	}
	return NodeID(h)
}

// NodeIDFromHex parses a deterministic hex node_id, as accepted by the CLI's
// positional argument and the "node_id" configuration option. An optional
// "0x" prefix is tolerated.
func NodeIDFromHex(s string) (NodeID, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("ids: invalid hex node id %q: %w", s, err)
	}
	return NodeID(v), nil
}

// TaskID is a 64-bit local-monotonic counter, unique within the minting
// node's lifetime. Globally it is disambiguated by (owner_node_id, task_id).
type TaskID uint64

// BlockID is a 64-bit local-monotonic counter scoped to the owning node.
type BlockID uint64

// LockID is a 64-bit local-monotonic counter scoped to the local lock table.
type LockID uint64

// Counter is a simple atomic monotonic minter shared by the task, block and
// lock tables; each table owns its own instance so ids never collide across
// tables despite sharing the same underlying type width.
type Counter struct {
	next atomic.Uint64
}

// Next returns the next value starting from 1 (0 is reserved to mean
// "unowned"/"absent" throughout the data model).
func (c *Counter) Next() uint64 {
	return c.next.Add(1)
}
