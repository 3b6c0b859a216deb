// Package membership implements the broadcast-based peer registry and
// failure detector: discovery announcements, peer ingest, reaping of silent
// peers, and point-in-time snapshots for the scheduler.
package membership

import (
	"time"

	"github.com/CamiloWG/adhocfabric/internal/ids"
	"github.com/CamiloWG/adhocfabric/internal/wire"
)

// Status is the peer lifecycle state. Peers are never deleted, only
// transitioned, so identifier recycling cannot race a stale reference.
type Status = wire.PeerStatus

const (
	StatusUnknown    = wire.StatusUnknown
	StatusActive     = wire.StatusActive
	StatusBusy       = wire.StatusBusy
	StatusFailed     = wire.StatusFailed
	StatusRecovering = wire.StatusRecovering
)

// PeerRecord is the registry's entry for one node, local or remote.
type PeerRecord struct {
	NodeID         ids.NodeID
	HostName       string
	Address        string // sender IP as observed from the transport, not the payload
	DataPort       uint16
	CPULoad        float64
	MemoryUsage    float64
	Reputation     float64
	TasksCompleted uint64
	TasksFailed    uint64
	Status         Status
	LastSeen       time.Time
	IsLocal        bool
}

// Clone returns a value copy safe to hand to callers outside the registry
// guard (Snapshot's contract).
func (p *PeerRecord) Clone() PeerRecord {
	return *p
}

const (
	minReputation = 0.1
	maxReputation = 1.0
)

func clampReputation(r float64) float64 {
	if r < minReputation {
		return minReputation
	}
	if r > maxReputation {
		return maxReputation
	}
	return r
}
