package membership

import (
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/CamiloWG/adhocfabric/internal/ids"
	"github.com/CamiloWG/adhocfabric/internal/logging"
	"github.com/CamiloWG/adhocfabric/internal/wire"
)

// ErrRegistryFull is returned when a brand new peer arrives and the table
// is already at MaxNodes. Callers log it and drop the message; known peers
// are always accepted.
var ErrRegistryFull = errors.New("membership: registry at capacity")

type dedupKey struct {
	sender ids.NodeID
	ts     int64
}

// Registry is the guarded peer table. The reaper (which takes this guard)
// never acquires the scheduler's table guard while holding it: the guard is
// released before any failure signal fires.
type Registry struct {
	mu      sync.Mutex
	peers   map[ids.NodeID]*PeerRecord
	order   []ids.NodeID // insertion order, for stable tie-breaking in scoring
	cfg     Config
	localID ids.NodeID
	dedup   *lru.Cache[dedupKey, struct{}]
	log     *zap.SugaredLogger

	// onFailure is invoked, guard released, once per peer transitioned to
	// Failed during a reap sweep. The scheduler hangs its migration off it.
	onFailure func(ids.NodeID)
}

// NewRegistry constructs the registry and seeds it with the local peer
// record (IsLocal=true, Active) as its sole initial entry.
func NewRegistry(cfg Config, local PeerRecord, onFailure func(ids.NodeID)) *Registry {
	local.IsLocal = true
	local.Status = StatusActive
	local.Reputation = clampReputation(local.Reputation)
	if local.Reputation == 0 {
		local.Reputation = 1.0
	}

	cache, err := lru.New[dedupKey, struct{}](cfg.DedupCacheSize)
	if err != nil {
		// Only a non-positive size can fail construction; fall back to a
		// minimal cache rather than letting registry construction fail.
		cache, _ = lru.New[dedupKey, struct{}](1)
	}

	r := &Registry{
		peers:     make(map[ids.NodeID]*PeerRecord, cfg.MaxNodes),
		cfg:       cfg,
		localID:   local.NodeID,
		dedup:     cache,
		log:       logging.Named("membership"),
		onFailure: onFailure,
	}
	rec := local
	r.peers[local.NodeID] = &rec
	r.order = append(r.order, local.NodeID)
	return r
}

// LocalID returns the registry's own node identifier.
func (r *Registry) LocalID() ids.NodeID { return r.localID }

// RefreshLocal updates the local record's load counters ahead of an
// announcement so peers always see a current snapshot.
func (r *Registry) RefreshLocal(cpuLoad, memUsage float64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	local, ok := r.peers[r.localID]
	if !ok {
		return
	}
	local.CPULoad = cpuLoad
	local.MemoryUsage = memUsage
	local.LastSeen = now
}

// Ingest validates and applies an inbound Discovery/Heartbeat payload.
// Duplicate messages are idempotent on fields (last-writer-wins); only
// last_seen may advance on a repeat ingest.
func (r *Registry) Ingest(p *wire.DiscoveryPayload, senderAddr string, now time.Time) error {
	if p.NodeID == r.localID {
		return nil // drop messages from ourselves
	}

	// Directed-broadcast fan-out means the same announcement can land more
	// than once in one tick. The cache short-circuits those repeats ahead of
	// the table guard; ingest stays fully idempotent even if it evicts early.
	key := dedupKey{sender: p.NodeID, ts: now.Unix()}
	if seen, _ := r.dedup.ContainsOrAdd(key, struct{}{}); seen {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.peers[p.NodeID]
	if !exists {
		if len(r.peers) >= r.cfg.MaxNodes {
			r.log.Warnw("registry at capacity, dropping new peer", "node_id", p.NodeID)
			return ErrRegistryFull
		}
		rec = &PeerRecord{NodeID: p.NodeID}
		r.peers[p.NodeID] = rec
		r.order = append(r.order, p.NodeID)
	}

	rec.Address = senderAddr
	rec.HostName = p.HostName
	rec.DataPort = p.DataPort
	rec.CPULoad = float64(p.CPULoad)
	rec.MemoryUsage = float64(p.MemoryUsage)
	rec.Reputation = clampReputation(float64(p.Reputation))
	rec.TasksCompleted = uint64(p.TasksCompleted)
	rec.TasksFailed = uint64(p.TasksFailed)
	rec.Status = p.Status
	rec.LastSeen = now

	return nil
}

// Reap transitions every non-local Active/Busy peer whose last_seen has
// exceeded HeartbeatTimeout to Failed, halves its reputation, and fires the
// failure callback once the guard is released, so no other component's
// guard is ever taken while this one is held.
func (r *Registry) Reap(now time.Time) {
	var failed []ids.NodeID

	r.mu.Lock()
	for id, rec := range r.peers {
		if rec.IsLocal {
			continue
		}
		if rec.Status != StatusActive && rec.Status != StatusBusy {
			continue
		}
		if now.Sub(rec.LastSeen) > r.cfg.HeartbeatTimeout {
			rec.Status = StatusFailed
			rec.Reputation = clampReputation(rec.Reputation / 2)
			failed = append(failed, id)
		}
	}
	r.mu.Unlock()

	for _, id := range failed {
		r.log.Infow("peer reaped as failed", "node_id", id)
		if r.onFailure != nil {
			r.onFailure(id)
		}
	}
}

// Snapshot returns a consistent point-in-time copy of every peer record, in
// registry insertion order so that scoring ties break stably.
func (r *Registry) Snapshot() []PeerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PeerRecord, 0, len(r.peers))
	for _, id := range r.order {
		if rec, ok := r.peers[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Get returns a copy of one peer's record.
func (r *Registry) Get(id ids.NodeID) (PeerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.peers[id]
	if !ok {
		return PeerRecord{}, false
	}
	return rec.Clone(), true
}

// RecordOutcome applies the scheduler's reputation update after a terminal
// task outcome: a small diminishing reward on success, a larger penalty on
// failure, clamped to [0.1, 1.0].
func (r *Registry) RecordOutcome(id ids.NodeID, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.peers[id]
	if !ok {
		return
	}
	delta := -0.10
	if success {
		delta = 0.05
		rec.TasksCompleted++
	} else {
		rec.TasksFailed++
	}
	rec.Reputation = clampReputation(rec.Reputation + delta*(1-rec.Reputation))
}

// Stats reports table occupancy for the metrics surface.
type Stats struct {
	Size int
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Size: len(r.peers)}
}
