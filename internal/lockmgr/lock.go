// Package lockmgr implements the named lock manager: local-node mutual
// exclusion with bounded-wait, poll-based acquire.
package lockmgr

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/CamiloWG/adhocfabric/internal/ids"
	"github.com/CamiloWG/adhocfabric/internal/logging"
)

// ErrTimeout is returned when acquire exhausts its wait budget.
var ErrTimeout = errors.New("lockmgr: acquire timed out")

// ErrTableFull is returned when create_or_get would mint a new lock beyond
// max_locks capacity.
var ErrTableFull = errors.New("lockmgr: lock table at capacity")

const pollInterval = 10 * time.Millisecond

// lockEntry is one named lock's internal state, guarded by its own mutex so
// acquire's poll loop never holds the table guard across a sleep.
type lockEntry struct {
	mu sync.Mutex

	lockID    ids.LockID
	name      string
	isLocked  bool
	ownerNode ids.NodeID
	ownerTask ids.TaskID
	lockedAt  time.Time
}

// NamedLock is a read-only snapshot of a lock's state.
type NamedLock struct {
	LockID    ids.LockID
	Name      string
	IsLocked  bool
	OwnerNode ids.NodeID
	OwnerTask ids.TaskID
	LockedAt  time.Time
}

// Manager is the guarded lock table. Scope is local-node only; remote nodes
// do not negotiate through this module.
type Manager struct {
	mu       sync.Mutex
	byName   map[string]*lockEntry
	byID     map[ids.LockID]*lockEntry
	counter  ids.Counter
	localID  ids.NodeID
	maxLocks int
	log      *zap.SugaredLogger
}

// New constructs a lock manager scoped to localID, capped at maxLocks
// distinct named locks.
func New(localID ids.NodeID, maxLocks int) *Manager {
	return &Manager{
		byName:   make(map[string]*lockEntry, maxLocks),
		byID:     make(map[ids.LockID]*lockEntry, maxLocks),
		localID:  localID,
		maxLocks: maxLocks,
		log:      logging.Named("lockmgr"),
	}
}

// CreateOrGet returns the lock_id for name, minting a new lock if one
// doesn't exist. Idempotent: the only admission path into the table.
func (m *Manager) CreateOrGet(name string) (ids.LockID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.byName[name]; ok {
		return e.lockID, nil
	}
	if len(m.byName) >= m.maxLocks {
		return 0, ErrTableFull
	}

	e := &lockEntry{lockID: ids.LockID(m.counter.Next()), name: name}
	m.byName[name] = e
	m.byID[e.lockID] = e
	return e.lockID, nil
}

// Acquire polls every 10ms attempting to flip is_locked from false to true.
// A negative timeout waits indefinitely; timeout_ms=0 with the lock held
// returns ErrTimeout immediately without ever sleeping.
func (m *Manager) Acquire(lockID ids.LockID, taskID ids.TaskID, timeout time.Duration) error {
	m.mu.Lock()
	e, ok := m.byID[lockID]
	m.mu.Unlock()
	if !ok {
		return errors.New("lockmgr: unknown lock id")
	}

	deadline := time.Now().Add(timeout)
	indefinite := timeout < 0

	for {
		e.mu.Lock()
		if !e.isLocked {
			e.isLocked = true
			e.ownerNode = m.localID
			e.ownerTask = taskID
			e.lockedAt = time.Now()
			e.mu.Unlock()
			return nil
		}
		e.mu.Unlock()

		if !indefinite && !time.Now().Before(deadline) {
			return ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

// Release clears is_locked if the local node is the recorded owner.
// Releasing a lock not held by the local node is a silent no-op.
func (m *Manager) Release(lockID ids.LockID) {
	m.mu.Lock()
	e, ok := m.byID[lockID]
	m.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isLocked && e.ownerNode == m.localID {
		e.isLocked = false
		e.ownerNode = 0
		e.ownerTask = 0
	}
}

// Describe returns a snapshot of one lock's state.
func (m *Manager) Describe(lockID ids.LockID) (NamedLock, bool) {
	m.mu.Lock()
	e, ok := m.byID[lockID]
	m.mu.Unlock()
	if !ok {
		return NamedLock{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return NamedLock{
		LockID:    e.lockID,
		Name:      e.name,
		IsLocked:  e.isLocked,
		OwnerNode: e.ownerNode,
		OwnerTask: e.ownerTask,
		LockedAt:  e.lockedAt,
	}, true
}

// Stats reports table occupancy for the metrics surface.
type Stats struct {
	Size int
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Size: len(m.byName)}
}
