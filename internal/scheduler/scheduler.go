package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/CamiloWG/adhocfabric/internal/ids"
	"github.com/CamiloWG/adhocfabric/internal/logging"
	"github.com/CamiloWG/adhocfabric/internal/membership"
)

// ErrTableFull is returned when the task table is at max_tasks capacity.
var ErrTableFull = errors.New("scheduler: task table at capacity")

// ErrNotFound is returned by complete() for an unknown task id.
var ErrNotFound = errors.New("scheduler: task not found")

// Registry is the subset of membership.Registry the scheduler consults.
// Declared as an interface so scheduler tests can supply a fake peer table
// without pulling in a live UDP socket.
type Registry interface {
	Snapshot() []membership.PeerRecord
	LocalID() ids.NodeID
	RecordOutcome(id ids.NodeID, success bool)
}

// Metrics are the scheduler's informational counters, incremented
// atomically so readers never need the table guard.
type Metrics struct {
	TotalAssigned  atomic.Uint64
	TotalCompleted atomic.Uint64
	TotalFailed    atomic.Uint64
	TotalMigrated  atomic.Uint64
}

// Scheduler is the guarded task table.
type Scheduler struct {
	mu       sync.Mutex
	tasks    map[ids.TaskID]*TaskRecord
	order    []ids.TaskID
	counter  ids.Counter
	registry Registry
	localID  ids.NodeID
	maxTasks int
	metrics  Metrics
	log      *zap.SugaredLogger
}

// New constructs a Scheduler bound to registry, capped at maxTasks entries.
func New(registry Registry, maxTasks int) *Scheduler {
	return &Scheduler{
		tasks:    make(map[ids.TaskID]*TaskRecord, maxTasks),
		registry: registry,
		localID:  registry.LocalID(),
		maxTasks: maxTasks,
		log:      logging.Named("scheduler"),
	}
}

// Submit accepts a task from the local node, scores candidate peers, and
// either assigns it immediately or leaves it Pending if no peer is eligible.
// Submission never blocks on peer availability.
func (s *Scheduler) Submit(description string, priority int, payload []byte) (ids.TaskID, error) {
	s.mu.Lock()
	if len(s.tasks) >= s.maxTasks {
		s.mu.Unlock()
		return 0, ErrTableFull
	}

	taskID := ids.TaskID(s.counter.Next())
	now := time.Now()
	rec := &TaskRecord{
		TaskID:      taskID,
		OwnerNode:   s.localID,
		Description: description,
		Priority:    clampPriority(priority),
		Status:      Pending,
		CreatedAt:   now,
		Input:       payload,
	}
	s.tasks[taskID] = rec
	s.order = append(s.order, taskID)
	s.mu.Unlock()

	s.tryAssign(taskID)
	return taskID, nil
}

// tryAssign scores the current membership snapshot for a Pending task and
// assigns it if a candidate is eligible. Candidate scoring never happens
// while holding the task table guard: the registry snapshot (which takes the
// registry's guard) is read with the task table guard released.
func (s *Scheduler) tryAssign(taskID ids.TaskID) {
	s.mu.Lock()
	rec, ok := s.tasks[taskID]
	if !ok || rec.Status != Pending {
		s.mu.Unlock()
		return
	}
	priority := rec.Priority
	s.mu.Unlock()

	candidates := s.registry.Snapshot()
	chosen, found := selectBestPeer(candidates, priority, time.Now(), nil)
	if !found {
		return // stays Pending, reconsidered on the next registry change
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok = s.tasks[taskID]
	if !ok || rec.Status != Pending {
		return
	}
	rec.AssignedNode = chosen.NodeID
	rec.Status = Assigned
	s.metrics.TotalAssigned.Add(1)
}

// Reconsider re-runs assignment for every Pending task. The reaper calls it
// after each sweep so tasks stranded by an empty registry pick up newly
// arrived or recovered peers.
func (s *Scheduler) Reconsider() {
	s.mu.Lock()
	pending := make([]ids.TaskID, 0)
	for _, id := range s.order {
		if rec, ok := s.tasks[id]; ok && rec.Status == Pending {
			pending = append(pending, id)
		}
	}
	s.mu.Unlock()

	for _, id := range pending {
		s.tryAssign(id)
	}
}

// Ack records the executor's Assigned -> Running acknowledgement.
func (s *Scheduler) Ack(taskID ids.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if rec.Status == Assigned {
		rec.Status = Running
		rec.StartedAt = time.Now()
	}
	return nil
}

// Complete resolves a terminal outcome for task_id, updating the task
// record and pushing the reputation delta back into the peer registry.
func (s *Scheduler) Complete(taskID ids.TaskID, exitCode int, result []byte) error {
	return s.CompleteWithGas(taskID, exitCode, result, 0)
}

// CompleteWithGas is Complete plus the executor's reported cost counter.
// The counter is informational only; selection never reads it.
func (s *Scheduler) CompleteWithGas(taskID ids.TaskID, exitCode int, result []byte, gasUsed uint64) error {
	s.mu.Lock()
	rec, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}

	success := exitCode == 0
	rec.ExitCode = exitCode
	rec.Result = result
	rec.GasUsed = gasUsed
	rec.CompletedAt = time.Now()
	if success {
		rec.Status = Completed
		s.metrics.TotalCompleted.Add(1)
	} else {
		rec.Status = Failed
		s.metrics.TotalFailed.Add(1)
	}
	assignee := rec.AssignedNode
	s.mu.Unlock()

	// Applied after releasing the task table guard so it is never held
	// while the registry's guard is taken.
	s.registry.RecordOutcome(assignee, success)
	return nil
}

// HandleFailure is the failure-signal entry point: for every task assigned
// to failedPeer and still in Assigned or Running, re-run selection excluding
// failedPeer; migrate if a new peer is found, otherwise leave the task
// Assigned to failedPeer for retry.
func (s *Scheduler) HandleFailure(failedPeer ids.NodeID) {
	s.mu.Lock()
	var affected []ids.TaskID
	for _, id := range s.order {
		rec := s.tasks[id]
		if rec.AssignedNode == failedPeer && (rec.Status == Assigned || rec.Status == Running) {
			rec.Status = Migrating
			affected = append(affected, id)
		}
	}
	s.mu.Unlock()

	if len(affected) == 0 {
		return
	}

	candidates := s.registry.Snapshot()
	now := time.Now()
	exclude := map[ids.NodeID]bool{failedPeer: true}

	for _, id := range affected {
		s.mu.Lock()
		rec := s.tasks[id]
		priority := rec.Priority
		s.mu.Unlock()

		chosen, found := selectBestPeer(candidates, priority, now, exclude)

		s.mu.Lock()
		rec = s.tasks[id]
		if found {
			rec.AssignedNode = chosen.NodeID
			rec.Status = Assigned
			s.metrics.TotalMigrated.Add(1)
		} else {
			// No alternative: leave pointed at the failed peer, eligible
			// for retry when membership changes.
			rec.AssignedNode = failedPeer
			rec.Status = Assigned
		}
		s.mu.Unlock()
	}
}

// Get returns a copy of one task record.
func (s *Scheduler) Get(taskID ids.TaskID) (TaskRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[taskID]
	if !ok {
		return TaskRecord{}, false
	}
	return rec.Clone(), true
}

// Stats reports table occupancy for the metrics surface.
type Stats struct {
	Size int
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Size: len(s.tasks)}
}

// MetricsSnapshot returns the current value of the four informational
// counters.
type MetricsSnapshot struct {
	TotalAssigned  uint64
	TotalCompleted uint64
	TotalFailed    uint64
	TotalMigrated  uint64
}

func (s *Scheduler) MetricsSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalAssigned:  s.metrics.TotalAssigned.Load(),
		TotalCompleted: s.metrics.TotalCompleted.Load(),
		TotalFailed:    s.metrics.TotalFailed.Load(),
		TotalMigrated:  s.metrics.TotalMigrated.Load(),
	}
}
