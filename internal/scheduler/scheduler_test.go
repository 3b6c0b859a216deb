package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CamiloWG/adhocfabric/internal/ids"
	"github.com/CamiloWG/adhocfabric/internal/membership"
)

// fakeRegistry is a minimal stand-in for membership.Registry, letting tests
// script peer snapshots directly instead of exercising a live UDP socket.
type fakeRegistry struct {
	mu      sync.Mutex
	local   ids.NodeID
	peers   map[ids.NodeID]membership.PeerRecord
	order   []ids.NodeID
	outcome []outcomeCall
}

type outcomeCall struct {
	id      ids.NodeID
	success bool
}

func newFakeRegistry(local ids.NodeID) *fakeRegistry {
	return &fakeRegistry{local: local, peers: make(map[ids.NodeID]membership.PeerRecord)}
}

func (f *fakeRegistry) put(p membership.PeerRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.peers[p.NodeID]; !exists {
		f.order = append(f.order, p.NodeID)
	}
	f.peers[p.NodeID] = p
}

func (f *fakeRegistry) Snapshot() []membership.PeerRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]membership.PeerRecord, 0, len(f.peers))
	for _, id := range f.order {
		out = append(out, f.peers[id])
	}
	return out
}

func (f *fakeRegistry) LocalID() ids.NodeID { return f.local }

func (f *fakeRegistry) RecordOutcome(id ids.NodeID, success bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcome = append(f.outcome, outcomeCall{id, success})
	rec := f.peers[id]
	delta := -0.10
	if success {
		delta = 0.05
	}
	rec.Reputation = rec.Reputation + delta*(1-rec.Reputation)
	if rec.Reputation < 0.1 {
		rec.Reputation = 0.1
	}
	if rec.Reputation > 1.0 {
		rec.Reputation = 1.0
	}
	f.peers[id] = rec
}

func TestSingleNodeAssignment(t *testing.T) {
	local := ids.NodeID(1)
	reg := newFakeRegistry(local)
	reg.put(membership.PeerRecord{
		NodeID: local, Status: membership.StatusActive,
		CPULoad: 0.1, MemoryUsage: 0.1, Reputation: 0.5, LastSeen: time.Now(),
	})

	s := New(reg, 100)
	taskID, err := s.Submit("task-a", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, ids.TaskID(1), taskID)

	rec, ok := s.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, local, rec.AssignedNode)
	assert.Equal(t, Assigned, rec.Status)

	require.NoError(t, s.Complete(taskID, 0, []byte("ok")))
	rec, _ = s.Get(taskID)
	assert.Equal(t, Completed, rec.Status)

	updated := reg.peers[local]
	assert.Greater(t, updated.Reputation, 0.5)
	assert.LessOrEqual(t, updated.Reputation, 1.0)
}

func TestTwoNodeScoringPicksHigherScore(t *testing.T) {
	n1 := ids.NodeID(1)
	n2 := ids.NodeID(2)
	reg := newFakeRegistry(n1)
	now := time.Now()
	reg.put(membership.PeerRecord{NodeID: n1, Status: membership.StatusActive, CPULoad: 0.1, MemoryUsage: 0.1, Reputation: 0.9, LastSeen: now})
	reg.put(membership.PeerRecord{NodeID: n2, Status: membership.StatusActive, CPULoad: 0.9, MemoryUsage: 0.9, Reputation: 0.5, LastSeen: now})

	s := New(reg, 100)
	taskID, err := s.Submit("scored", 5, nil)
	require.NoError(t, err)

	rec, ok := s.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, n1, rec.AssignedNode)
}

func TestFailureMigration(t *testing.T) {
	n1, n2, n3 := ids.NodeID(1), ids.NodeID(2), ids.NodeID(3)
	reg := newFakeRegistry(n1)
	now := time.Now()
	reg.put(membership.PeerRecord{NodeID: n1, Status: membership.StatusActive, Reputation: 0.5, LastSeen: now})
	reg.put(membership.PeerRecord{NodeID: n2, Status: membership.StatusActive, Reputation: 0.5, LastSeen: now})
	reg.put(membership.PeerRecord{NodeID: n3, Status: membership.StatusActive, Reputation: 0.5, LastSeen: now})

	s := New(reg, 100)

	var taskIDs []ids.TaskID
	for i := 0; i < 3; i++ {
		id, err := s.Submit("t", 5, nil)
		require.NoError(t, err)
		taskIDs = append(taskIDs, id)
	}

	// Force all three onto n2 for the scenario, as the scoring function is
	// otherwise free to pick any eligible peer.
	for _, id := range taskIDs {
		rec, _ := s.Get(id)
		_ = rec
		s.mu.Lock()
		s.tasks[id].AssignedNode = n2
		s.tasks[id].Status = Assigned
		s.mu.Unlock()
	}

	n2peer := reg.peers[n2]
	n2peer.Status = membership.StatusFailed
	reg.put(n2peer)

	s.HandleFailure(n2)

	for _, id := range taskIDs {
		rec, ok := s.Get(id)
		require.True(t, ok)
		assert.NotEqual(t, n2, rec.AssignedNode)
		assert.Equal(t, Assigned, rec.Status)
	}
	assert.EqualValues(t, 3, s.MetricsSnapshot().TotalMigrated)
}

func TestMigrationWithNoAlternativeLeavesAssignedToFailedPeer(t *testing.T) {
	n1, n2 := ids.NodeID(1), ids.NodeID(2)
	reg := newFakeRegistry(n1)
	now := time.Now()
	reg.put(membership.PeerRecord{NodeID: n1, Status: membership.StatusFailed, Reputation: 0.5, LastSeen: now})
	reg.put(membership.PeerRecord{NodeID: n2, Status: membership.StatusFailed, Reputation: 0.5, LastSeen: now})

	s := New(reg, 100)
	taskID, err := s.Submit("lonely", 5, nil)
	require.NoError(t, err)

	s.mu.Lock()
	s.tasks[taskID].AssignedNode = n2
	s.tasks[taskID].Status = Assigned
	s.mu.Unlock()

	s.HandleFailure(n2)

	rec, ok := s.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, n2, rec.AssignedNode)
	assert.Equal(t, Assigned, rec.Status)
	assert.EqualValues(t, 0, s.MetricsSnapshot().TotalMigrated)
}

func TestReputationClampAtFloorAfterRepeatedFailures(t *testing.T) {
	n1 := ids.NodeID(1)
	reg := newFakeRegistry(n1)
	reg.put(membership.PeerRecord{NodeID: n1, Status: membership.StatusActive, Reputation: 0.10, LastSeen: time.Now()})

	for i := 0; i < 10; i++ {
		reg.RecordOutcome(n1, false)
		assert.InDelta(t, 0.10, reg.peers[n1].Reputation, 0.0001)
	}
}

func TestSubmitWithNoEligiblePeerStaysPending(t *testing.T) {
	n1 := ids.NodeID(1)
	reg := newFakeRegistry(n1)
	reg.put(membership.PeerRecord{NodeID: n1, Status: membership.StatusFailed, Reputation: 0.5, LastSeen: time.Now()})

	s := New(reg, 100)
	taskID, err := s.Submit("stuck", 5, nil)
	require.NoError(t, err)

	rec, ok := s.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, Pending, rec.Status)
}

func TestAckAdvancesAssignedToRunning(t *testing.T) {
	n1 := ids.NodeID(1)
	reg := newFakeRegistry(n1)
	reg.put(membership.PeerRecord{NodeID: n1, Status: membership.StatusActive, Reputation: 0.5, LastSeen: time.Now()})

	s := New(reg, 100)
	taskID, err := s.Submit("acked", 5, nil)
	require.NoError(t, err)

	require.NoError(t, s.Ack(taskID))

	rec, ok := s.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, Running, rec.Status)
	assert.False(t, rec.StartedAt.IsZero())
}

func TestCompleteWithGasRecordsCost(t *testing.T) {
	n1 := ids.NodeID(1)
	reg := newFakeRegistry(n1)
	reg.put(membership.PeerRecord{NodeID: n1, Status: membership.StatusActive, Reputation: 0.5, LastSeen: time.Now()})

	s := New(reg, 100)
	taskID, err := s.Submit("metered", 5, nil)
	require.NoError(t, err)

	require.NoError(t, s.CompleteWithGas(taskID, 0, []byte("ok"), 1234))

	rec, ok := s.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, Completed, rec.Status)
	assert.EqualValues(t, 1234, rec.GasUsed)
}

func TestCompleteUnknownTaskReturnsNotFound(t *testing.T) {
	reg := newFakeRegistry(ids.NodeID(1))
	s := New(reg, 100)
	assert.ErrorIs(t, s.Complete(ids.TaskID(42), 0, nil), ErrNotFound)
}

func TestSubmitRejectsWhenTableFull(t *testing.T) {
	n1 := ids.NodeID(1)
	reg := newFakeRegistry(n1)
	reg.put(membership.PeerRecord{NodeID: n1, Status: membership.StatusActive, Reputation: 0.5, LastSeen: time.Now()})

	s := New(reg, 1)
	_, err := s.Submit("first", 1, nil)
	require.NoError(t, err)

	_, err = s.Submit("second", 1, nil)
	assert.ErrorIs(t, err, ErrTableFull)
}
