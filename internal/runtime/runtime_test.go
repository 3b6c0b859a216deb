package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CamiloWG/adhocfabric/internal/membership"
	"github.com/CamiloWG/adhocfabric/internal/wire"
)

func testConfig() Config {
	cfg := DefaultConfig()
	// Ephemeral ports keep parallel test runs from colliding on 8888/8889.
	cfg.DiscoveryPort = 0
	cfg.DataPort = 0
	cfg.NodeIDHex = "1"
	return cfg
}

func TestNewWiresAllFourComponents(t *testing.T) {
	rt, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer rt.Stop()

	assert.NotNil(t, rt.Registry)
	assert.NotNil(t, rt.Scheduler)
	assert.NotNil(t, rt.Memory)
	assert.NotNil(t, rt.Locks)
	assert.EqualValues(t, 1, rt.LocalID())
}

func TestStartStopTogglesRunningFlag(t *testing.T) {
	rt, err := New(testConfig(), nil)
	require.NoError(t, err)

	assert.False(t, rt.Running())
	rt.Start()
	assert.True(t, rt.Running())
	rt.Stop()
	assert.False(t, rt.Running())
}

func TestStartStopAreIdempotent(t *testing.T) {
	rt, err := New(testConfig(), nil)
	require.NoError(t, err)

	rt.Start()
	rt.Start() // second call must be a no-op, not a panic/double-spawn
	rt.Stop()
	rt.Stop()
}

func TestSingleNodeAssignmentEndToEnd(t *testing.T) {
	rt, err := New(testConfig(), nil)
	require.NoError(t, err)
	rt.Start()
	defer rt.Stop()

	taskID, err := rt.Scheduler.Submit("task-a", 5, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, taskID)

	rec, ok := rt.Scheduler.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, rt.LocalID(), rec.AssignedNode)

	require.NoError(t, rt.Scheduler.Complete(taskID, 0, []byte("ok")))
	rec, _ = rt.Scheduler.Get(taskID)
	assert.Equal(t, 0, rec.ExitCode)

	local, ok := rt.Registry.Get(rt.LocalID())
	require.True(t, ok)
	assert.Greater(t, local.Reputation, 0.5)
	assert.LessOrEqual(t, local.Reputation, 1.0)
}

func TestLockIdempotenceEndToEnd(t *testing.T) {
	rt, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer rt.Stop()

	id1, err := rt.Locks.CreateOrGet("db")
	require.NoError(t, err)
	id2, err := rt.Locks.CreateOrGet("db")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.EqualValues(t, 1, rt.Locks.Stats().Size)
}

func TestMemoryVersionMonotonicityEndToEnd(t *testing.T) {
	rt, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer rt.Stop()

	blockID, err := rt.Memory.Allocate(64)
	require.NoError(t, err)

	require.NoError(t, rt.Memory.Write(blockID, []byte("v1"), 0))
	require.NoError(t, rt.Memory.Write(blockID, []byte("v2"), 0))

	desc, err := rt.Memory.Describe(blockID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, desc.Version)
}

func TestReapLoopTransitionsStalePeerToFailed(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatTimeoutS = 0                // any elapsed time reaps immediately
	cfg.ReapInterval = 20 * time.Millisecond // sweep fast enough for the test
	rt, err := New(cfg, nil)
	require.NoError(t, err)
	defer rt.Stop()

	// Ingest a peer directly rather than over a real UDP round trip, which
	// sandboxed test environments may not route reliably.
	stalePeer := &wire.DiscoveryPayload{NodeID: 2, Reputation: 0.8, Status: wire.StatusActive}
	require.NoError(t, rt.Registry.Ingest(stalePeer, "10.0.0.9", time.Now().Add(-time.Minute)))

	rt.Start()
	require.Eventually(t, func() bool {
		rec, ok := rt.Registry.Get(2)
		return ok && rec.Status == membership.StatusFailed
	}, time.Second, 10*time.Millisecond)
}
