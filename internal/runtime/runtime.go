// Package runtime wires membership, scheduling, shared memory, and locking
// into a single shared kernel and supervises the node's long-running
// workers. Callers construct one *Runtime per process and pass the
// reference explicitly; there is no global singleton.
package runtime

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CamiloWG/adhocfabric/internal/ids"
	"github.com/CamiloWG/adhocfabric/internal/lockmgr"
	"github.com/CamiloWG/adhocfabric/internal/logging"
	"github.com/CamiloWG/adhocfabric/internal/membership"
	"github.com/CamiloWG/adhocfabric/internal/scheduler"
	"github.com/CamiloWG/adhocfabric/internal/sharedmem"
	"github.com/CamiloWG/adhocfabric/internal/transport"
	"github.com/CamiloWG/adhocfabric/internal/wire"
)

// ShellHandler is the external collaborator for local operator input. The
// runtime only owns the worker slot that drives it; the shell itself lives
// outside this module.
type ShellHandler func(ctx context.Context) error

// Runtime is the shared context every worker goroutine holds a reference
// to, passed explicitly rather than hidden behind ambient/global state.
type Runtime struct {
	cfg     Config
	localID ids.NodeID

	Registry  *membership.Registry
	Scheduler *scheduler.Scheduler
	Memory    *sharedmem.Registry
	Locks     *lockmgr.Manager

	announcer *membership.Announcer
	dataSrv   *transport.Server
	metrics   *metricsServer
	shell     ShellHandler

	log *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	running   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs a Runtime: mints or parses the local node id, builds the
// local PeerRecord, and wires the four component tables together.
// Independent initialization failures (discovery socket, data socket) are
// aggregated so the caller can report all of them at once.
func New(cfg Config, shell ShellHandler) (*Runtime, error) {
	cfg.applyDefaults()

	localID, err := cfg.resolveNodeID()
	if err != nil {
		return nil, fmt.Errorf("runtime: resolve node id: %w", err)
	}

	hostName, _ := os.Hostname()
	local := membership.PeerRecord{
		NodeID:     localID,
		HostName:   hostName,
		Address:    localAddress(),
		DataPort:   uint16(cfg.DataPort),
		Reputation: 1.0,
		LastSeen:   time.Now(),
	}

	rt := &Runtime{
		cfg:     cfg,
		localID: localID,
		log:     logging.Named("runtime"),
		shell:   shell,
	}

	rt.Registry = membership.NewRegistry(cfg.membershipConfig(), local, func(peer ids.NodeID) {
		// The registry releases its guard before this runs, and the
		// scheduler never takes the registry's guard while holding its own,
		// so the two table guards are never nested.
		rt.Scheduler.HandleFailure(peer)
	})
	rt.Scheduler = scheduler.New(rt.Registry, cfg.MaxTasks)
	rt.Memory = sharedmem.New(localID, cfg.MaxMemoryBlocks, cfg.ReplicaLimit)
	rt.Locks = lockmgr.New(localID, cfg.MaxLocks)

	var initErr *multierror.Error

	announcer, err := membership.NewAnnouncer(rt.Registry, cfg.membershipConfig())
	if err != nil {
		initErr = multierror.Append(initErr, err)
	}
	rt.announcer = announcer

	dataSrv, err := transport.NewServer(cfg.DataPort, wire.MaxPayload, nil)
	if err != nil {
		initErr = multierror.Append(initErr, err)
	}
	rt.dataSrv = dataSrv

	rt.metrics = newMetricsServer(cfg.MetricsAddr)

	if err := initErr.ErrorOrNil(); err != nil {
		if rt.announcer != nil {
			_ = rt.announcer.Close()
		}
		if rt.dataSrv != nil {
			_ = rt.dataSrv.Close()
		}
		return nil, err
	}
	return rt, nil
}

// LocalID returns the runtime's own node identifier.
func (rt *Runtime) LocalID() ids.NodeID { return rt.localID }

// Running reports the single atomically-readable running flag.
func (rt *Runtime) Running() bool { return rt.running.Load() }

// Start spawns the five fixed workers, plus the metrics sync loop, under a
// shared context/errgroup and flips the running flag. Calling Start more
// than once is a no-op.
func (rt *Runtime) Start() {
	rt.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		rt.ctx = ctx
		rt.cancel = cancel
		group, gctx := errgroup.WithContext(ctx)
		rt.group = group

		rt.running.Store(true)
		rt.metrics.start(ctx)

		group.Go(func() error { return rt.announcer.RunListenLoop(gctx) })  // 1. discovery listener
		group.Go(func() error { return rt.announcer.RunAnnounceLoop(gctx) }) // 2. announcer
		group.Go(func() error { return rt.runReapLoop(gctx) })               // 3. failure reaper
		group.Go(func() error { return rt.dataSrv.Serve(gctx) })             // 4. data-channel acceptor
		group.Go(func() error { return rt.runShellWorker(gctx) })            // 5. command/shell worker
		group.Go(func() error { return rt.runMetricsSyncLoop(gctx) })
	})
}

// runReapLoop sleeps ReapInterval then reaps, then gives the scheduler a
// chance to place tasks stranded by the membership change.
func (rt *Runtime) runReapLoop(ctx context.Context) error {
	ticker := time.NewTicker(rt.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rt.Registry.Reap(time.Now())
			rt.Scheduler.Reconsider()
		}
	}
}

// runShellWorker hosts the local-operator-input slot. The shell itself is
// an external collaborator; absent one, this worker simply waits for
// shutdown.
func (rt *Runtime) runShellWorker(ctx context.Context) error {
	if rt.shell == nil {
		<-ctx.Done()
		return nil
	}
	return rt.shell(ctx)
}

// runMetricsSyncLoop periodically pushes the scheduler's informational
// counters and the registry size into the Prometheus exporter.
func (rt *Runtime) runMetricsSyncLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m := rt.Scheduler.MetricsSnapshot()
			rt.metrics.sync(m.TotalAssigned, m.TotalCompleted, m.TotalFailed, m.TotalMigrated, rt.Registry.Stats().Size)
		}
	}
}

// Stop clears the running flag, cancels all workers, and joins them before
// releasing sockets. Calling Stop more than once, or before Start, is safe.
func (rt *Runtime) Stop() {
	rt.stopOnce.Do(func() {
		rt.running.Store(false)
		if rt.cancel != nil {
			rt.cancel()
		}
		if rt.group != nil {
			_ = rt.group.Wait()
		}
		if rt.announcer != nil {
			_ = rt.announcer.Close()
		}
		if rt.dataSrv != nil {
			_ = rt.dataSrv.Close()
		}
	})
}

// localAddress is a best-effort textual address for the local PeerRecord,
// used only for logging/diagnostics. The address peers record is the sender
// address on the received datagram, never this value.
func localAddress() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
