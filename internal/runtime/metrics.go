package runtime

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/CamiloWG/adhocfabric/internal/logging"
)

// metricsServer exports the four informational counters plus a
// peer-registry-size gauge on an optional HTTP listener. This is pure
// observability; a bind failure is logged, never fatal.
type metricsServer struct {
	srv *http.Server
	log *zap.SugaredLogger

	assigned  prometheus.Counter
	completed prometheus.Counter
	failed    prometheus.Counter
	migrated  prometheus.Counter
	peers     prometheus.Gauge

	// last* track the previous totals handed to sync, since
	// prometheus.Counter only supports Add, not Set.
	lastAssigned, lastCompleted, lastFailed, lastMigrated uint64
}

func newMetricsServer(addr string) *metricsServer {
	reg := prometheus.NewRegistry()
	m := &metricsServer{
		log: logging.Named("metrics"),
		assigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fabricnode_tasks_assigned_total",
			Help: "Total tasks assigned by the scheduler.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fabricnode_tasks_completed_total",
			Help: "Total tasks completed successfully.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fabricnode_tasks_failed_total",
			Help: "Total tasks that terminated with a failure.",
		}),
		migrated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fabricnode_tasks_migrated_total",
			Help: "Total tasks migrated away from a failed peer.",
		}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fabricnode_registry_peers",
			Help: "Current number of peers known to the membership registry.",
		}),
	}
	reg.MustRegister(m.assigned, m.completed, m.failed, m.migrated, m.peers)

	if addr == "" {
		return m
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	m.srv = &http.Server{Addr: addr, Handler: mux}
	return m
}

// sync advances each counter by the delta since the last call and sets the
// peer gauge to its current value.
func (m *metricsServer) sync(assigned, completed, failed, migrated uint64, peerCount int) {
	m.assigned.Add(float64(assigned - m.lastAssigned))
	m.completed.Add(float64(completed - m.lastCompleted))
	m.failed.Add(float64(failed - m.lastFailed))
	m.migrated.Add(float64(migrated - m.lastMigrated))
	m.lastAssigned, m.lastCompleted, m.lastFailed, m.lastMigrated = assigned, completed, failed, migrated
	m.peers.Set(float64(peerCount))
}

func (m *metricsServer) start(ctx context.Context) {
	if m.srv == nil {
		return
	}
	go func() {
		<-ctx.Done()
		_ = m.srv.Close()
	}()
	go func() {
		if err := m.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Warnw("metrics listener failed", "error", err)
		}
	}()
}
