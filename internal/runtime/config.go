package runtime

import (
	"time"

	"github.com/CamiloWG/adhocfabric/internal/ids"
	"github.com/CamiloWG/adhocfabric/internal/membership"
)

// Config is the full set of options the node recognizes.
type Config struct {
	NodeIDHex string // optional deterministic node_id; empty mints one

	DiscoveryPort      int
	DataPort           int
	BroadcastIntervalS int
	HeartbeatTimeoutS  int
	BroadcastAddresses []string

	// ReapInterval is how often the failure detector sweeps the registry.
	// Zero means the 5s default.
	ReapInterval time.Duration

	MaxNodes        int
	MaxTasks        int
	MaxMemoryBlocks int
	MaxLocks        int
	ReplicaLimit    int

	// MetricsAddr optionally exposes Prometheus metrics over HTTP; empty
	// disables the listener entirely.
	MetricsAddr string
}

// DefaultConfig returns the stock node configuration.
func DefaultConfig() Config {
	return Config{
		DiscoveryPort:      8888,
		DataPort:           8889,
		BroadcastIntervalS: 3,
		HeartbeatTimeoutS:  15,
		BroadcastAddresses: []string{"255.255.255.255"},
		ReapInterval:       5 * time.Second,
		MaxNodes:           100,
		MaxTasks:           1000,
		MaxMemoryBlocks:    256,
		MaxLocks:           256,
		ReplicaLimit:       3,
	}
}

func (c *Config) applyDefaults() {
	if c.ReapInterval <= 0 {
		c.ReapInterval = 5 * time.Second
	}
}

func (c Config) membershipConfig() membership.Config {
	return membership.Config{
		DiscoveryPort:      c.DiscoveryPort,
		BroadcastInterval:  time.Duration(c.BroadcastIntervalS) * time.Second,
		ReapInterval:       c.ReapInterval,
		HeartbeatTimeout:   time.Duration(c.HeartbeatTimeoutS) * time.Second,
		MaxNodes:           c.MaxNodes,
		BroadcastAddresses: c.BroadcastAddresses,
		DedupCacheSize:     256,
	}
}

func (c Config) resolveNodeID() (ids.NodeID, error) {
	if c.NodeIDHex == "" {
		return ids.NewNodeID(), nil
	}
	return ids.NodeIDFromHex(c.NodeIDHex)
}
