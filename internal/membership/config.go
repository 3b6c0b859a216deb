package membership

import "time"

// Config holds the membership policy knobs, all fixed at construction.
type Config struct {
	DiscoveryPort      int
	BroadcastInterval  time.Duration
	ReapInterval       time.Duration
	HeartbeatTimeout   time.Duration
	MaxNodes           int
	BroadcastAddresses []string // every broadcast address the announcer sends to
	DedupCacheSize     int
}

// DefaultConfig returns the stock policy: announce every 3s on port 8888,
// reap every 5s, declare a peer failed after 15s of silence, cap the
// registry at 100 nodes.
func DefaultConfig() Config {
	return Config{
		DiscoveryPort:      8888,
		BroadcastInterval:  3 * time.Second,
		ReapInterval:       5 * time.Second,
		HeartbeatTimeout:   15 * time.Second,
		MaxNodes:           100,
		BroadcastAddresses: []string{"255.255.255.255"},
		DedupCacheSize:     256,
	}
}
