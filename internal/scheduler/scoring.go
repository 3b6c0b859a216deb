package scheduler

import (
	"math"
	"time"

	"github.com/CamiloWG/adhocfabric/internal/ids"
	"github.com/CamiloWG/adhocfabric/internal/membership"
)

// sentinelScore marks a peer ineligible for selection; it can never win a
// max-score comparison.
var sentinelScore = math.Inf(-1)

// score is the weighted selection formula: load, free memory, reputation,
// and beacon freshness, with a bonus for high-priority work on peers with a
// strong track record. Only Active peers are eligible; everyone else scores
// sentinelScore.
func score(peer membership.PeerRecord, priority int, now time.Time) float64 {
	if peer.Status != membership.StatusActive {
		return sentinelScore
	}

	loadScore := 1 - peer.CPULoad
	memScore := 1 - peer.MemoryUsage
	repScore := peer.Reputation

	age := now.Sub(peer.LastSeen).Seconds()
	var freshness float64
	if age <= 5 {
		freshness = 1.0
	} else {
		freshness = 1.0 / (1.0 + 0.1*(age-5))
	}

	total := 0.30*loadScore + 0.20*memScore + 0.35*repScore + 0.15*freshness

	if priority >= 8 && peer.Reputation > 0.7 {
		total += 0.10
	}

	return total
}

// selectBestPeer returns the highest-scoring eligible peer from candidates,
// excluding any node id in exclude. Ties break by the candidates' iteration
// order, which callers must supply in registry insertion order (the
// Registry.Snapshot contract) so repeated runs over the same registry pick
// the same peer. The local node is a candidate like any other.
func selectBestPeer(candidates []membership.PeerRecord, priority int, now time.Time, exclude map[ids.NodeID]bool) (membership.PeerRecord, bool) {
	var best membership.PeerRecord
	bestScore := sentinelScore
	found := false

	for _, c := range candidates {
		if exclude != nil && exclude[c.NodeID] {
			continue
		}
		s := score(c, priority, now)
		if s == sentinelScore {
			continue
		}
		if s > bestScore {
			bestScore = s
			best = c
			found = true
		}
	}
	return best, found
}
