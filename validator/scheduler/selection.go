package scheduler

import (
	"math"
	mrand "math/rand"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
)

// agentWeight biases selection toward agents the validator trusts least;
// long success streaks earn a reprieve.
func agentWeight(agent *types.Agent, streak uint64) float64 {
	cfg := params.PoAConfig()
	w := float64(int64(cfg.SelectionWeightBase) - agent.Reputation)
	if w < 1 {
		w = 1
	}
	if streak > cfg.SelectionStreakLimit {
		w *= 0.5
	}
	return w
}

// blobWeight biases selection toward larger and less-replicated content,
// where a lost copy hurts most.
func blobWeight(blob *types.Blob) float64 {
	cfg := params.PoAConfig()
	size := float64(blob.SizeBytes)
	if size < 1 {
		size = 1
	}
	replicationTerm := float64(int64(cfg.ReplicationWeightBase) - int64(blob.ReplicationFactor))
	if replicationTerm < 1 {
		replicationTerm = 1
	}
	return math.Log10(size)/float64(cfg.SizeWeightQuotient) + replicationTerm + 1
}

// weightedIndex samples one index proportionally to the given weights.
func weightedIndex(r *mrand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return -1
	}
	target := r.Float64() * total
	for i, w := range weights {
		target -= w
		if target < 0 {
			return i
		}
	}
	return len(weights) - 1
}

// sampleAgents draws up to k distinct agents by weight, without replacement.
func sampleAgents(r *mrand.Rand, agents []*types.Agent, streakOf func(string) uint64, k int) []*types.Agent {
	pool := make([]*types.Agent, len(agents))
	copy(pool, agents)
	weights := make([]float64, len(pool))
	for i, agent := range pool {
		weights[i] = agentWeight(agent, streakOf(agent.ID))
	}

	if k > len(pool) {
		k = len(pool)
	}
	picked := make([]*types.Agent, 0, k)
	for len(picked) < k {
		i := weightedIndex(r, weights)
		if i < 0 {
			break
		}
		picked = append(picked, pool[i])
		pool = append(pool[:i], pool[i+1:]...)
		weights = append(weights[:i], weights[i+1:]...)
	}
	return picked
}

// pickBlob draws one blob by weight, retrying past pairs still in cooldown.
// It returns nil when every draw hit a cooled-down pair.
func pickBlob(r *mrand.Rand, blobs []*types.Blob, agentID string, cool *cooldowns) *types.Blob {
	cfg := params.PoAConfig()
	weights := make([]float64, len(blobs))
	for i, blob := range blobs {
		weights[i] = blobWeight(blob)
	}
	retries := int(cfg.PairRetryLimit)
	for attempt := 0; attempt <= retries; attempt++ {
		i := weightedIndex(r, weights)
		if i < 0 {
			return nil
		}
		if cool.pairReady(agentID, blobs[i].CID) {
			return blobs[i]
		}
	}
	return nil
}
