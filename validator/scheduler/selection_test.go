package scheduler

import (
	"fmt"
	mrand "math/rand"
	"testing"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/assert"
	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/require"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
)

func TestAgentWeight_FavorsLowReputation(t *testing.T) {
	tests := []struct {
		reputation int64
		streak     uint64
		want       float64
	}{
		{reputation: 1, streak: 0, want: 100},
		{reputation: 60, streak: 0, want: 41},
		{reputation: 100, streak: 0, want: 1},
		{reputation: 60, streak: 50, want: 41},
		{reputation: 60, streak: 51, want: 20.5},
		{reputation: 100, streak: 51, want: 0.5},
	}
	for _, tt := range tests {
		agent := &types.Agent{ID: "peer1", Reputation: tt.reputation}
		assert.Equal(t, tt.want, agentWeight(agent, tt.streak), "reputation %d streak %d", tt.reputation, tt.streak)
	}
}

func TestBlobWeight_FavorsLargeAndRare(t *testing.T) {
	// log10(1) is exactly zero and the replication term floors at one, so a
	// tiny fully-replicated blob has the exact minimum weight.
	tiny := &types.Blob{CID: "QmTiny", SizeBytes: 1, ReplicationFactor: 100}
	assert.Equal(t, 2.0, blobWeight(tiny))

	small := &types.Blob{CID: "QmSmall", SizeBytes: 4096, ReplicationFactor: 3}
	big := &types.Blob{CID: "QmBig", SizeBytes: 1 << 30, ReplicationFactor: 3}
	if blobWeight(big) <= blobWeight(small) {
		t.Fatalf("bigger blob must weigh more: big=%v small=%v", blobWeight(big), blobWeight(small))
	}

	rare := &types.Blob{CID: "QmRare", SizeBytes: 4096, ReplicationFactor: 1}
	common := &types.Blob{CID: "QmCommon", SizeBytes: 4096, ReplicationFactor: 9}
	if blobWeight(rare) <= blobWeight(common) {
		t.Fatalf("rarer blob must weigh more: rare=%v common=%v", blobWeight(rare), blobWeight(common))
	}
}

func TestWeightedIndex(t *testing.T) {
	r := mrand.New(mrand.NewSource(1))

	for i := 0; i < 50; i++ {
		assert.Equal(t, 2, weightedIndex(r, []float64{0, 0, 5}))
	}
	assert.Equal(t, -1, weightedIndex(r, []float64{0, 0}))
	assert.Equal(t, -1, weightedIndex(r, nil))
}

func TestSampleAgents_WithoutReplacement(t *testing.T) {
	r := mrand.New(mrand.NewSource(1))
	agents := make([]*types.Agent, 0, 6)
	for i := 0; i < 6; i++ {
		agents = append(agents, &types.Agent{ID: fmt.Sprintf("peer%d", i), Reputation: 60})
	}
	noStreak := func(string) uint64 { return 0 }

	picked := sampleAgents(r, agents, noStreak, 4)
	require.Equal(t, 4, len(picked))
	seen := make(map[string]bool)
	for _, agent := range picked {
		if seen[agent.ID] {
			t.Fatalf("agent %s sampled twice", agent.ID)
		}
		seen[agent.ID] = true
	}

	// Requesting more than exist drains the pool exactly once.
	picked = sampleAgents(r, agents, noStreak, 10)
	assert.Equal(t, 6, len(picked))
}

func TestSampleAgents_BiasedTowardLowReputation(t *testing.T) {
	r := mrand.New(mrand.NewSource(7))
	suspect := &types.Agent{ID: "suspect", Reputation: 1}
	trusted := &types.Agent{ID: "trusted", Reputation: 100}
	noStreak := func(string) uint64 { return 0 }

	counts := map[string]int{}
	for i := 0; i < 200; i++ {
		picked := sampleAgents(r, []*types.Agent{suspect, trusted}, noStreak, 1)
		require.Equal(t, 1, len(picked))
		counts[picked[0].ID]++
	}
	if counts["suspect"] <= counts["trusted"] {
		t.Fatalf("low-reputation agent must dominate selection: %v", counts)
	}
}

func TestPickBlob_RespectsPairCooldown(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	cfg := params.PoAConfig().Copy()
	cfg.PairRetryLimit = 50
	params.OverridePoAConfig(cfg)

	r := mrand.New(mrand.NewSource(1))
	cool := newCooldowns()
	agent := &types.Agent{ID: "peer1", Reputation: 60}
	cooled := &types.Blob{CID: "QmCooled", SizeBytes: 4096, ReplicationFactor: 3}
	ready := &types.Blob{CID: "QmReady", SizeBytes: 4096, ReplicationFactor: 3}
	cool.markChallenged(agent, cooled.CID)

	// The only blob is cooling down: every retry misses.
	assert.Equal(t, (*types.Blob)(nil), pickBlob(r, []*types.Blob{cooled}, "peer1", cool))

	// With a ready alternative, retries land on it well within the limit.
	got := pickBlob(r, []*types.Blob{cooled, ready}, "peer1", cool)
	require.NotNil(t, got)
	assert.Equal(t, "QmReady", got.CID)

	// Another agent never shared the pair, so the cooled blob is fair game.
	got = pickBlob(r, []*types.Blob{cooled}, "peer2", cool)
	require.NotNil(t, got)
	assert.Equal(t, "QmCooled", got.CID)
}
