package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/assert"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
)

func TestScaled_TrustBands(t *testing.T) {
	base := 100 * time.Second
	tests := []struct {
		reputation int64
		want       time.Duration
	}{
		{reputation: 10, want: 50 * time.Second},
		{reputation: 49, want: 50 * time.Second},
		{reputation: 50, want: 100 * time.Second},
		{reputation: 74, want: 100 * time.Second},
		{reputation: 75, want: 200 * time.Second},
		{reputation: 100, want: 200 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scaled(base, tt.reputation), "reputation %d", tt.reputation)
	}
}

func TestCooldowns_MarkBlocksAgentAndPair(t *testing.T) {
	cool := newCooldowns()
	agent := &types.Agent{ID: "peer1", Reputation: 60}

	assert.Equal(t, true, cool.agentReady("peer1"))
	assert.Equal(t, true, cool.pairReady("peer1", "QmA"))

	cool.markChallenged(agent, "QmA")

	assert.Equal(t, false, cool.agentReady("peer1"))
	assert.Equal(t, false, cool.pairReady("peer1", "QmA"))
	assert.Equal(t, true, cool.pairReady("peer1", "QmB"))
	assert.Equal(t, true, cool.agentReady("peer2"))
	assert.Equal(t, true, cool.pairReady("peer2", "QmA"))
}

func TestCooldowns_TrimDropsSoonestExpiring(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	cfg := params.PoAConfig().Copy()
	cfg.AgentCooldownMaxEntries = 10
	cfg.PairCooldownMaxEntries = 8
	params.OverridePoAConfig(cfg)

	cool := newCooldowns()
	for i := 0; i < 30; i++ {
		agent := &types.Agent{ID: fmt.Sprintf("agent-%02d", i), Reputation: 60}
		cool.markChallenged(agent, "QmShared")
	}

	assert.Equal(t, 10, cool.agents.ItemCount())
	assert.Equal(t, 8, cool.pairs.ItemCount())
	// The newest entry expires last and must survive every trim.
	assert.Equal(t, false, cool.agentReady("agent-29"))
	assert.Equal(t, true, cool.agentReady("agent-00"))
}
