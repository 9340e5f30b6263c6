package scheduler

import (
	"sort"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	gcache "github.com/patrickmn/go-cache"
)

// cooldowns tracks which agents and (agent, blob) pairs were challenged
// recently. Entries expire on their own; explicit trims bound the tables
// when expiry cannot keep up with churn.
type cooldowns struct {
	agents *gcache.Cache
	pairs  *gcache.Cache
}

func newCooldowns() *cooldowns {
	cfg := params.PoAConfig()
	agentBase := time.Duration(cfg.AgentCooldownSeconds) * time.Second
	pairBase := time.Duration(cfg.PairCooldownSeconds) * time.Second
	return &cooldowns{
		agents: gcache.New(agentBase, agentBase),
		pairs:  gcache.New(pairBase, pairBase),
	}
}

// scaled applies the trust multiplier: low-trust agents come off cooldown
// sooner so they are probed more often, high-trust agents later.
func scaled(base time.Duration, reputation int64) time.Duration {
	cfg := params.PoAConfig()
	switch {
	case reputation < cfg.LowTrustReputation:
		return base / time.Duration(cfg.LowTrustCooldownQuotient)
	case reputation >= cfg.HighTrustReputation:
		return base * time.Duration(cfg.HighTrustCooldownFactor)
	default:
		return base
	}
}

func pairKey(agentID, cid string) string {
	return agentID + "|" + cid
}

// markChallenged stamps both cooldown tables for a dispatched pair.
func (c *cooldowns) markChallenged(agent *types.Agent, cid string) {
	cfg := params.PoAConfig()
	agentBase := time.Duration(cfg.AgentCooldownSeconds) * time.Second
	pairBase := time.Duration(cfg.PairCooldownSeconds) * time.Second
	c.agents.Set(agent.ID, struct{}{}, scaled(agentBase, agent.Reputation))
	c.pairs.Set(pairKey(agent.ID, cid), struct{}{}, scaled(pairBase, agent.Reputation))
	c.trim(c.agents, int(cfg.AgentCooldownMaxEntries))
	c.trim(c.pairs, int(cfg.PairCooldownMaxEntries))
}

// agentReady reports whether the agent is out of its cooldown window.
func (c *cooldowns) agentReady(agentID string) bool {
	_, held := c.agents.Get(agentID)
	return !held
}

// pairReady reports whether the (agent, blob) pair may be rechallenged.
func (c *cooldowns) pairReady(agentID, cid string) bool {
	_, held := c.pairs.Get(pairKey(agentID, cid))
	return !held
}

// trim drops the soonest-expiring entries once a table outgrows its cap.
func (c *cooldowns) trim(table *gcache.Cache, max int) {
	if max <= 0 || table.ItemCount() <= max {
		return
	}
	table.DeleteExpired()
	over := table.ItemCount() - max
	if over <= 0 {
		return
	}
	type expiringKey struct {
		key string
		exp int64
	}
	keys := make([]expiringKey, 0, table.ItemCount())
	for key, item := range table.Items() {
		keys = append(keys, expiringKey{key: key, exp: item.Expiration})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].exp < keys[j].exp })
	for i := 0; i < over && i < len(keys); i++ {
		table.Delete(keys[i].key)
	}
}
