// Package reputation applies challenge outcomes to agent records: reputation
// deltas, consecutive-fail penalties, status bands, and instant bans. Streak
// counters live in memory only; a validator restart starts every agent's
// streak over.
package reputation

import (
	"context"
	"sync"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/iface"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/Dhenz14/HivePoA-sub000/validator/hive"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "reputation")

// Custom operation ids for the informational ledger broadcasts.
const (
	repUpdateOpID = "spk.poa.reputation"
	poaResultOpID = "spk.poa.result"
)

var (
	successesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poa_reputation_successes_total",
		Help: "Total successful proofs applied to agent records.",
	})
	failsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poa_reputation_fails_total",
		Help: "Total failed proofs applied to agent records, by reason.",
	}, []string{"reason"})
	bansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poa_agent_bans_total",
		Help: "Total instant bans issued for consecutive failures.",
	})
)

// BanNotice is published on the ban feed when an agent is instantly banned
// for consecutive failures.
type BanNotice struct {
	AgentID      string
	HiveUsername string
	Fails        uint64
	At           time.Time
}

// Config options for the reputation policy.
type Config struct {
	DB               iface.ValidatorDB
	Ledger           hive.Ledger
	ValidatorAccount string
	// BroadcastResults also publishes successful proof outcomes to the
	// ledger. Failures always broadcast when the ledger is enabled.
	BroadcastResults bool
}

// Policy mutates agent records from challenge outcomes.
type Policy struct {
	cfg     *Config
	lock    sync.Mutex
	streaks map[string]uint64
	banFeed event.Feed
}

// New creates a reputation policy.
func New(cfg *Config) *Policy {
	return &Policy{
		cfg:     cfg,
		streaks: make(map[string]uint64),
	}
}

// SubscribeBans delivers instant-ban notices to the given channel until the
// subscription is cancelled.
func (p *Policy) SubscribeBans(ch chan<- BanNotice) event.Subscription {
	return p.banFeed.Subscribe(ch)
}

// Streak returns the agent's current consecutive-success count.
func (p *Policy) Streak(agentID string) uint64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.streaks[agentID]
}

// ApplySuccess credits a verified proof: reputation up to its cap, fail
// counter reset, streak extended. It returns the streak including this
// success, which prices the reward multiplier.
func (p *Policy) ApplySuccess(ctx context.Context, agent *types.Agent, cid string, elapsed time.Duration) (uint64, error) {
	cfg := params.PoAConfig()
	agent.Reputation += cfg.ReputationSuccessGain
	if agent.Reputation > cfg.MaxReputation {
		agent.Reputation = cfg.MaxReputation
	}
	agent.ConsecutiveFails = 0
	agent.Status = statusForReputation(agent.Reputation)
	agent.LastSeen = time.Now()

	p.lock.Lock()
	p.streaks[agent.ID]++
	streak := p.streaks[agent.ID]
	p.lock.Unlock()

	if err := p.cfg.DB.SaveAgent(ctx, agent); err != nil {
		return streak, errors.Wrap(err, "could not save agent record")
	}
	successesTotal.Inc()

	if p.cfg.BroadcastResults && p.cfg.Ledger != nil && p.cfg.Ledger.Enabled() {
		p.broadcastResult(ctx, agent, cid, elapsed)
	}
	return streak, nil
}

// ApplyFail debits a failed proof. The penalty grows geometrically with the
// consecutive-fail count up to a cap, and enough fails in a row ban the agent
// outright regardless of where its reputation stood.
func (p *Policy) ApplyFail(ctx context.Context, agent *types.Agent, reason types.FailReason) error {
	cfg := params.PoAConfig()
	agent.ConsecutiveFails++
	agent.Reputation -= failPenalty(agent.ConsecutiveFails)
	if agent.Reputation < 0 {
		agent.Reputation = 0
	}
	agent.Status = statusForReputation(agent.Reputation)
	agent.LastSeen = time.Now()

	banned := agent.ConsecutiveFails >= cfg.ConsecutiveFailBanCount
	if banned {
		agent.Reputation = 0
		agent.Status = types.AgentBanned
	}

	p.lock.Lock()
	delete(p.streaks, agent.ID)
	p.lock.Unlock()

	if err := p.cfg.DB.SaveAgent(ctx, agent); err != nil {
		return errors.Wrap(err, "could not save agent record")
	}
	failsTotal.WithLabelValues(string(reason)).Inc()

	if banned {
		bansTotal.Inc()
		log.WithFields(logrus.Fields{
			"agent":    agent.ID,
			"username": agent.HiveUsername,
			"fails":    agent.ConsecutiveFails,
		}).Warn("Agent banned for consecutive failures")
		p.banFeed.Send(BanNotice{
			AgentID:      agent.ID,
			HiveUsername: agent.HiveUsername,
			Fails:        agent.ConsecutiveFails,
			At:           time.Now(),
		})
	}

	if p.cfg.Ledger != nil && p.cfg.Ledger.Enabled() {
		p.broadcastReputation(ctx, agent, reason)
	}
	return nil
}

// failPenalty is the reputation loss for the nth consecutive failure:
// base×(num/den)^(n−1), floored, capped. Integer arithmetic keeps the floor
// exact; the cap check inside the loop bounds the products.
func failPenalty(fails uint64) int64 {
	cfg := params.PoAConfig()
	penalty := cfg.FailPenaltyBase
	scale := int64(1)
	for i := uint64(1); i < fails; i++ {
		penalty *= cfg.FailPenaltyGrowthNumerator
		scale *= cfg.FailPenaltyGrowthDenominator
		if penalty/scale >= cfg.FailPenaltyCap {
			return cfg.FailPenaltyCap
		}
	}
	return penalty / scale
}

func statusForReputation(rep int64) types.AgentStatus {
	cfg := params.PoAConfig()
	switch {
	case rep < cfg.BanReputationThreshold:
		return types.AgentBanned
	case rep < cfg.ProbationReputationThreshold:
		return types.AgentProbation
	default:
		return types.AgentActive
	}
}

// reputationBroadcast is the payload of the reputation-update custom record.
type reputationBroadcast struct {
	Validator  string `json:"validator"`
	Agent      string `json:"agent"`
	PeerID     string `json:"peer_id"`
	Reputation int64  `json:"reputation"`
	Status     string `json:"status"`
	Fails      uint64 `json:"consecutive_fails"`
	Reason     string `json:"reason,omitempty"`
}

// resultBroadcast is the payload of the informational proof-result record.
type resultBroadcast struct {
	Validator string `json:"validator"`
	Agent     string `json:"agent"`
	PeerID    string `json:"peer_id"`
	CID       string `json:"cid"`
	Result    string `json:"result"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Broadcasts are informational; a failed broadcast never fails the result
// pipeline.
func (p *Policy) broadcastReputation(ctx context.Context, agent *types.Agent, reason types.FailReason) {
	txID, err := p.cfg.Ledger.BroadcastCustomJSON(ctx, repUpdateOpID, &reputationBroadcast{
		Validator:  p.cfg.ValidatorAccount,
		Agent:      agent.HiveUsername,
		PeerID:     agent.ID,
		Reputation: agent.Reputation,
		Status:     string(agent.Status),
		Fails:      agent.ConsecutiveFails,
		Reason:     string(reason),
	})
	if err != nil {
		log.WithError(err).WithField("agent", agent.ID).Warn("Could not broadcast reputation update")
		return
	}
	log.WithFields(logrus.Fields{"agent": agent.ID, "txID": txID}).Debug("Broadcast reputation update")
}

func (p *Policy) broadcastResult(ctx context.Context, agent *types.Agent, cid string, elapsed time.Duration) {
	txID, err := p.cfg.Ledger.BroadcastCustomJSON(ctx, poaResultOpID, &resultBroadcast{
		Validator: p.cfg.ValidatorAccount,
		Agent:     agent.HiveUsername,
		PeerID:    agent.ID,
		CID:       cid,
		Result:    "success",
		ElapsedMs: elapsed.Milliseconds(),
	})
	if err != nil {
		log.WithError(err).WithField("agent", agent.ID).Warn("Could not broadcast proof result")
		return
	}
	log.WithFields(logrus.Fields{"agent": agent.ID, "txID": txID}).Debug("Broadcast proof result")
}
