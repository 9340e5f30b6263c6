// Package rewards batches verified proofs into per-agent micropayments and
// flushes them to the ledger once a batch is large enough. Every flush
// attempt leaves an audit row, and financial safety caps are enforced before
// any transfer is broadcast.
package rewards

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/validator/contracts"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/iface"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/Dhenz14/HivePoA-sub000/validator/hive"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "rewards")

const dailyWindow = 24 * time.Hour

var (
	payoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poa_payouts_total",
		Help: "Payout flush attempts, by broadcast status.",
	}, []string{"status"})
	payoutMicrosTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poa_payout_micros_total",
		Help: "Micro-HIVE paid out across all successful flushes.",
	})
	rejectedFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poa_payout_rejections_total",
		Help: "Flushes rejected before broadcast, by safety check.",
	}, []string{"check"})
)

// Config options for the reward accumulator.
type Config struct {
	DB               iface.ValidatorDB
	Ledger           hive.Ledger
	Contracts        *contracts.Manager
	ValidatorAccount string
}

// batch is one agent's unpaid verified proofs. The flushing flag is the
// per-agent flush guard: a flush that finds it set aborts.
type batch struct {
	username string
	count    uint64
	total    types.Amount
	cids     map[string]struct{}
	flushing bool
}

// Accumulator batches rewards per agent and pushes them through the ledger
// in capped flushes.
type Accumulator struct {
	cfg *Config

	lock        sync.Mutex
	batches     map[string]*batch
	dailySpend  types.Amount
	windowStart time.Time
}

// New creates a reward accumulator with a fresh daily spend window.
func New(cfg *Config) *Accumulator {
	return &Accumulator{
		cfg:         cfg,
		batches:     make(map[string]*batch),
		windowStart: time.Now(),
	}
}

// Credit prices one verified proof and adds it to the agent's batch. The
// reward is the funding contract's per-challenge rate (or the fallback when
// unfunded), scaled down by how replicated the blob is and up by the agent's
// success streak. Funded rewards debit the contract first; an exhausted
// budget completes the contract but the already-earned reward still pays.
// Reaching the batch threshold triggers a flush.
func (a *Accumulator) Credit(ctx context.Context, agent *types.Agent, blob *types.Blob, contract *types.Contract, streak uint64) (types.Amount, error) {
	cfg := params.PoAConfig()
	base := types.Amount(cfg.FallbackReward)
	if contract != nil {
		base = contract.RewardPerChallenge
	}
	replication := blob.ReplicationFactor
	if replication == 0 {
		replication = 1
	}
	num, den := streakMultiplier(streak)
	reward := base.MulFraction(1, replication).MulFraction(num, den)

	if contract != nil {
		_, exhausted, err := a.cfg.Contracts.DebitForChallenge(ctx, contract.ID, reward)
		if err != nil {
			return 0, errors.Wrap(err, "could not debit contract")
		}
		if exhausted {
			log.WithFields(logrus.Fields{
				"contract": contract.ID,
				"agent":    agent.ID,
				"reward":   reward,
			}).Info("Paying final reward from exhausted contract")
		}
	}

	a.lock.Lock()
	b := a.batches[agent.ID]
	if b == nil {
		b = &batch{username: agent.HiveUsername, cids: make(map[string]struct{})}
		a.batches[agent.ID] = b
	}
	b.username = agent.HiveUsername
	b.count++
	b.total += reward
	b.cids[blob.CID] = struct{}{}
	count := b.count
	a.lock.Unlock()

	if count >= cfg.BatchPayoutThreshold {
		if err := a.Flush(ctx, agent.ID); err != nil {
			log.WithError(err).WithField("agent", agent.ID).Error("Could not flush reward batch")
		}
	}
	return reward, nil
}

// streakMultiplier returns the reward multiplier for a success streak as a
// num/den pair over the fixed multiplier scale.
func streakMultiplier(streak uint64) (uint64, uint64) {
	cfg := params.PoAConfig()
	den := cfg.StreakMultiplierDenominator
	switch {
	case streak >= cfg.StreakTier3Count:
		return cfg.StreakTier3Multiplier, den
	case streak >= cfg.StreakTier2Count:
		return cfg.StreakTier2Multiplier, den
	case streak >= cfg.StreakTier1Count:
		return cfg.StreakTier1Multiplier, den
	default:
		return den, den
	}
}

// Flush pays out one agent's batch, subject to the safety checks. A batch
// over the single-payout cap is discarded loudly; a batch the daily cap or
// reserve floor cannot absorb is retained for a later flush; a failed
// broadcast also retains. Credits landing while the flush runs survive it
// untouched.
func (a *Accumulator) Flush(ctx context.Context, agentID string) error {
	cfg := params.PoAConfig()
	now := time.Now()

	a.lock.Lock()
	b := a.batches[agentID]
	if b == nil || b.count == 0 {
		a.lock.Unlock()
		return nil
	}
	if b.flushing {
		a.lock.Unlock()
		log.WithField("agent", agentID).Debug("Flush already in progress")
		return nil
	}
	b.flushing = true
	count := b.count
	total := b.total
	username := b.username
	cids := make([]string, 0, len(b.cids))
	for cid := range b.cids {
		cids = append(cids, cid)
	}

	// Roll the daily window before judging the caps.
	if now.Sub(a.windowStart) >= dailyWindow {
		a.windowStart = now
		a.dailySpend = 0
	}
	dailySpend := a.dailySpend
	a.lock.Unlock()

	finish := func(clear bool, spend types.Amount) {
		a.lock.Lock()
		b.flushing = false
		if clear {
			b.count -= count
			b.total -= total
			for _, cid := range cids {
				delete(b.cids, cid)
			}
			if b.count == 0 {
				delete(a.batches, agentID)
			}
			a.dailySpend += spend
		}
		a.lock.Unlock()
	}

	if total > types.Amount(cfg.MaxSinglePayout) {
		// A batch this size signals reward arithmetic gone wrong. Paying
		// it is worse than dropping it, so it is discarded, loudly.
		rejectedFlushes.WithLabelValues("single_payout_cap").Inc()
		log.WithFields(logrus.Fields{
			"agent":  agentID,
			"total":  total,
			"proofs": count,
			"cap":    types.Amount(cfg.MaxSinglePayout),
		}).Error("Reward batch exceeds the single payout cap, discarding")
		a.writeAudit(ctx, username, count, total, cids, types.BroadcastFailed, "",
			fmt.Sprintf("rejected: batch of %s exceeds single payout cap", total))
		finish(true, 0)
		return nil
	}

	if dailySpend+total > types.Amount(cfg.MaxDailySpend) {
		rejectedFlushes.WithLabelValues("daily_spend_cap").Inc()
		log.WithFields(logrus.Fields{
			"agent":      agentID,
			"total":      total,
			"dailySpend": dailySpend,
		}).Warn("Daily spend cap reached, retaining reward batch")
		finish(false, 0)
		return nil
	}

	enabled := a.cfg.Ledger != nil && a.cfg.Ledger.Enabled()
	if enabled {
		balance, err := a.cfg.Ledger.GetBalance(ctx, a.cfg.ValidatorAccount)
		if err != nil {
			finish(false, 0)
			return errors.Wrap(err, "could not check validator balance")
		}
		if balance-total < types.Amount(cfg.MinValidatorReserve) {
			rejectedFlushes.WithLabelValues("reserve_floor").Inc()
			log.WithFields(logrus.Fields{
				"balance": balance,
				"total":   total,
				"reserve": types.Amount(cfg.MinValidatorReserve),
			}).Warn("Payout would breach the validator reserve, retaining batch")
			finish(false, 0)
			return nil
		}
	}

	memo := fmt.Sprintf("SPK PoA 2.0 batch reward: %d proofs verified", count)
	status := types.BroadcastSkipped
	txID := ""
	if enabled {
		var err error
		txID, err = a.cfg.Ledger.SubmitTransfer(ctx, username, total, memo)
		if err != nil {
			status = types.BroadcastFailed
			log.WithError(err).WithFields(logrus.Fields{
				"agent": agentID,
				"to":    username,
				"total": total,
			}).Error("Payout broadcast failed, retaining batch")
		} else {
			status = types.BroadcastSuccess
		}
	}

	a.writeAudit(ctx, username, count, total, cids, status, txID, memo)
	payoutsTotal.WithLabelValues(string(status)).Inc()

	if status == types.BroadcastFailed {
		finish(false, 0)
		return nil
	}
	if status == types.BroadcastSuccess {
		payoutMicrosTotal.Add(float64(total))
	}
	log.WithFields(logrus.Fields{
		"agent":  agentID,
		"to":     username,
		"total":  total,
		"proofs": count,
		"status": status,
		"txID":   txID,
	}).Info("Reward batch flushed")
	finish(true, total)
	return nil
}

// FlushAll drains every non-empty batch, used on shutdown. Failures are
// logged and do not stop the drain.
func (a *Accumulator) FlushAll(ctx context.Context) {
	a.lock.Lock()
	ids := make([]string, 0, len(a.batches))
	for id := range a.batches {
		ids = append(ids, id)
	}
	a.lock.Unlock()

	for _, id := range ids {
		if err := a.Flush(ctx, id); err != nil {
			log.WithError(err).WithField("agent", id).Error("Could not drain reward batch")
		}
	}
}

// Pending reports an agent's unflushed proof count and reward total.
func (a *Accumulator) Pending(agentID string) (uint64, types.Amount) {
	a.lock.Lock()
	defer a.lock.Unlock()
	b := a.batches[agentID]
	if b == nil {
		return 0, 0
	}
	return b.count, b.total
}

// DailySpend reports the amount paid out in the current 24 h window.
func (a *Accumulator) DailySpend() types.Amount {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.dailySpend
}

func (a *Accumulator) writeAudit(ctx context.Context, username string, count uint64, total types.Amount, cids []string, status types.BroadcastStatus, txID, memo string) {
	err := a.cfg.DB.SaveAuditRecord(ctx, &types.AuditRecord{
		ID:              newAuditID(),
		HiveUsername:    username,
		ProofCount:      count,
		TotalReward:     total,
		CIDs:            cids,
		BroadcastStatus: status,
		TxID:            txID,
		Memo:            memo,
		CreatedAt:       time.Now(),
	})
	if err != nil {
		log.WithError(err).WithField("username", username).Error("Could not write payout audit record")
	}
}

func newAuditID() string {
	return "pay-" + uuid.New().String()
}
