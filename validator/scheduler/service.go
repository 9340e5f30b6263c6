// Package scheduler drives the proof-of-access challenge rounds. Each round
// sweeps contract lifecycle, samples eligible agents and tracked content by
// weight, dispatches challenge frames over the agent channel, verifies the
// answers against a locally computed proof, and feeds every outcome into the
// reputation policy and the reward accumulator.
package scheduler

import (
	"context"
	mrand "math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/shared/async"
	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/shared/rand"
	"github.com/Dhenz14/HivePoA-sub000/validator/channel"
	"github.com/Dhenz14/HivePoA-sub000/validator/contracts"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/iface"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/kv"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/Dhenz14/HivePoA-sub000/validator/ipfs"
	"github.com/Dhenz14/HivePoA-sub000/validator/proofs"
	"github.com/Dhenz14/HivePoA-sub000/validator/refindex"
	"github.com/Dhenz14/HivePoA-sub000/validator/reputation"
	"github.com/Dhenz14/HivePoA-sub000/validator/rewards"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "scheduler")

var (
	roundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poa_challenge_rounds_total",
		Help: "Total challenge rounds started.",
	})
	dispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poa_challenges_dispatched_total",
		Help: "Total challenges dispatched to agents.",
	})
	resultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poa_challenge_results_total",
		Help: "Finalized challenge outcomes, by result.",
	}, []string{"result"})
)

// Dispatcher delivers a challenge frame to one agent and reports how the
// challenge resolved. channel.Service is the production implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, agent *types.Agent, frame *channel.RequestProofFrame) (<-chan channel.Resolution, error)
}

// DigestSource supplies the latest ledger block digest mixed into challenge
// salts. hive.Service is the production implementation.
type DigestSource interface {
	CurrentDigest() string
}

// Config options for the scheduler service.
type Config struct {
	DB               iface.ValidatorDB
	Dispatcher       Dispatcher
	Contracts        *contracts.Manager
	Rewards          *rewards.Accumulator
	Reputation       *reputation.Policy
	Refs             *refindex.Index
	Store            ipfs.ContentStore
	Digests          DigestSource
	ValidatorAccount string
}

// Service issues challenge rounds on a fixed period until stopped.
type Service struct {
	cfg      *Config
	ctx      context.Context
	cancel   context.CancelFunc
	cool     *cooldowns
	rng      *mrand.Rand
	ticking  int32
	inFlight sync.WaitGroup
}

// New builds the scheduler service from its configuration.
func New(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		cool:   newCooldowns(),
		rng:    rand.NewGenerator(),
	}
}

// Start warms the reference index, runs the first challenge round
// immediately, then one round every period after that.
func (s *Service) Start() {
	period := time.Duration(params.PoAConfig().SecondsPerRound) * time.Second
	log.WithField("period", period).Info("Starting challenge rounds")
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		if err := s.cfg.Refs.SyncAll(s.ctx); err != nil {
			log.WithError(err).Warn("Could not warm the reference index")
		}
		s.tick(s.ctx)
	}()
	async.RunEvery(s.ctx, period, func() {
		s.tick(s.ctx)
	})
}

// Stop halts new rounds, drains challenges already in flight, then flushes
// every accumulated reward batch so a restart cannot strand earned payouts.
func (s *Service) Stop() error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	grace := time.Duration(params.PoAConfig().ShutdownGraceSeconds) * time.Second
	select {
	case <-done:
	case <-time.After(grace):
		log.Warn("Shutdown grace elapsed with challenges still in flight")
	}

	s.cfg.Rewards.FlushAll(context.Background())
	return nil
}

// Status always reports healthy. A scheduler with nothing to challenge is
// idle, not broken.
func (s *Service) Status() error {
	return nil
}

// tick runs one challenge round. Rounds never stack: if the previous round
// is still verifying, this one is skipped and the next period tries again.
func (s *Service) tick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&s.ticking, 0, 1) {
		log.Warn("Previous challenge round still running, skipping this round")
		return
	}
	defer atomic.StoreInt32(&s.ticking, 0)
	s.inFlight.Add(1)
	defer s.inFlight.Done()
	if ctx.Err() != nil {
		return
	}

	roundsTotal.Inc()
	now := time.Now()
	s.runSweep(ctx, now)

	cfg := params.PoAConfig()
	cooloff := time.Duration(cfg.BanCooloffSeconds) * time.Second
	agents, err := s.cfg.DB.ChallengeableAgents(ctx, now, cooloff)
	if err != nil {
		log.WithError(err).Error("Could not load challengeable agents")
		return
	}
	ready := make([]*types.Agent, 0, len(agents))
	for _, agent := range agents {
		if s.cool.agentReady(agent.ID) {
			ready = append(ready, agent)
		}
	}
	if len(ready) == 0 {
		log.Debug("No challengeable agents this round")
		return
	}

	pool, contractFor, err := s.challengePool(ctx)
	if err != nil {
		log.WithError(err).Error("Could not build the challenge pool")
		return
	}
	if len(pool) == 0 {
		log.Debug("No content eligible for challenges this round")
		return
	}

	batch := int(cfg.ChallengeBatchSize)
	if len(ready) < batch {
		batch = len(ready)
	}
	if len(pool) < batch {
		batch = len(pool)
	}
	picked := sampleAgents(s.rng, ready, s.cfg.Reputation.Streak, batch)
	digest := s.cfg.Digests.CurrentDigest()

	var jobs sync.WaitGroup
	dispatched := 0
	for _, agent := range picked {
		blob := pickBlob(s.rng, pool, agent.ID, s.cool)
		if blob == nil {
			log.WithField("agentId", agent.ID).Debug("Every sampled blob is cooling down for this agent")
			continue
		}
		salt, err := proofs.SaltWithBlockDigest(digest)
		if err != nil {
			log.WithError(err).Error("Could not derive a challenge salt")
			continue
		}
		s.cool.markChallenged(agent, blob.CID)
		job := &challengeJob{
			agent:    agent,
			blob:     blob,
			contract: contractFor[blob.CID],
			salt:     salt,
		}
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			s.execute(ctx, job)
		}()
		dispatched++
	}
	jobs.Wait()

	if dispatched > 0 {
		log.WithFields(logrus.Fields{
			"dispatched": dispatched,
			"agents":     len(ready),
			"blobs":      len(pool),
		}).Info("Challenge round complete")
	}
}

// challengePool partitions tracked content into funded and unfunded blobs
// and returns the pool a round may draw from. Funded content always takes
// priority; unfunded content is only challenged as a fallback, and only when
// the fallback is enabled.
func (s *Service) challengePool(ctx context.Context) ([]*types.Blob, map[string]*types.Contract, error) {
	blobs, err := s.cfg.DB.PoABlobs(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not load tracked blobs")
	}
	funded := make([]*types.Blob, 0, len(blobs))
	unfunded := make([]*types.Blob, 0, len(blobs))
	contractFor := make(map[string]*types.Contract, len(blobs))
	for _, blob := range blobs {
		contract, err := s.cfg.DB.ActiveContractForCID(ctx, blob.CID)
		switch {
		case err == nil:
			funded = append(funded, blob)
			contractFor[blob.CID] = contract
		case errors.Is(err, kv.ErrNotFound):
			unfunded = append(unfunded, blob)
		default:
			return nil, nil, errors.Wrapf(err, "could not look up a contract for %s", blob.CID)
		}
	}
	if len(funded) > 0 {
		return funded, contractFor, nil
	}
	if !params.PoAConfig().AllowUnfundedFallback {
		log.Debug("No funded content and the unfunded fallback is disabled")
		return nil, contractFor, nil
	}
	return unfunded, contractFor, nil
}
