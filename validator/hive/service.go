package hive

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Dhenz14/HivePoA-sub000/shared/async"
	"github.com/Dhenz14/HivePoA-sub000/shared/params"
)

// Config options for the hive service.
type Config struct {
	Ledger           Ledger
	ValidatorAccount string
}

// Service keeps the head block digest cache warm so challenge salts can be
// anchored to recent chain state without a ledger round trip per challenge.
type Service struct {
	cfg    *Config
	ctx    context.Context
	cancel context.CancelFunc
	cache  digestCache
}

// New instantiates the service around the configured ledger.
func New(ctx context.Context, cfg *Config) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Ledger exposes the configured chain client to the other services.
func (s *Service) Ledger() Ledger {
	return s.cfg.Ledger
}

// Start begins the periodic digest refresh when chain access is enabled.
func (s *Service) Start() {
	if !s.cfg.Ledger.Enabled() {
		log.Warn("Ledger integration disabled, challenge salts will use wall clock digests")
		return
	}
	go s.checkValidatorStanding()
	window := time.Duration(params.PoAConfig().DigestRefreshSeconds) * time.Second
	s.refreshDigest()
	async.RunEvery(s.ctx, window, s.refreshDigest)
	log.WithField("interval", window).Info("Started head block digest refresh")
}

// checkValidatorStanding confirms the configured account exists on chain and
// reports whether it ranks within the consensus validator set. Standing is
// informational: a low ranked validator still issues challenges, its results
// just carry less weight with aggregators.
func (s *Service) checkValidatorStanding() {
	account, err := s.cfg.Ledger.GetAccount(s.ctx, s.cfg.ValidatorAccount)
	if err != nil {
		log.WithError(err).Warn("Could not look up the validator account")
		return
	}
	if account == nil {
		log.WithField("account", s.cfg.ValidatorAccount).Error("Validator account does not exist on chain")
		return
	}
	n := int(params.PoAConfig().ConsensusValidatorCount)
	top, err := s.cfg.Ledger.IsTopValidator(s.ctx, s.cfg.ValidatorAccount, n)
	if err != nil {
		log.WithError(err).Warn("Could not check validator standing")
		return
	}
	if top {
		log.WithFields(logrus.Fields{
			"account": s.cfg.ValidatorAccount,
			"balance": account.Balance,
		}).Info("Validator ranks within the consensus set")
		return
	}
	log.WithFields(logrus.Fields{
		"account": s.cfg.ValidatorAccount,
		"top":     n,
	}).Warn("Validator is outside the consensus set")
}

func (s *Service) refreshDigest() {
	digest, err := s.cfg.Ledger.LatestBlockDigest(s.ctx)
	if err != nil {
		log.WithError(err).Warn("Could not refresh head block digest")
		return
	}
	s.cache.set(digest, time.Now())
}

// CurrentDigest returns the freshest known head digest. During an outage, or
// when the ledger is disabled, it substitutes the wall clock bucket digest;
// the stale bound is two refresh windows so a single late tick does not flap
// between sources.
func (s *Service) CurrentDigest() string {
	window := time.Duration(params.PoAConfig().DigestRefreshSeconds) * time.Second
	digest, updated := s.cache.get()
	if digest == "" || time.Since(updated) > 2*window {
		return FallbackDigest(time.Now(), window)
	}
	return digest
}

// Stop halts the refresh loop.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status returns an error while chain access is enabled but no digest has
// been observed yet.
func (s *Service) Status() error {
	if !s.cfg.Ledger.Enabled() {
		return nil
	}
	if digest, _ := s.cache.get(); digest == "" {
		return errors.New("waiting for first head block digest")
	}
	return nil
}
