package scheduler

import (
	"context"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/validator/channel"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/Dhenz14/HivePoA-sub000/validator/proofs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
)

// challengeJob carries everything one challenge needs from selection to
// settlement. contract is nil when the blob is challenged as an unfunded
// fallback.
type challengeJob struct {
	agent    *types.Agent
	blob     *types.Blob
	contract *types.Contract
	salt     string
}

// execute runs one challenge end to end: dispatch the frame, persist the
// row once the challenge is actually in flight, wait for the transport
// resolution, verify the proof locally, and settle reputation and rewards.
func (s *Service) execute(ctx context.Context, job *challengeJob) {
	ctx, span := trace.StartSpan(ctx, "scheduler.execute")
	defer span.End()
	span.AddAttributes(
		trace.StringAttribute("agentId", job.agent.ID),
		trace.StringAttribute("cid", job.blob.CID),
	)

	row := &types.Challenge{
		ID:               newChallengeID(),
		ValidatorAccount: s.cfg.ValidatorAccount,
		AgentID:          job.agent.ID,
		CID:              job.blob.CID,
		Salt:             job.salt,
		Result:           types.ChallengePending,
		CreatedAt:        time.Now(),
	}
	if job.contract != nil {
		row.ContractID = job.contract.ID
	}

	frame := channel.NewRequestProof(job.blob.CID, job.salt, s.cfg.ValidatorAccount)
	resCh, err := s.cfg.Dispatcher.Dispatch(ctx, job.agent, frame)
	switch {
	case err == nil:
	case errors.Is(err, channel.ErrNoEndpoint):
		s.finalize(ctx, row, types.ChallengeFail, types.ReasonNoEndpoint, 0)
		s.punish(ctx, job.agent, types.ReasonNoEndpoint)
		return
	case errors.Is(err, channel.ErrTooManyPending), errors.Is(err, channel.ErrDuplicateChallenge):
		// Backpressure is the validator's problem, not the agent's. The
		// challenge is not issued, no row is written, and the agent's
		// record is untouched.
		log.WithError(err).WithField("agentId", job.agent.ID).Warn("Challenge not dispatched")
		return
	default:
		log.WithError(err).WithField("agentId", job.agent.ID).Error("Challenge dispatch failed")
		return
	}
	if err := s.cfg.DB.SaveChallenge(ctx, row); err != nil {
		// The pending entry times out on its own and the buffered
		// resolution is dropped unread.
		log.WithError(err).WithField("agentId", job.agent.ID).Error("Could not persist challenge row, abandoning challenge")
		return
	}
	dispatchedTotal.Inc()

	var res channel.Resolution
	select {
	case res = <-resCh:
	case <-ctx.Done():
		log.WithField("agentId", job.agent.ID).Debug("Abandoning in-flight challenge on shutdown")
		return
	}

	switch {
	case res.Failure == types.ReasonTimeout:
		s.finalize(ctx, row, types.ChallengeTimeout, types.ReasonTimeout, res.Elapsed)
		s.punish(ctx, job.agent, types.ReasonTimeout)
		return
	case res.Failure != types.ReasonNone:
		s.finalize(ctx, row, types.ChallengeFail, res.Failure, res.Elapsed)
		s.punish(ctx, job.agent, res.Failure)
		return
	case res.Status == channel.StatusFail:
		s.finalize(ctx, row, types.ChallengeFail, types.ReasonAgentReportedFail, res.Elapsed)
		s.punish(ctx, job.agent, types.ReasonAgentReportedFail)
		return
	}

	// An answer that arrives after the anti-cheat threshold is treated as
	// fetched over the network rather than served from local storage. The
	// transport timeout is deliberately larger so this check sees the answer.
	antiCheat := time.Duration(params.PoAConfig().AntiCheatThreshold) * time.Second
	if res.Elapsed >= antiCheat {
		s.finalize(ctx, row, types.ChallengeFail, types.ReasonTooSlow, res.Elapsed)
		s.punish(ctx, job.agent, types.ReasonTooSlow)
		return
	}

	refs, err := s.cfg.Refs.SyncIfMissing(ctx, job.blob.CID)
	if err != nil {
		log.WithError(err).WithField("cid", job.blob.CID).Error("Could not resolve sub-block references, discarding challenge")
		return
	}
	expected, err := proofs.ProofHash(ctx, job.salt, job.blob.CID, refs, s.cfg.Store.Cat)
	if err != nil {
		log.WithError(err).WithField("cid", job.blob.CID).Error("Could not compute local proof, discarding challenge")
		return
	}
	if expected != res.ProofHash {
		s.finalize(ctx, row, types.ChallengeFail, types.ReasonProofMismatch, res.Elapsed)
		s.punish(ctx, job.agent, types.ReasonProofMismatch)
		return
	}

	streak, err := s.cfg.Reputation.ApplySuccess(ctx, job.agent, job.blob.CID, res.Elapsed)
	if err != nil {
		log.WithError(err).WithField("agentId", job.agent.ID).Error("Could not record challenge success")
		return
	}
	reward, err := s.cfg.Rewards.Credit(ctx, job.agent, job.blob, job.contract, streak)
	if err != nil {
		log.WithError(err).WithField("agentId", job.agent.ID).Error("Could not credit challenge reward")
	}
	s.finalize(ctx, row, types.ChallengeSuccess, types.ReasonNone, res.Elapsed)
	log.WithFields(logrus.Fields{
		"agentId": job.agent.ID,
		"cid":     job.blob.CID,
		"elapsed": res.Elapsed,
		"reward":  reward,
		"streak":  streak,
	}).Info("Challenge verified")
}

// finalize writes the challenge row's terminal state.
func (s *Service) finalize(ctx context.Context, row *types.Challenge, result types.ChallengeResult, reason types.FailReason, elapsed time.Duration) {
	row.Result = result
	row.Reason = reason
	row.LatencyMs = elapsed.Milliseconds()
	if err := s.cfg.DB.SaveChallenge(ctx, row); err != nil {
		log.WithError(err).WithField("challengeId", row.ID).Error("Could not finalize challenge row")
	}
	resultsTotal.WithLabelValues(string(result)).Inc()
}

// punish applies a challenge failure to the agent's reputation record.
func (s *Service) punish(ctx context.Context, agent *types.Agent, reason types.FailReason) {
	if err := s.cfg.Reputation.ApplyFail(ctx, agent, reason); err != nil {
		log.WithError(err).WithField("agentId", agent.ID).Error("Could not record challenge failure")
	}
}

func newChallengeID() string {
	return "ch-" + uuid.New().String()
}
