package rpc

import (
	"net/http"
	"strconv"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/kv"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultChallengeLimit = 50
	maxChallengeLimit     = 500
	dashboardChallenges   = 20
	dashboardPayouts      = 10
)

type jsonError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// statusResponse summarizes one validator's view of the network.
type statusResponse struct {
	ValidatorAccount  string `json:"validator_account"`
	LedgerDigest      string `json:"ledger_digest"`
	RoundSeconds      uint64 `json:"round_seconds"`
	Agents            int    `json:"agents"`
	ConnectedAgents   int    `json:"connected_agents"`
	PendingChallenges int    `json:"pending_challenges"`
	TrackedBlobs      int    `json:"tracked_blobs"`
	ActiveContracts   int    `json:"active_contracts"`
}

// agentDashboard is everything the per-agent view shows: the durable record,
// the in-memory success streak and pending reward batch, and recent history
// from the challenge and payout audit trails.
type agentDashboard struct {
	Agent            *types.Agent         `json:"agent"`
	Streak           uint64               `json:"streak"`
	PendingProofs    uint64               `json:"pending_proofs"`
	PendingReward    types.Amount         `json:"pending_reward"`
	RecentChallenges []*types.Challenge   `json:"recent_challenges"`
	RecentPayouts    []*types.AuditRecord `json:"recent_payouts"`
}

type contractEventsResponse struct {
	Contract *types.Contract        `json:"contract"`
	Events   []*types.ContractEvent `json:"events"`
}

type challengesResponse struct {
	AgentID    string             `json:"agent_id"`
	Challenges []*types.Challenge `json:"challenges"`
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agents, err := s.cfg.DB.Agents(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load agents")
		return
	}
	blobs, err := s.cfg.DB.PoABlobs(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load tracked blobs")
		return
	}
	contracts, err := s.cfg.DB.Contracts(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load contracts")
		return
	}
	active := 0
	for _, contract := range contracts {
		if contract.Status == types.ContractActive {
			active++
		}
	}
	writeJSON(w, http.StatusOK, &statusResponse{
		ValidatorAccount:  s.cfg.ValidatorAccount,
		LedgerDigest:      s.cfg.Digests.CurrentDigest(),
		RoundSeconds:      params.PoAConfig().SecondsPerRound,
		Agents:            len(agents),
		ConnectedAgents:   s.cfg.Channel.SessionCount(),
		PendingChallenges: s.cfg.Channel.PendingCount(),
		TrackedBlobs:      len(blobs),
		ActiveContracts:   active,
	})
}

func (s *Service) handleAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	agent, err := s.cfg.DB.Agent(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, kv.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown agent "+id)
		return
	default:
		writeError(w, http.StatusInternalServerError, "could not load agent")
		return
	}
	challenges, err := s.cfg.DB.ChallengesByAgent(ctx, id, dashboardChallenges)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load challenge history")
		return
	}
	payouts, err := s.cfg.DB.AuditRecords(ctx, agent.HiveUsername, dashboardPayouts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load payout history")
		return
	}
	count, total := s.cfg.Rewards.Pending(id)
	writeJSON(w, http.StatusOK, &agentDashboard{
		Agent:            agent,
		Streak:           s.cfg.Reputation.Streak(id),
		PendingProofs:    count,
		PendingReward:    total,
		RecentChallenges: challenges,
		RecentPayouts:    payouts,
	})
}

func (s *Service) handleContractEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	contract, err := s.cfg.DB.Contract(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, kv.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown contract "+id)
		return
	default:
		writeError(w, http.StatusInternalServerError, "could not load contract")
		return
	}
	events, err := s.cfg.DB.ContractEvents(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load contract events")
		return
	}
	writeJSON(w, http.StatusOK, &contractEventsResponse{
		Contract: contract,
		Events:   events,
	})
}

func (s *Service) handleChallenges(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "agent query parameter is required")
		return
	}
	limit := defaultChallengeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > maxChallengeLimit {
			limit = maxChallengeLimit
		}
	}
	challenges, err := s.cfg.DB.ChallengesByAgent(r.Context(), agentID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load challenges")
		return
	}
	writeJSON(w, http.StatusOK, &challengesResponse{
		AgentID:    agentID,
		Challenges: challenges,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Could not encode response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, &jsonError{Message: msg, Code: code})
}
