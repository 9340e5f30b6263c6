// Package types defines the durable entities the proof-of-access validator
// tracks: storage agents, content blobs, funded contracts, issued challenges,
// and the append-only audit trail behind every payout attempt.
package types

import (
	"time"
)

// AgentStatus describes whether an agent may receive challenges.
type AgentStatus string

// Possible agent statuses. An agent's status is always derived from its
// reputation band, except for an instant ban after repeated failures.
const (
	AgentActive    AgentStatus = "active"
	AgentProbation AgentStatus = "probation"
	AgentBanned    AgentStatus = "banned"
)

// ContractStatus describes where a storage contract sits in its lifecycle.
type ContractStatus string

// Contract lifecycle states. Transitions only move forward:
// pending -> active -> {completed, expired, cancelled}.
const (
	ContractPending   ContractStatus = "pending"
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractExpired   ContractStatus = "expired"
	ContractCancelled ContractStatus = "cancelled"
)

// ChallengeResult is the recorded outcome of one issued challenge.
type ChallengeResult string

// Challenge outcomes. The empty string marks a challenge that is still
// awaiting its response.
const (
	ChallengePending ChallengeResult = ""
	ChallengeSuccess ChallengeResult = "success"
	ChallengeFail    ChallengeResult = "fail"
	ChallengeTimeout ChallengeResult = "timeout"
)

// FailReason tags why a challenge did not verify.
type FailReason string

// Challenge failure reasons recorded on the challenge row.
const (
	ReasonNone              FailReason = ""
	ReasonTimeout           FailReason = "Timeout"
	ReasonTooSlow           FailReason = "TooSlow"
	ReasonProofMismatch     FailReason = "ProofMismatch"
	ReasonAgentDisconnected FailReason = "AgentDisconnected"
	ReasonNoEndpoint        FailReason = "NoEndpoint"
	ReasonAgentReportedFail FailReason = "AgentReportedFail"
	ReasonParseError        FailReason = "ParseError"
	ReasonConnectFailed     FailReason = "ConnectFailed"
)

// BroadcastStatus is the terminal state of one payout broadcast attempt.
type BroadcastStatus string

// Broadcast outcomes for payout audit records. Skipped marks a payout that
// cleared all safety checks while the ledger integration was disabled.
const (
	BroadcastSuccess BroadcastStatus = "success"
	BroadcastFailed  BroadcastStatus = "failed"
	BroadcastSkipped BroadcastStatus = "skipped"
)

// Agent is a storage participant answering proof-of-access challenges.
type Agent struct {
	ID               string      `json:"id"`
	HiveUsername     string      `json:"hive_username"`
	Reputation       int64       `json:"reputation"`
	Status           AgentStatus `json:"status"`
	ConsecutiveFails uint64      `json:"consecutive_fails"`
	Version          string      `json:"version"`
	Endpoint         string      `json:"endpoint,omitempty"`
	LastSeen         time.Time   `json:"last_seen"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Blob is a content-addressed object tracked for proof-of-access.
type Blob struct {
	CID               string    `json:"cid"`
	SizeBytes         uint64    `json:"size_bytes"`
	ReplicationFactor uint64    `json:"replication_factor"`
	PoAEnabled        bool      `json:"poa_enabled"`
	AddedAt           time.Time `json:"added_at"`
}

// Contract is a funded storage agreement over one content ID. Spent never
// exceeds Budget; the store enforces the invariant on every debit.
type Contract struct {
	ID                 string         `json:"id"`
	Uploader           string         `json:"uploader"`
	CID                string         `json:"cid"`
	Replication        uint64         `json:"replication"`
	Budget             Amount         `json:"budget"`
	Spent              Amount         `json:"spent"`
	RewardPerChallenge Amount         `json:"reward_per_challenge"`
	StartedAt          time.Time      `json:"started_at"`
	ExpiresAt          time.Time      `json:"expires_at"`
	Status             ContractStatus `json:"status"`
	DepositTxID        string         `json:"deposit_tx_id,omitempty"`
}

// Remaining returns the budget a contract can still pay out.
func (c *Contract) Remaining() Amount {
	return c.Budget - c.Spent
}

// Challenge is one issued proof-of-access challenge. The row is written
// before the response is awaited so a crash still leaves an auditable trace.
type Challenge struct {
	ID               string          `json:"id"`
	ValidatorAccount string          `json:"validator_account"`
	AgentID          string          `json:"agent_id"`
	CID              string          `json:"cid"`
	ContractID       string          `json:"contract_id,omitempty"`
	Salt             string          `json:"salt"`
	Result           ChallengeResult `json:"result"`
	Reason           FailReason      `json:"reason,omitempty"`
	LatencyMs        int64           `json:"latency_ms"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ContractEvent is one append-only audit row in a contract's event stream.
type ContractEvent struct {
	Seq        uint64    `json:"seq"`
	ContractID string    `json:"contract_id"`
	Event      string    `json:"event"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditRecord captures one payout flush attempt, whatever its outcome.
type AuditRecord struct {
	ID              string          `json:"id"`
	HiveUsername    string          `json:"hive_username"`
	ProofCount      uint64          `json:"proof_count"`
	TotalReward     Amount          `json:"total_reward"`
	CIDs            []string        `json:"cids"`
	BroadcastStatus BroadcastStatus `json:"broadcast_status"`
	TxID            string          `json:"tx_id,omitempty"`
	Memo            string          `json:"memo"`
	CreatedAt       time.Time       `json:"created_at"`
}
