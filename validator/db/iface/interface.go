// Package iface defines the narrow repository interface the proof-of-access
// runtime uses to reach durable state. The runtime never holds references to
// store rows beyond the span of a single challenge.
package iface

import (
	"context"
	"io"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
)

// ValidatorDB defines the necessary methods for the proof-of-access
// validator's database. Implementations must make every method safe for
// concurrent use.
type ValidatorDB interface {
	io.Closer
	DatabasePath() string
	ClearDB() error
	Backup(ctx context.Context, outputDir string) error

	// Agent related methods.
	Agent(ctx context.Context, id string) (*types.Agent, error)
	SaveAgent(ctx context.Context, agent *types.Agent) error
	Agents(ctx context.Context) ([]*types.Agent, error)
	// ChallengeableAgents returns agents eligible for new challenges: not
	// blacklisted by this validator, and banned only when the ban cool-off
	// window since their last-seen time has elapsed.
	ChallengeableAgents(ctx context.Context, now time.Time, banCooloff time.Duration) ([]*types.Agent, error)
	BlacklistAgent(ctx context.Context, id string) error
	UnblacklistAgent(ctx context.Context, id string) error
	IsAgentBlacklisted(ctx context.Context, id string) (bool, error)

	// Blob related methods.
	Blob(ctx context.Context, cid string) (*types.Blob, error)
	SaveBlob(ctx context.Context, blob *types.Blob) error
	PoABlobs(ctx context.Context) ([]*types.Blob, error)

	// Sub-block reference lists. A list is immutable once saved.
	Refs(ctx context.Context, cid string) ([]string, error)
	SaveRefs(ctx context.Context, cid string, refs []string) error
	HasRefs(ctx context.Context, cid string) (bool, error)

	// Contract related methods.
	Contract(ctx context.Context, id string) (*types.Contract, error)
	SaveContract(ctx context.Context, contract *types.Contract) error
	Contracts(ctx context.Context) ([]*types.Contract, error)
	ActiveContractForCID(ctx context.Context, cid string) (*types.Contract, error)
	ExpiredActiveContracts(ctx context.Context, now time.Time) ([]*types.Contract, error)
	ExhaustedActiveContracts(ctx context.Context) ([]*types.Contract, error)
	// DebitContract applies spent += amount under a compare-and-swap
	// against the contract budget inside one transaction. It returns the
	// post-debit contract, or kv.ErrBudgetExhausted with the unmodified
	// contract when the debit would overdraw.
	DebitContract(ctx context.Context, id string, amount types.Amount) (*types.Contract, error)

	// Challenge rows.
	Challenge(ctx context.Context, id string) (*types.Challenge, error)
	SaveChallenge(ctx context.Context, challenge *types.Challenge) error
	ChallengesByAgent(ctx context.Context, agentID string, limit int) ([]*types.Challenge, error)

	// Append-only audit streams.
	SaveContractEvent(ctx context.Context, event *types.ContractEvent) error
	ContractEvents(ctx context.Context, contractID string) ([]*types.ContractEvent, error)
	SaveAuditRecord(ctx context.Context, record *types.AuditRecord) error
	AuditRecords(ctx context.Context, hiveUsername string, limit int) ([]*types.AuditRecord, error)
}
