// Package contracts manages funded storage contracts: creation, deposit
// verification against the ledger, budget debits, and the lifecycle sweeps
// that retire expired or exhausted contracts. Every transition appends a row
// to the contract's event stream.
package contracts

import (
	"context"
	"strings"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/validator/db/iface"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/kv"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/Dhenz14/HivePoA-sub000/validator/hive"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "contracts")

// Contract event stream entries.
const (
	EventCreated   = "created"
	EventActivated = "activated"
	EventCancelled = "cancelled"
	EventExpired   = "expired"
	EventCompleted = "completed"
)

// ErrDepositRejected is returned when a deposit transaction exists on chain
// but does not satisfy the contract's funding requirements.
var ErrDepositRejected = errors.New("deposit does not fund the contract")

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poa_contract_transitions_total",
		Help: "Contract lifecycle transitions applied, by resulting status.",
	}, []string{"status"})
	depositFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poa_contract_deposit_failures_total",
		Help: "Deposit verifications that did not activate a contract.",
	})
)

// Config options for the contract manager.
type Config struct {
	DB               iface.ValidatorDB
	Ledger           hive.Ledger
	ValidatorAccount string
}

// Manager owns contract lifecycle transitions. Transitions only move
// forward; the store's debit CAS keeps spent within budget under
// concurrency.
type Manager struct {
	cfg *Config
}

// NewManager creates a contract manager.
func NewManager(cfg *Config) *Manager {
	return &Manager{cfg: cfg}
}

// CreateParams describe a new storage agreement. Duration runs from
// activation, not creation. SizeBytes is the uploader's declared content
// size and only informs challenge target weighting.
type CreateParams struct {
	Uploader           string
	CID                string
	Budget             types.Amount
	RewardPerChallenge types.Amount
	Replication        uint64
	SizeBytes          uint64
	Duration           time.Duration
}

// Create records a pending contract awaiting its on-chain deposit and
// enters its content into the tracked blob pool.
func (m *Manager) Create(ctx context.Context, p *CreateParams) (*types.Contract, error) {
	if p.CID == "" {
		return nil, errors.New("contract needs a content ID")
	}
	if p.Uploader == "" {
		return nil, errors.New("contract needs an uploader account")
	}
	if p.Budget <= 0 {
		return nil, errors.New("contract budget must be positive")
	}
	if p.RewardPerChallenge <= 0 {
		return nil, errors.New("reward per challenge must be positive")
	}
	if p.RewardPerChallenge > p.Budget {
		return nil, errors.New("reward per challenge exceeds the budget")
	}
	if p.Duration <= 0 {
		return nil, errors.New("contract duration must be positive")
	}
	replication := p.Replication
	if replication == 0 {
		replication = 1
	}
	now := time.Now()
	contract := &types.Contract{
		ID:                 newContractID(),
		Uploader:           p.Uploader,
		CID:                p.CID,
		Replication:        replication,
		Budget:             p.Budget,
		RewardPerChallenge: p.RewardPerChallenge,
		StartedAt:          now,
		ExpiresAt:          now.Add(p.Duration),
		Status:             types.ContractPending,
	}
	if err := m.cfg.DB.SaveContract(ctx, contract); err != nil {
		return nil, errors.Wrap(err, "could not save contract")
	}
	m.trackBlob(ctx, contract, p.SizeBytes)
	m.appendEvent(ctx, contract.ID, EventCreated, "uploader "+p.Uploader+" cid "+p.CID)
	transitionsTotal.WithLabelValues(string(types.ContractPending)).Inc()
	log.WithFields(logrus.Fields{
		"contract": contract.ID,
		"cid":      contract.CID,
		"budget":   contract.Budget,
	}).Info("Contract created, awaiting deposit")
	return contract, nil
}

// trackBlob enters the contract's content into the challengeable pool. The
// first contract for a content ID establishes the tracking row; later
// contracts can only raise its replication target.
func (m *Manager) trackBlob(ctx context.Context, contract *types.Contract, sizeBytes uint64) {
	existing, err := m.cfg.DB.Blob(ctx, contract.CID)
	switch {
	case err == nil:
		if contract.Replication <= existing.ReplicationFactor {
			return
		}
		existing.ReplicationFactor = contract.Replication
		if err := m.cfg.DB.SaveBlob(ctx, existing); err != nil {
			log.WithError(err).WithField("cid", contract.CID).Error("Could not raise blob replication target")
		}
		return
	case errors.Is(err, kv.ErrNotFound):
	default:
		log.WithError(err).WithField("cid", contract.CID).Error("Could not look up tracked blob")
		return
	}
	blob := &types.Blob{
		CID:               contract.CID,
		SizeBytes:         sizeBytes,
		ReplicationFactor: contract.Replication,
		PoAEnabled:        true,
		AddedAt:           time.Now(),
	}
	if err := m.cfg.DB.SaveBlob(ctx, blob); err != nil {
		log.WithError(err).WithField("cid", contract.CID).Error("Could not track contract content")
		return
	}
	log.WithFields(logrus.Fields{
		"cid":         blob.CID,
		"size":        humanize.Bytes(blob.SizeBytes),
		"replication": blob.ReplicationFactor,
	}).Info("Tracking content for proof-of-access")
}

// ActivateWithDeposit verifies the uploader's deposit transfer and activates
// the contract. The transfer must pay this validator at least the budget and
// reference the contract in its memo. The contract clock starts at
// activation. With the ledger disabled the deposit is taken on trust.
func (m *Manager) ActivateWithDeposit(ctx context.Context, contractID, txID string) (*types.Contract, error) {
	contract, err := m.cfg.DB.Contract(ctx, contractID)
	if err != nil {
		return nil, errors.Wrap(err, "could not load contract")
	}
	if contract.Status != types.ContractPending {
		return nil, errors.Errorf("contract %s is %s, not pending", contractID, contract.Status)
	}
	detail := "deposit " + txID
	if m.cfg.Ledger != nil && m.cfg.Ledger.Enabled() {
		if err := m.verifyDeposit(ctx, contract, txID); err != nil {
			depositFailures.Inc()
			return nil, err
		}
	} else {
		detail = "deposit verification skipped, ledger disabled"
	}

	duration := contract.ExpiresAt.Sub(contract.StartedAt)
	now := time.Now()
	contract.Status = types.ContractActive
	contract.DepositTxID = txID
	contract.StartedAt = now
	contract.ExpiresAt = now.Add(duration)
	if err := m.cfg.DB.SaveContract(ctx, contract); err != nil {
		return nil, errors.Wrap(err, "could not save contract")
	}
	m.appendEvent(ctx, contract.ID, EventActivated, detail)
	transitionsTotal.WithLabelValues(string(types.ContractActive)).Inc()
	log.WithFields(logrus.Fields{
		"contract": contract.ID,
		"cid":      contract.CID,
		"expires":  contract.ExpiresAt,
	}).Info("Contract activated")
	return contract, nil
}

func (m *Manager) verifyDeposit(ctx context.Context, contract *types.Contract, txID string) error {
	transfer, err := m.cfg.Ledger.VerifyTransfer(ctx, txID)
	if err != nil {
		return errors.Wrap(err, "could not verify deposit transfer")
	}
	if transfer == nil {
		return errors.Wrapf(ErrDepositRejected, "transaction %s not found on chain", txID)
	}
	if transfer.To != m.cfg.ValidatorAccount {
		return errors.Wrapf(ErrDepositRejected, "transfer pays %s, not this validator", transfer.To)
	}
	if transfer.Amount < contract.Budget {
		return errors.Wrapf(ErrDepositRejected, "transfer of %s is short of the %s budget", transfer.Amount, contract.Budget)
	}
	if !strings.Contains(transfer.Memo, contract.ID) {
		return errors.Wrapf(ErrDepositRejected, "memo does not reference contract %s", contract.ID)
	}
	return nil
}

// Cancel retires a pending or active contract.
func (m *Manager) Cancel(ctx context.Context, contractID, reason string) (*types.Contract, error) {
	contract, err := m.cfg.DB.Contract(ctx, contractID)
	if err != nil {
		return nil, errors.Wrap(err, "could not load contract")
	}
	if contract.Status != types.ContractPending && contract.Status != types.ContractActive {
		return nil, errors.Errorf("contract %s is already %s", contractID, contract.Status)
	}
	contract.Status = types.ContractCancelled
	if err := m.cfg.DB.SaveContract(ctx, contract); err != nil {
		return nil, errors.Wrap(err, "could not save contract")
	}
	m.appendEvent(ctx, contract.ID, EventCancelled, reason)
	transitionsTotal.WithLabelValues(string(types.ContractCancelled)).Inc()
	log.WithFields(logrus.Fields{"contract": contract.ID, "reason": reason}).Info("Contract cancelled")
	return contract, nil
}

// DebitForChallenge spends one reward from the contract under the store's
// budget CAS. An exhausted budget completes the contract on the spot, and
// the caller still pays the reward that was already earned against the
// recorded intent; exhausted reports that case.
func (m *Manager) DebitForChallenge(ctx context.Context, contractID string, reward types.Amount) (contract *types.Contract, exhausted bool, err error) {
	contract, err = m.cfg.DB.DebitContract(ctx, contractID, reward)
	if err == nil {
		return contract, false, nil
	}
	if !errors.Is(err, kv.ErrBudgetExhausted) {
		return nil, false, errors.Wrap(err, "could not debit contract")
	}
	contract.Status = types.ContractCompleted
	if saveErr := m.cfg.DB.SaveContract(ctx, contract); saveErr != nil {
		return nil, false, errors.Wrap(saveErr, "could not complete exhausted contract")
	}
	m.appendEvent(ctx, contract.ID, EventCompleted, "budget exhausted on debit")
	transitionsTotal.WithLabelValues(string(types.ContractCompleted)).Inc()
	log.WithFields(logrus.Fields{
		"contract":  contract.ID,
		"remaining": contract.Remaining(),
		"reward":    reward,
	}).Info("Contract budget exhausted")
	return contract, true, nil
}

// ExpireDue sweeps active contracts whose expiry has passed. Each contract
// is swept exactly once; later sweeps no longer see it as active.
func (m *Manager) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := m.cfg.DB.ExpiredActiveContracts(ctx, now)
	if err != nil {
		return 0, errors.Wrap(err, "could not list expired contracts")
	}
	for _, contract := range due {
		contract.Status = types.ContractExpired
		if err := m.cfg.DB.SaveContract(ctx, contract); err != nil {
			return 0, errors.Wrapf(err, "could not expire contract %s", contract.ID)
		}
		m.appendEvent(ctx, contract.ID, EventExpired, "expiry "+contract.ExpiresAt.UTC().Format(time.RFC3339))
		transitionsTotal.WithLabelValues(string(types.ContractExpired)).Inc()
		log.WithFields(logrus.Fields{"contract": contract.ID, "cid": contract.CID}).Info("Contract expired")
	}
	return len(due), nil
}

// CompleteExhausted sweeps active contracts whose remaining budget cannot
// cover another reward. Only a successful debit can push a contract into
// this set, so the sweep is the sole authority for the completed transition
// on the happy path.
func (m *Manager) CompleteExhausted(ctx context.Context) (int, error) {
	drained, err := m.cfg.DB.ExhaustedActiveContracts(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "could not list exhausted contracts")
	}
	for _, contract := range drained {
		contract.Status = types.ContractCompleted
		if err := m.cfg.DB.SaveContract(ctx, contract); err != nil {
			return 0, errors.Wrapf(err, "could not complete contract %s", contract.ID)
		}
		m.appendEvent(ctx, contract.ID, EventCompleted, "remaining "+contract.Remaining().String())
		transitionsTotal.WithLabelValues(string(types.ContractCompleted)).Inc()
		log.WithFields(logrus.Fields{"contract": contract.ID, "cid": contract.CID}).Info("Contract completed")
	}
	return len(drained), nil
}

// appendEvent records a lifecycle event row. Event rows are an audit aid;
// failing to write one never rolls a transition back.
func (m *Manager) appendEvent(ctx context.Context, contractID, event, detail string) {
	err := m.cfg.DB.SaveContractEvent(ctx, &types.ContractEvent{
		ContractID: contractID,
		Event:      event,
		Detail:     detail,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"contract": contractID,
			"event":    event,
		}).Error("Could not append contract event")
	}
}

func newContractID() string {
	return "ct-" + uuid.New().String()
}
