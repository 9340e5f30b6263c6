package kv

import (
	"context"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// ErrBudgetExhausted is returned by DebitContract when the requested debit
// would push spent past the contract budget.
var ErrBudgetExhausted = errors.New("contract budget exhausted")

// Contract returns the contract with the given ID, or ErrNotFound.
func (s *Store) Contract(ctx context.Context, id string) (*types.Contract, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.Contract")
	defer span.End()
	var contract *types.Contract
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(contractsBucket).Get([]byte(id))
		if enc == nil {
			return errors.Wrapf(ErrNotFound, "contract %s", id)
		}
		contract = &types.Contract{}
		return decode(ctx, enc, contract)
	})
	return contract, err
}

// SaveContract upserts a contract and maintains the content ID index used to
// find the funded contract backing a blob.
func (s *Store) SaveContract(ctx context.Context, contract *types.Contract) error {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.SaveContract")
	defer span.End()
	if contract.ID == "" {
		return errors.New("contract ID cannot be empty")
	}
	if contract.Spent > contract.Budget {
		return errors.Errorf("contract %s spent %s exceeds budget %s", contract.ID, contract.Spent, contract.Budget)
	}
	enc, err := encode(ctx, contract)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(contractsBucket).Put([]byte(contract.ID), enc); err != nil {
			return err
		}
		return addToCIDIndex(ctx, tx, contract.CID, contract.ID)
	})
}

// Contracts returns every contract in the store.
func (s *Store) Contracts(ctx context.Context) ([]*types.Contract, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.Contracts")
	defer span.End()
	var contracts []*types.Contract
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(contractsBucket).ForEach(func(_, enc []byte) error {
			contract := &types.Contract{}
			if err := decode(ctx, enc, contract); err != nil {
				return err
			}
			contracts = append(contracts, contract)
			return nil
		})
	})
	return contracts, err
}

// ActiveContractForCID returns the active contract funding the given content
// ID. When several contracts fund the same blob, the one expiring first is
// returned so budgets drain in expiry order. Returns ErrNotFound when no
// active contract exists.
func (s *Store) ActiveContractForCID(ctx context.Context, cid string) (*types.Contract, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.ActiveContractForCID")
	defer span.End()
	var best *types.Contract
	err := s.view(func(tx *bolt.Tx) error {
		ids, err := cidIndex(ctx, tx, cid)
		if err != nil {
			return err
		}
		contracts := tx.Bucket(contractsBucket)
		for _, id := range ids {
			enc := contracts.Get([]byte(id))
			if enc == nil {
				continue
			}
			contract := &types.Contract{}
			if err := decode(ctx, enc, contract); err != nil {
				return err
			}
			if contract.Status != types.ContractActive {
				continue
			}
			if best == nil || contract.ExpiresAt.Before(best.ExpiresAt) {
				best = contract
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, errors.Wrapf(ErrNotFound, "active contract for %s", cid)
	}
	return best, nil
}

// ExpiredActiveContracts returns active contracts whose expiry has passed.
func (s *Store) ExpiredActiveContracts(ctx context.Context, now time.Time) ([]*types.Contract, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.ExpiredActiveContracts")
	defer span.End()
	return s.filterContracts(ctx, func(c *types.Contract) bool {
		return c.Status == types.ContractActive && !now.Before(c.ExpiresAt)
	})
}

// ExhaustedActiveContracts returns active contracts whose remaining budget
// cannot cover one more reward-per-challenge.
func (s *Store) ExhaustedActiveContracts(ctx context.Context) ([]*types.Contract, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.ExhaustedActiveContracts")
	defer span.End()
	return s.filterContracts(ctx, func(c *types.Contract) bool {
		return c.Status == types.ContractActive && c.Remaining() < c.RewardPerChallenge
	})
}

func (s *Store) filterContracts(ctx context.Context, keep func(*types.Contract) bool) ([]*types.Contract, error) {
	var contracts []*types.Contract
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(contractsBucket).ForEach(func(_, enc []byte) error {
			contract := &types.Contract{}
			if err := decode(ctx, enc, contract); err != nil {
				return err
			}
			if keep(contract) {
				contracts = append(contracts, contract)
			}
			return nil
		})
	})
	return contracts, err
}

// DebitContract applies spent += amount with a compare-and-swap against the
// budget inside a single bolt transaction. Concurrent debits on the same
// contract serialize through the store's writer lock, so spent can never
// overdraw the budget. On exhaustion the contract is returned unmodified
// together with ErrBudgetExhausted.
func (s *Store) DebitContract(ctx context.Context, id string, amount types.Amount) (*types.Contract, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.DebitContract")
	defer span.End()
	if amount < 0 {
		return nil, errors.New("debit amount cannot be negative")
	}
	var contract *types.Contract
	err := s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(contractsBucket)
		enc := bkt.Get([]byte(id))
		if enc == nil {
			return errors.Wrapf(ErrNotFound, "contract %s", id)
		}
		contract = &types.Contract{}
		if err := decode(ctx, enc, contract); err != nil {
			return err
		}
		if contract.Spent+amount > contract.Budget {
			return errors.Wrapf(ErrBudgetExhausted, "contract %s remaining %s, debit %s", id, contract.Remaining(), amount)
		}
		contract.Spent += amount
		updated, err := encode(ctx, contract)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(id), updated)
	})
	if err != nil && !errors.Is(err, ErrBudgetExhausted) {
		return nil, err
	}
	return contract, err
}

func cidIndex(ctx context.Context, tx *bolt.Tx, cid string) ([]string, error) {
	enc := tx.Bucket(contractCIDIndicesBucket).Get([]byte(cid))
	if enc == nil {
		return nil, nil
	}
	var ids []string
	if err := decode(ctx, enc, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func addToCIDIndex(ctx context.Context, tx *bolt.Tx, cid, contractID string) error {
	ids, err := cidIndex(ctx, tx, cid)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == contractID {
			return nil
		}
	}
	enc, err := encode(ctx, append(ids, contractID))
	if err != nil {
		return err
	}
	return tx.Bucket(contractCIDIndicesBucket).Put([]byte(cid), enc)
}
