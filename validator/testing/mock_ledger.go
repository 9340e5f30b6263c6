package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/Dhenz14/HivePoA-sub000/validator/hive"
)

// SubmittedTransfer records one broadcast payout.
type SubmittedTransfer struct {
	To     string
	Amount types.Amount
	Memo   string
	TxID   string
}

// CustomRecord records one broadcast custom_json operation.
type CustomRecord struct {
	ID      string
	Payload interface{}
}

// MockLedger is an in-memory hive.Ledger. The zero value is not usable;
// construct with NewMockLedger.
type MockLedger struct {
	lock sync.Mutex

	accounts  map[string]types.Amount
	transfers map[string]*hive.Transfer
	topRank   map[string]bool

	digest    string
	digestErr error

	submitErr    error
	broadcastErr error

	submitted []SubmittedTransfer
	records   []CustomRecord
}

// NewMockLedger returns an enabled ledger with no accounts.
func NewMockLedger() *MockLedger {
	return &MockLedger{
		accounts:  make(map[string]types.Amount),
		transfers: make(map[string]*hive.Transfer),
		topRank:   make(map[string]bool),
		digest:    "aabbccdd00112233",
	}
}

// SetAccount registers an account with the given liquid balance.
func (m *MockLedger) SetAccount(name string, balance types.Amount) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.accounts[name] = balance
}

// SetTransfer registers a confirmed transfer under txID.
func (m *MockLedger) SetTransfer(txID string, transfer *hive.Transfer) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.transfers[txID] = transfer
}

// SetDigest controls LatestBlockDigest.
func (m *MockLedger) SetDigest(digest string, err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.digest, m.digestErr = digest, err
}

// SetTopValidator marks an account as ranking in the validator set.
func (m *MockLedger) SetTopValidator(name string, top bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.topRank[name] = top
}

// FailSubmits forces SubmitTransfer to return err.
func (m *MockLedger) FailSubmits(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.submitErr = err
}

// FailBroadcasts forces BroadcastCustomJSON to return err.
func (m *MockLedger) FailBroadcasts(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.broadcastErr = err
}

// Submitted returns a copy of every transfer broadcast so far.
func (m *MockLedger) Submitted() []SubmittedTransfer {
	m.lock.Lock()
	defer m.lock.Unlock()
	out := make([]SubmittedTransfer, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// Records returns a copy of every custom record broadcast so far.
func (m *MockLedger) Records() []CustomRecord {
	m.lock.Lock()
	defer m.lock.Unlock()
	out := make([]CustomRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Enabled always reports true; use hive.Disabled() to test disabled paths.
func (_ *MockLedger) Enabled() bool {
	return true
}

// GetAccount returns the registered account or nil.
func (m *MockLedger) GetAccount(_ context.Context, name string) (*hive.Account, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	balance, ok := m.accounts[name]
	if !ok {
		return nil, nil
	}
	return &hive.Account{Name: name, Balance: balance}, nil
}

// GetBalance returns the registered balance.
func (m *MockLedger) GetBalance(_ context.Context, name string) (types.Amount, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	balance, ok := m.accounts[name]
	if !ok {
		return 0, fmt.Errorf("account %s does not exist", name)
	}
	return balance, nil
}

// LatestBlockDigest returns the configured digest.
func (m *MockLedger) LatestBlockDigest(_ context.Context) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.digest, m.digestErr
}

// VerifyTransfer returns the registered transfer or nil.
func (m *MockLedger) VerifyTransfer(_ context.Context, txID string) (*hive.Transfer, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.transfers[txID], nil
}

// SubmitTransfer records the payout and mints a transaction ID.
func (m *MockLedger) SubmitTransfer(_ context.Context, to string, amount types.Amount, memo string) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.submitErr != nil {
		return "", m.submitErr
	}
	txID := fmt.Sprintf("mocktx-%d", len(m.submitted)+1)
	m.submitted = append(m.submitted, SubmittedTransfer{To: to, Amount: amount, Memo: memo, TxID: txID})
	return txID, nil
}

// BroadcastCustomJSON records the custom record and mints a transaction ID.
func (m *MockLedger) BroadcastCustomJSON(_ context.Context, id string, payload interface{}) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.broadcastErr != nil {
		return "", m.broadcastErr
	}
	m.records = append(m.records, CustomRecord{ID: id, Payload: payload})
	return fmt.Sprintf("mockcustom-%d", len(m.records)), nil
}

// IsTopValidator reports the configured rank.
func (m *MockLedger) IsTopValidator(_ context.Context, name string, _ int) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.topRank[name], nil
}
