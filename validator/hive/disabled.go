package hive

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
)

// Disabled returns the Ledger used when no chain endpoint is configured.
// Reads succeed vacuously so agent registration and contract activation keep
// working in development; broadcasts error, and callers are expected to check
// Enabled first and record such payouts as skipped.
func Disabled() Ledger {
	return disabledLedger{}
}

type disabledLedger struct{}

var errLedgerDisabled = errors.New("ledger integration disabled")

func (disabledLedger) Enabled() bool {
	return false
}

func (disabledLedger) GetAccount(_ context.Context, name string) (*Account, error) {
	return &Account{Name: name}, nil
}

func (disabledLedger) GetBalance(_ context.Context, _ string) (types.Amount, error) {
	return 0, nil
}

func (disabledLedger) LatestBlockDigest(_ context.Context) (string, error) {
	return "", errLedgerDisabled
}

func (disabledLedger) VerifyTransfer(_ context.Context, _ string) (*Transfer, error) {
	return nil, nil
}

func (disabledLedger) SubmitTransfer(_ context.Context, _ string, _ types.Amount, _ string) (string, error) {
	return "", errLedgerDisabled
}

func (disabledLedger) BroadcastCustomJSON(_ context.Context, _ string, _ interface{}) (string, error) {
	return "", errLedgerDisabled
}

func (disabledLedger) IsTopValidator(_ context.Context, _ string, _ int) (bool, error) {
	return true, nil
}
