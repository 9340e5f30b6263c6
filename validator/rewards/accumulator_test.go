package rewards

import (
	"context"
	"testing"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/assert"
	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/require"
	"github.com/Dhenz14/HivePoA-sub000/validator/contracts"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/iface"
	dbtest "github.com/Dhenz14/HivePoA-sub000/validator/db/testing"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/Dhenz14/HivePoA-sub000/validator/hive"
	mock "github.com/Dhenz14/HivePoA-sub000/validator/testing"
	"github.com/pkg/errors"
	logTest "github.com/sirupsen/logrus/hooks/test"
)

func setupAccumulator(t *testing.T, ledger hive.Ledger) (*Accumulator, iface.ValidatorDB) {
	db := dbtest.SetupDB(t)
	manager := contracts.NewManager(&contracts.Config{
		DB:               db,
		Ledger:           ledger,
		ValidatorAccount: "validator.one",
	})
	return New(&Config{
		DB:               db,
		Ledger:           ledger,
		Contracts:        manager,
		ValidatorAccount: "validator.one",
	}), db
}

func testAgent() *types.Agent {
	return &types.Agent{ID: "peer1", HiveUsername: "agentone", Reputation: 60}
}

func fundedContract(t *testing.T, a *Accumulator, budget, reward types.Amount) *types.Contract {
	contract, err := a.cfg.Contracts.Create(context.Background(), &contracts.CreateParams{
		Uploader:           "uploader.acc",
		CID:                "QmFunded",
		Budget:             budget,
		RewardPerChallenge: reward,
		Replication:        1,
		Duration:           time.Hour,
	})
	require.NoError(t, err)
	contract, err = a.cfg.Contracts.ActivateWithDeposit(context.Background(), contract.ID, "tx-deposit")
	require.NoError(t, err)
	return contract
}

func TestCredit_FallbackWithRarity(t *testing.T) {
	a, _ := setupAccumulator(t, hive.Disabled())
	blob := &types.Blob{CID: "QmA", ReplicationFactor: 3}

	reward, err := a.Credit(context.Background(), testAgent(), blob, nil, 1)
	require.NoError(t, err)
	// 0.005 HIVE fallback split across 3 replicas, floored.
	assert.Equal(t, types.Amount(1666), reward)

	count, total := a.Pending("peer1")
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, types.Amount(1666), total)
}

func TestCredit_StreakTiers(t *testing.T) {
	tests := []struct {
		streak uint64
		want   types.Amount
	}{
		{streak: 0, want: 5000},
		{streak: 9, want: 5000},
		{streak: 10, want: 5500},
		{streak: 49, want: 5500},
		{streak: 50, want: 6250},
		{streak: 100, want: 7500},
		{streak: 250, want: 7500},
	}
	blob := &types.Blob{CID: "QmA", ReplicationFactor: 1}
	for _, tt := range tests {
		a, _ := setupAccumulator(t, hive.Disabled())
		reward, err := a.Credit(context.Background(), testAgent(), blob, nil, tt.streak)
		require.NoError(t, err)
		assert.Equal(t, tt.want, reward, "streak=%d", tt.streak)
	}
}

func TestCredit_FundedContractDebits(t *testing.T) {
	a, db := setupAccumulator(t, hive.Disabled())
	contract := fundedContract(t, a, 10000, 4000)
	blob := &types.Blob{CID: "QmFunded", ReplicationFactor: 1}

	reward, err := a.Credit(context.Background(), testAgent(), blob, contract, 0)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(4000), reward)

	stored, err := db.Contract(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(4000), stored.Spent)
	assert.Equal(t, types.ContractActive, stored.Status)
}

func TestCredit_ExhaustedContractStillPays(t *testing.T) {
	a, db := setupAccumulator(t, hive.Disabled())
	contract := fundedContract(t, a, 10000, 4000)
	contract.Spent = 6000
	require.NoError(t, db.SaveContract(context.Background(), contract))
	blob := &types.Blob{CID: "QmFunded", ReplicationFactor: 1}

	// This debit drains the budget exactly.
	reward, err := a.Credit(context.Background(), testAgent(), blob, contract, 0)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(4000), reward)

	// The next funded success finds nothing left: the contract completes
	// and the earned reward is still credited.
	reward, err = a.Credit(context.Background(), testAgent(), blob, contract, 0)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(4000), reward)

	stored, err := db.Contract(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ContractCompleted, stored.Status)
	assert.Equal(t, types.Amount(10000), stored.Spent)

	count, total := a.Pending("peer1")
	assert.Equal(t, uint64(2), count)
	assert.Equal(t, types.Amount(8000), total)
}

func TestFlush_ThresholdTriggersPayout(t *testing.T) {
	ledger := mock.NewMockLedger()
	ledger.SetAccount("validator.one", types.HiveToAmount(10))
	a, db := setupAccumulator(t, ledger)
	agent := testAgent()
	blob := &types.Blob{CID: "QmA", ReplicationFactor: 1}

	for i := 0; i < 5; i++ {
		_, err := a.Credit(context.Background(), agent, blob, nil, 0)
		require.NoError(t, err)
	}

	submitted := ledger.Submitted()
	require.Equal(t, 1, len(submitted))
	assert.Equal(t, "agentone", submitted[0].To)
	assert.Equal(t, types.Amount(25000), submitted[0].Amount)
	assert.Equal(t, "SPK PoA 2.0 batch reward: 5 proofs verified", submitted[0].Memo)

	count, total := a.Pending("peer1")
	assert.Equal(t, uint64(0), count)
	assert.Equal(t, types.Amount(0), total)
	assert.Equal(t, types.Amount(25000), a.DailySpend())

	records, err := db.AuditRecords(context.Background(), "agentone", 10)
	require.NoError(t, err)
	require.Equal(t, 1, len(records))
	assert.Equal(t, types.BroadcastSuccess, records[0].BroadcastStatus)
	assert.Equal(t, submitted[0].TxID, records[0].TxID)
	assert.Equal(t, uint64(5), records[0].ProofCount)
}

func TestFlush_SinglePayoutCapDiscards(t *testing.T) {
	hook := logTest.NewGlobal()
	ledger := mock.NewMockLedger()
	ledger.SetAccount("validator.one", types.HiveToAmount(100))
	a, db := setupAccumulator(t, ledger)

	a.lock.Lock()
	a.batches["peer1"] = &batch{
		username: "agentone",
		count:    5,
		total:    types.HiveToAmount(2),
		cids:     map[string]struct{}{"QmA": {}},
	}
	a.lock.Unlock()

	require.NoError(t, a.Flush(context.Background(), "peer1"))
	require.Equal(t, 0, len(ledger.Submitted()))

	// The batch is gone, not retained.
	count, _ := a.Pending("peer1")
	assert.Equal(t, uint64(0), count)

	records, err := db.AuditRecords(context.Background(), "agentone", 10)
	require.NoError(t, err)
	require.Equal(t, 1, len(records))
	assert.Equal(t, types.BroadcastFailed, records[0].BroadcastStatus)
	require.LogsContain(t, hook, "exceeds the single payout cap")
}

func TestFlush_DailyCapRetainsUntilWindowRolls(t *testing.T) {
	ledger := mock.NewMockLedger()
	ledger.SetAccount("validator.one", types.HiveToAmount(100))
	a, _ := setupAccumulator(t, ledger)

	a.lock.Lock()
	a.dailySpend = 49_800_000 // 49.8 HIVE
	a.batches["peer1"] = &batch{
		username: "agentone",
		count:    5,
		total:    500_000, // 0.5 HIVE would breach the 50 HIVE daily cap
		cids:     map[string]struct{}{"QmA": {}},
	}
	a.lock.Unlock()

	require.NoError(t, a.Flush(context.Background(), "peer1"))
	require.Equal(t, 0, len(ledger.Submitted()))
	count, total := a.Pending("peer1")
	assert.Equal(t, uint64(5), count)
	assert.Equal(t, types.Amount(500_000), total)

	// Once the 24 h window rolls over the retained batch pays out.
	a.lock.Lock()
	a.windowStart = time.Now().Add(-25 * time.Hour)
	a.lock.Unlock()

	require.NoError(t, a.Flush(context.Background(), "peer1"))
	require.Equal(t, 1, len(ledger.Submitted()))
	assert.Equal(t, types.Amount(500_000), a.DailySpend())
}

func TestFlush_ReserveFloorRetains(t *testing.T) {
	ledger := mock.NewMockLedger()
	ledger.SetAccount("validator.one", 1_200_000) // 1.2 HIVE
	a, _ := setupAccumulator(t, ledger)

	a.lock.Lock()
	a.batches["peer1"] = &batch{
		username: "agentone",
		count:    5,
		total:    500_000,
		cids:     map[string]struct{}{"QmA": {}},
	}
	a.lock.Unlock()

	// 1.2 − 0.5 = 0.7 HIVE would dip under the 1.0 HIVE reserve.
	require.NoError(t, a.Flush(context.Background(), "peer1"))
	require.Equal(t, 0, len(ledger.Submitted()))
	count, _ := a.Pending("peer1")
	assert.Equal(t, uint64(5), count)
}

func TestFlush_FailedBroadcastRetainsForRetry(t *testing.T) {
	ledger := mock.NewMockLedger()
	ledger.SetAccount("validator.one", types.HiveToAmount(10))
	ledger.FailSubmits(errors.New("rpc unreachable"))
	a, db := setupAccumulator(t, ledger)
	agent := testAgent()
	blob := &types.Blob{CID: "QmA", ReplicationFactor: 1}

	for i := 0; i < 5; i++ {
		_, err := a.Credit(context.Background(), agent, blob, nil, 0)
		require.NoError(t, err)
	}

	// The broadcast failed: the batch survives and an audit row records it.
	count, total := a.Pending("peer1")
	assert.Equal(t, uint64(5), count)
	assert.Equal(t, types.Amount(25000), total)
	assert.Equal(t, types.Amount(0), a.DailySpend())

	records, err := db.AuditRecords(context.Background(), "agentone", 10)
	require.NoError(t, err)
	require.Equal(t, 1, len(records))
	assert.Equal(t, types.BroadcastFailed, records[0].BroadcastStatus)

	// The ledger recovers and a manual flush drains the batch.
	ledger.FailSubmits(nil)
	require.NoError(t, a.Flush(context.Background(), "peer1"))
	require.Equal(t, 1, len(ledger.Submitted()))
	count, _ = a.Pending("peer1")
	assert.Equal(t, uint64(0), count)
}

func TestFlush_SkippedWhenLedgerDisabled(t *testing.T) {
	a, db := setupAccumulator(t, hive.Disabled())
	agent := testAgent()
	blob := &types.Blob{CID: "QmA", ReplicationFactor: 1}

	for i := 0; i < 5; i++ {
		_, err := a.Credit(context.Background(), agent, blob, nil, 0)
		require.NoError(t, err)
	}

	count, _ := a.Pending("peer1")
	assert.Equal(t, uint64(0), count)
	assert.Equal(t, types.Amount(25000), a.DailySpend())

	records, err := db.AuditRecords(context.Background(), "agentone", 10)
	require.NoError(t, err)
	require.Equal(t, 1, len(records))
	assert.Equal(t, types.BroadcastSkipped, records[0].BroadcastStatus)
	assert.Equal(t, "", records[0].TxID)
}

func TestFlush_ConcurrentFlushAborts(t *testing.T) {
	ledger := mock.NewMockLedger()
	ledger.SetAccount("validator.one", types.HiveToAmount(10))
	a, _ := setupAccumulator(t, ledger)

	a.lock.Lock()
	a.batches["peer1"] = &batch{
		username: "agentone",
		count:    5,
		total:    25000,
		cids:     map[string]struct{}{"QmA": {}},
		flushing: true,
	}
	a.lock.Unlock()

	require.NoError(t, a.Flush(context.Background(), "peer1"))
	require.Equal(t, 0, len(ledger.Submitted()))
	count, _ := a.Pending("peer1")
	assert.Equal(t, uint64(5), count)
}

func TestFlush_UnknownAgentIsNoOp(t *testing.T) {
	ledger := mock.NewMockLedger()
	a, db := setupAccumulator(t, ledger)

	require.NoError(t, a.Flush(context.Background(), "peer-unknown"))
	require.Equal(t, 0, len(ledger.Submitted()))
	records, err := db.AuditRecords(context.Background(), "agentone", 10)
	require.NoError(t, err)
	require.Equal(t, 0, len(records))
}

func TestFlushAll_DrainsEveryBatch(t *testing.T) {
	ledger := mock.NewMockLedger()
	ledger.SetAccount("validator.one", types.HiveToAmount(10))
	a, _ := setupAccumulator(t, ledger)
	blob := &types.Blob{CID: "QmA", ReplicationFactor: 1}

	agents := []*types.Agent{
		{ID: "peer1", HiveUsername: "agentone"},
		{ID: "peer2", HiveUsername: "agenttwo"},
	}
	for _, agent := range agents {
		_, err := a.Credit(context.Background(), agent, blob, nil, 0)
		require.NoError(t, err)
	}

	a.FlushAll(context.Background())
	require.Equal(t, 2, len(ledger.Submitted()))
	for _, agent := range agents {
		count, _ := a.Pending(agent.ID)
		assert.Equal(t, uint64(0), count, "agent %s still has a batch", agent.ID)
	}
}
