package refindex

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	logTest "github.com/sirupsen/logrus/hooks/test"

	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/assert"
	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/require"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/kv"
	dbtest "github.com/Dhenz14/HivePoA-sub000/validator/db/testing"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	mock "github.com/Dhenz14/HivePoA-sub000/validator/testing"
)

func setupIndex(t *testing.T) (*Index, *mock.MockContentStore) {
	db := dbtest.SetupDB(t)
	store := mock.NewMockContentStore()
	ix, err := New(db, store)
	require.NoError(t, err)
	return ix, store
}

func TestIndex_GetUnknownCID(t *testing.T) {
	ix, _ := setupIndex(t)
	_, err := ix.Get(context.Background(), "QmUnknown")
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func TestIndex_SyncIfMissing_DiscoversOnce(t *testing.T) {
	ix, store := setupIndex(t)
	ctx := context.Background()
	store.PutRefs("QmRoot", []string{"QmA", "QmB", "QmC"})

	refs, err := ix.SyncIfMissing(ctx, "QmRoot")
	require.NoError(t, err)
	assert.DeepEqual(t, []string{"QmA", "QmB", "QmC"}, refs)
	assert.Equal(t, 1, store.RefsCalls())

	// Second resolution is served locally.
	refs, err = ix.SyncIfMissing(ctx, "QmRoot")
	require.NoError(t, err)
	assert.DeepEqual(t, []string{"QmA", "QmB", "QmC"}, refs)
	assert.Equal(t, 1, store.RefsCalls())

	// And the list is durable, not merely cached.
	got, err := ix.db.Refs(ctx, "QmRoot")
	require.NoError(t, err)
	assert.DeepEqual(t, []string{"QmA", "QmB", "QmC"}, got)
}

func TestIndex_SyncIfMissing_StoreFailure(t *testing.T) {
	ix, store := setupIndex(t)
	store.FailCID("QmBroken", errors.New("dag walk failed"))

	_, err := ix.SyncIfMissing(context.Background(), "QmBroken")
	require.ErrorContains(t, "could not enumerate sub-blocks", err)
}

func TestIndex_Put_LosingRaceKeepsStoredList(t *testing.T) {
	ix, _ := setupIndex(t)
	ctx := context.Background()

	require.NoError(t, ix.db.SaveRefs(ctx, "QmRoot", []string{"QmA", "QmB"}))
	// A concurrent discovery that lost the save race must not fail, and must
	// end up serving the stored list.
	require.NoError(t, ix.Put(ctx, "QmRoot", []string{"QmA", "QmB"}))

	refs, err := ix.Get(ctx, "QmRoot")
	require.NoError(t, err)
	assert.DeepEqual(t, []string{"QmA", "QmB"}, refs)
}

func TestIndex_SyncAll_ToleratesFailures(t *testing.T) {
	hook := logTest.NewGlobal()
	ix, store := setupIndex(t)
	ctx := context.Background()

	for _, cid := range []string{"QmOne", "QmTwo", "QmThree"} {
		require.NoError(t, ix.db.SaveBlob(ctx, &types.Blob{
			CID:               cid,
			SizeBytes:         1 << 20,
			ReplicationFactor: 3,
			PoAEnabled:        true,
			AddedAt:           time.Now(),
		}))
	}
	store.PutRefs("QmOne", []string{"QmOne-0"})
	store.PutRefs("QmThree", []string{"QmThree-0", "QmThree-1"})
	store.FailCID("QmTwo", errors.New("gateway timeout"))

	require.NoError(t, ix.SyncAll(ctx))
	require.LogsContain(t, hook, "Could not sync sub-block refs")

	refs, err := ix.Get(ctx, "QmOne")
	require.NoError(t, err)
	assert.DeepEqual(t, []string{"QmOne-0"}, refs)
	refs, err = ix.Get(ctx, "QmThree")
	require.NoError(t, err)
	assert.DeepEqual(t, []string{"QmThree-0", "QmThree-1"}, refs)
	_, err = ix.Get(ctx, "QmTwo")
	require.ErrorIs(t, err, kv.ErrNotFound)

	// The failed blob syncs once the store recovers.
	store.FailCID("QmTwo", nil)
	store.PutRefs("QmTwo", []string{"QmTwo-0"})
	refs, err = ix.SyncIfMissing(ctx, "QmTwo")
	require.NoError(t, err)
	assert.DeepEqual(t, []string{"QmTwo-0"}, refs)
}

func TestIndex_SyncAll_NoBlobs(t *testing.T) {
	hook := logTest.NewGlobal()
	ix, _ := setupIndex(t)
	require.NoError(t, ix.SyncAll(context.Background()))
	require.LogsContain(t, hook, "Sub-block ref sync complete")
}
