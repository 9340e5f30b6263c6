package kv

import (
	"context"
	"testing"

	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/assert"
	"github.com/Dhenz14/HivePoA-sub000/shared/testutil/require"
)

func TestStore_SaveRefs_RoundTrip(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	refs := []string{"QmSubOne", "QmSubTwo", "QmSubThree"}
	require.NoError(t, db.SaveRefs(ctx, "QmParent", refs))

	got, err := db.Refs(ctx, "QmParent")
	require.NoError(t, err)
	require.DeepEqual(t, refs, got)

	has, err := db.HasRefs(ctx, "QmParent")
	require.NoError(t, err)
	assert.Equal(t, true, has)

	has, err = db.HasRefs(ctx, "QmOther")
	require.NoError(t, err)
	assert.Equal(t, false, has)

	_, err = db.Refs(ctx, "QmOther")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveRefs_Immutable(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveRefs(ctx, "QmParent", []string{"QmSubOne"}))
	err := db.SaveRefs(ctx, "QmParent", []string{"QmSubOne", "QmSubTwo"})
	require.ErrorIs(t, err, ErrRefsExist)

	// The original list must be untouched.
	got, err := db.Refs(ctx, "QmParent")
	require.NoError(t, err)
	require.DeepEqual(t, []string{"QmSubOne"}, got)
}

func TestStore_SaveRefs_EmptyListAllowed(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	// Blobs below the chunking threshold have no sub-blocks; an empty list
	// is a valid, immutable entry.
	require.NoError(t, db.SaveRefs(ctx, "QmSmall", []string{}))
	got, err := db.Refs(ctx, "QmSmall")
	require.NoError(t, err)
	assert.Equal(t, 0, len(got))
}
