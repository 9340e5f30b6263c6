package kv

import (
	"context"

	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// Blob returns the tracked blob for the given content ID, or ErrNotFound.
func (s *Store) Blob(ctx context.Context, cid string) (*types.Blob, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.Blob")
	defer span.End()
	var blob *types.Blob
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(blobsBucket).Get([]byte(cid))
		if enc == nil {
			return errors.Wrapf(ErrNotFound, "blob %s", cid)
		}
		blob = &types.Blob{}
		return decode(ctx, enc, blob)
	})
	return blob, err
}

// SaveBlob upserts the blob record keyed by its content ID.
func (s *Store) SaveBlob(ctx context.Context, blob *types.Blob) error {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.SaveBlob")
	defer span.End()
	if blob.CID == "" {
		return errors.New("blob CID cannot be empty")
	}
	if blob.ReplicationFactor == 0 {
		return errors.New("blob replication factor must be at least 1")
	}
	enc, err := encode(ctx, blob)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(blobsBucket).Put([]byte(blob.CID), enc)
	})
}

// PoABlobs returns every blob with proof-of-access enabled. Only these are
// eligible challenge targets.
func (s *Store) PoABlobs(ctx context.Context) ([]*types.Blob, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.PoABlobs")
	defer span.End()
	var blobs []*types.Blob
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(blobsBucket).ForEach(func(_, enc []byte) error {
			blob := &types.Blob{}
			if err := decode(ctx, enc, blob); err != nil {
				return err
			}
			if blob.PoAEnabled {
				blobs = append(blobs, blob)
			}
			return nil
		})
	})
	return blobs, err
}
