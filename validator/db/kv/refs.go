package kv

import (
	"context"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// ErrRefsExist is returned when saving a reference list for a content ID that
// already has one. Reference lists are immutable once written.
var ErrRefsExist = errors.New("refs already saved for content ID")

// Refs returns the ordered sub-block content IDs for a blob, or ErrNotFound.
func (s *Store) Refs(ctx context.Context, cid string) ([]string, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.Refs")
	defer span.End()
	var refs []string
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(refsBucket).Get([]byte(cid))
		if enc == nil {
			return errors.Wrapf(ErrNotFound, "refs %s", cid)
		}
		return decode(ctx, enc, &refs)
	})
	return refs, err
}

// SaveRefs persists the ordered sub-block list for a content ID. The write
// fails with ErrRefsExist if a list is already stored; both sides of the
// proof protocol must keep seeing the exact same ordering forever.
func (s *Store) SaveRefs(ctx context.Context, cid string, refs []string) error {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.SaveRefs")
	defer span.End()
	if cid == "" {
		return errors.New("content ID cannot be empty")
	}
	enc, err := encode(ctx, refs)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(refsBucket)
		if bkt.Get([]byte(cid)) != nil {
			return errors.Wrap(ErrRefsExist, cid)
		}
		return bkt.Put([]byte(cid), enc)
	})
}

// HasRefs returns whether a reference list exists for the content ID.
func (s *Store) HasRefs(ctx context.Context, cid string) (bool, error) {
	_, span := trace.StartSpan(ctx, "ValidatorDB.HasRefs")
	defer span.End()
	var exists bool
	err := s.view(func(tx *bolt.Tx) error {
		exists = tx.Bucket(refsBucket).Get([]byte(cid)) != nil
		return nil
	})
	return exists, err
}
