package kv

import (
	"bytes"
	"context"

	"github.com/Dhenz14/HivePoA-sub000/shared/bytesutil"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// Challenge returns the challenge row with the given ID, or ErrNotFound.
func (s *Store) Challenge(ctx context.Context, id string) (*types.Challenge, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.Challenge")
	defer span.End()
	var challenge *types.Challenge
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(challengesBucket).Get([]byte(id))
		if enc == nil {
			return errors.Wrapf(ErrNotFound, "challenge %s", id)
		}
		challenge = &types.Challenge{}
		return decode(ctx, enc, challenge)
	})
	return challenge, err
}

// SaveChallenge upserts a challenge row. The executor writes the row once
// with a pending result before dispatch and again with the final result, so
// a crash mid-challenge still leaves an auditable trace.
func (s *Store) SaveChallenge(ctx context.Context, challenge *types.Challenge) error {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.SaveChallenge")
	defer span.End()
	if challenge.ID == "" {
		return errors.New("challenge ID cannot be empty")
	}
	enc, err := encode(ctx, challenge)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(challengesBucket).Put([]byte(challenge.ID), enc); err != nil {
			return err
		}
		idx := ownerIndexKey(challenge.AgentID, uint64(challenge.CreatedAt.UnixNano()), challenge.ID)
		return tx.Bucket(challengeAgentIndicesBucket).Put(idx, []byte(challenge.ID))
	})
}

// ChallengesByAgent returns up to limit challenge rows for the agent, newest
// first.
func (s *Store) ChallengesByAgent(ctx context.Context, agentID string, limit int) ([]*types.Challenge, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.ChallengesByAgent")
	defer span.End()
	if limit <= 0 {
		return nil, nil
	}
	var challenges []*types.Challenge
	err := s.view(func(tx *bolt.Tx) error {
		rows := tx.Bucket(challengesBucket)
		c := tx.Bucket(challengeAgentIndicesBucket).Cursor()
		prefix := ownerIndexPrefix(agentID)
		k, v := seekLastOfPrefix(c, prefix)
		for ; k != nil && bytes.HasPrefix(k, prefix) && len(challenges) < limit; k, v = c.Prev() {
			enc := rows.Get(v)
			if enc == nil {
				continue
			}
			challenge := &types.Challenge{}
			if err := decode(ctx, enc, challenge); err != nil {
				return err
			}
			challenges = append(challenges, challenge)
		}
		return nil
	})
	return challenges, err
}

// ownerIndexPrefix terminates the owning ID with a zero byte so one ID can
// never be a prefix of another's index range. Challenges index by agent ID,
// contract events by contract ID, audit rows by account name.
func ownerIndexPrefix(owner string) []byte {
	return append([]byte(owner), 0x00)
}

func ownerIndexKey(owner string, createdAtNanos uint64, id string) []byte {
	key := ownerIndexPrefix(owner)
	key = append(key, bytesutil.Uint64ToBytesBigEndian(createdAtNanos)...)
	return append(key, []byte(id)...)
}

// seekLastOfPrefix positions a cursor on the greatest key carrying the
// prefix, returning nil when the range is empty.
func seekLastOfPrefix(c *bolt.Cursor, prefix []byte) ([]byte, []byte) {
	// The zero-terminated prefix always has an in-range successor obtained
	// by bumping the trailing byte.
	after := make([]byte, len(prefix))
	copy(after, prefix)
	after[len(after)-1]++
	k, _ := c.Seek(after)
	if k == nil {
		return c.Last()
	}
	return c.Prev()
}
