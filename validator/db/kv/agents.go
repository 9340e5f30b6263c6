package kv

import (
	"context"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("not found in database")

// Agent returns the agent record for the given agent ID, or ErrNotFound.
func (s *Store) Agent(ctx context.Context, id string) (*types.Agent, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.Agent")
	defer span.End()
	var agent *types.Agent
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(agentsBucket).Get([]byte(id))
		if enc == nil {
			return errors.Wrapf(ErrNotFound, "agent %s", id)
		}
		agent = &types.Agent{}
		return decode(ctx, enc, agent)
	})
	return agent, err
}

// SaveAgent upserts the agent record keyed by its agent ID.
func (s *Store) SaveAgent(ctx context.Context, agent *types.Agent) error {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.SaveAgent")
	defer span.End()
	if agent.ID == "" {
		return errors.New("agent ID cannot be empty")
	}
	enc, err := encode(ctx, agent)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(agentsBucket).Put([]byte(agent.ID), enc)
	})
}

// Agents returns every agent record in the store.
func (s *Store) Agents(ctx context.Context) ([]*types.Agent, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.Agents")
	defer span.End()
	var agents []*types.Agent
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(agentsBucket).ForEach(func(_, enc []byte) error {
			agent := &types.Agent{}
			if err := decode(ctx, enc, agent); err != nil {
				return err
			}
			agents = append(agents, agent)
			return nil
		})
	})
	return agents, err
}

// ChallengeableAgents returns agents eligible for new challenges. Blacklisted
// agents are excluded outright; banned agents are included only once the ban
// cool-off window since their last-seen time has elapsed.
func (s *Store) ChallengeableAgents(ctx context.Context, now time.Time, banCooloff time.Duration) ([]*types.Agent, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.ChallengeableAgents")
	defer span.End()
	var agents []*types.Agent
	err := s.view(func(tx *bolt.Tx) error {
		blacklist := tx.Bucket(agentBlacklistBucket)
		return tx.Bucket(agentsBucket).ForEach(func(id, enc []byte) error {
			if blacklist.Get(id) != nil {
				return nil
			}
			agent := &types.Agent{}
			if err := decode(ctx, enc, agent); err != nil {
				return err
			}
			if agent.Status == types.AgentBanned && now.Sub(agent.LastSeen) < banCooloff {
				return nil
			}
			agents = append(agents, agent)
			return nil
		})
	})
	return agents, err
}

// BlacklistAgent excludes an agent from this validator's challenge rounds.
func (s *Store) BlacklistAgent(ctx context.Context, id string) error {
	_, span := trace.StartSpan(ctx, "ValidatorDB.BlacklistAgent")
	defer span.End()
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(agentBlacklistBucket).Put([]byte(id), []byte{1})
	})
}

// UnblacklistAgent lifts a previously set blacklist entry.
func (s *Store) UnblacklistAgent(ctx context.Context, id string) error {
	_, span := trace.StartSpan(ctx, "ValidatorDB.UnblacklistAgent")
	defer span.End()
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(agentBlacklistBucket).Delete([]byte(id))
	})
}

// IsAgentBlacklisted returns whether this validator blacklisted the agent.
func (s *Store) IsAgentBlacklisted(ctx context.Context, id string) (bool, error) {
	_, span := trace.StartSpan(ctx, "ValidatorDB.IsAgentBlacklisted")
	defer span.End()
	var blacklisted bool
	err := s.view(func(tx *bolt.Tx) error {
		blacklisted = tx.Bucket(agentBlacklistBucket).Get([]byte(id)) != nil
		return nil
	})
	return blacklisted, err
}
