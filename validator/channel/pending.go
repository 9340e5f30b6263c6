package channel

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
)

// ErrTooManyPending is returned when the pending table is at capacity.
// Refusing new challenges under backlog pressure beats unbounded growth.
var ErrTooManyPending = errors.New("too many pending challenges")

// ErrDuplicateChallenge is returned when a challenge for the same agent,
// content ID and salt is already awaiting its response.
var ErrDuplicateChallenge = errors.New("challenge already pending")

// Resolution is the terminal transport outcome of one dispatched challenge.
// Failure is empty when a frame actually arrived; Elapsed is always the
// server-measured time between dispatch and settlement.
type Resolution struct {
	Status     string
	ProofHash  string
	AgentError string
	Elapsed    time.Duration
	Failure    types.FailReason
}

type pendingKey struct {
	agentID string
	cid     string
	salt    string
}

type pendingEntry struct {
	ch     chan Resolution
	sentAt time.Time
	timer  *time.Timer
}

// pendingTable correlates dispatched challenges with their responses. Every
// entry settles exactly once: by a matching response frame, by its deadline,
// or by the agent's session closing.
type pendingTable struct {
	lock    sync.Mutex
	entries map[pendingKey]*pendingEntry
	limit   int
}

func newPendingTable(limit int) *pendingTable {
	return &pendingTable{
		entries: make(map[pendingKey]*pendingEntry),
		limit:   limit,
	}
}

// add registers a pending challenge and arms its deadline. The returned
// channel is buffered; the single resolution never blocks the resolver.
func (p *pendingTable) add(agentID, cid, salt string, deadline time.Duration) (<-chan Resolution, error) {
	key := pendingKey{agentID: agentID, cid: cid, salt: salt}
	p.lock.Lock()
	if len(p.entries) >= p.limit {
		p.lock.Unlock()
		return nil, errors.Wrapf(ErrTooManyPending, "%d outstanding", p.limit)
	}
	if _, ok := p.entries[key]; ok {
		p.lock.Unlock()
		return nil, errors.Wrapf(ErrDuplicateChallenge, "agent %s cid %s", agentID, cid)
	}
	entry := &pendingEntry{
		ch:     make(chan Resolution, 1),
		sentAt: time.Now(),
	}
	entry.timer = time.AfterFunc(deadline, func() {
		p.settle(key, Resolution{Failure: types.ReasonTimeout, Elapsed: deadline})
	})
	p.entries[key] = entry
	p.lock.Unlock()
	return entry.ch, nil
}

// remove discards an entry that was never dispatched.
func (p *pendingTable) remove(agentID, cid, salt string) {
	key := pendingKey{agentID: agentID, cid: cid, salt: salt}
	p.lock.Lock()
	if entry, ok := p.entries[key]; ok {
		entry.timer.Stop()
		delete(p.entries, key)
	}
	p.lock.Unlock()
}

// settle resolves one entry. The timeout resolution carries the deadline as
// its elapsed time; every other resolution is stamped with the measured wait.
func (p *pendingTable) settle(key pendingKey, res Resolution) bool {
	p.lock.Lock()
	entry, ok := p.entries[key]
	if !ok {
		p.lock.Unlock()
		return false
	}
	delete(p.entries, key)
	p.lock.Unlock()

	entry.timer.Stop()
	if res.Failure != types.ReasonTimeout {
		res.Elapsed = time.Since(entry.sentAt)
	}
	entry.ch <- res
	return true
}

// settleResponse matches an inbound proof response to its entry.
func (p *pendingTable) settleResponse(agentID string, frame *ProofResponseFrame) bool {
	return p.settle(pendingKey{agentID: agentID, cid: frame.CID, salt: frame.Hash}, Resolution{
		Status:     frame.Status,
		ProofHash:  frame.ProofHash,
		AgentError: frame.Error,
	})
}

// settleParseError fails an entry whose reply could not be decoded.
func (p *pendingTable) settleParseError(agentID, cid, salt string) bool {
	return p.settle(pendingKey{agentID: agentID, cid: cid, salt: salt}, Resolution{
		Failure: types.ReasonParseError,
	})
}

// settleConnectFailed fails an entry whose outbound dial never completed.
func (p *pendingTable) settleConnectFailed(agentID, cid, salt string) bool {
	return p.settle(pendingKey{agentID: agentID, cid: cid, salt: salt}, Resolution{
		Failure: types.ReasonConnectFailed,
	})
}

// dropAgent resolves every pending entry of one agent as disconnected and
// returns how many were settled.
func (p *pendingTable) dropAgent(agentID string) int {
	p.lock.Lock()
	keys := make([]pendingKey, 0)
	for key := range p.entries {
		if key.agentID == agentID {
			keys = append(keys, key)
		}
	}
	p.lock.Unlock()

	dropped := 0
	for _, key := range keys {
		if p.settle(key, Resolution{Failure: types.ReasonAgentDisconnected}) {
			dropped++
		}
	}
	return dropped
}

func (p *pendingTable) size() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.entries)
}
