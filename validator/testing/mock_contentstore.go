// Package testing provides in-memory fakes for the validator's injected
// capabilities, used across service tests.
package testing

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/Dhenz14/HivePoA-sub000/shared/hashutil"
)

// MockContentStore serves blob and sub-block bytes from memory.
type MockContentStore struct {
	lock     sync.Mutex
	blobs    map[string][]byte
	refs     map[string][]string
	failures map[string]error
	online   bool

	catCalls  int
	refsCalls int
}

// NewMockContentStore returns an empty, online store.
func NewMockContentStore() *MockContentStore {
	return &MockContentStore{
		blobs:    make(map[string][]byte),
		refs:     make(map[string][]string),
		failures: make(map[string]error),
		online:   true,
	}
}

// PutBlob registers the bytes served for a content ID.
func (m *MockContentStore) PutBlob(cid string, data []byte) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.blobs[cid] = data
}

// PutRefs registers the sub-block list enumerated for a content ID.
func (m *MockContentStore) PutRefs(cid string, refs []string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.refs[cid] = refs
}

// FailCID forces every operation on the given content ID to return err.
func (m *MockContentStore) FailCID(cid string, err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.failures[cid] = err
}

// SetOnline toggles the liveness probe.
func (m *MockContentStore) SetOnline(online bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.online = online
}

// CatCalls reports how many fetches were served or attempted.
func (m *MockContentStore) CatCalls() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.catCalls
}

// RefsCalls reports how many enumerations were served or attempted.
func (m *MockContentStore) RefsCalls() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.refsCalls
}

// Cat returns the registered bytes for cid.
func (m *MockContentStore) Cat(_ context.Context, cid string) ([]byte, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.catCalls++
	if err := m.failures[cid]; err != nil {
		return nil, err
	}
	data, ok := m.blobs[cid]
	if !ok {
		return nil, errors.Errorf("content %s not found", cid)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// RecursiveRefs returns the registered sub-block list for cid.
func (m *MockContentStore) RecursiveRefs(_ context.Context, cid string) ([]string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.refsCalls++
	if err := m.failures[cid]; err != nil {
		return nil, err
	}
	refs, ok := m.refs[cid]
	if !ok {
		return nil, errors.Errorf("content %s not found", cid)
	}
	out := make([]string, len(refs))
	copy(out, refs)
	return out, nil
}

// Add stores data under a digest-derived content ID and returns the ID.
func (m *MockContentStore) Add(_ context.Context, _ string, data []byte) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	cid := "Qm" + hashutil.HexDigest(data)[:16]
	m.blobs[cid] = data
	return cid, nil
}

// ID reports a fixed peer ID while the store is online.
func (m *MockContentStore) ID(_ context.Context) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.online {
		return "", errors.New("content store offline")
	}
	return "mock-peer", nil
}
