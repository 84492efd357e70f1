// Package mempool holds pending transactions keyed by digest and serves
// the reconciliation protocol between quorum members (C3).
package mempool

import (
	"sync"

	"github.com/empower1/quorumnode/internal/chaintypes"
)

// ChainMembership reports whether digest already appears in a committed
// block, used to reject re-insertion of already-confirmed transactions.
type ChainMembership func(digest [32]byte) bool

// GossipFunc is invoked once per newly-accepted transaction, fulfilling
// the "every accepted insert triggers a one-way ADD_TRANSACTION to all
// local_peers" contract. Duplicate inserts never call it.
type GossipFunc func(tx chaintypes.Transaction)

// Mempool is a digest-keyed, mutex-guarded store of pending transactions.
type Mempool struct {
	mu     sync.RWMutex
	txs    map[[32]byte]chaintypes.Transaction
	gossip GossipFunc
}

// New returns an empty mempool. gossip may be nil, in which case
// Insert's propagation step is a no-op (useful in tests).
func New(gossip GossipFunc) *Mempool {
	return &Mempool{
		txs:    make(map[[32]byte]chaintypes.Transaction),
		gossip: gossip,
	}
}

// Contains reports whether digest currently has a pending entry.
func (m *Mempool) Contains(digest [32]byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.txs[digest]
	return ok
}

// Insert adds tx if its digest is neither already pending nor already
// committed to the chain (per inChain). A successful insert gossips the
// transaction to local peers exactly once; duplicates suppress
// propagation entirely.
func (m *Mempool) Insert(tx chaintypes.Transaction, inChain ChainMembership) (bool, error) {
	digest := tx.Digest()

	m.mu.Lock()
	if _, exists := m.txs[digest]; exists {
		m.mu.Unlock()
		return false, nil
	}
	if inChain != nil && inChain(digest) {
		m.mu.Unlock()
		return false, nil
	}
	m.txs[digest] = tx
	m.mu.Unlock()

	if m.gossip != nil {
		m.gossip(tx)
	}
	return true, nil
}

// SnapshotKeys returns the set of digests currently pending, as of the
// call. Callers must not assume it stays valid across concurrent Insert
// or Clear calls.
func (m *Mempool) SnapshotKeys() map[[32]byte]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[[32]byte]struct{}, len(m.txs))
	for d := range m.txs {
		out[d] = struct{}{}
	}
	return out
}

// Get returns the pending transaction for digest, if any.
func (m *Mempool) Get(digest [32]byte) (chaintypes.Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[digest]
	return tx, ok
}

// GetMany returns every requested digest that is currently pending;
// absent digests are simply omitted from the result, matching the
// RECEIVE_MEMPOOL reply contract.
func (m *Mempool) GetMany(digests map[[32]byte]struct{}) []chaintypes.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]chaintypes.Transaction, 0, len(digests))
	for d := range digests {
		if tx, ok := m.txs[d]; ok {
			out = append(out, tx)
		}
	}
	return out
}

// Drain returns and removes digest's pending transaction, if present.
// Skeleton reconstruction uses this to consume each committed digest so
// it is not offered again in the next round's pool.
func (m *Mempool) Drain(digest [32]byte) (chaintypes.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[digest]
	if ok {
		delete(m.txs, digest)
	}
	return tx, ok
}

// Len reports the current pending transaction count.
func (m *Mempool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}

// Clear empties the mempool. Concurrent Insert calls racing with Clear
// are permitted and start the next round's pool, per the spec's
// invariant that |mempool| = 0 holds only at the instant Clear returns.
func (m *Mempool) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = make(map[[32]byte]chaintypes.Transaction)
}
