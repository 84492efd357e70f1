// Package quorum implements the deterministic quorum derivation (C2) and
// the node's local/global peer bookkeeping.
package quorum

import (
	"math/big"
	"math/rand"

	"github.com/empower1/quorumnode/internal/chaintypes"
)

// HashFunc computes the hex digest of a block at a nonce; it is the
// wire-contract hook into crypto.HashBlock, injected so this package
// stays free of a crypto import cycle and independently testable.
type HashFunc func(block *chaintypes.Block, nonce uint64) (string, error)

// Derive computes the quorum for block deterministically:
//  1. h = hash(block, nonce) as hex
//  2. seed = big-endian integer value of h, reduced mod len(globalPeers)
//  3. a PRNG seeded with seed draws QUORUM_SIZE indices from
//     [0, len(globalPeers)) without replacement
//  4. the drawn indices map to globalPeers, in draw order
//
// All honest nodes running the same globalPeers list produce the
// identical ordered result for the same block content.
func Derive(hash HashFunc, block *chaintypes.Block, nonce uint64, globalPeers []chaintypes.Address, quorumSize int) ([]chaintypes.Address, error) {
	h, err := hash(block, nonce)
	if err != nil {
		return nil, err
	}

	numNodes := len(globalPeers)
	hInt, ok := new(big.Int).SetString(h, 16)
	if !ok {
		hInt = big.NewInt(0)
	}
	mod := big.NewInt(int64(numNodes))
	seed := new(big.Int).Mod(hInt, mod).Int64()

	rng := rand.New(rand.NewSource(seed))

	pool := make([]int, numNodes)
	for i := range pool {
		pool[i] = i
	}

	out := make([]chaintypes.Address, 0, quorumSize)
	for i := 0; i < quorumSize && len(pool) > 0; i++ {
		pick := rng.Intn(len(pool))
		idx := pool[pick]
		pool[pick] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
		out = append(out, globalPeers[idx])
	}
	return out, nil
}

// InQuorum reports whether self appears anywhere in the quorum list.
func InQuorum(quorumList []chaintypes.Address, self chaintypes.Address) bool {
	for _, a := range quorumList {
		if a == self {
			return true
		}
	}
	return false
}
