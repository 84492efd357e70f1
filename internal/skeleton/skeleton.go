// Package skeleton implements the compact commit record (C6) a quorum
// member gossips after committing a block, and the pure pieces of
// reconstructing a block from one: signature verification against the
// derived quorum, and tx-digest draining from a receiver's own mempool.
// It is grounded on the teacher's internal/consensus ValidationService
// split between "pure check" helpers and the stateful engine that calls
// them.
package skeleton

import (
	"errors"
	"sort"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/empower1/quorumnode/internal/crypto"
	"github.com/empower1/quorumnode/internal/quorum"
)

// ErrIncompleteTxSet is returned by Reconstruct when a skeleton names a
// transaction digest absent from the receiver's mempool. The source
// silently dropped such digests, producing a block whose hash diverged
// from the quorum-agreed one; this implementation fails loudly instead.
var ErrIncompleteTxSet = errors.New("skeleton: transaction digest missing from local mempool")

// ErrBlockOutOfOrder is returned when a skeleton's block id is not the
// receiver's tip plus one.
var ErrBlockOutOfOrder = errors.New("skeleton: block id is not tip+1")

// ErrSignatureCountShort names a skeleton that does not carry exactly
// |quorum|-1 verified signatures. VerifyAgainstQuorum returns the count
// itself; no function in this package returns this error.
var ErrSignatureCountShort = errors.New("skeleton: verified signature count below required threshold")

// ErrHashMismatch is returned when a reconstructed block's hash does not
// match the skeleton's recorded hash.
var ErrHashMismatch = errors.New("skeleton: reconstructed block hash does not match skeleton")

// Build assembles the compact commit record for a just-committed block.
func Build(block *chaintypes.Block, sigs []chaintypes.BlockSignature, blockHash string) chaintypes.BlockSkeleton {
	digests := block.Digests()
	sort.Slice(digests, func(i, j int) bool {
		for k := range digests[i] {
			if digests[i][k] != digests[j][k] {
				return digests[i][k] < digests[j][k]
			}
		}
		return false
	})
	return chaintypes.BlockSkeleton{
		BlockID:             block.BlockID,
		TxDigests:           digests,
		Sigs:                sigs,
		BlockHash:           blockHash,
		IntervalValidations: block.IntervalValidations,
		AllValid:            block.AllValid,
	}
}

// VerifyAgainstQuorum counts skeleton signatures whose signer belongs to
// quorumList and whose signature verifies against the registry,
// matching reception step 3's acceptance check.
func VerifyAgainstQuorum(quorumList []chaintypes.Address, registry *crypto.Registry, sigs []chaintypes.BlockSignature) int {
	count := 0
	for _, sig := range sigs {
		if !quorum.InQuorum(quorumList, sig.Signer) {
			continue
		}
		ok, err := registry.VerifySignature(sig.Signer, sig.BlockHash, sig.Sig)
		if err != nil || !ok {
			continue
		}
		count++
	}
	return count
}

// CheckOrder validates a skeleton's block id against the receiver's tip.
func CheckOrder(skeletonBlockID uint64, tipBlockID uint64) error {
	if skeletonBlockID != tipBlockID+1 {
		return ErrBlockOutOfOrder
	}
	return nil
}

// LookupFunc peeks a pending transaction in the receiver's mempool
// without removing it.
type LookupFunc func(digest [32]byte) (chaintypes.Transaction, bool)

// RemoveFunc drops a transaction the caller has already consumed into a
// reconstructed block.
type RemoveFunc func(digest [32]byte)

// Reconstruct rebuilds a Block from a skeleton. It first looks up every
// tx digest without mutating the mempool; only once the whole set is
// confirmed present does it remove them. A missing digest fails the
// whole reconstruction rather than silently producing a gapped block
// (the resolved open question on missing-tx handling), and leaves the
// mempool untouched so a later gossip re-delivery of the same
// transactions can still be reconciled.
func Reconstruct(sk chaintypes.BlockSkeleton, lookup LookupFunc, remove RemoveFunc) (*chaintypes.Block, error) {
	txMap := make(map[[32]byte]chaintypes.Transaction, len(sk.TxDigests))
	for _, digest := range sk.TxDigests {
		tx, ok := lookup(digest)
		if !ok {
			return nil, ErrIncompleteTxSet
		}
		txMap[digest] = tx
	}
	for digest := range txMap {
		remove(digest)
	}
	return &chaintypes.Block{
		BlockID:             sk.BlockID,
		TxMap:               txMap,
		IntervalValidations: sk.IntervalValidations,
		AllValid:            sk.AllValid,
	}, nil
}

// VerifyHash re-hashes a reconstructed block and compares it against the
// skeleton's recorded hash, closing the gap the source left open: it
// never checked that a reconstructed block actually matched what the
// quorum committed.
func VerifyHash(hashFn func(*chaintypes.Block, uint64) (string, error), block *chaintypes.Block, prevHash string, want string) error {
	block.PrevHash = prevHash
	got, err := hashFn(block, 0)
	if err != nil {
		return err
	}
	if got != want {
		return ErrHashMismatch
	}
	return nil
}
