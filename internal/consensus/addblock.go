package consensus

import (
	"time"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/empower1/quorumnode/internal/merkle"
	"github.com/empower1/quorumnode/internal/quorum"
	"github.com/empower1/quorumnode/internal/skeleton"
	"github.com/empower1/quorumnode/internal/transport"
)

// addBlockLocked is the final commit step (§4.7) shared by both the
// coordinator path (tallyQuorumSigs) and the skeleton reception path.
// Callers must already hold chainMu.
func (n *Node) addBlockLocked(block *chaintypes.Block, blockHash string) error {
	n.gate.transition(PhaseIdle)

	tree := merkle.New(block.Digests())
	block.MerkleRoot = tree.Root()

	n.chain = append(n.chain, block)
	n.log.Infow("block committed", "blockID", block.BlockID, "hash", blockHash, "txCount", len(block.TxMap))

	if n.cfg.Flavor == chaintypes.FlavorFinancial {
		n.applyFinancialUpdates(block)
	}

	// block is now the tip; pass it explicitly so afterCommit never
	// re-enters chainMu, which this method's callers already hold.
	n.afterCommit(block)
	return nil
}

func (n *Node) applyFinancialUpdates(block *chaintypes.Block) {
	if err := n.books.ApplyBlock(block); err != nil {
		n.log.Errorw("failed to apply committed block to ledger", "blockID", block.BlockID, "error", err)
	}

	tree := merkle.New(block.Digests())
	for digest, tx := range block.TxMap {
		ftx, ok := tx.(*chaintypes.FinancialTx)
		if !ok {
			continue
		}
		if n.isSubscribed(ftx.From) {
			n.alertWallet(ftx.From, digest, tree)
		}
		if n.isSubscribed(ftx.To) {
			n.alertWallet(ftx.To, digest, tree)
		}
	}
}

func (n *Node) alertWallet(subscriber chaintypes.Address, digest [32]byte, tree *merkle.Tree) {
	proof, err := tree.Proof(digest)
	if err != nil {
		n.log.Debugw("no inclusion proof for alerted transaction", "digest", digest, "error", err)
		return
	}
	msg, err := transport.NewMessage(transport.KindAlertWallet, n.did, n.self, transport.AlertWalletPayload{
		TxDigest: digest,
		Proof:    transport.MerkleProofWire{Siblings: proof.Siblings, RightSide: proof.RightSide},
	})
	if err != nil {
		n.log.Warnw("failed to encode wallet alert", "error", err)
		return
	}
	if err := n.sender.Send(subscriber, msg); err != nil {
		n.log.Debugw("transient peer error alerting subscribed wallet", "subscriber", subscriber, "error", err)
	}
}

// afterCommit starts the next round's waiting window if self is in the
// next quorum, and resets the per-round counters defensively regardless
// of which path (coordinator or skeleton) triggered the commit. newTip
// is passed explicitly since the caller already holds chainMu.
func (n *Node) afterCommit(newTip *chaintypes.Block) {
	n.newRound()

	inQ, _, err := n.inQuorumFor(newTip)
	if err != nil {
		n.log.Warnw("failed to derive next quorum after commit", "error", err)
		return
	}
	if !inQ {
		return
	}

	go n.awaitMempoolAndAnnounce()
}

// awaitMempoolAndAnnounce is the bounded-sleep poll named in §4.7 step 5:
// spin until the mempool refills to the configured minimum, then kick
// off the next round.
func (n *Node) awaitMempoolAndAnnounce() {
	const step = 50 * time.Millisecond
	for n.pool.Len() < n.cfg.MinimumTransactions {
		time.Sleep(step)
	}
	if err := n.SendQuorumReady(); err != nil {
		n.log.Debugw("next round did not start", "error", err)
	}
}

// abortRound logs nothing new (the caller already did) and simply
// starts a fresh round-scratch struct, clearing all counters.
func (n *Node) abortRound() {
	n.newRound()
	n.gate.transition(PhaseIdle)
}

// emitSkeleton builds and one-way gossips the compact commit record to
// every local peer, per C6 emission.
func (n *Node) emitSkeleton(block *chaintypes.Block, sigs []chaintypes.BlockSignature, blockHash string) {
	sk := skeleton.Build(block, sigs, blockHash)
	n.gossipSkeleton(sk, chaintypes.Address{})
}

func (n *Node) gossipSkeleton(sk chaintypes.BlockSkeleton, exclude chaintypes.Address) {
	msg, err := transport.NewMessage(transport.KindReceiveSkeleton, n.did, n.self, transport.SkeletonPayload{Skeleton: sk})
	if err != nil {
		n.log.Warnw("failed to encode skeleton", "error", err)
		return
	}
	for _, peer := range n.peers.LocalPeers() {
		if peer == n.self || peer == exclude {
			continue
		}
		if err := n.sender.Send(peer, msg); err != nil {
			n.log.Debugw("transient peer error gossiping skeleton", "peer", peer, "error", err)
		}
	}
}

// ReceiveSkeleton handles an inbound BlockSkeleton (gated on IDLE),
// matching §4.6.2's reception contract.
func (n *Node) ReceiveSkeleton(senderAddr chaintypes.Address, sk chaintypes.BlockSkeleton) {
	if err := n.gate.awaitPhase(PhaseIdle, n.cfg.PhaseWaitTimeout); err != nil {
		n.log.Debugw("dropping skeleton: phase gate timed out", "error", err)
		return
	}

	n.chainMu.Lock()
	defer n.chainMu.Unlock()

	tip := n.chain[len(n.chain)-1]
	if err := skeleton.CheckOrder(sk.BlockID, tip.BlockID); err != nil {
		n.log.Debugw("dropping skeleton: out of order", "blockID", sk.BlockID, "tipID", tip.BlockID)
		return
	}

	q, err := quorum.Derive(n.hashBlock, tip, 0, n.peers.GlobalPeers(), n.cfg.QuorumSize)
	if err != nil {
		n.log.Warnw("failed to derive quorum for skeleton reception", "error", err)
		return
	}

	verified := skeleton.VerifyAgainstQuorum(q, n.registry, sk.Sigs)
	if verified != len(q)-1 {
		n.log.Debugw("dropping skeleton: insufficient verified signatures", "verified", verified, "want", len(q)-1)
		return
	}

	prevHash, err := n.hashBlock(tip, 0)
	if err != nil {
		n.log.Errorw("failed to hash tip during skeleton reception", "error", err)
		return
	}

	block, err := skeleton.Reconstruct(sk, n.pool.Get, func(digest [32]byte) { n.pool.Drain(digest) })
	if err != nil {
		n.log.Errorw("failed to reconstruct block from skeleton", "blockID", sk.BlockID, "error", err)
		return
	}

	if err := skeleton.VerifyHash(n.hashBlock, block, prevHash, sk.BlockHash); err != nil {
		n.log.Errorw("reconstructed block hash diverged from skeleton", "blockID", sk.BlockID, "error", err)
		return
	}

	if err := n.addBlockLocked(block, sk.BlockHash); err != nil {
		n.log.Errorw("failed to append reconstructed block", "error", err)
		return
	}

	n.gossipSkeleton(sk, senderAddr)
}
