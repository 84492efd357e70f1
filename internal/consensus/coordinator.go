package consensus

import (
	"errors"
	"fmt"
	"time"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/empower1/quorumnode/internal/crypto"
	"github.com/empower1/quorumnode/internal/quorum"
	"github.com/empower1/quorumnode/internal/transport"
)

// ErrSelfBehindTip is returned (and the round aborted) when a quorum
// peer reports a newer tip than self during sendQuorumReady. Catching
// up is an open question the source leaves unresolved; this
// implementation logs and abandons the round rather than attempting it.
var ErrSelfBehindTip = errors.New("consensus: self is behind a quorum peer's tip; round aborted")

// SendQuorumReady drives §4.4.1: triggered only when self is IDLE, in
// the quorum for the current tip, and the mempool has reached the
// configured minimum. It only sends; the transition to MEMPOOL_SYNC
// happens in ReceiveQuorumReady once enough peers have acknowledged.
func (n *Node) SendQuorumReady() error {
	if n.gate.current() != PhaseIdle {
		return nil
	}
	inQ, q, err := n.inCurrentQuorum()
	if err != nil {
		return err
	}
	if !inQ || n.pool.Len() < n.cfg.MinimumTransactions {
		return nil
	}

	n.newRound()
	n.gate.transition(PhaseReady)

	if len(q) <= 1 {
		// Solo quorum: no peer exists to ever tally a QUORUM_READY vote,
		// so the |quorum|-1 == 0 threshold is already satisfied. Advance
		// proactively instead of waiting on a message that can never
		// arrive (§8's QUORUM_SIZE = 1 boundary: self-commits).
		return n.SendMempoolHashes(q)
	}

	for _, peer := range q {
		if peer == n.self {
			continue
		}
		if n.cfg.AnnouncePacing > 0 {
			time.Sleep(n.cfg.AnnouncePacing)
		}
		msg, err := transport.NewMessage(transport.KindQuorumReady, n.did, n.self, nil)
		if err != nil {
			n.log.Warnw("failed to encode quorum ready", "error", err)
			continue
		}
		reply, err := n.sender.Request(peer, msg)
		if err != nil {
			n.log.Debugw("transient peer error sending quorum ready", "peer", peer, "error", err)
			continue
		}
		if reply.Kind != transport.KindReconcileBlock {
			continue
		}
		decoded, err := transport.DecodePayload(reply.Payload)
		if err != nil {
			n.log.Debugw("failed to decode reconcile payload", "peer", peer, "error", err)
			continue
		}
		rb, ok := decoded.(transport.ReconcileBlockPayload)
		if !ok {
			continue
		}
		myTip := n.ChainLen() - 1
		if rb.BlockID > myTip {
			n.log.Warnw("quorum peer is ahead of self; aborting round (reconciliation unimplemented)",
				"peer", peer, "peerBlockID", rb.BlockID, "myTip", myTip)
			n.abortRound()
			return ErrSelfBehindTip
		}
		confirm, err := transport.NewMessage(transport.KindReconcileBlock, n.did, n.self, transport.ReconcileBlockPayload{BlockID: myTip})
		if err == nil {
			if err := n.sender.Send(peer, confirm); err != nil {
				n.log.Debugw("transient peer error confirming reconcile", "peer", peer, "error", err)
			}
		}
	}
	return nil
}

// ReceiveQuorumReady is the gated handler (§4.4.2) for an inbound
// two-way QUORUM_READY. If self is not in the quorum for the current
// tip it replies RECONCILE_BLOCK and expects a confirming reply;
// otherwise it replies PING and tallies toward the mempool-sync trigger.
func (n *Node) ReceiveQuorumReady() transport.Message {
	if err := n.gate.awaitPhase(PhaseReady, n.cfg.PhaseWaitTimeout); err != nil {
		n.log.Debugw("dropping quorum ready: phase gate timed out", "error", err)
		msg, _ := transport.NewMessage(transport.KindPing, n.did, n.self, nil)
		return msg
	}

	inQ, q, err := n.inCurrentQuorum()
	if err != nil {
		n.log.Warnw("failed to derive quorum while handling quorum ready", "error", err)
		msg, _ := transport.NewMessage(transport.KindPing, n.did, n.self, nil)
		return msg
	}
	if !inQ {
		tip := n.Tip()
		hash, _ := n.hashBlock(tip, 0)
		msg, _ := transport.NewMessage(transport.KindReconcileBlock, n.did, n.self, transport.ReconcileBlockPayload{
			BlockID:   tip.BlockID,
			BlockHash: hash,
		})
		return msg
	}

	r := n.currentRound()
	count := r.incReadyVotes()
	if count == len(q)-1 {
		go func() {
			if err := n.SendMempoolHashes(q); err != nil {
				n.log.Warnw("mempool reconciliation failed", "error", err)
			}
		}()
	}
	msg, _ := transport.NewMessage(transport.KindPing, n.did, n.self, nil)
	return msg
}

// SendMempoolHashes drives §4.4.3: snapshot the local digest set and
// exchange it with every other quorum member, forwarding any requested
// transactions. It only sends; construct_block is triggered from
// ReceiveMempool once enough peers have reconciled.
func (n *Node) SendMempoolHashes(q []chaintypes.Address) error {
	n.gate.transition(PhaseMempoolSync)

	if len(q) <= 1 {
		// Solo quorum: the |quorum|-1 == 0 mempool-round threshold is
		// already met with zero peers reconciled. Advance proactively.
		return n.ConstructBlock(q)
	}

	keys := n.pool.SnapshotKeys()
	digests := make([][32]byte, 0, len(keys))
	for d := range keys {
		digests = append(digests, d)
	}

	for _, peer := range q {
		if peer == n.self {
			continue
		}
		req, err := transport.NewMessage(transport.KindRequestMempool, n.did, n.self, transport.RequestMempoolPayload{Digests: digests})
		if err != nil {
			n.log.Warnw("failed to encode mempool request", "error", err)
			continue
		}
		reply, err := n.sender.Request(peer, req)
		if err != nil {
			n.log.Debugw("transient peer error reconciling mempool", "peer", peer, "error", err)
			continue
		}
		if reply.Kind != transport.KindRequestTransaction {
			continue
		}
		decoded, err := transport.DecodePayload(reply.Payload)
		if err != nil {
			continue
		}
		rp, ok := decoded.(transport.RequestMempoolPayload)
		if !ok {
			continue
		}
		missing := make(map[[32]byte]struct{}, len(rp.Digests))
		for _, d := range rp.Digests {
			missing[d] = struct{}{}
		}
		txs := n.pool.GetMany(missing)
		fwd, err := transport.NewMessage(transport.KindMempoolReply, n.did, n.self, transport.MempoolReplyPayload{Transactions: txs})
		if err != nil {
			continue
		}
		if err := n.sender.Send(peer, fwd); err != nil {
			n.log.Debugw("transient peer error forwarding requested transactions", "peer", peer, "error", err)
		}
	}
	return nil
}

// ReceiveMempool is the gated handler (§4.4.4) for an inbound two-way
// RECEIVE_MEMPOOL request. If self already holds every digest the sender
// listed, reply PING and tally immediately; otherwise request the
// missing transactions and tally once they arrive via ReceiveMempoolReply.
func (n *Node) ReceiveMempool(payload transport.RequestMempoolPayload) transport.Message {
	if err := n.gate.awaitPhase(PhaseMempoolSync, n.cfg.PhaseWaitTimeout); err != nil {
		n.log.Debugw("dropping mempool reconciliation: phase gate timed out", "error", err)
		msg, _ := transport.NewMessage(transport.KindPing, n.did, n.self, nil)
		return msg
	}

	localKeys := n.pool.SnapshotKeys()
	remote := make(map[[32]byte]struct{}, len(payload.Digests))
	for _, d := range payload.Digests {
		remote[d] = struct{}{}
	}
	var missing [][32]byte
	for d := range remote {
		if _, ok := localKeys[d]; !ok {
			missing = append(missing, d)
		}
	}

	if len(missing) == 0 {
		n.afterMempoolRound()
		msg, _ := transport.NewMessage(transport.KindPing, n.did, n.self, nil)
		return msg
	}

	msg, _ := transport.NewMessage(transport.KindRequestTransaction, n.did, n.self, transport.RequestMempoolPayload{Digests: missing})
	return msg
}

// ReceiveMempoolReply handles the one-way follow-up carrying the
// transactions this node requested: insert each (re-validated via the
// transaction-acceptance path) and tally the round as complete.
func (n *Node) ReceiveMempoolReply(payload transport.MempoolReplyPayload) {
	for _, tx := range payload.Transactions {
		if err := n.validateTransaction(tx); err != nil {
			n.log.Debugw("rejecting reconciled transaction", "error", err)
			continue
		}
		if _, err := n.pool.Insert(tx, n.isChainMember); err != nil {
			n.log.Debugw("failed to insert reconciled transaction", "error", err)
		}
	}
	n.afterMempoolRound()
}

func (n *Node) afterMempoolRound() {
	r := n.currentRound()
	count := r.incMempoolRounds()
	q, err := n.currentQuorum()
	if err != nil {
		n.log.Warnw("failed to derive quorum after mempool round", "error", err)
		return
	}
	if count == len(q)-1 {
		if err := n.ConstructBlock(q); err != nil {
			n.log.Warnw("block construction failed", "error", err)
		}
	}
}

// isChainMember reports whether digest already appears in any committed
// block, the ChainMembership collaborator mempool.Insert requires.
func (n *Node) isChainMember(digest [32]byte) bool {
	n.chainMu.Lock()
	defer n.chainMu.Unlock()
	for _, b := range n.chain {
		if _, ok := b.TxMap[digest]; ok {
			return true
		}
	}
	return false
}

// AddTransaction handles an inbound one-way ADD_TRANSACTION (§4.4.5):
// wait for IDLE, then check for duplicates, validate, and insert. Only
// the final Insert runs under the mempool's lock; the duplicate and
// validity checks before it read the mempool without holding that lock
// across the insert.
func (n *Node) AddTransaction(tx chaintypes.Transaction) {
	if err := n.gate.awaitPhase(PhaseIdle, n.cfg.PhaseWaitTimeout); err != nil {
		n.log.Debugw("dropping transaction: phase gate timed out", "error", err)
		return
	}
	if n.pool.Contains(tx.Digest()) || n.isChainMember(tx.Digest()) {
		return
	}
	if err := n.validateTransaction(tx); err != nil {
		n.log.Debugw("rejecting transaction", "error", err)
		return
	}
	if _, err := n.pool.Insert(tx, n.isChainMember); err != nil {
		n.log.Warnw("failed to insert transaction", "error", err)
	}
}

// validateTransaction applies the flavor-specific acceptance check
// (§4.4.5 step 3): financial feasibility is judged against the committed
// ledger net of everything already pending in the mempool, not the
// committed balance alone, so a chain of dependent transfers submitted
// in the same round can still be accepted one at a time.
func (n *Node) validateTransaction(tx chaintypes.Transaction) error {
	switch t := tx.(type) {
	case *chaintypes.FinancialTx:
		if t.Amount > n.availableBalance(t.From) {
			return fmt.Errorf("consensus: %s cannot afford transfer of %d", t.From, t.Amount)
		}
	case *chaintypes.MLTx:
		if t.Model == nil || len(t.Model.IntervalsValidity) == 0 {
			return errors.New("consensus: ML transaction carries no model intervals")
		}
	}
	return nil
}

// availableBalance returns addr's committed ledger balance adjusted by
// every financial transaction currently pending in the mempool.
func (n *Node) availableBalance(addr chaintypes.Address) uint64 {
	balance := n.books.Balance(addr)
	keys := n.pool.SnapshotKeys()
	for d := range keys {
		tx, ok := n.pool.Get(d)
		if !ok {
			continue
		}
		ftx, ok := tx.(*chaintypes.FinancialTx)
		if !ok {
			continue
		}
		if ftx.To == addr {
			balance += ftx.Amount
		}
		if ftx.From == addr {
			if ftx.Amount > balance {
				balance = 0
			} else {
				balance -= ftx.Amount
			}
		}
	}
	return balance
}

// ConstructBlock drives §4.4.6: re-validate the selected mempool set,
// run interval validation for the ML flavor, assemble quorum_block, and
// broadcast self's signature.
func (n *Node) ConstructBlock(q []chaintypes.Address) error {
	n.gate.transition(PhaseBuilding)
	r := n.currentRound()

	keys := n.pool.SnapshotKeys()
	txMap := make(map[[32]byte]chaintypes.Transaction, len(keys))
	for d := range keys {
		if tx, ok := n.pool.Get(d); ok {
			txMap[d] = tx
		}
	}

	if n.cfg.Flavor == chaintypes.FlavorFinancial {
		if err := n.validateFinancialSet(txMap); err != nil {
			n.log.Warnw("mempool set failed re-validation; aborting round", "error", err)
			n.abortRound()
			return err
		}
	}

	var intervalValidations map[int]bool
	allValid := true
	if n.cfg.Flavor == chaintypes.FlavorML {
		modelData := extractModelData(txMap)
		if modelData != nil {
			votes, av, err := n.runIntervalValidation(r, modelData)
			if err != nil {
				n.log.Warnw("interval validation failed; aborting round", "error", err)
				n.abortRound()
				return err
			}
			intervalValidations = votes
			allValid = av
		} else {
			intervalValidations = map[int]bool{}
		}
	}

	tip := n.Tip()
	prevHash, err := n.hashBlock(tip, 0)
	if err != nil {
		return err
	}

	block := &chaintypes.Block{
		BlockID:             n.ChainLen(),
		PrevHash:            prevHash,
		TxMap:               txMap,
		IntervalValidations: intervalValidations,
		AllValid:            allValid,
	}
	r.setQuorumBlock(block)

	if err := n.sendSigOfBlockHash(r, block, q); err != nil {
		return err
	}
	if len(q) <= 1 {
		// Solo quorum: self's own signature already satisfies the
		// |quorum|-1 == 0 tally threshold with zero remote signatures
		// collected. Advance proactively rather than waiting on a
		// RECEIVE_SIGNATURE that no peer will ever send.
		n.TallyQuorumSigs(r, q)
	}
	return nil
}

// validateFinancialSet re-validates the whole selected mempool set
// against a fresh per-block accumulator, using the same net-delta check
// as ledger.ApplyBlock so the result is independent of iteration order.
func (n *Node) validateFinancialSet(txMap map[[32]byte]chaintypes.Transaction) error {
	type delta struct{ debit, credit uint64 }
	deltas := make(map[chaintypes.Address]*delta)
	touch := func(a chaintypes.Address) *delta {
		d, ok := deltas[a]
		if !ok {
			d = &delta{}
			deltas[a] = d
		}
		return d
	}
	for _, tx := range txMap {
		ftx, ok := tx.(*chaintypes.FinancialTx)
		if !ok {
			continue
		}
		touch(ftx.From).debit += ftx.Amount
		touch(ftx.To).credit += ftx.Amount
	}
	for addr, d := range deltas {
		if n.books.Balance(addr)+d.credit < d.debit {
			return fmt.Errorf("consensus: mempool set infeasible for %s", addr)
		}
	}
	return nil
}

func extractModelData(txMap map[[32]byte]chaintypes.Transaction) *chaintypes.ModelData {
	for _, tx := range txMap {
		if mltx, ok := tx.(*chaintypes.MLTx); ok {
			return mltx.Model
		}
	}
	return nil
}

func (n *Node) sendSigOfBlockHash(r *roundState, block *chaintypes.Block, q []chaintypes.Address) error {
	blockHash, err := n.hashBlock(block, 0)
	if err != nil {
		return err
	}
	sigBytes, err := crypto.Sign(n.identity, blockHash)
	if err != nil {
		return err
	}
	sig := chaintypes.BlockSignature{Signer: n.self, BlockHash: blockHash, Sig: sigBytes}

	msg, err := transport.NewMessage(transport.KindReceiveSignature, n.did, n.self, transport.SignaturePayload{Sig: sig})
	if err != nil {
		return err
	}
	for _, peer := range q {
		if peer == n.self {
			continue
		}
		if err := n.sender.Send(peer, msg); err != nil {
			n.log.Debugw("transient peer error broadcasting signature", "peer", peer, "error", err)
		}
	}
	return nil
}

// ReceiveQuorumSignature is the gated handler (§4.4.7) for an inbound
// one-way RECEIVE_SIGNATURE.
func (n *Node) ReceiveQuorumSignature(sig chaintypes.BlockSignature) {
	if err := n.gate.awaitPhase(PhaseBuilding, n.cfg.PhaseWaitTimeout); err != nil {
		n.log.Debugw("dropping signature: phase gate timed out", "error", err)
		return
	}
	inQ, q, err := n.inCurrentQuorum()
	if err != nil || !inQ {
		n.log.Debugw("dropping signature: self not in current quorum")
		return
	}
	if !quorum.InQuorum(q, sig.Signer) {
		n.log.Debugw("dropping signature: signer not in current quorum", "signer", sig.Signer)
		return
	}

	r := n.currentRound()
	count := r.appendSig(sig)
	if count == len(q)-1 {
		n.TallyQuorumSigs(r, q)
	}
}

// TallyQuorumSigs drives §4.4.8 under the block mutex. LegacyVoteSeeding
// preserves the source's off-by-one: a hash first seen from a signature
// is inserted at vote count 0, so that signature's own vote is lost.
func (n *Node) TallyQuorumSigs(r *roundState, q []chaintypes.Address) {
	n.chainMu.Lock()
	defer n.chainMu.Unlock()

	n.pool.Clear()

	block := r.getQuorumBlock()
	if block == nil {
		n.log.Warnw("tally invoked with no quorum block; aborting round")
		n.abortRound()
		return
	}
	localHash, err := n.hashBlock(block, 0)
	if err != nil {
		n.log.Errorw("failed to hash local block during tally", "error", err)
		n.abortRound()
		return
	}

	order := []string{localHash}
	votes := map[string]int{localHash: 1}

	for _, sig := range r.sigs() {
		ok, err := n.registry.VerifySignature(sig.Signer, sig.BlockHash, sig.Sig)
		if err != nil || !ok {
			n.log.Debugw("dropping unverifiable signature during tally", "signer", sig.Signer)
			continue
		}
		if _, exists := votes[sig.BlockHash]; !exists {
			order = append(order, sig.BlockHash)
			if n.cfg.LegacyVoteSeeding {
				votes[sig.BlockHash] = 0
			} else {
				votes[sig.BlockHash] = 1
			}
			continue
		}
		votes[sig.BlockHash]++
	}

	winner := order[0]
	best := votes[order[0]]
	for _, h := range order[1:] {
		if votes[h] > best {
			winner = h
			best = votes[h]
		}
	}

	if best == len(q) && winner == localHash {
		n.emitSkeleton(block, r.sigs(), localHash)
		if err := n.addBlockLocked(block, localHash); err != nil {
			n.log.Errorw("failed to append locally-built block", "error", err)
		}
		return
	}

	n.log.Infow("round failed: signature tally did not reach quorum on local hash",
		"winner", winner, "votes", best, "quorumSize", len(q))
	n.abortRound()
}
