package consensus

import (
	"testing"
	"time"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHappyFinancialCommit covers scenario 1: four nodes, a 3-member
// quorum, two transactions that meet the configured minimum, committed
// into block 1 with the resulting balances applied everywhere.
func TestHappyFinancialCommit(t *testing.T) {
	initial := map[int]uint64{0: 10, 1: 0, 2: 0, 3: 0}
	h := buildHarness(t, 4, 3, chaintypes.FlavorFinancial, initial)

	txAB := &chaintypes.FinancialTx{Uid: []byte("ab"), From: h.addrs[0], To: h.addrs[1], Amount: 5}
	txBC := &chaintypes.FinancialTx{Uid: []byte("bc"), From: h.addrs[1], To: h.addrs[2], Amount: 3}

	for _, n := range h.nodes {
		n.AddTransaction(txAB)
		n.AddTransaction(txBC)
	}

	q, err := h.nodes[0].currentQuorum()
	require.NoError(t, err)

	for _, addr := range q {
		go func(a chaintypes.Address) {
			_ = h.net.nodes[a].SendQuorumReady()
		}(addr)
	}

	require.Eventually(t, func() bool {
		for _, addr := range q {
			if h.net.nodes[addr].ChainLen() != 2 {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond, "quorum members should commit block 1")

	leader := h.net.nodes[q[0]]
	tip := leader.Tip()
	assert.Len(t, tip.TxMap, 2)
	assert.Equal(t, uint64(5), leader.books.Balance(h.addrs[0]))
	assert.Equal(t, uint64(2), leader.books.Balance(h.addrs[1]))
	assert.Equal(t, uint64(3), leader.books.Balance(h.addrs[2]))

	for _, addr := range q {
		assert.Equal(t, 0, h.net.nodes[addr].pool.Len(), "mempool should be drained on commit")
	}

	// The one node outside the quorum never signs anything; it must pick
	// up block 1 purely from the quorum's gossiped skeleton, reconstruct
	// it from its own (already-seeded) mempool, and end up in the same
	// state as every quorum member.
	var outsider *Node
	for _, n := range h.nodes {
		if !quorumContains(q, n.self) {
			outsider = n
			break
		}
	}
	require.NotNil(t, outsider, "a 4-node, 3-member quorum always has a non-member")

	require.Eventually(t, func() bool {
		return outsider.ChainLen() == 2
	}, 3*time.Second, 10*time.Millisecond, "the non-quorum node should append block 1 via its gossiped skeleton")

	outsiderTip := outsider.Tip()
	assert.Len(t, outsiderTip.TxMap, 2)
	assert.Equal(t, 0, outsider.pool.Len(), "the non-quorum node's mempool should be drained by skeleton reconstruction")
}

// TestMLAllIntervalsValid covers scenario 2: five nodes, a 5-member
// quorum, one model with four honestly-reported intervals, no malicious
// members; expects all four intervals resolved true and all_valid true.
func TestMLAllIntervalsValid(t *testing.T) {
	h := buildHarness(t, 5, 5, chaintypes.FlavorML, nil)

	model := &chaintypes.ModelData{Payload: []byte("model"), IntervalsValidity: []bool{true, true, true, true}}
	tx := &chaintypes.MLTx{Uid: []byte("m1"), ModelUID: []byte("m1"), Model: model}

	for _, n := range h.nodes {
		n.cfg.MinimumTransactions = 1
		n.AddTransaction(tx)
	}

	q, err := h.nodes[0].currentQuorum()
	require.NoError(t, err)

	for _, addr := range q {
		go func(a chaintypes.Address) {
			_ = h.net.nodes[a].SendQuorumReady()
		}(addr)
	}

	require.Eventually(t, func() bool {
		for _, addr := range q {
			if h.net.nodes[addr].ChainLen() != 2 {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond, "quorum members should commit the ML block")

	tip := h.net.nodes[q[0]].Tip()
	assert.True(t, tip.AllValid)
	for i := 0; i < 4; i++ {
		assert.True(t, tip.IntervalValidations[i], "interval %d should be valid", i)
	}
}

// TestMLOneMaliciousNode covers scenario 3: identical to scenario 2 but
// one quorum member is configured malicious and inverts every verdict it
// computes; majority-honest reporting should still land on all_valid.
func TestMLOneMaliciousNode(t *testing.T) {
	h := buildHarness(t, 5, 5, chaintypes.FlavorML, nil)
	h.nodes[2].cfg.IsMalicious = true

	model := &chaintypes.ModelData{Payload: []byte("model"), IntervalsValidity: []bool{true, true, true, true}}
	tx := &chaintypes.MLTx{Uid: []byte("m1"), ModelUID: []byte("m1"), Model: model}

	for _, n := range h.nodes {
		n.cfg.MinimumTransactions = 1
		n.AddTransaction(tx)
	}

	q, err := h.nodes[0].currentQuorum()
	require.NoError(t, err)

	for _, addr := range q {
		go func(a chaintypes.Address) {
			_ = h.net.nodes[a].SendQuorumReady()
		}(addr)
	}

	require.Eventually(t, func() bool {
		for _, addr := range q {
			if h.net.nodes[addr].ChainLen() != 2 {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond, "quorum members should still commit despite one malicious voter")

	tip := h.net.nodes[q[0]].Tip()
	assert.True(t, tip.AllValid, "a single dishonest voter must not flip the outcome")
}

// TestQuorumReadyLagReplyReconcile covers scenario 4: a node that is not
// in the quorum for its own tip (it would be, if it were one block
// behind) must reply RECONCILE_BLOCK and must never be tallied toward
// quorum_ready_votes.
func TestQuorumReadyLagReplyReconcile(t *testing.T) {
	h := buildHarness(t, 4, 3, chaintypes.FlavorFinancial, map[int]uint64{0: 10})

	q, err := h.nodes[0].currentQuorum()
	require.NoError(t, err)

	var outsider *Node
	for _, n := range h.nodes {
		if !quorumContains(q, n.self) {
			outsider = n
			break
		}
	}
	require.NotNil(t, outsider, "a 4-node, 3-member quorum always has a non-member")

	outsider.gate.transition(PhaseReady)
	reply := outsider.ReceiveQuorumReady()
	assert.Equal(t, "RECONCILE_BLOCK", reply.Kind.String())

	r := outsider.currentRound()
	r.readyMu.Lock()
	votes := r.quorumReadyVotes
	r.readyMu.Unlock()
	assert.Equal(t, 0, votes, "a non-member's reply must not be tallied as a ready vote")
}

// TestSoloQuorumSelfCommits covers the §8 boundary property for
// QUORUM_SIZE = 1: a lone quorum member has no peer to ever tally a
// QUORUM_READY, RECEIVE_MEMPOOL, or RECEIVE_SIGNATURE threshold against
// (|quorum|-1 == 0), so it must advance every phase and commit on its
// own rather than stalling forever waiting on a message that can never
// arrive.
func TestSoloQuorumSelfCommits(t *testing.T) {
	h := buildHarness(t, 1, 1, chaintypes.FlavorFinancial, map[int]uint64{0: 10})
	n := h.nodes[0]
	n.cfg.MinimumTransactions = 1

	tx := &chaintypes.FinancialTx{Uid: []byte("solo"), From: h.addrs[0], To: h.addrs[0], Amount: 1}
	n.AddTransaction(tx)

	require.NoError(t, n.SendQuorumReady())

	require.Eventually(t, func() bool {
		return n.ChainLen() == 2
	}, 3*time.Second, 10*time.Millisecond, "a solo quorum member must self-commit without any peer")

	assert.Equal(t, 0, n.pool.Len(), "mempool should be drained on commit")
}

func quorumContains(q []chaintypes.Address, addr chaintypes.Address) bool {
	for _, a := range q {
		if a == addr {
			return true
		}
	}
	return false
}
