package consensus

import (
	"testing"
	"time"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/empower1/quorumnode/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPhaseGateDropsHandlerOutsideItsRequiredPhase covers invariant 4:
// a phase-gated handler never mutates round state while the gate sits in
// a phase other than the one it requires, and must give up rather than
// block forever once its bounded wait elapses.
func TestPhaseGateDropsHandlerOutsideItsRequiredPhase(t *testing.T) {
	h := buildHarness(t, 4, 3, chaintypes.FlavorFinancial, map[int]uint64{0: 10})
	n := h.nodes[0]
	n.cfg.PhaseWaitTimeout = 30 * time.Millisecond

	// Node sits in IDLE; ReceiveQuorumSignature requires BUILDING and
	// must time out rather than tally against stale round state.
	before := n.currentRound().sigs()
	n.ReceiveQuorumSignature(chaintypes.BlockSignature{Signer: h.addrs[1], BlockHash: "dead", Sig: []byte("x")})
	after := n.currentRound().sigs()
	assert.Equal(t, len(before), len(after), "a signature arriving in the wrong phase must not be tallied")
}

// TestTallyQuorumSigsLegacyVoteSeeding asserts the documented off-by-one:
// a dissenting remote signature's block hash is "first seen" while
// tallying (every other signer, including self, is on the local hash),
// and only ever reaches len(q) votes if it matches the local hash — so
// the seeding bug is only observable on the minority hash's own count,
// never on whether the round commits. This drives TallyQuorumSigs
// through a real 3-member round and inspects the logged outcome via the
// committed chain length, which must be identical either way: neither
// seeding choice may turn a non-unanimous round into a false commit.
func TestTallyQuorumSigsLegacyVoteSeeding(t *testing.T) {
	for _, legacy := range []bool{true, false} {
		h := buildHarness(t, 3, 3, chaintypes.FlavorFinancial, map[int]uint64{0: 10})
		leader := h.nodes[0]
		dissenter := h.nodes[1]
		silent := h.nodes[2]
		leader.cfg.LegacyVoteSeeding = legacy

		q, err := leader.currentQuorum()
		require.NoError(t, err)

		tip := leader.Tip()
		prevHash, err := leader.hashBlock(tip, 0)
		require.NoError(t, err)
		block := &chaintypes.Block{BlockID: 1, PrevHash: prevHash, TxMap: map[[32]byte]chaintypes.Transaction{}}
		r := leader.currentRound()
		r.setQuorumBlock(block)

		localHash, err := leader.hashBlock(block, 0)
		require.NoError(t, err)

		dissentBlock := &chaintypes.Block{BlockID: 1, PrevHash: "dissent", TxMap: map[[32]byte]chaintypes.Transaction{}}
		dissentHash, err := dissenter.hashBlock(dissentBlock, 0)
		require.NoError(t, err)
		dissentSig, err := crypto.Sign(dissenter.identity, dissentHash)
		require.NoError(t, err)
		r.appendSig(chaintypes.BlockSignature{Signer: dissenter.self, BlockHash: dissentHash, Sig: dissentSig})

		silentSig, err := crypto.Sign(silent.identity, localHash)
		require.NoError(t, err)
		r.appendSig(chaintypes.BlockSignature{Signer: silent.self, BlockHash: localHash, Sig: silentSig})

		leader.TallyQuorumSigs(r, q)

		assert.Equal(t, uint64(1), leader.ChainLen(), "a dissenting signer must block commit regardless of vote-seeding mode")
	}
}
