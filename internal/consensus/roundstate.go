package consensus

import (
	"sync"

	"github.com/empower1/quorumnode/internal/chaintypes"
)

// intervalTally counts valid/invalid votes for one model interval.
type intervalTally struct {
	valid   int
	invalid int
}

// roundState bundles every piece of per-round scratch state
// (quorum_sigs, quorum_block, the three vote counters, the interval
// ballot) that the source resets field-by-field. Bundling it here and
// swapping the whole struct atomically at round start means an aborted
// round can never leave a stale counter behind for the next one.
type roundState struct {
	readyMu          sync.Mutex
	quorumReadyVotes int

	mempoolMu       sync.Mutex
	mempoolRounds   int
	mempoolRequest  map[[32]byte]struct{}

	sigMu      sync.Mutex
	quorumSigs []chaintypes.BlockSignature

	blockMu     sync.Mutex
	quorumBlock *chaintypes.Block

	validationMu        sync.Mutex
	modelData           *chaintypes.ModelData
	validationResponses int
	validationVotes     map[int]*intervalTally
	intervalValidations map[int]bool
	validationComplete  bool
}

func newRoundState() *roundState {
	return &roundState{
		validationVotes: make(map[int]*intervalTally),
	}
}

func (r *roundState) incReadyVotes() int {
	r.readyMu.Lock()
	defer r.readyMu.Unlock()
	r.quorumReadyVotes++
	return r.quorumReadyVotes
}

func (r *roundState) incMempoolRounds() int {
	r.mempoolMu.Lock()
	defer r.mempoolMu.Unlock()
	r.mempoolRounds++
	return r.mempoolRounds
}

func (r *roundState) appendSig(sig chaintypes.BlockSignature) int {
	r.sigMu.Lock()
	defer r.sigMu.Unlock()
	r.quorumSigs = append(r.quorumSigs, sig)
	return len(r.quorumSigs)
}

func (r *roundState) sigs() []chaintypes.BlockSignature {
	r.sigMu.Lock()
	defer r.sigMu.Unlock()
	out := make([]chaintypes.BlockSignature, len(r.quorumSigs))
	copy(out, r.quorumSigs)
	return out
}

func (r *roundState) setQuorumBlock(b *chaintypes.Block) {
	r.blockMu.Lock()
	defer r.blockMu.Unlock()
	r.quorumBlock = b
}

func (r *roundState) getQuorumBlock() *chaintypes.Block {
	r.blockMu.Lock()
	defer r.blockMu.Unlock()
	return r.quorumBlock
}

// recordIntervalVote tallies one member's verdict for idx. It never
// touches validationResponses: a node's turn is counted exactly once,
// via recordResponse, independent of how many intervals it voted on.
func (r *roundState) recordIntervalVote(idx int, isValid bool) {
	r.validationMu.Lock()
	defer r.validationMu.Unlock()
	t, ok := r.validationVotes[idx]
	if !ok {
		t = &intervalTally{}
		r.validationVotes[idx] = t
	}
	if isValid {
		t.valid++
	} else {
		t.invalid++
	}
}

// recordResponse counts one quorum member's turn as complete and
// returns the updated total.
func (r *roundState) recordResponse() int {
	r.validationMu.Lock()
	defer r.validationMu.Unlock()
	r.validationResponses++
	return r.validationResponses
}

// responseCount reports how many quorum members have completed their
// turn so far this round.
func (r *roundState) responseCount() int {
	r.validationMu.Lock()
	defer r.validationMu.Unlock()
	return r.validationResponses
}

// tallyIntervals resolves every interval's majority verdict into
// intervalValidations and flips validationComplete. Must be called with
// validationMu logically "owned" by the caller's single winning call
// (the coordinator only calls this once, guarded by the response-count
// threshold check).
func (r *roundState) tallyIntervals() (map[int]bool, bool) {
	r.validationMu.Lock()
	defer r.validationMu.Unlock()
	out := make(map[int]bool, len(r.validationVotes))
	allValid := true
	for idx, t := range r.validationVotes {
		v := t.valid > t.invalid
		out[idx] = v
		if !v {
			allValid = false
		}
	}
	r.intervalValidations = out
	r.validationComplete = true
	return out, allValid
}
