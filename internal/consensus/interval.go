package consensus

import (
	"math/rand"
	"time"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/empower1/quorumnode/internal/transport"
)

// noIntervalAssigned is the completion sentinel every quorum member sends
// after its interval votes (alone, when its chunk of the interval range
// came up empty). Receivers count a member's turn toward
// validationResponses only on this sentinel, never on a vote.
const noIntervalAssigned = -1

// TaskIntervals replicates each interval index `redundancy` times (the
// largest odd count not exceeding the quorum size) and deals the
// resulting flat list round-robin over the shuffled quorum, so every
// interval lands on an odd number of distinct members and a single
// dishonest voter can always be out-voted by the rest. Redundancy is
// capped by quorum size so no member is assigned the same interval
// twice; this is the "external task_intervals helper" of task
// derivation, producing the redundant interval list that round-robin
// distribution then spreads across members.
func TaskIntervals(modelData *chaintypes.ModelData, shuffledQuorum []chaintypes.Address) map[chaintypes.Address][]int {
	n := len(modelData.IntervalsValidity)
	k := len(shuffledQuorum)
	out := make(map[chaintypes.Address][]int, k)
	if k == 0 || n == 0 {
		return out
	}
	redundancy := k
	if redundancy%2 == 0 {
		redundancy--
	}
	pos := 0
	for idx := 0; idx < n; idx++ {
		for r := 0; r < redundancy; r++ {
			member := shuffledQuorum[pos%k]
			out[member] = append(out[member], idx)
			pos++
		}
	}
	return out
}

// shuffleQuorum seeds a PRNG by folding blockHash's bytes into a 64-bit
// accumulator (left-shift 8 and OR each byte in, so only the trailing 8
// bytes of the hash survive) and returns a shuffled copy of quorum.
func shuffleQuorum(quorumList []chaintypes.Address, blockHash string) []chaintypes.Address {
	var seed uint64
	for i := 0; i < len(blockHash); i++ {
		seed = (seed << 8) | uint64(blockHash[i])
	}
	rng := rand.New(rand.NewSource(int64(seed)))
	shuffled := make([]chaintypes.Address, len(quorumList))
	copy(shuffled, quorumList)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}

// assignedIntervals resolves the interval indices owned by self for the
// given model at the current tip, following §4.5.1 exactly.
func (n *Node) assignedIntervals(modelData *chaintypes.ModelData) ([]int, []chaintypes.Address, error) {
	tipHash, err := n.hashBlock(n.Tip(), 0)
	if err != nil {
		return nil, nil, err
	}
	q, err := n.currentQuorum()
	if err != nil {
		return nil, nil, err
	}
	shuffled := shuffleQuorum(q, tipHash)
	assignments := TaskIntervals(modelData, shuffled)
	return assignments[n.self], q, nil
}

// verdictFor recomputes the validity of interval idx against modelData,
// inverting it when this node is configured malicious.
func (n *Node) verdictFor(modelData *chaintypes.ModelData, idx int) bool {
	v := idx >= 0 && idx < len(modelData.IntervalsValidity) && modelData.IntervalsValidity[idx]
	if n.cfg.IsMalicious {
		return !v
	}
	return v
}

// runIntervalValidation drives C5 for modelData: computes self's
// assigned intervals, broadcasts each vote followed by the completion
// sentinel, records self's own votes and turn exactly once via the local
// path, then blocks until every quorum member has responded.
func (n *Node) runIntervalValidation(r *roundState, modelData *chaintypes.ModelData) (map[int]bool, bool, error) {
	r.validationMu.Lock()
	r.modelData = modelData
	r.validationMu.Unlock()

	assigned, q, err := n.assignedIntervals(modelData)
	if err != nil {
		return nil, false, err
	}

	for _, idx := range assigned {
		verdict := n.verdictFor(modelData, idx)
		n.broadcastIntervalVote(q, idx, verdict)
		r.recordIntervalVote(idx, verdict)
	}
	n.broadcastIntervalVote(q, noIntervalAssigned, false)
	r.recordResponse()

	return n.awaitIntervalValidation(r, len(q))
}

// broadcastIntervalVote sends a one-way RECEIVE_INTERVAL_VALIDATION to
// every other quorum member.
func (n *Node) broadcastIntervalVote(q []chaintypes.Address, idx int, isValid bool) {
	msg, err := transport.NewMessage(transport.KindReceiveIntervalValidation, n.did, n.self, transport.IntervalValidationPayload{
		IntervalIdx: idx,
		IsValid:     isValid,
	})
	if err != nil {
		n.log.Warnw("failed to encode interval validation", "error", err)
		return
	}
	for _, peer := range q {
		if peer == n.self {
			continue
		}
		if err := n.sender.Send(peer, msg); err != nil {
			n.log.Debugw("transient peer error broadcasting interval vote", "peer", peer, "error", err)
		}
	}
}

// ReceiveIntervalValidation handles an inbound vote from a remote
// quorum member: record its verdict, or, on the completion sentinel,
// count its turn toward validationResponses exactly once.
func (n *Node) ReceiveIntervalValidation(payload transport.IntervalValidationPayload) {
	r := n.currentRound()
	if payload.IntervalIdx != noIntervalAssigned {
		r.recordIntervalVote(payload.IntervalIdx, payload.IsValid)
		return
	}
	r.recordResponse()
}

// awaitIntervalValidation polls the response count until every quorum
// member has completed its turn, then tallies (which sets
// validationComplete); it is never signaled.
func (n *Node) awaitIntervalValidation(r *roundState, quorumSize int) (map[int]bool, bool, error) {
	deadline := n.cfg.IntervalVoteTimeout
	waited := time.Duration(0)
	const step = 10 * time.Millisecond
	for {
		if r.responseCount() >= quorumSize {
			votes, allValid := r.tallyIntervals()
			return votes, allValid, nil
		}
		if waited >= deadline {
			return nil, false, ErrPhaseTimeout
		}
		time.Sleep(step)
		waited += step
	}
}
