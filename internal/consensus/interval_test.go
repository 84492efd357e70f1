package consensus

import (
	"testing"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/stretchr/testify/assert"
)

// TestTaskIntervalsRedundantAndDistinct covers the redundancy guarantee
// §4.5.1/§4.5.2 rely on for majority resolution: every interval must be
// assigned to an odd number of members (so a vote can never tie) and
// never to the same member twice (so a dishonest member only ever casts
// one vote per interval).
func TestTaskIntervalsRedundantAndDistinct(t *testing.T) {
	for _, k := range []int{1, 2, 3, 4, 5, 7, 8} {
		quorum := make([]chaintypes.Address, k)
		for i := range quorum {
			quorum[i] = chaintypes.Address{Host: "127.0.0.1", Port: 9000 + i}
		}
		modelData := &chaintypes.ModelData{IntervalsValidity: []bool{true, false, true, true, false}}

		assignments := TaskIntervals(modelData, quorum)

		counts := make(map[int]int)
		seen := make(map[int]map[chaintypes.Address]bool)
		for member, intervals := range assignments {
			for _, idx := range intervals {
				counts[idx]++
				if seen[idx] == nil {
					seen[idx] = make(map[chaintypes.Address]bool)
				}
				assert.False(t, seen[idx][member], "k=%d: member %v assigned interval %d more than once", k, member, idx)
				seen[idx][member] = true
			}
		}

		for idx := 0; idx < len(modelData.IntervalsValidity); idx++ {
			assert.NotZero(t, counts[idx]%2, "k=%d: interval %d got an even vote count (%d), a tie is possible", k, idx, counts[idx])
			assert.LessOrEqual(t, counts[idx], k, "k=%d: interval %d assigned to more members than exist in the quorum", k, idx)
		}
	}
}

// TestTaskIntervalsMajorityOutVotesSingleMalicious drives the actual
// majority tally in roundState with one dissenting vote per interval,
// confirming a single malicious voter can never flip an interval's
// verdict whenever its assignment has redundancy greater than one.
func TestTaskIntervalsMajorityOutVotesSingleMalicious(t *testing.T) {
	quorum := make([]chaintypes.Address, 5)
	for i := range quorum {
		quorum[i] = chaintypes.Address{Host: "127.0.0.1", Port: 9100 + i}
	}
	modelData := &chaintypes.ModelData{IntervalsValidity: []bool{true, true, true}}
	assignments := TaskIntervals(modelData, quorum)

	r := newRoundState()
	maliciousMember := quorum[2]
	for member, intervals := range assignments {
		for _, idx := range intervals {
			verdict := modelData.IntervalsValidity[idx]
			if member == maliciousMember {
				verdict = !verdict
			}
			r.recordIntervalVote(idx, verdict)
		}
	}

	votes, allValid := r.tallyIntervals()
	assert.True(t, allValid, "a single dissenting vote per interval must be out-voted")
	for idx := 0; idx < len(modelData.IntervalsValidity); idx++ {
		assert.True(t, votes[idx], "interval %d should resolve valid despite one malicious vote", idx)
	}
}
