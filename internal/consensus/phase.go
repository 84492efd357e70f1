package consensus

import (
	"errors"
	"sync"
	"time"
)

// Phase is the node-local round state, matching the IDLE..COMMITTING
// progression. Non-quorum nodes stay in PhaseIdle for an entire round
// and only leave it via addBlock once a skeleton is applied.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseReady
	PhaseMempoolSync
	PhaseBuilding
	PhaseCommitting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseReady:
		return "READY"
	case PhaseMempoolSync:
		return "MEMPOOL_SYNC"
	case PhaseBuilding:
		return "BUILDING"
	case PhaseCommitting:
		return "COMMITTING"
	default:
		return "UNKNOWN"
	}
}

// ErrPhaseTimeout is returned by awaitPhase when the bounded wait elapses
// before the gate reaches the required phase.
var ErrPhaseTimeout = errors.New("consensus: timed out waiting for required phase")

// phaseGate replaces the source's busy-wait-on-a-shared-integer pattern
// with a sync.Cond broadcast on every transition, per the recommended
// re-architecture. Waiters never hold phaseGate's lock across a
// handler's own critical section elsewhere.
type phaseGate struct {
	mu    sync.Mutex
	cond  *sync.Cond
	phase Phase
}

func newPhaseGate() *phaseGate {
	g := &phaseGate{phase: PhaseIdle}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *phaseGate) current() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// transition sets the phase and wakes every waiter, whether or not the
// new phase is what they're waiting for; each waiter rechecks its own
// condition before returning.
func (g *phaseGate) transition(to Phase) {
	g.mu.Lock()
	g.phase = to
	g.mu.Unlock()
	g.cond.Broadcast()
}

// awaitPhase blocks until the gate reaches want or timeout elapses. It
// holds only the gate's own lock while waiting, never a data lock, so
// phase-gated handlers never deadlock against each other.
func (g *phaseGate) awaitPhase(want Phase, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.phase != want {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrPhaseTimeout
		}
		waitWithDeadline(g.cond, remaining)
	}
	return nil
}

// waitWithDeadline gives sync.Cond a bounded Wait: a timer forces a
// spurious Broadcast after d so the waiting goroutine re-checks its
// deadline instead of blocking forever on a transition that never comes.
func waitWithDeadline(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
}
