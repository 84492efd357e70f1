package quorum

import (
	"errors"
	"sync"

	"github.com/empower1/quorumnode/internal/chaintypes"
)

var ErrMaxPeersReached = errors.New("quorum: local peer set already at MAX_PEERS capacity")

// PeerSet holds a node's local gossip peers and the fixed global peer
// list used by quorum derivation. GlobalPeers never changes after
// construction; LocalPeers is a bounded, mutable subset of it.
type PeerSet struct {
	mu          sync.RWMutex
	self        chaintypes.Address
	globalPeers []chaintypes.Address
	localPeers  map[chaintypes.Address]struct{}
	maxPeers    int
}

// NewPeerSet builds a PeerSet for self over the fixed globalPeers list.
// maxPeers bounds how many local gossip peers self may track at once
// (the spec's |local_peers| <= MAX_PEERS-1 invariant).
func NewPeerSet(self chaintypes.Address, globalPeers []chaintypes.Address, maxPeers int) *PeerSet {
	gp := make([]chaintypes.Address, len(globalPeers))
	copy(gp, globalPeers)
	return &PeerSet{
		self:        self,
		globalPeers: gp,
		localPeers:  make(map[chaintypes.Address]struct{}),
		maxPeers:    maxPeers,
	}
}

// GlobalPeers returns a copy of the fixed global peer list, in order.
func (p *PeerSet) GlobalPeers() []chaintypes.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]chaintypes.Address, len(p.globalPeers))
	copy(out, p.globalPeers)
	return out
}

// AddLocalPeer registers addr as a gossip peer, rejecting self and
// enforcing the MAX_PEERS-1 bound.
func (p *PeerSet) AddLocalPeer(addr chaintypes.Address) error {
	if addr == p.self {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.localPeers[addr]; ok {
		return nil
	}
	if len(p.localPeers) >= p.maxPeers-1 {
		return ErrMaxPeersReached
	}
	p.localPeers[addr] = struct{}{}
	return nil
}

// RemoveLocalPeer drops addr from the local gossip set.
func (p *PeerSet) RemoveLocalPeer(addr chaintypes.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.localPeers, addr)
}

// LocalPeers returns a snapshot of the current local gossip peer set.
func (p *PeerSet) LocalPeers() []chaintypes.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]chaintypes.Address, 0, len(p.localPeers))
	for a := range p.localPeers {
		out = append(out, a)
	}
	return out
}

// Self returns this node's own address.
func (p *PeerSet) Self() chaintypes.Address {
	return p.self
}
