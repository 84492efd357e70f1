package consensus

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/empower1/quorumnode/internal/crypto"
	"github.com/empower1/quorumnode/internal/ledger"
	"github.com/empower1/quorumnode/internal/mempool"
	"github.com/empower1/quorumnode/internal/quorum"
	"github.com/empower1/quorumnode/internal/transport"
	"github.com/stretchr/testify/require"
)

// fakeNetwork routes Sender calls directly into the target Node's
// Dispatch, standing in for real sockets in these package tests.
type fakeNetwork struct {
	nodes map[chaintypes.Address]*Node
}

func (f *fakeNetwork) Send(addr chaintypes.Address, msg transport.Message) error {
	n, ok := f.nodes[addr]
	if !ok {
		return nil
	}
	n.Dispatch(msg)
	return nil
}

func (f *fakeNetwork) Request(addr chaintypes.Address, msg transport.Message) (transport.Message, error) {
	n, ok := f.nodes[addr]
	if !ok {
		return transport.Message{}, nil
	}
	reply, _ := n.Dispatch(msg)
	return reply, nil
}

type testHarness struct {
	net      *fakeNetwork
	nodes    []*Node
	addrs    []chaintypes.Address
	ledgers  []*ledger.Ledger
	registry *crypto.Registry
}

// buildHarness wires numNodes fully-connected nodes sharing one registry
// and one fake network, each with its own identity, peer set, mempool,
// and ledger.
func buildHarness(t *testing.T, numNodes, quorumSize int, flavor chaintypes.TxFlavor, initial map[int]uint64) *testHarness {
	t.Helper()

	registry := crypto.NewRegistry()
	net := &fakeNetwork{nodes: make(map[chaintypes.Address]*Node)}

	addrs := make([]chaintypes.Address, numNodes)
	identities := make([]*ecdsa.PrivateKey, numNodes)
	for i := 0; i < numNodes; i++ {
		addrs[i] = chaintypes.Address{Host: "127.0.0.1", Port: 9000 + i}
		priv, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		identities[i] = priv
		pub, err := crypto.MarshalPublicKey(&priv.PublicKey)
		require.NoError(t, err)
		registry.WritePublicKey(addrs[i], &priv.PublicKey)
		_ = pub
	}

	h := &testHarness{net: net, addrs: addrs, registry: registry}
	for i := 0; i < numNodes; i++ {
		peers := quorum.NewPeerSet(addrs[i], addrs, numNodes)
		for j := 0; j < numNodes; j++ {
			if j != i {
				_ = peers.AddLocalPeer(addrs[j])
			}
		}
		var books *ledger.Ledger
		if flavor == chaintypes.FlavorFinancial {
			seed := make(map[chaintypes.Address]uint64, len(initial))
			for idx, bal := range initial {
				seed[addrs[idx]] = bal
			}
			books = ledger.New(seed)
		} else {
			books = ledger.New(nil)
		}
		pool := mempool.New(func(tx chaintypes.Transaction) {})
		cfg := DefaultConfig()
		cfg.Flavor = flavor
		cfg.QuorumSize = quorumSize
		cfg.MinimumTransactions = 2
		cfg.PhaseWaitTimeout = time.Second
		cfg.IntervalVoteTimeout = time.Second

		did, err := crypto.NodeDID(&identities[i].PublicKey)
		require.NoError(t, err)

		node := NewNode(cfg, addrs[i], identities[i], did, peers, pool, books, registry, net, nil)
		net.nodes[addrs[i]] = node
		h.nodes = append(h.nodes, node)
		h.ledgers = append(h.ledgers, books)
	}
	return h
}

func (h *testHarness) quorumLeader(t *testing.T) *Node {
	t.Helper()
	for _, n := range h.nodes {
		inQ, _, err := n.inCurrentQuorum()
		require.NoError(t, err)
		if inQ {
			return n
		}
	}
	t.Fatal("no node in the genesis quorum")
	return nil
}
