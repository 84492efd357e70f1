// Package cli wires the quorumnoded process's cobra command surface,
// following the teacher's cmd/empower1d/cli/cli.go shape: a root command
// plus a small set of subcommands operating on a constructed node.
package cli

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/empower1/quorumnode/internal/config"
	"github.com/empower1/quorumnode/internal/consensus"
	"github.com/empower1/quorumnode/internal/crypto"
	"github.com/empower1/quorumnode/internal/ledger"
	"github.com/empower1/quorumnode/internal/logging"
	"github.com/empower1/quorumnode/internal/mempool"
	"github.com/empower1/quorumnode/internal/metrics"
	"github.com/empower1/quorumnode/internal/quorum"
	"github.com/empower1/quorumnode/internal/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRootCmd builds the quorumnoded command tree: a persistent flag set
// shared by every subcommand, a "run" subcommand that serves the node
// until interrupted, and a "printchain" subcommand that boots just far
// enough to report the genesis block.
func NewRootCmd() *cobra.Command {
	cfg := config.Default()

	rootCmd := &cobra.Command{
		Use:   "quorumnoded",
		Short: "quorumnoded runs one quorum-consensus blockchain node.",
	}
	cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newRunCmd(&cfg))
	rootCmd.AddCommand(newPrintChainCmd(&cfg))
	rootCmd.AddCommand(newStatusCmd(&cfg))

	return rootCmd
}

func newRunCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the node daemon: serve transport, metrics, and the round loop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cfg)
		},
	}
}

func newPrintChainCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "printchain",
		Short: "Print the genesis block for the configured flavor and exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			flavor, err := cfg.Flavor()
			if err != nil {
				return err
			}
			genesis := chaintypes.Genesis(flavor)
			hash, err := crypto.HashBlock(genesis, 0)
			if err != nil {
				return err
			}
			fmt.Printf("Block 0 (%s): hash=%s prevHash=%s\n", flavor, hash, genesis.PrevHash)
			return nil
		},
	}
}

func newStatusCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the resolved configuration and exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("flavor=%s listen=%s quorum-size=%d minimum-transactions=%d num-nodes=%d\n",
				cfg.Use, cfg.Listen, cfg.QuorumSize, cfg.MinimumTransactions, cfg.NumNodes)
			return nil
		},
	}
}

// runDaemon wires every collaborator (identity, registry, ledger,
// mempool, peer set, consensus node, transport server, metrics server)
// and serves until an interrupt or terminate signal arrives.
func runDaemon(cfg *config.Config) error {
	log, err := logging.New(cfg.DebugLevel)
	if err != nil {
		return fmt.Errorf("cli: failed to build logger: %w", err)
	}
	defer log.Sync()
	sugar := logging.Named(log, "quorumnoded")

	flavor, err := cfg.Flavor()
	if err != nil {
		return err
	}

	self, err := config.ParseAddress(cfg.Listen)
	if err != nil {
		return err
	}

	identity, err := loadOrGenerateIdentity(cfg.IdentityFile)
	if err != nil {
		return err
	}
	did, err := crypto.NodeDID(&identity.PublicKey)
	if err != nil {
		return fmt.Errorf("cli: failed to derive node DID: %w", err)
	}

	globalPeers, err := config.ParseAddresses(cfg.Peers)
	if err != nil {
		return err
	}
	if len(globalPeers) == 0 {
		globalPeers = []chaintypes.Address{self}
	}

	peers := quorum.NewPeerSet(self, globalPeers, cfg.MaxPeers)
	dialed := 0
	for _, addr := range globalPeers {
		if addr == self || dialed >= cfg.InitialConnections {
			continue
		}
		if err := peers.AddLocalPeer(addr); err != nil {
			sugar.Warnw("failed to add initial peer", "peer", addr, "error", err)
			continue
		}
		dialed++
	}

	registry := crypto.NewRegistry()
	registry.WritePublicKey(self, &identity.PublicKey)

	m := metrics.New()
	sender := consensus.NewDialSender(5 * time.Second)

	var pool *mempool.Mempool
	pool = mempool.New(func(tx chaintypes.Transaction) {
		m.MempoolSize.Set(float64(pool.Len()))
		msg, err := transport.NewMessage(transport.KindAddTransaction, did, self, tx)
		if err != nil {
			sugar.Warnw("failed to encode gossiped transaction", "error", err)
			return
		}
		for _, peer := range peers.LocalPeers() {
			if err := sender.Send(peer, msg); err != nil {
				sugar.Debugw("transient peer error gossiping transaction", "peer", peer, "error", err)
			}
		}
	})

	books := ledger.New(nil)

	nodeCfg := consensus.DefaultConfig()
	nodeCfg.Flavor = flavor
	nodeCfg.QuorumSize = cfg.QuorumSize
	nodeCfg.MinimumTransactions = cfg.MinimumTransactions
	nodeCfg.IsMalicious = cfg.IsMalicious
	nodeCfg.PhaseWaitTimeout = cfg.PhaseWaitTimeout
	nodeCfg.IntervalVoteTimeout = cfg.IntervalVoteTimeout

	node := consensus.NewNode(nodeCfg, self, identity, did, peers, pool, books, registry, sender, logging.Named(log, "consensus"))

	server, err := transport.Listen(self.String(), node.Dispatch)
	if err != nil {
		return fmt.Errorf("cli: failed to listen on %s: %w", self, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		sugar.Infow("serving transport", "addr", server.Addr().String())
		if err := server.Serve(); err != nil {
			sugar.Debugw("transport server stopped", "error", err)
		}
	}()
	go func() {
		if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
			sugar.Warnw("metrics server stopped", "error", err)
		}
	}()
	go roundTriggerLoop(ctx, node, sugar)

	sugar.Infow("node started", "did", did, "flavor", flavor, "quorumSize", cfg.QuorumSize)

	<-ctx.Done()
	sugar.Infow("shutting down")
	return server.Close()
}

// roundTriggerLoop periodically attempts to start a round, the
// continuation of the teacher's blockCreationLoop ticker. SendQuorumReady
// itself no-ops whenever self is out of quorum or the mempool hasn't
// reached the configured minimum, so polling here is cheap and safe to
// overlap with rounds already in flight.
func roundTriggerLoop(ctx context.Context, node *consensus.Node, log *zap.SugaredLogger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := node.SendQuorumReady(); err != nil {
				log.Debugw("round trigger did not start a round", "error", err)
			}
		}
	}
}

func loadOrGenerateIdentity(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return crypto.GenerateKeyPair()
	}
	key, err := crypto.LoadPrivateKeyPEM(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("cli: failed to load identity from %q: %w", path, err)
	}
	key, err = crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := crypto.SavePrivateKeyPEM(key, path); err != nil {
		return nil, fmt.Errorf("cli: failed to persist generated identity to %q: %w", path, err)
	}
	return key, nil
}
