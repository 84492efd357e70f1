// Package config loads the node daemon's configuration surface: the
// flavor, network topology, and quorum parameters every other package
// is constructed from. It is bound via spf13/pflag the way the teacher
// binds its cobra commands' flag sets.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/spf13/pflag"
)

// Config is the fully-resolved set of construction-time parameters for
// a quorumnoded process.
type Config struct {
	Use                 string
	Listen              string
	MaxPeers            int
	InitialConnections  int
	NumNodes            int
	QuorumSize          int
	MinimumTransactions int
	DebugLevel          int
	IsMalicious         bool
	MetricsAddr         string
	Peers               []string
	IdentityFile        string

	PhaseWaitTimeout    time.Duration
	IntervalVoteTimeout time.Duration
}

// Default returns the documented defaults, matching consensus.DefaultConfig.
func Default() Config {
	return Config{
		Use:                 "Defi",
		Listen:              ":9000",
		MaxPeers:            8,
		InitialConnections:  3,
		NumNodes:            4,
		QuorumSize:          3,
		MinimumTransactions: 2,
		DebugLevel:          1,
		MetricsAddr:         ":9100",
		PhaseWaitTimeout:    5 * time.Second,
		IntervalVoteTimeout: 5 * time.Second,
	}
}

// BindFlags registers the documented flag surface onto fs, seeded with
// cfg's current values as defaults.
func (cfg *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfg.Use, "use", cfg.Use, "payload flavor: Defi or ML")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "local listen address, e.g. :9000")
	fs.IntVar(&cfg.MaxPeers, "max-peers", cfg.MaxPeers, "maximum local gossip peers")
	fs.IntVar(&cfg.InitialConnections, "initial-connections", cfg.InitialConnections, "peers to dial at startup")
	fs.IntVar(&cfg.NumNodes, "num-nodes", cfg.NumNodes, "size of the fixed global peer list")
	fs.IntVar(&cfg.QuorumSize, "quorum-size", cfg.QuorumSize, "quorum size for block production")
	fs.IntVar(&cfg.MinimumTransactions, "minimum-transactions", cfg.MinimumTransactions, "minimum mempool size to trigger a round")
	fs.IntVar(&cfg.DebugLevel, "debug-level", cfg.DebugLevel, "0=info (JSON), 1=info (console), 2=debug (console)")
	fs.BoolVar(&cfg.IsMalicious, "is-malicious", cfg.IsMalicious, "invert this node's interval validation verdicts (testing only)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address to serve /metrics on")
	fs.StringSliceVar(&cfg.Peers, "peers", cfg.Peers, "comma-separated host:port list of the fixed global peer set")
	fs.StringVar(&cfg.IdentityFile, "identity-file", cfg.IdentityFile, "PEM file holding this node's private key; generated and saved here if absent")
}

// Flavor resolves the --use flag into a chaintypes.TxFlavor.
func (cfg Config) Flavor() (chaintypes.TxFlavor, error) {
	switch strings.ToLower(cfg.Use) {
	case "defi", "financial":
		return chaintypes.FlavorFinancial, nil
	case "ml":
		return chaintypes.FlavorML, nil
	default:
		return 0, fmt.Errorf("config: unrecognized --use flavor %q", cfg.Use)
	}
}

// ParseAddress splits a host:port string into a chaintypes.Address. A
// bare :port (no host) resolves Host to "127.0.0.1", matching how
// --listen is conventionally written for a local-only peer list.
func ParseAddress(hostport string) (chaintypes.Address, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return chaintypes.Address{}, fmt.Errorf("config: invalid address %q: %w", hostport, err)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return chaintypes.Address{}, fmt.Errorf("config: invalid port in %q: %w", hostport, err)
	}
	return chaintypes.Address{Host: host, Port: port}, nil
}

// ParseAddresses applies ParseAddress to every entry in hostports.
func ParseAddresses(hostports []string) ([]chaintypes.Address, error) {
	out := make([]chaintypes.Address, 0, len(hostports))
	for _, hp := range hostports {
		addr, err := ParseAddress(hp)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
