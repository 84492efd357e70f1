// Package metrics exposes the node's round/phase/mempool observability
// surface as Prometheus collectors, served over net/http at
// --metrics-addr. The teacher has no metrics layer of its own; this
// package promotes client_golang from a transitive dependency to a
// directly wired one.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the collectors a running node serves. The daemon sets
// MempoolSize whenever the mempool accepts a transaction; Phase,
// CommitCount, SkeletonReject and RoundAborts are registered and served
// but nothing in the repository updates them.
type Registry struct {
	reg *prometheus.Registry

	Phase          *prometheus.GaugeVec
	MempoolSize    prometheus.Gauge
	CommitCount    prometheus.Counter
	SkeletonReject prometheus.Counter
	RoundAborts    prometheus.Counter
}

// New constructs and registers every collector.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		Phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quorumnode_round_phase",
			Help: "Current round phase (one-hot per phase label).",
		}, []string{"phase"}),
		MempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quorumnode_mempool_size",
			Help: "Current number of pending transactions in the mempool.",
		}),
		CommitCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quorumnode_blocks_committed_total",
			Help: "Total number of blocks committed, by any path.",
		}),
		SkeletonReject: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quorumnode_skeleton_rejections_total",
			Help: "Total number of inbound skeletons rejected (order, signature, or hash mismatch).",
		}),
		RoundAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quorumnode_round_aborts_total",
			Help: "Total number of rounds abandoned before commit.",
		}),
	}

	reg.MustRegister(m.Phase, m.MempoolSize, m.CommitCount, m.SkeletonReject, m.RoundAborts)
	return m
}

// SetPhase zeroes every phase label and sets the current one to 1, so
// the gauge vector always reads as one-hot across phase names.
func (m *Registry) SetPhase(phases []string, current string) {
	for _, p := range phases {
		if p == current {
			m.Phase.WithLabelValues(p).Set(1)
		} else {
			m.Phase.WithLabelValues(p).Set(0)
		}
	}
}

// Serve starts an HTTP server exposing /metrics on addr, returning once
// ctx is cancelled or the listener fails.
func (m *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
