package crypto

import (
	"crypto/ecdsa"
	"errors"
	"sync"

	"github.com/empower1/quorumnode/internal/chaintypes"
)

var ErrUnknownSigner = errors.New("crypto: no public key registered for address")

// Registry is the process-wide public-key directory keyed by node
// address. It is injected into the coordinator rather than held as a
// package-level global, per the re-architecture direction to avoid
// file-scope state with an implicit lifecycle.
type Registry struct {
	mu   sync.RWMutex
	keys map[chaintypes.Address]*ecdsa.PublicKey
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[chaintypes.Address]*ecdsa.PublicKey)}
}

// WritePublicKey registers addr's public key, overwriting any prior entry.
func (r *Registry) WritePublicKey(addr chaintypes.Address, pub *ecdsa.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[addr] = pub
}

// Lookup returns the registered public key for addr, if any.
func (r *Registry) Lookup(addr chaintypes.Address) (*ecdsa.PublicKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pub, ok := r.keys[addr]
	if !ok {
		return nil, ErrUnknownSigner
	}
	return pub, nil
}

// VerifySignature looks up addr's key in the registry and verifies sig
// over hexDigest. It returns (false, nil) for an unknown signer rather
// than propagating ErrUnknownSigner, matching the spec's framing of an
// unrecognized signer as a protocol mismatch, not an invariant violation.
func (r *Registry) VerifySignature(addr chaintypes.Address, hexDigest string, sig []byte) (bool, error) {
	pub, err := r.Lookup(addr)
	if err != nil {
		return false, nil
	}
	return Verify(pub, hexDigest, sig)
}
