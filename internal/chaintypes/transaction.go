package chaintypes

import (
	"crypto/sha256"
	"encoding/gob"
)

// TxFlavor selects which payload kind a transaction carries. A running
// node is configured for exactly one flavor for its whole lifetime.
type TxFlavor int

const (
	FlavorFinancial TxFlavor = iota
	FlavorML
)

func (f TxFlavor) String() string {
	switch f {
	case FlavorFinancial:
		return "Defi"
	case FlavorML:
		return "ML"
	default:
		return "unknown"
	}
}

// Transaction is opaque to the consensus core except for its UID and the
// digest derived from it. Both flavors implement this interface.
type Transaction interface {
	UID() []byte
	Digest() [32]byte
	Flavor() TxFlavor
}

// digestFromUID is the shared UID->digest reduction used by both flavors;
// the mempool keys transactions by this value.
func digestFromUID(uid []byte) [32]byte {
	return sha256.Sum256(uid)
}

// FinancialTx moves a balance between two accounts.
type FinancialTx struct {
	Uid    []byte
	From   Address
	To     Address
	Amount uint64
}

func (t *FinancialTx) UID() []byte      { return t.Uid }
func (t *FinancialTx) Digest() [32]byte { return digestFromUID(t.Uid) }
func (t *FinancialTx) Flavor() TxFlavor { return FlavorFinancial }

// MLTx certifies that a submitted model's training intervals are to be
// re-validated by the quorum. Node acceptance rejects an MLTx whose Model
// is nil or has no intervals; block construction validates the Model of
// the first MLTx it finds in the block's transaction set.
type MLTx struct {
	Uid      []byte
	ModelUID []byte
	Model    *ModelData
}

func (t *MLTx) UID() []byte      { return t.Uid }
func (t *MLTx) Digest() [32]byte { return digestFromUID(t.Uid) }
func (t *MLTx) Flavor() TxFlavor { return FlavorML }

// ModelData is the ML-flavor payload: an opaque model blob plus the
// boolean validity of each training interval, as known to the submitter.
// The interval validator re-checks these independently per quorum member.
type ModelData struct {
	Payload           []byte
	IntervalsValidity []bool
}

func init() {
	gob.Register(&FinancialTx{})
	gob.Register(&MLTx{})
}
