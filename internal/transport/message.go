// Package transport implements the node-to-node wire protocol: message
// framing, encoding, and the one-way/two-way send primitives the
// consensus core treats as an external collaborator. It continues the
// teacher's own gob-over-length-prefixed-frame convention rather than
// introducing protobuf, since no generated stub package is available.
package transport

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/empower1/quorumnode/internal/chaintypes"
)

// Kind tags a Message with its protocol role.
type Kind byte

const (
	KindPing Kind = iota
	KindAddTransaction
	KindQuorumReady
	KindReconcileBlock
	KindRequestMempool
	KindMempoolReply
	KindRequestTransaction
	KindReceiveSignature
	KindReceiveSkeleton
	KindReceiveIntervalValidation
	KindAlertWallet
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "PING"
	case KindAddTransaction:
		return "ADD_TRANSACTION"
	case KindQuorumReady:
		return "QUORUM_READY"
	case KindReconcileBlock:
		return "RECONCILE_BLOCK"
	case KindRequestMempool:
		return "RECEIVE_MEMPOOL_REQUEST"
	case KindMempoolReply:
		return "RECEIVE_MEMPOOL_REPLY"
	case KindRequestTransaction:
		return "REQUEST_TRANSACTION"
	case KindReceiveSignature:
		return "RECEIVE_SIGNATURE"
	case KindReceiveSkeleton:
		return "RECEIVE_SKELETON"
	case KindReceiveIntervalValidation:
		return "RECEIVE_INTERVAL_VALIDATION"
	case KindAlertWallet:
		return "ALERT_WALLET"
	default:
		return "UNKNOWN"
	}
}

// Message is the envelope exchanged between nodes: a kind tag, the
// sender's identity and address, a timestamp, and an opaque gob-encoded
// payload whose shape is determined by Kind.
type Message struct {
	Kind       Kind
	SenderID   string // did:key identity, see internal/crypto
	SenderAddr chaintypes.Address
	Timestamp  int64
	Payload    []byte
}

// NewMessage builds a Message with the payload already gob-encoded.
func NewMessage(kind Kind, senderID string, senderAddr chaintypes.Address, payload interface{}) (Message, error) {
	encoded, err := EncodePayload(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:       kind,
		SenderID:   senderID,
		SenderAddr: senderAddr,
		Timestamp:  time.Now().UnixNano(),
		Payload:    encoded,
	}, nil
}

// EncodePayload gob-encodes an arbitrary registered payload type.
func EncodePayload(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodePayload decodes a Message's Payload into an interface{} whose
// concrete type was registered via gob.Register by the caller.
func DecodePayload(payload []byte) (interface{}, error) {
	var v interface{}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Quorum-ready reply payloads.
type ReconcileBlockPayload struct {
	BlockID   uint64
	BlockHash string
}

// RequestMempoolPayload carries the sender's mempool digest set for
// reconciliation.
type RequestMempoolPayload struct {
	Digests [][32]byte
}

// MempoolReplyPayload carries the transactions forwarded in answer to a
// REQUEST_TRANSACTION. The request itself travels as a
// RequestMempoolPayload; no sender sets MissingDigests.
type MempoolReplyPayload struct {
	MissingDigests [][32]byte
	Transactions   []chaintypes.Transaction
}

// SignaturePayload carries one quorum member's signature over a block.
type SignaturePayload struct {
	Sig chaintypes.BlockSignature
}

// SkeletonPayload carries a committed block's compact commit record.
type SkeletonPayload struct {
	Skeleton chaintypes.BlockSkeleton
}

// IntervalValidationPayload carries one quorum member's vote on one
// interval of a submitted model.
type IntervalValidationPayload struct {
	IntervalIdx int
	IsValid     bool
}

// AlertWalletPayload notifies a subscribed wallet that one of its
// addresses appeared in a committed transaction, with the Merkle proof
// of inclusion.
type AlertWalletPayload struct {
	TxDigest [32]byte
	Proof    MerkleProofWire
}

// MerkleProofWire is a gob-friendly mirror of merkle.Proof so this
// package does not need to import internal/merkle for a single field.
type MerkleProofWire struct {
	Siblings  [][32]byte
	RightSide []bool
}

func init() {
	gob.Register(ReconcileBlockPayload{})
	gob.Register(RequestMempoolPayload{})
	gob.Register(MempoolReplyPayload{})
	gob.Register(SignaturePayload{})
	gob.Register(SkeletonPayload{})
	gob.Register(IntervalValidationPayload{})
	gob.Register(AlertWalletPayload{})
}
