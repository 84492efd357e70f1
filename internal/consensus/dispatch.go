package consensus

import (
	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/empower1/quorumnode/internal/transport"
)

// Dispatch is the transport.Handler every inbound connection is routed
// through: it decodes the message's payload per its Kind and calls the
// matching (possibly phase-gated) handler.
func (n *Node) Dispatch(msg transport.Message) (transport.Message, bool) {
	switch msg.Kind {
	case transport.KindAddTransaction:
		tx, ok := n.decodeTransaction(msg.Payload)
		if ok {
			go n.AddTransaction(tx)
		}
		return transport.Message{}, false

	case transport.KindQuorumReady:
		return n.ReceiveQuorumReady(), true

	case transport.KindReconcileBlock:
		n.log.Debugw("received unsolicited reconcile block; catch-up unimplemented", "sender", msg.SenderAddr)
		return transport.Message{}, false

	case transport.KindRequestMempool:
		decoded, err := transport.DecodePayload(msg.Payload)
		if err != nil {
			n.log.Debugw("failed to decode mempool request", "error", err)
			return transport.Message{}, false
		}
		payload, ok := decoded.(transport.RequestMempoolPayload)
		if !ok {
			return transport.Message{}, false
		}
		return n.ReceiveMempool(payload), true

	case transport.KindMempoolReply:
		decoded, err := transport.DecodePayload(msg.Payload)
		if err != nil {
			n.log.Debugw("failed to decode mempool reply", "error", err)
			return transport.Message{}, false
		}
		payload, ok := decoded.(transport.MempoolReplyPayload)
		if !ok {
			return transport.Message{}, false
		}
		go n.ReceiveMempoolReply(payload)
		return transport.Message{}, false

	case transport.KindReceiveSignature:
		decoded, err := transport.DecodePayload(msg.Payload)
		if err != nil {
			n.log.Debugw("failed to decode signature", "error", err)
			return transport.Message{}, false
		}
		payload, ok := decoded.(transport.SignaturePayload)
		if !ok {
			return transport.Message{}, false
		}
		go n.ReceiveQuorumSignature(payload.Sig)
		return transport.Message{}, false

	case transport.KindReceiveSkeleton:
		decoded, err := transport.DecodePayload(msg.Payload)
		if err != nil {
			n.log.Debugw("failed to decode skeleton", "error", err)
			return transport.Message{}, false
		}
		payload, ok := decoded.(transport.SkeletonPayload)
		if !ok {
			return transport.Message{}, false
		}
		go n.ReceiveSkeleton(msg.SenderAddr, payload.Skeleton)
		return transport.Message{}, false

	case transport.KindReceiveIntervalValidation:
		decoded, err := transport.DecodePayload(msg.Payload)
		if err != nil {
			n.log.Debugw("failed to decode interval validation", "error", err)
			return transport.Message{}, false
		}
		payload, ok := decoded.(transport.IntervalValidationPayload)
		if !ok {
			return transport.Message{}, false
		}
		n.ReceiveIntervalValidation(payload)
		return transport.Message{}, false

	case transport.KindPing:
		reply, _ := transport.NewMessage(transport.KindPing, n.did, n.self, nil)
		return reply, true

	default:
		n.log.Debugw("dropping message of unhandled kind", "kind", msg.Kind)
		return transport.Message{}, false
	}
}

func (n *Node) decodeTransaction(payload []byte) (chaintypes.Transaction, bool) {
	decoded, err := transport.DecodePayload(payload)
	if err != nil {
		n.log.Debugw("failed to decode transaction", "error", err)
		return nil, false
	}
	switch t := decoded.(type) {
	case *chaintypes.FinancialTx:
		return t, true
	case *chaintypes.MLTx:
		return t, true
	default:
		return nil, false
	}
}
