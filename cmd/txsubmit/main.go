// Command txsubmit sends a single transaction to a running quorumnoded
// node, adapted from the teacher's cmd/tx-submitter: the gob-framed
// transport.Message envelope replaces the teacher's protobuf wire
// format, but the one-shot dial/encode/send shape is unchanged.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/empower1/quorumnode/internal/config"
	"github.com/empower1/quorumnode/internal/transport"
)

func main() {
	nodeAddr := flag.String("node", "127.0.0.1:9000", "address of the node to submit to")
	use := flag.String("use", "Defi", "payload flavor: Defi or ML")
	from := flag.String("from", "127.0.0.1:9001", "Defi flavor: sender address (host:port)")
	to := flag.String("to", "127.0.0.1:9002", "Defi flavor: receiver address (host:port)")
	amount := flag.Uint64("amount", 1, "Defi flavor: amount to transfer")
	modelUID := flag.String("model-uid", "demo-model", "ML flavor: model identifier")
	flag.Parse()

	tx, err := buildTransaction(*use, *from, *to, *amount, *modelUID)
	if err != nil {
		log.Fatalf("Failed to build transaction: %v", err)
	}

	selfAddr, err := config.ParseAddress(*nodeAddr)
	if err != nil {
		log.Fatalf("Invalid node address %q: %v", *nodeAddr, err)
	}
	msg, err := transport.NewMessage(transport.KindAddTransaction, "txsubmit", selfAddr, tx)
	if err != nil {
		log.Fatalf("Failed to encode transaction message: %v", err)
	}

	conn := transport.Dial(*nodeAddr, 5*time.Second)
	if err := conn.Send(msg); err != nil {
		log.Fatalf("Failed to send transaction to %s: %v", *nodeAddr, err)
	}

	fmt.Printf("Successfully sent transaction to %s\n", *nodeAddr)
}

func buildTransaction(use, from, to string, amount uint64, modelUID string) (chaintypes.Transaction, error) {
	switch use {
	case "Defi", "defi", "Financial", "financial":
		fromAddr, err := config.ParseAddress(from)
		if err != nil {
			return nil, err
		}
		toAddr, err := config.ParseAddress(to)
		if err != nil {
			return nil, err
		}
		uid := []byte(fmt.Sprintf("%s->%s:%d:%d", from, to, amount, time.Now().UnixNano()))
		return &chaintypes.FinancialTx{Uid: uid, From: fromAddr, To: toAddr, Amount: amount}, nil
	case "ML", "ml":
		uid := []byte(fmt.Sprintf("%s:%d", modelUID, time.Now().UnixNano()))
		model := &chaintypes.ModelData{
			Payload:           []byte(modelUID),
			IntervalsValidity: []bool{true, true, true, true},
		}
		return &chaintypes.MLTx{Uid: uid, ModelUID: []byte(modelUID), Model: model}, nil
	default:
		return nil, fmt.Errorf("txsubmit: unrecognized --use flavor %q", use)
	}
}
