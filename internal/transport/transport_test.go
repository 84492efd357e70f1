package transport

import (
	"testing"
	"time"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddr(port int) chaintypes.Address {
	return chaintypes.Address{Host: "127.0.0.1", Port: port}
}

func TestMessageRoundTripAllKinds(t *testing.T) {
	kinds := []Kind{
		KindPing, KindAddTransaction, KindQuorumReady, KindReconcileBlock,
		KindRequestMempool, KindMempoolReply, KindRequestTransaction,
		KindReceiveSignature, KindReceiveSkeleton, KindReceiveIntervalValidation,
		KindAlertWallet,
	}
	for _, k := range kinds {
		msg, err := NewMessage(k, uuid.NewString(), testAddr(9000), ReconcileBlockPayload{BlockID: 3, BlockHash: "abc"})
		require.NoError(t, err)
		assert.Equal(t, k, msg.Kind)

		decoded, err := DecodePayload(msg.Payload)
		require.NoError(t, err)
		payload, ok := decoded.(ReconcileBlockPayload)
		require.True(t, ok)
		assert.Equal(t, uint64(3), payload.BlockID)
	}
}

func TestServerOneWayMessage(t *testing.T) {
	received := make(chan Message, 1)
	srv, err := Listen("127.0.0.1:0", func(msg Message) (Message, bool) {
		received <- msg
		return Message{}, false
	})
	require.NoError(t, err)
	defer srv.Close()
	go srv.Serve()

	conn := Dial(srv.Addr().String(), 2*time.Second)
	msg, err := NewMessage(KindAddTransaction, "did:key:z1", testAddr(9001), nil)
	require.NoError(t, err)
	require.NoError(t, conn.Send(msg))

	select {
	case got := <-received:
		assert.Equal(t, KindAddTransaction, got.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the one-way message in time")
	}
}

func TestServerTwoWayRequest(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", func(msg Message) (Message, bool) {
		reply, _ := NewMessage(KindPing, "did:key:zreply", testAddr(9002), nil)
		return reply, true
	})
	require.NoError(t, err)
	defer srv.Close()
	go srv.Serve()

	conn := Dial(srv.Addr().String(), 2*time.Second)
	req, err := NewMessage(KindQuorumReady, "did:key:zreq", testAddr(9003), nil)
	require.NoError(t, err)

	reply, err := conn.Request(req)
	require.NoError(t, err)
	assert.Equal(t, KindPing, reply.Kind)
}
