package ledger

import (
	"testing"

	"github.com/empower1/quorumnode/internal/chaintypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferMovesBalance(t *testing.T) {
	a := chaintypes.Address{Host: "a", Port: 1}
	b := chaintypes.Address{Host: "b", Port: 2}
	l := New(map[chaintypes.Address]uint64{a: 10})

	require.NoError(t, l.Transfer(a, b, 5))
	assert.Equal(t, uint64(5), l.Balance(a))
	assert.Equal(t, uint64(5), l.Balance(b))
}

func TestTransferRejectsInsufficientBalance(t *testing.T) {
	a := chaintypes.Address{Host: "a", Port: 1}
	b := chaintypes.Address{Host: "b", Port: 2}
	l := New(map[chaintypes.Address]uint64{a: 1})

	err := l.Transfer(a, b, 5)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(1), l.Balance(a))
}

func TestApplyBlockHappyFinancialCommit(t *testing.T) {
	accA := chaintypes.Address{Host: "A", Port: 1}
	accB := chaintypes.Address{Host: "B", Port: 2}
	accC := chaintypes.Address{Host: "C", Port: 3}
	l := New(map[chaintypes.Address]uint64{accA: 10, accB: 0, accC: 0})

	tx1 := &chaintypes.FinancialTx{Uid: []byte("tx1"), From: accA, To: accB, Amount: 5}
	tx2 := &chaintypes.FinancialTx{Uid: []byte("tx2"), From: accB, To: accC, Amount: 3}

	b := chaintypes.Genesis(chaintypes.FlavorFinancial)
	b.TxMap[tx1.Digest()] = tx1
	b.TxMap[tx2.Digest()] = tx2

	require.NoError(t, l.ApplyBlock(b))
	assert.Equal(t, uint64(5), l.Balance(accA))
	assert.Equal(t, uint64(2), l.Balance(accB))
	assert.Equal(t, uint64(3), l.Balance(accC))
}

func TestCanAfford(t *testing.T) {
	a := chaintypes.Address{Host: "a", Port: 1}
	l := New(map[chaintypes.Address]uint64{a: 10})
	assert.True(t, l.CanAfford(a, 10))
	assert.False(t, l.CanAfford(a, 11))
}
