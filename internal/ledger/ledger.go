// Package ledger holds the financial-flavor account balances the
// consensus core updates on every committed block.
package ledger

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/empower1/quorumnode/internal/chaintypes"
)

var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// Ledger is a mutex-guarded map of account address to integer balance.
type Ledger struct {
	mu       sync.RWMutex
	balances map[chaintypes.Address]uint64
}

// New returns an empty ledger, optionally seeded with initial balances.
func New(initial map[chaintypes.Address]uint64) *Ledger {
	l := &Ledger{balances: make(map[chaintypes.Address]uint64, len(initial))}
	for addr, bal := range initial {
		l.balances[addr] = bal
	}
	return l
}

// Balance returns an account's current balance; unknown accounts have a
// zero balance.
func (l *Ledger) Balance(addr chaintypes.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr]
}

// CanAfford reports whether addr's current balance covers amount.
func (l *Ledger) CanAfford(addr chaintypes.Address, amount uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr] >= amount
}

// Transfer moves amount from 'from' to 'to'. It is the apply-step called
// once per financial transaction when a block commits; validation that
// the debit is affordable must already have happened during mempool
// acceptance or block construction re-validation.
func (l *Ledger) Transfer(from, to chaintypes.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return ErrInsufficientBalance
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// ApplyBlock applies every financial transaction in b as a single atomic
// batch: it nets each account's total debits and credits across the
// whole transaction set before touching any balance, so the result does
// not depend on transaction iteration order even when one transaction's
// credit funds another's debit within the same block. Non-financial
// transactions are skipped.
func (l *Ledger) ApplyBlock(b *chaintypes.Block) error {
	type delta struct {
		debit, credit uint64
	}
	deltas := make(map[chaintypes.Address]*delta)
	touch := func(addr chaintypes.Address) *delta {
		d, ok := deltas[addr]
		if !ok {
			d = &delta{}
			deltas[addr] = d
		}
		return d
	}

	digests := b.Digests()
	sort.Slice(digests, func(i, j int) bool {
		return bytes.Compare(digests[i][:], digests[j][:]) < 0
	})
	for _, d := range digests {
		tx := b.TxMap[d]
		ftx, ok := tx.(*chaintypes.FinancialTx)
		if !ok {
			continue
		}
		touch(ftx.From).debit += ftx.Amount
		touch(ftx.To).credit += ftx.Amount
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for addr, d := range deltas {
		if l.balances[addr]+d.credit < d.debit {
			return ErrInsufficientBalance
		}
	}
	for addr, d := range deltas {
		l.balances[addr] = l.balances[addr] + d.credit - d.debit
	}
	return nil
}
