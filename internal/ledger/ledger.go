// Package ledger models the host asset transfer capability: named accounts
// holding integer balances and atomic account-to-account transfers.
package ledger

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrOverflow          = errors.New("ledger: balance overflow")
	ErrInvalidAccount    = errors.New("ledger: invalid account")
)

type Ledger interface {
	Transfer(from, to string, amount uint64) error
	Balance(account string) (uint64, error)
}

// PoolAccount names the escrow account holding a raffle's pool.
func PoolAccount(raffleID string) string {
	return "raffle:" + raffleID
}

// Credit adds amount to balance, failing instead of wrapping.
func Credit(balance, amount uint64) (uint64, error) {
	sum, carry := bits.Add64(balance, amount, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Debit subtracts amount from balance, failing when the balance is short.
func Debit(balance, amount uint64) (uint64, error) {
	if balance < amount {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, balance, amount)
	}
	return balance - amount, nil
}

// Memory is an in-process ledger. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	balances map[string]uint64
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[string]uint64)}
}

func (m *Memory) Deposit(account string, amount uint64) error {
	if account == "" {
		return ErrInvalidAccount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := Credit(m.balances[account], amount)
	if err != nil {
		return err
	}
	m.balances[account] = next
	return nil
}

func (m *Memory) Transfer(from, to string, amount uint64) error {
	if from == "" || to == "" {
		return ErrInvalidAccount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if from == to {
		_, err := Debit(m.balances[from], amount)
		return err
	}

	debited, err := Debit(m.balances[from], amount)
	if err != nil {
		return err
	}
	credited, err := Credit(m.balances[to], amount)
	if err != nil {
		return err
	}

	m.balances[from] = debited
	m.balances[to] = credited
	return nil
}

func (m *Memory) Balance(account string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[account], nil
}

// Snapshot returns a copy of every balance.
func (m *Memory) Snapshot() map[string]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string]uint64, len(m.balances))
	for account, balance := range m.balances {
		snapshot[account] = balance
	}
	return snapshot
}

// Restore replaces every balance with the given snapshot.
func (m *Memory) Restore(snapshot map[string]uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances = make(map[string]uint64, len(snapshot))
	for account, balance := range snapshot {
		m.balances[account] = balance
	}
}
