package raffle

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"raffle/internal/ledger"
)

// MemoryStore keeps records and balances in process memory. A failed unit of
// work is rolled back by restoring the snapshot taken when it started.
type MemoryStore struct {
	mu       sync.Mutex
	raffles  map[string]*Raffle
	consumed map[string]string
	ledger   *ledger.Memory
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		raffles:  make(map[string]*Raffle),
		consumed: make(map[string]string),
		ledger:   ledger.NewMemory(),
	}
}

// Deposit funds an account outside of any raffle operation.
func (s *MemoryStore) Deposit(account string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Deposit(account, amount)
}

func (s *MemoryStore) Balance(account string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Balance(account)
}

func (s *MemoryStore) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balances := s.ledger.Snapshot()
	raffles := make(map[string]*Raffle, len(s.raffles))
	for id, r := range s.raffles {
		raffles[id] = r
	}
	consumed := make(map[string]string, len(s.consumed))
	for ref, owner := range s.consumed {
		consumed[ref] = owner
	}

	if err := fn(&memoryTx{store: s}); err != nil {
		s.ledger.Restore(balances)
		s.raffles = raffles
		s.consumed = consumed
		return err
	}
	return nil
}

type memoryTx struct {
	store *MemoryStore
}

func (tx *memoryTx) Transfer(from, to string, amount uint64) error {
	return tx.store.ledger.Transfer(from, to, amount)
}

func (tx *memoryTx) Balance(account string) (uint64, error) {
	return tx.store.ledger.Balance(account)
}

func (tx *memoryTx) Load(id string) (*Raffle, error) {
	r, ok := tx.store.raffles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (tx *memoryTx) List() ([]*Raffle, error) {
	raffles := make([]*Raffle, 0, len(tx.store.raffles))
	for _, r := range tx.store.raffles {
		raffles = append(raffles, r.Clone())
	}
	sort.Slice(raffles, func(i, j int) bool {
		return raffles[i].ID < raffles[j].ID
	})
	return raffles, nil
}

func (tx *memoryTx) ConsumeRandomness(ref, raffleID string, round uint32) error {
	if owner, ok := tx.store.consumed[ref]; ok {
		return fmt.Errorf("%w: %s used by %s", ErrRandomnessConsumed, ref, owner)
	}
	tx.store.consumed[ref] = fmt.Sprintf("%s round %d", raffleID, round)
	return nil
}

// Save stores a copy, so the previous value stays intact for rollback.
func (tx *memoryTx) Save(r *Raffle) error {
	tx.store.raffles[r.ID] = r.Clone()
	return nil
}

func (tx *memoryTx) Delete(id string) error {
	if _, ok := tx.store.raffles[id]; !ok {
		return ErrNotFound
	}
	delete(tx.store.raffles, id)
	return nil
}
