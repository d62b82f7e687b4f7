package oracle

import (
	"sort"
	"sync"
	"time"
)

// MemoryBook keeps commitments in process memory.
type MemoryBook struct {
	mu          sync.RWMutex
	commitments map[string]*Commitment
}

func NewMemoryBook() *MemoryBook {
	return &MemoryBook{commitments: make(map[string]*Commitment)}
}

func (b *MemoryBook) PutCommitment(commitment *Commitment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commitments[commitment.Ref] = clone(commitment)
	return nil
}

func (b *MemoryBook) GetCommitment(ref string) (*Commitment, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	commitment, ok := b.commitments[ref]
	if !ok {
		return nil, ErrCommitmentNotFound
	}
	return clone(commitment), nil
}

func (b *MemoryBook) DueCommitments(now time.Time) ([]*Commitment, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	due := make([]*Commitment, 0)
	for _, commitment := range b.commitments {
		if !commitment.Revealed() && !now.Before(commitment.RevealAt) {
			due = append(due, clone(commitment))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].RevealAt.Before(due[j].RevealAt)
	})
	return due, nil
}

func clone(commitment *Commitment) *Commitment {
	c := *commitment
	c.Digest = append([]byte(nil), commitment.Digest...)
	c.Seed = append([]byte(nil), commitment.Seed...)
	if commitment.RevealedAt != nil {
		revealedAt := *commitment.RevealedAt
		c.RevealedAt = &revealedAt
	}
	return &c
}
