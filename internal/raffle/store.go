package raffle

import (
	"context"
	"time"

	"raffle/internal/ledger"
	"raffle/internal/oracle"
)

// Store runs fn as one indivisible unit of work: when fn returns an error no
// record change or ledger transfer made through tx is kept. Implementations
// serialize units of work touching the same raffle.
type Store interface {
	Atomically(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of records and balances inside a unit of work. Load returns
// ErrNotFound for unknown ids; Save inserts or replaces. List returns every
// record ordered by id.
//
// ConsumeRandomness binds a commitment ref to one raffle round. It fails with
// ErrRandomnessConsumed when the ref was already used by any raffle or round.
type Tx interface {
	ledger.Ledger

	Load(id string) (*Raffle, error)
	List() ([]*Raffle, error)
	Save(raffle *Raffle) error
	Delete(id string) error

	ConsumeRandomness(ref, raffleID string, round uint32) error
}

type Randomness interface {
	Resolve(ref string, now time.Time) (oracle.Draw, error)
}
