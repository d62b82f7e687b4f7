package storage

import (
	"context"
	"time"

	"raffle/internal/oracle"
	"raffle/internal/raffle"
)

type Storage interface {
	// raffle records and the ledger, inside one unit of work
	Atomically(ctx context.Context, fn func(tx raffle.Tx) error) error

	// ledger outside of raffle operations
	Deposit(account string, amount uint64) error
	Balance(account string) (uint64, error)
	GetTransfers(account string) ([]*Transfer, error)

	// oracle commitments
	PutCommitment(commitment *oracle.Commitment) error
	GetCommitment(ref string) (*oracle.Commitment, error)
	DueCommitments(now time.Time) ([]*oracle.Commitment, error)

	Close() error
}

var (
	_ Storage      = (*SqliteStorage)(nil)
	_ raffle.Store = (*SqliteStorage)(nil)
	_ oracle.Book  = (*SqliteStorage)(nil)
)
