package storage

// Amounts are uint64 in the domain but sqlite integers are signed 64-bit, so
// every amount column holds the two's complement bit pattern of the uint64.
// Amounts are never compared or summed in SQL.
func toColumn(amount uint64) int64 {
	return int64(amount)
}

func fromColumn(column int64) uint64 {
	return uint64(column)
}

type RaffleRecord struct {
	ID               string `gorm:"primaryKey"`
	Admin            string `gorm:"not null"`
	Creator          string `gorm:"not null"`
	Operator         string `gorm:"not null"`
	EntryFee         int64  `gorm:"not null"`
	EndTime          int64  `gorm:"not null"`
	WinnerPct        int64  `gorm:"not null"`
	CreatorPct       int64  `gorm:"not null"`
	OperatorPct      int64  `gorm:"not null"`
	TotalTickets     uint32
	Winner           string
	TotalPrize       int64
	Status           uint8
	RandomnessSource string
	Dust             int64
	Round            uint32
}

type Ticket struct {
	RaffleID string `gorm:"primaryKey"`
	Position int    `gorm:"primaryKey;autoIncrement:false"`
	Buyer    string `gorm:"not null"`
}

type Account struct {
	Address string `gorm:"primaryKey"`
	Balance int64
}

// TransferEntry journals every ledger movement. Deposits have an empty Source.
type TransferEntry struct {
	ID          string `gorm:"primaryKey"`
	Source      string `gorm:"index"`
	Destination string `gorm:"index"`
	Amount      int64  `gorm:"not null"`
	CreatedAt   int64  `gorm:"not null"`
}

type CommitmentRecord struct {
	Ref         string `gorm:"primaryKey"`
	Digest      []byte `gorm:"not null"`
	Seed        []byte `gorm:"not null"`
	CommittedAt int64  `gorm:"not null"`
	RevealAt    int64  `gorm:"index;not null"`
	RevealedAt  *int64
}

// ConsumedRandomness records the raffle round a commitment ref was used for.
type ConsumedRandomness struct {
	Ref        string `gorm:"primaryKey"`
	RaffleID   string `gorm:"not null"`
	Round      uint32 `gorm:"not null"`
	ConsumedAt int64  `gorm:"not null"`
}
