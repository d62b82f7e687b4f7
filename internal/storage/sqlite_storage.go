package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"raffle/internal/ledger"
	"raffle/internal/logger"
	"raffle/internal/oracle"
	"raffle/internal/raffle"
)

// SqliteStorage persists raffles, balances and oracle commitments in one
// sqlite database. Units of work are serialized and run in a transaction.
type SqliteStorage struct {
	mu sync.Mutex
	db *gorm.DB
}

func NewSqliteStorage(path string) (*SqliteStorage, error) {

	logger.Debug("initializing database...", zap.String("path", path))
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	err = db.AutoMigrate(
		&RaffleRecord{},
		&Ticket{},
		&Account{},
		&TransferEntry{},
		&CommitmentRecord{},
		&ConsumedRandomness{},
	)

	if err != nil {
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}

	logger.Debug("initializing database... done")
	return &SqliteStorage{
		db: db,
	}, nil
}

func (s *SqliteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SqliteStorage) Atomically(ctx context.Context, fn func(tx raffle.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqliteTx{db: tx})
	})
}

func (s *SqliteStorage) Deposit(account string, amount uint64) error {
	logger.Debug("depositing...", zap.String("account", account), zap.Uint64("amount", amount))

	if account == "" {
		return ledger.ErrInvalidAccount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		t := &sqliteTx{db: tx}

		balance, err := t.Balance(account)
		if err != nil {
			return err
		}
		next, err := ledger.Credit(balance, amount)
		if err != nil {
			return err
		}
		if err := t.setBalance(account, next); err != nil {
			return err
		}
		return t.journal("", account, amount)
	})
	if err != nil {
		return err
	}

	logger.Debug("depositing... done")
	return nil
}

func (s *SqliteStorage) Balance(account string) (uint64, error) {
	return (&sqliteTx{db: s.db}).Balance(account)
}

// Transfer is a journaled ledger movement. Deposits have an empty From.
type Transfer struct {
	ID     string
	From   string
	To     string
	Amount uint64
	At     time.Time
}

func (s *SqliteStorage) GetTransfers(account string) ([]*Transfer, error) {

	var entries []*TransferEntry
	err := s.db.
		Where("source = ? or destination = ?", account, account).
		Order("created_at asc").
		Find(&entries).Error

	if err != nil {
		return nil, err
	}

	transfers := make([]*Transfer, 0, len(entries))
	for _, entry := range entries {
		transfers = append(transfers, &Transfer{
			ID:     entry.ID,
			From:   entry.Source,
			To:     entry.Destination,
			Amount: fromColumn(entry.Amount),
			At:     fromUnixNano(entry.CreatedAt),
		})
	}
	return transfers, nil
}

func (s *SqliteStorage) PutCommitment(commitment *oracle.Commitment) error {
	logger.Debug("updating commitment...", zap.String("ref", commitment.Ref))

	record := &CommitmentRecord{
		Ref:         commitment.Ref,
		Digest:      commitment.Digest,
		Seed:        commitment.Seed,
		CommittedAt: commitment.CommittedAt.UnixNano(),
		RevealAt:    commitment.RevealAt.UnixNano(),
	}
	if commitment.RevealedAt != nil {
		revealedAt := commitment.RevealedAt.UnixNano()
		record.RevealedAt = &revealedAt
	}

	if err := s.db.Save(record).Error; err != nil {
		return err
	}

	logger.Debug("updating commitment... done")
	return nil
}

func (s *SqliteStorage) GetCommitment(ref string) (*oracle.Commitment, error) {

	var record CommitmentRecord
	err := s.db.Where("ref = ?", ref).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oracle.ErrCommitmentNotFound
	}
	if err != nil {
		return nil, err
	}

	return record.commitment(), nil
}

func (s *SqliteStorage) DueCommitments(now time.Time) ([]*oracle.Commitment, error) {
	logger.Debug("getting due commitments...")

	var records []*CommitmentRecord
	err := s.db.
		Where("revealed_at is null and reveal_at <= ?", now.UnixNano()).
		Order("reveal_at asc").
		Find(&records).Error

	if err != nil {
		return nil, err
	}

	commitments := make([]*oracle.Commitment, 0, len(records))
	for _, record := range records {
		commitments = append(commitments, record.commitment())
	}

	logger.Debug("getting due commitments... done", zap.Int("due", len(commitments)))
	return commitments, nil
}

func (r *CommitmentRecord) commitment() *oracle.Commitment {
	commitment := &oracle.Commitment{
		Ref:         r.Ref,
		Digest:      r.Digest,
		Seed:        r.Seed,
		CommittedAt: fromUnixNano(r.CommittedAt),
		RevealAt:    fromUnixNano(r.RevealAt),
	}
	if r.RevealedAt != nil {
		revealedAt := fromUnixNano(*r.RevealedAt)
		commitment.RevealedAt = &revealedAt
	}
	return commitment
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// sqliteTx is the raffle.Tx view of an open transaction.
type sqliteTx struct {
	db *gorm.DB
}

func (t *sqliteTx) Balance(account string) (uint64, error) {

	var accounts []*Account
	err := t.db.Where("address = ?", account).Limit(1).Find(&accounts).Error
	if err != nil {
		return 0, err
	}

	if len(accounts) == 0 {
		return 0, nil
	}
	return fromColumn(accounts[0].Balance), nil
}

func (t *sqliteTx) Transfer(from, to string, amount uint64) error {
	if from == "" || to == "" {
		return ledger.ErrInvalidAccount
	}

	fromBalance, err := t.Balance(from)
	if err != nil {
		return err
	}
	debited, err := ledger.Debit(fromBalance, amount)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}

	toBalance, err := t.Balance(to)
	if err != nil {
		return err
	}
	credited, err := ledger.Credit(toBalance, amount)
	if err != nil {
		return err
	}

	if err := t.setBalance(from, debited); err != nil {
		return err
	}
	if err := t.setBalance(to, credited); err != nil {
		return err
	}
	return t.journal(from, to, amount)
}

func (t *sqliteTx) setBalance(account string, balance uint64) error {
	return t.db.Save(&Account{Address: account, Balance: toColumn(balance)}).Error
}

func (t *sqliteTx) journal(from, to string, amount uint64) error {
	return t.db.Create(&TransferEntry{
		ID:          uuid.NewString(),
		Source:      from,
		Destination: to,
		Amount:      toColumn(amount),
		CreatedAt:   time.Now().UnixNano(),
	}).Error
}

func (t *sqliteTx) Load(id string) (*raffle.Raffle, error) {

	var record RaffleRecord
	err := t.db.Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, raffle.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return t.hydrate(&record)
}

func (t *sqliteTx) List() ([]*raffle.Raffle, error) {

	var records []*RaffleRecord
	if err := t.db.Order("id asc").Find(&records).Error; err != nil {
		return nil, err
	}

	raffles := make([]*raffle.Raffle, 0, len(records))
	for _, record := range records {
		r, err := t.hydrate(record)
		if err != nil {
			return nil, err
		}
		raffles = append(raffles, r)
	}
	return raffles, nil
}

// hydrate builds the domain record from its row and its tickets.
func (t *sqliteTx) hydrate(record *RaffleRecord) (*raffle.Raffle, error) {

	var tickets []*Ticket
	err := t.db.Where("raffle_id = ?", record.ID).Order("position asc").Find(&tickets).Error
	if err != nil {
		return nil, err
	}

	r := &raffle.Raffle{
		ID:       record.ID,
		Admin:    record.Admin,
		Creator:  record.Creator,
		Operator: record.Operator,
		EntryFee: fromColumn(record.EntryFee),
		EndTime:  fromUnixNano(record.EndTime),
		Split: raffle.Split{
			Winner:   fromColumn(record.WinnerPct),
			Creator:  fromColumn(record.CreatorPct),
			Operator: fromColumn(record.OperatorPct),
		},
		TotalTickets:     record.TotalTickets,
		Winner:           record.Winner,
		TotalPrize:       fromColumn(record.TotalPrize),
		Status:           raffle.Status(record.Status),
		RandomnessSource: record.RandomnessSource,
		Dust:             fromColumn(record.Dust),
		Round:            record.Round,
	}
	for _, ticket := range tickets {
		r.Participants = append(r.Participants, ticket.Buyer)
	}

	if !r.Status.Valid() {
		return nil, fmt.Errorf("load %s: stored status %d is unknown", record.ID, record.Status)
	}
	return r, nil
}

func (t *sqliteTx) Save(r *raffle.Raffle) error {
	logger.Debug("updating raffle...", zap.String("raffle", r.ID))

	record := &RaffleRecord{
		ID:               r.ID,
		Admin:            r.Admin,
		Creator:          r.Creator,
		Operator:         r.Operator,
		EntryFee:         toColumn(r.EntryFee),
		EndTime:          r.EndTime.UnixNano(),
		WinnerPct:        toColumn(r.Split.Winner),
		CreatorPct:       toColumn(r.Split.Creator),
		OperatorPct:      toColumn(r.Split.Operator),
		TotalTickets:     r.TotalTickets,
		Winner:           r.Winner,
		TotalPrize:       toColumn(r.TotalPrize),
		Status:           uint8(r.Status),
		RandomnessSource: r.RandomnessSource,
		Dust:             toColumn(r.Dust),
		Round:            r.Round,
	}
	if err := t.db.Save(record).Error; err != nil {
		return err
	}

	if err := t.db.Where("raffle_id = ?", r.ID).Delete(&Ticket{}).Error; err != nil {
		return err
	}

	if len(r.Participants) > 0 {
		tickets := make([]*Ticket, len(r.Participants))
		for i, buyer := range r.Participants {
			tickets[i] = &Ticket{RaffleID: r.ID, Position: i, Buyer: buyer}
		}
		if err := t.db.CreateInBatches(tickets, 100).Error; err != nil {
			return err
		}
	}

	logger.Debug("updating raffle... done")
	return nil
}

func (t *sqliteTx) Delete(id string) error {
	logger.Debug("deleting raffle...", zap.String("raffle", id))

	if err := t.db.Where("raffle_id = ?", id).Delete(&Ticket{}).Error; err != nil {
		return err
	}

	result := t.db.Where("id = ?", id).Delete(&RaffleRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return raffle.ErrNotFound
	}

	logger.Debug("deleting raffle... done")
	return nil
}

func (t *sqliteTx) ConsumeRandomness(ref, raffleID string, round uint32) error {

	var used []*ConsumedRandomness
	if err := t.db.Where("ref = ?", ref).Limit(1).Find(&used).Error; err != nil {
		return err
	}
	if len(used) > 0 {
		return fmt.Errorf("%w: %s used by %s round %d", raffle.ErrRandomnessConsumed, ref, used[0].RaffleID, used[0].Round)
	}

	return t.db.Create(&ConsumedRandomness{
		Ref:        ref,
		RaffleID:   raffleID,
		Round:      round,
		ConsumedAt: time.Now().UnixNano(),
	}).Error
}
