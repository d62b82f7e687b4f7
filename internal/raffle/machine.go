package raffle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"raffle/internal/ledger"
	"raffle/internal/logger"
	"raffle/internal/oracle"
)

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithOperator sets the operator recorded on raffles created without one.
func WithOperator(operator string) Option {
	return func(m *Machine) {
		m.operator = operator
	}
}

// WithSplit sets the split recorded on raffles created without one.
func WithSplit(split Split) Option {
	return func(m *Machine) {
		m.split = split
	}
}

// Machine drives raffle records through their lifecycle. Every operation is a
// single unit of work on the store.
type Machine struct {
	store      Store
	randomness Randomness
	now        func() time.Time
	operator   string
	split      Split
}

func NewMachine(store Store, randomness Randomness, options ...Option) *Machine {
	m := &Machine{
		store:      store,
		randomness: randomness,
		now:        time.Now,
		split:      DefaultSplit,
	}
	for _, option := range options {
		option(m)
	}
	return m
}

type CreateParams struct {
	ID       string
	Admin    string
	Creator  string
	EntryFee uint64
	EndTime  time.Time

	// Operator and Split fall back to the machine defaults when unset.
	Operator string
	Split    *Split
}

func (m *Machine) Create(ctx context.Context, params CreateParams) (*Raffle, error) {
	now := m.now()

	operator := params.Operator
	if operator == "" {
		operator = m.operator
	}
	split := m.split
	if params.Split != nil {
		split = *params.Split
	}

	switch {
	case params.ID == "":
		return nil, fmt.Errorf("create: %w", ErrInvalidRaffleID)
	case params.Admin == "" || params.Creator == "" || operator == "":
		return nil, fmt.Errorf("create %s: %w: admin, creator and operator are required", params.ID, ErrInvalidIdentity)
	case params.EntryFee == 0:
		return nil, fmt.Errorf("create %s: %w", params.ID, ErrInvalidEntryFee)
	case !params.EndTime.After(now):
		return nil, fmt.Errorf("create %s: %w", params.ID, ErrInvalidEndTime)
	}
	if err := split.Validate(); err != nil {
		return nil, fmt.Errorf("create %s: %w", params.ID, err)
	}

	r := &Raffle{
		ID:       params.ID,
		Admin:    params.Admin,
		Creator:  params.Creator,
		Operator: operator,
		EntryFee: params.EntryFee,
		EndTime:  params.EndTime,
		Split:    split,
		Status:   Active,
	}

	err := m.store.Atomically(ctx, func(tx Tx) error {
		_, err := tx.Load(params.ID)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		return tx.Save(r)
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", params.ID, err)
	}

	logger.Info("raffle initialized",
		zap.String("raffle", r.ID),
		zap.Uint64("entry fee", r.EntryFee),
		zap.Time("end time", r.EndTime),
		zap.Stringer("status", r.Status),
	)
	return r.Clone(), nil
}

func (m *Machine) SellTicket(ctx context.Context, id, buyer string) (*Raffle, error) {
	now := m.now()

	var sold *Raffle
	err := m.store.Atomically(ctx, func(tx Tx) error {
		r, err := load(tx, id)
		if err != nil {
			return err
		}

		if buyer == "" {
			return ErrInvalidIdentity
		}
		if buyer == r.Creator {
			return ErrCreatorCannotParticipate
		}

		switch DeriveStatus(r.Status, r.EndTime, now) {
		case Active:
		case EndedWaitingForWinner:
			return ErrRaffleEnded
		default:
			return fmt.Errorf("%w: status %s", ErrInvalidState, r.Status)
		}

		if r.HasWinner() {
			return ErrWinnerAlreadySelected
		}
		if r.TotalTickets >= MaxParticipants {
			return ErrMaxParticipants
		}

		if err := tx.Transfer(buyer, ledger.PoolAccount(r.ID), r.EntryFee); err != nil {
			return fmt.Errorf("entry fee: %w", err)
		}

		r.Participants = append(r.Participants, buyer)
		r.TotalTickets++
		if err := tx.Save(r); err != nil {
			return err
		}

		sold = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sell ticket %s: %w", id, err)
	}

	logger.Debug("ticket sold", zap.String("raffle", id), zap.String("buyer", buyer), zap.Uint32("total tickets", sold.TotalTickets))
	return sold.Clone(), nil
}

func (m *Machine) SelectWinner(ctx context.Context, id, randomnessRef string) (*Raffle, error) {
	now := m.now()

	// The oracle is read before the unit of work opens; its result is only
	// consulted once every record precondition has passed.
	draw, drawErr := m.randomness.Resolve(randomnessRef, now)

	var selected *Raffle
	err := m.store.Atomically(ctx, func(tx Tx) error {
		r, err := load(tx, id)
		if err != nil {
			return err
		}

		if r.HasWinner() {
			return ErrWinnerAlreadySelected
		}

		status := DeriveStatus(r.Status, r.EndTime, now)
		switch status {
		case EndedWaitingForWinner:
		case Active:
			return ErrRaffleNotEnded
		default:
			return fmt.Errorf("%w: status %s", ErrInvalidState, status)
		}

		if r.TotalTickets == 0 || len(r.Participants) == 0 {
			return ErrNoParticipants
		}

		prize, err := checkedMul(r.EntryFee, uint64(r.TotalTickets))
		if err != nil {
			return err
		}

		value, err := randomValue(draw, drawErr, r.EndTime)
		if err != nil {
			return err
		}
		if err := tx.ConsumeRandomness(draw.Ref, r.ID, r.Round); err != nil {
			return err
		}

		index, err := pickIndex(value, uint64(r.TotalTickets))
		if err != nil {
			return err
		}
		if index >= uint64(len(r.Participants)) {
			return fmt.Errorf("%w: %d of %d", ErrInvalidWinnerIndex, index, len(r.Participants))
		}

		r.TotalPrize = prize
		r.RandomnessSource = draw.Ref
		r.Winner = r.Participants[index]
		r.Status = WinnerSelected
		if err := tx.Save(r); err != nil {
			return err
		}

		selected = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select winner %s: %w", id, err)
	}

	logger.Info("winner selected",
		zap.String("raffle", id),
		zap.String("winner", selected.Winner),
		zap.Uint64("total prize", selected.TotalPrize),
		zap.Uint32("total tickets", selected.TotalTickets),
		zap.String("randomness", randomnessRef),
	)
	return selected.Clone(), nil
}

func randomValue(draw oracle.Draw, err error, endTime time.Time) ([]byte, error) {
	switch {
	case errors.Is(err, oracle.ErrUnresolved):
		return nil, fmt.Errorf("%w: %w", ErrRandomnessNotResolved, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrRandomnessUnavailable, err)
	case draw.Ref == "":
		return nil, fmt.Errorf("%w: draw has no commitment ref", ErrRandomnessUnavailable)
	case draw.CommittedAt.After(endTime):
		return nil, fmt.Errorf("%w: committed at %s, after the raffle ended", ErrRandomnessUnavailable, draw.CommittedAt.Format(time.RFC3339))
	case !draw.RevealedAt.After(endTime):
		// a value published while tickets were on sale could have steered purchases
		return nil, fmt.Errorf("%w: revealed at %s, before the raffle ended", ErrRandomnessUnavailable, draw.RevealedAt.Format(time.RFC3339))
	case len(draw.Value) == 0:
		return nil, fmt.Errorf("%w: empty value", ErrRandomnessUnavailable)
	}
	return draw.Value, nil
}

func (m *Machine) ClaimPrize(ctx context.Context, id, caller string) (Payout, error) {
	var payout Payout
	err := m.store.Atomically(ctx, func(tx Tx) error {
		r, err := load(tx, id)
		if err != nil {
			return err
		}

		if !r.HasWinner() {
			return ErrNoWinnerSelected
		}
		if caller != r.Winner {
			return ErrNotWinner
		}
		if r.Status != WinnerSelected {
			return fmt.Errorf("%w: status %s", ErrInvalidState, r.Status)
		}

		payout, err = r.Split.Shares(r.TotalPrize)
		if err != nil {
			return err
		}

		pool := ledger.PoolAccount(r.ID)
		legs := []struct {
			to     string
			amount uint64
		}{
			{r.Creator, payout.Creator},
			{r.Operator, payout.Operator},
			{r.Winner, payout.Winner},
		}
		for _, leg := range legs {
			if leg.amount == 0 {
				continue
			}
			if err := tx.Transfer(pool, leg.to, leg.amount); err != nil {
				return fmt.Errorf("pay %s: %w", leg.to, err)
			}
		}

		if r.Dust, err = checkedAdd(r.Dust, payout.Dust); err != nil {
			return err
		}

		r.resetRound()
		r.Round++
		r.Status = Completed
		return tx.Save(r)
	})
	if err != nil {
		return Payout{}, fmt.Errorf("claim prize %s: %w", id, err)
	}

	logger.Info("prize claimed",
		zap.String("raffle", id),
		zap.String("winner", caller),
		zap.Uint64("winner share", payout.Winner),
		zap.Uint64("creator share", payout.Creator),
		zap.Uint64("operator share", payout.Operator),
		zap.Uint64("dust", payout.Dust),
	)
	return payout, nil
}

// Rearm reopens a completed raffle for a new round ending at endTime.
func (m *Machine) Rearm(ctx context.Context, id, caller string, endTime time.Time) (*Raffle, error) {
	now := m.now()

	var rearmed *Raffle
	err := m.store.Atomically(ctx, func(tx Tx) error {
		r, err := load(tx, id)
		if err != nil {
			return err
		}

		if caller != r.Admin {
			return ErrUnauthorized
		}
		if r.Status != Completed {
			return fmt.Errorf("%w: status %s", ErrInvalidState, r.Status)
		}
		if !endTime.After(now) {
			return ErrInvalidEndTime
		}

		r.EndTime = endTime
		r.Status = Active
		r.RandomnessSource = ""
		if err := tx.Save(r); err != nil {
			return err
		}

		rearmed = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rearm %s: %w", id, err)
	}

	logger.Info("raffle rearmed", zap.String("raffle", id), zap.Time("end time", endTime), zap.Uint32("round", rearmed.Round))
	return rearmed.Clone(), nil
}

// Close sweeps the whole pool to the admin and removes the record. It returns the swept amount.
func (m *Machine) Close(ctx context.Context, id, caller string) (uint64, error) {
	var swept uint64
	err := m.store.Atomically(ctx, func(tx Tx) error {
		r, err := load(tx, id)
		if err != nil {
			return err
		}

		if caller != r.Admin {
			return ErrUnauthorized
		}

		pool := ledger.PoolAccount(r.ID)
		swept, err = tx.Balance(pool)
		if err != nil {
			return err
		}
		if swept > 0 {
			if err := tx.Transfer(pool, r.Admin, swept); err != nil {
				return fmt.Errorf("sweep pool: %w", err)
			}
		}

		return tx.Delete(r.ID)
	})
	if err != nil {
		return 0, fmt.Errorf("close %s: %w", id, err)
	}

	logger.Info("raffle closed", zap.String("raffle", id), zap.Uint64("swept", swept))
	return swept, nil
}

// Get returns the record with its derived status applied. Nothing is persisted.
func (m *Machine) Get(ctx context.Context, id string) (*Raffle, error) {
	now := m.now()

	var found *Raffle
	err := m.store.Atomically(ctx, func(tx Tx) error {
		r, err := load(tx, id)
		if err != nil {
			return err
		}
		r.Status = DeriveStatus(r.Status, r.EndTime, now)
		found = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return found.Clone(), nil
}

// List returns every raffle ordered by id, with derived status applied.
func (m *Machine) List(ctx context.Context) ([]*Raffle, error) {
	now := m.now()

	var raffles []*Raffle
	err := m.store.Atomically(ctx, func(tx Tx) error {
		var err error
		raffles, err = tx.List()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	for _, r := range raffles {
		r.Status = DeriveStatus(r.Status, r.EndTime, now)
	}
	return raffles, nil
}

// Ended returns the raffles whose sales are over and whose round still holds
// tickets: those waiting for a winner or for the winner's claim.
func (m *Machine) Ended(ctx context.Context) ([]*Raffle, error) {
	raffles, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	ended := make([]*Raffle, 0, len(raffles))
	for _, r := range raffles {
		switch r.Status {
		case EndedWaitingForWinner, WinnerSelected:
			if len(r.Participants) > 0 {
				ended = append(ended, r)
			}
		}
	}
	return ended, nil
}

func (m *Machine) Status(ctx context.Context, id string) (Status, error) {
	r, err := m.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return r.Status, nil
}

// PoolBalance reports the escrowed balance of a raffle.
func (m *Machine) PoolBalance(ctx context.Context, id string) (uint64, error) {
	var balance uint64
	err := m.store.Atomically(ctx, func(tx Tx) error {
		r, err := load(tx, id)
		if err != nil {
			return err
		}
		balance, err = tx.Balance(ledger.PoolAccount(r.ID))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("pool balance %s: %w", id, err)
	}
	return balance, nil
}

func load(tx Tx, id string) (*Raffle, error) {
	r, err := tx.Load(id)
	if err != nil {
		return nil, err
	}
	if r.ID != id {
		return nil, fmt.Errorf("%w: loaded %q for %q", ErrInvalidRaffleID, r.ID, id)
	}
	return r, nil
}
