// Package raffle implements the escrow-and-raffle lifecycle: ticket sales into
// a pooled balance until a deadline, winner selection from committed external
// randomness, and the split payout that resets the round.
package raffle

import (
	"fmt"
	"math/bits"
	"time"
)

const MaxParticipants = 100

type Status uint8

const (
	Active Status = iota
	EndedWaitingForWinner
	WinnerSelected
	Completed
)

var statusNames = map[Status]string{
	Active:                "Active",
	EndedWaitingForWinner: "EndedWaitingForWinner",
	WinnerSelected:        "WinnerSelected",
	Completed:             "Completed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// DeriveStatus applies lazy expiry: an Active raffle whose end time has passed
// is observed as EndedWaitingForWinner.
func DeriveStatus(stored Status, endTime, now time.Time) Status {
	if stored == Active && now.After(endTime) {
		return EndedWaitingForWinner
	}
	return stored
}

// Split holds the payout percentages of a raffle, fixed at creation.
type Split struct {
	Winner   uint64
	Creator  uint64
	Operator uint64
}

var DefaultSplit = Split{Winner: 85, Creator: 5, Operator: 10}

func (s Split) Validate() error {
	total := s.Winner + s.Creator + s.Operator
	if s.Winner > 100 || s.Creator > 100 || s.Operator > 100 || total > 100 {
		return fmt.Errorf("%w: %d/%d/%d exceeds 100%%", ErrInvalidSplit, s.Winner, s.Creator, s.Operator)
	}
	return nil
}

// Payout is the result of a claim. Dust is the truncation remainder left in the pool.
type Payout struct {
	Winner   uint64
	Creator  uint64
	Operator uint64
	Dust     uint64
}

// Shares splits total with multiply-then-divide, truncating each share.
func (s Split) Shares(total uint64) (Payout, error) {
	winner, err := percentOf(total, s.Winner)
	if err != nil {
		return Payout{}, err
	}
	creator, err := percentOf(total, s.Creator)
	if err != nil {
		return Payout{}, err
	}
	operator, err := percentOf(total, s.Operator)
	if err != nil {
		return Payout{}, err
	}

	p := Payout{Winner: winner, Creator: creator, Operator: operator}
	paid := winner + creator + operator
	if paid > total {
		return Payout{}, fmt.Errorf("%w: shares %d exceed prize %d", ErrOverflow, paid, total)
	}
	p.Dust = total - paid
	return p, nil
}

func percentOf(total, pct uint64) (uint64, error) {
	product, err := checkedMul(total, pct)
	if err != nil {
		return 0, err
	}
	return product / 100, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d * %d", ErrOverflow, a, b)
	}
	return lo, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

type Raffle struct {
	ID       string
	Admin    string
	Creator  string
	Operator string

	EntryFee uint64
	EndTime  time.Time
	Split    Split

	Participants []string
	TotalTickets uint32

	// Winner is empty until selection.
	Winner     string
	TotalPrize uint64
	Status     Status

	RandomnessSource string
	Dust             uint64
	Round            uint32
}

func (r *Raffle) HasWinner() bool {
	return r.Winner != ""
}

func (r *Raffle) Clone() *Raffle {
	c := *r
	c.Participants = append([]string(nil), r.Participants...)
	return &c
}

func (r *Raffle) resetRound() {
	r.Participants = nil
	r.TotalTickets = 0
	r.Winner = ""
	r.TotalPrize = 0
}
