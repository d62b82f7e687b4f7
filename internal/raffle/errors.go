package raffle

import (
	"errors"

	"raffle/internal/ledger"
)

var (
	ErrNotFound                 = errors.New("raffle not found")
	ErrAlreadyExists            = errors.New("raffle already exists")
	ErrInvalidRaffleID          = errors.New("invalid raffle id")
	ErrInvalidIdentity          = errors.New("invalid identity")
	ErrInvalidEntryFee          = errors.New("entry fee must be positive")
	ErrInvalidEndTime           = errors.New("end time must be in the future")
	ErrInvalidSplit             = errors.New("invalid payout split")
	ErrCreatorCannotParticipate = errors.New("raffle creator cannot participate in their own raffle")
	ErrInvalidState             = errors.New("invalid raffle state for this operation")
	ErrRaffleEnded              = errors.New("the raffle has already ended")
	ErrRaffleNotEnded           = errors.New("the raffle has not ended yet")
	ErrWinnerAlreadySelected    = errors.New("a winner has already been selected")
	ErrMaxParticipants          = errors.New("maximum participants reached")
	ErrNoParticipants           = errors.New("no participants in the raffle")
	ErrNoWinnerSelected         = errors.New("no winner selected")
	ErrNotWinner                = errors.New("caller is not the winner")
	ErrUnauthorized             = errors.New("caller is not the raffle admin")
	ErrOverflow                 = errors.New("arithmetic overflow")
	ErrRandomnessUnavailable    = errors.New("randomness data is unavailable")
	ErrRandomnessNotResolved    = errors.New("randomness not resolved")
	ErrRandomnessConsumed       = errors.New("randomness already used by a raffle round")
	ErrInvalidWinnerIndex       = errors.New("invalid winner index")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindResource
	KindDependency
	KindAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindResource:
		return "resource"
	case KindDependency:
		return "dependency"
	case KindAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrNotWinner, KindAuthorization},
	{ErrUnauthorized, KindAuthorization},
	{ErrCreatorCannotParticipate, KindAuthorization},
	{ErrOverflow, KindResource},
	{ledger.ErrOverflow, KindResource},
	{ledger.ErrInsufficientFunds, KindResource},
	{ErrRandomnessUnavailable, KindDependency},
	{ErrRandomnessNotResolved, KindDependency},
	{ErrRandomnessConsumed, KindValidation},
	{ErrNotFound, KindValidation},
	{ErrAlreadyExists, KindValidation},
	{ErrInvalidRaffleID, KindValidation},
	{ErrInvalidIdentity, KindValidation},
	{ErrInvalidEntryFee, KindValidation},
	{ErrInvalidEndTime, KindValidation},
	{ErrInvalidSplit, KindValidation},
	{ErrInvalidState, KindValidation},
	{ErrRaffleEnded, KindValidation},
	{ErrRaffleNotEnded, KindValidation},
	{ErrWinnerAlreadySelected, KindValidation},
	{ErrMaxParticipants, KindValidation},
	{ErrNoParticipants, KindValidation},
	{ErrNoWinnerSelected, KindValidation},
	{ErrInvalidWinnerIndex, KindValidation},
}

// KindOf classifies an operation error. Authorization takes precedence over
// the other kinds when an error wraps several sentinels.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}
