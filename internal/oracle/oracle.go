// Package oracle is a commit-reveal randomness beacon. A commitment publishes
// the digest of a secret seed up front; the seed is revealed only once the
// commitment's reveal time has passed, and the resolved value is derived from
// the seed so it cannot be chosen after the commitment is known.
package oracle

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"raffle/internal/logger"
)

const SeedSize = 32

var (
	ErrInvalidCommitment  = errors.New("oracle: invalid commitment")
	ErrUnresolved         = errors.New("oracle: commitment not resolved")
	ErrNotDue             = errors.New("oracle: commitment not due for reveal")
	ErrCommitmentNotFound = errors.New("oracle: commitment not found")
)

type Commitment struct {
	Ref         string
	Digest      []byte
	Seed        []byte
	CommittedAt time.Time
	RevealAt    time.Time
	RevealedAt  *time.Time
}

func (c *Commitment) Revealed() bool {
	return c.RevealedAt != nil
}

// public strips the seed from an unrevealed commitment.
func (c *Commitment) public() *Commitment {
	view := *c
	if !c.Revealed() {
		view.Seed = nil
	}
	return &view
}

// Draw is a resolved random value. CommittedAt and RevealedAt bound the
// window in which the value was hidden.
type Draw struct {
	Ref         string
	Value       []byte
	CommittedAt time.Time
	RevealedAt  time.Time
}

// Book persists commitments. GetCommitment returns ErrCommitmentNotFound for unknown refs.
type Book interface {
	PutCommitment(commitment *Commitment) error
	GetCommitment(ref string) (*Commitment, error)
	DueCommitments(now time.Time) ([]*Commitment, error)
}

type Option func(*Oracle)

// WithEntropy replaces crypto/rand as the seed source.
func WithEntropy(reader io.Reader) Option {
	return func(o *Oracle) {
		o.entropy = reader
	}
}

type Oracle struct {
	mu      sync.Mutex
	book    Book
	entropy io.Reader
}

func New(book Book, options ...Option) *Oracle {
	o := &Oracle{
		book:    book,
		entropy: rand.Reader,
	}
	for _, option := range options {
		option(o)
	}
	return o
}

// Commit registers a new pending draw that may be revealed from revealAt on.
func (o *Oracle) Commit(now, revealAt time.Time) (*Commitment, error) {
	if revealAt.Before(now) {
		revealAt = now
	}

	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(o.entropy, seed); err != nil {
		return nil, fmt.Errorf("oracle commit: read seed: %w", err)
	}
	digest := sha256.Sum256(seed)

	commitment := &Commitment{
		Ref:         uuid.NewString(),
		Digest:      digest[:],
		Seed:        seed,
		CommittedAt: now,
		RevealAt:    revealAt,
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.book.PutCommitment(commitment); err != nil {
		return nil, fmt.Errorf("oracle commit: %w", err)
	}

	logger.Info("oracle: commitment registered", zap.String("ref", commitment.Ref), zap.Time("reveal at", revealAt))
	return commitment.public(), nil
}

// Reveal publishes the seed of a due commitment. Revealing twice is a no-op.
func (o *Oracle) Reveal(ref string, now time.Time) (*Commitment, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return nil, fmt.Errorf("%w: %q is not a commitment ref", ErrInvalidCommitment, ref)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	commitment, err := o.book.GetCommitment(ref)
	if err != nil {
		return nil, err
	}

	if err := o.reveal(commitment, now); err != nil {
		return nil, err
	}
	return commitment.public(), nil
}

// RevealDue reveals every commitment whose reveal time has passed.
func (o *Oracle) RevealDue(now time.Time) ([]*Commitment, error) {
	logger.Debug("oracle: revealing due commitments...")

	o.mu.Lock()
	defer o.mu.Unlock()

	due, err := o.book.DueCommitments(now)
	if err != nil {
		return nil, fmt.Errorf("oracle reveal due: %w", err)
	}

	revealed := make([]*Commitment, 0, len(due))
	for _, commitment := range due {
		if err := o.reveal(commitment, now); err != nil {
			return revealed, err
		}
		revealed = append(revealed, commitment.public())
	}

	logger.Debug("oracle: revealing due commitments... done", zap.Int("revealed", len(revealed)))
	return revealed, nil
}

func (o *Oracle) reveal(commitment *Commitment, now time.Time) error {
	if commitment.Revealed() {
		return nil
	}
	if now.Before(commitment.RevealAt) {
		return fmt.Errorf("%w: %s reveals at %s", ErrNotDue, commitment.Ref, commitment.RevealAt.Format(time.RFC3339))
	}

	revealedAt := now
	commitment.RevealedAt = &revealedAt
	if err := o.book.PutCommitment(commitment); err != nil {
		commitment.RevealedAt = nil
		return fmt.Errorf("oracle reveal %s: %w", commitment.Ref, err)
	}

	logger.Info("oracle: commitment revealed", zap.String("ref", commitment.Ref))
	return nil
}

// Resolve returns the random value published for ref.
func (o *Oracle) Resolve(ref string, now time.Time) (Draw, error) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return Draw{}, fmt.Errorf("%w: %q is not a commitment ref", ErrInvalidCommitment, ref)
	}

	o.mu.Lock()
	commitment, err := o.book.GetCommitment(ref)
	o.mu.Unlock()
	if errors.Is(err, ErrCommitmentNotFound) {
		return Draw{}, fmt.Errorf("%w: %s", ErrInvalidCommitment, err)
	}
	if err != nil {
		return Draw{}, err
	}

	if !commitment.Revealed() || now.Before(*commitment.RevealedAt) {
		return Draw{}, fmt.Errorf("%w: %s", ErrUnresolved, ref)
	}

	digest := sha256.Sum256(commitment.Seed)
	if !bytes.Equal(digest[:], commitment.Digest) {
		return Draw{}, fmt.Errorf("%w: seed of %s does not match its digest", ErrInvalidCommitment, ref)
	}

	return Draw{
		Ref:         commitment.Ref,
		Value:       value(commitment.Seed, id),
		CommittedAt: commitment.CommittedAt,
		RevealedAt:  *commitment.RevealedAt,
	}, nil
}

func value(seed []byte, id uuid.UUID) []byte {
	h := sha256.New()
	h.Write(seed)
	h.Write(id[:])
	return h.Sum(nil)
}
