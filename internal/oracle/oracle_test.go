package oracle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestOracle() (*Oracle, *MemoryBook) {
	book := NewMemoryBook()
	return New(book, WithEntropy(bytes.NewReader(bytes.Repeat([]byte{7}, 4*SeedSize)))), book
}

func TestCommitHidesSeedUntilReveal(t *testing.T) {
	o, _ := newTestOracle()

	commitment, err := o.Commit(epoch, epoch.Add(time.Minute))
	require.NoError(t, err)
	require.Nil(t, commitment.Seed)
	require.False(t, commitment.Revealed())

	seed := bytes.Repeat([]byte{7}, SeedSize)
	digest := sha256.Sum256(seed)
	require.Equal(t, digest[:], commitment.Digest)

	_, err = o.Resolve(commitment.Ref, epoch.Add(2*time.Minute))
	require.ErrorIs(t, err, ErrUnresolved)
}

func TestRevealRespectsRevealTime(t *testing.T) {
	o, _ := newTestOracle()

	commitment, err := o.Commit(epoch, epoch.Add(time.Minute))
	require.NoError(t, err)

	_, err = o.Reveal(commitment.Ref, epoch.Add(30*time.Second))
	require.ErrorIs(t, err, ErrNotDue)

	revealed, err := o.Reveal(commitment.Ref, epoch.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, revealed.Revealed())
	require.NotNil(t, revealed.Seed)

	draw, err := o.Resolve(commitment.Ref, epoch.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, draw.Value, sha256.Size)
	require.Equal(t, epoch, draw.CommittedAt)
	require.Equal(t, epoch.Add(time.Minute), draw.RevealedAt)
	require.Equal(t, commitment.Ref, draw.Ref)

	again, err := o.Resolve(commitment.Ref, epoch.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, draw.Value, again.Value)
}

func TestRevealTwiceKeepsFirstRevealTime(t *testing.T) {
	o, _ := newTestOracle()

	commitment, err := o.Commit(epoch, epoch)
	require.NoError(t, err)

	first, err := o.Reveal(commitment.Ref, epoch.Add(time.Second))
	require.NoError(t, err)
	second, err := o.Reveal(commitment.Ref, epoch.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, *first.RevealedAt, *second.RevealedAt)
}

func TestRevealDue(t *testing.T) {
	o, _ := newTestOracle()

	early, err := o.Commit(epoch, epoch.Add(time.Minute))
	require.NoError(t, err)
	late, err := o.Commit(epoch, epoch.Add(time.Hour))
	require.NoError(t, err)

	revealed, err := o.RevealDue(epoch.Add(2 * time.Minute))
	require.NoError(t, err)
	require.Len(t, revealed, 1)
	require.Equal(t, early.Ref, revealed[0].Ref)

	_, err = o.Resolve(late.Ref, epoch.Add(2*time.Minute))
	require.ErrorIs(t, err, ErrUnresolved)

	revealed, err = o.RevealDue(epoch.Add(2 * time.Minute))
	require.NoError(t, err)
	require.Empty(t, revealed)
}

func TestResolveInvalidCommitment(t *testing.T) {
	o, book := newTestOracle()

	for name, ref := range map[string]string{
		"not a uuid": "randomness-account",
		"unknown":    "0b6a8f0e-5f55-4a8b-9a4c-2f1d8f3e7c11",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := o.Resolve(ref, epoch)
			require.ErrorIs(t, err, ErrInvalidCommitment)
		})
	}

	t.Run("tampered seed", func(t *testing.T) {
		commitment, err := o.Commit(epoch, epoch)
		require.NoError(t, err)
		_, err = o.Reveal(commitment.Ref, epoch)
		require.NoError(t, err)

		stored, err := book.GetCommitment(commitment.Ref)
		require.NoError(t, err)
		stored.Seed[0] ^= 0xff
		require.NoError(t, book.PutCommitment(stored))

		_, err = o.Resolve(commitment.Ref, epoch)
		require.ErrorIs(t, err, ErrInvalidCommitment)
	})
}

func TestCommitEntropyFailure(t *testing.T) {
	o := New(NewMemoryBook(), WithEntropy(bytes.NewReader(nil)))
	_, err := o.Commit(epoch, epoch)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrInvalidCommitment))
}

func TestDistinctCommitmentsResolveDifferently(t *testing.T) {
	o, _ := newTestOracle()

	a, err := o.Commit(epoch, epoch)
	require.NoError(t, err)
	b, err := o.Commit(epoch, epoch)
	require.NoError(t, err)
	_, err = o.RevealDue(epoch)
	require.NoError(t, err)

	drawA, err := o.Resolve(a.Ref, epoch)
	require.NoError(t, err)
	drawB, err := o.Resolve(b.Ref, epoch)
	require.NoError(t, err)
	require.NotEqual(t, drawA.Value, drawB.Value)
}
