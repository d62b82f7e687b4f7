package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"raffle/internal/oracle"
)

type fakeRevealer struct {
	mu     sync.Mutex
	calls  int
	errs   []error
	result []*oracle.Commitment
}

func (f *fakeRevealer) RevealDue(time.Time) ([]*oracle.Commitment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.result, nil
}

func (f *fakeRevealer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestTracker(ctx context.Context, revealer Revealer) *Tracker {
	t := NewTracker(ctx, revealer, 10*time.Millisecond)
	t.delay = time.Millisecond
	return t
}

func TestRunRetriesWhileBusy(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	revealer := &fakeRevealer{
		errs:   []error{busy, busy},
		result: []*oracle.Commitment{{Ref: "0b6a8f0e-5f55-4a8b-9a4c-2f1d8f3e7c11"}},
	}

	revealed, err := newTestTracker(context.Background(), revealer).Run()
	require.NoError(t, err)
	require.Len(t, revealed, 1)
	require.Equal(t, 3, revealer.Calls())
}

func TestRunDoesNotRetryOtherErrors(t *testing.T) {
	failure := errors.New("disk on fire")
	revealer := &fakeRevealer{errs: []error{failure}}

	_, err := newTestTracker(context.Background(), revealer).Run()
	require.ErrorIs(t, err, failure)
	require.Equal(t, 1, revealer.Calls())
}

func TestRunGivesUpAfterLimit(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrLocked}
	errs := make([]error, BusyRetryLimit+5)
	for i := range errs {
		errs[i] = busy
	}
	revealer := &fakeRevealer{errs: errs}

	_, err := newTestTracker(context.Background(), revealer).Run()
	require.Error(t, err)
	require.Equal(t, BusyRetryLimit, revealer.Calls())
}

func TestLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	revealer := &fakeRevealer{}

	done := make(chan struct{})
	go func() {
		newTestTracker(ctx, revealer).Loop()
		close(done)
	}()

	require.Eventually(t, func() bool { return revealer.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

func TestLoopRevealsThroughOracle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := oracle.New(oracle.NewMemoryBook())
	commitment, err := o.Commit(now, now)
	require.NoError(t, err)

	tr := newTestTracker(context.Background(), o)
	tr.now = func() time.Time { return now }

	revealed, err := tr.Run()
	require.NoError(t, err)
	require.Len(t, revealed, 1)

	_, err = o.Resolve(commitment.Ref, now)
	require.NoError(t, err)
}
