// Package tracker runs the oracle side of the raffle: it periodically reveals
// every commitment whose reveal time has passed so Select Winner can resolve it.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"raffle/internal/logger"
	"raffle/internal/oracle"
)

type Revealer interface {
	RevealDue(now time.Time) ([]*oracle.Commitment, error)
}

type Tracker struct {
	ctx      context.Context
	revealer Revealer
	interval time.Duration
	now      func() time.Time
	delay    time.Duration
}

type Func[T any] func() (T, error)

// busyRetry repeats fn while the database reports it is busy or locked by
// another connection.
func busyRetry[T any](
	ctx context.Context,
	delay time.Duration,
	fn Func[T],
) (T, error) {
	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil || !isBusy(err) || attempt >= BusyRetryLimit {
			return result, err
		}

		logger.Debug("tracker: database busy, retrying", zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return result, err
		case <-time.After(delay):
		}
	}
}

func isBusy(err error) bool {
	var e sqlite3.Error
	if errors.As(err, &e) {
		return e.Code == sqlite3.ErrBusy || e.Code == sqlite3.ErrLocked
	}
	return false
}

func NewTracker(ctx context.Context, revealer Revealer, interval time.Duration) *Tracker {
	logger.Debug("tracker initialization", zap.Duration("interval", interval))

	return &Tracker{
		ctx:      ctx,
		revealer: revealer,
		interval: interval,
		now:      time.Now,
		delay:    BusyRetryDelay,
	}
}

// Run performs one reveal pass and returns the commitments it revealed.
func (t *Tracker) Run() ([]*oracle.Commitment, error) {
	logger.Debug("tracker: revealing due commitments...")

	revealed, err := busyRetry(t.ctx, t.delay, func() ([]*oracle.Commitment, error) {
		return t.revealer.RevealDue(t.now())
	})
	if err != nil {
		return revealed, err
	}

	for _, commitment := range revealed {
		logger.Info("tracker: commitment resolved", zap.String("ref", commitment.Ref))
	}

	logger.Debug("tracker: revealing due commitments... done", zap.Int("revealed", len(revealed)))
	return revealed, nil
}

// Loop runs a reveal pass every interval until the context is cancelled. A
// failed pass is logged and retried on the next tick.
func (t *Tracker) Loop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		if _, err := t.Run(); err != nil {
			logger.Error("tracker: reveal pass failed", zap.Error(err))
		}

		select {
		case <-t.ctx.Done():
			t.Finalize()
			return
		case <-ticker.C:
		}
	}
}

func (t *Tracker) Finalize() {
	logger.Info("tracker stopped")
}
