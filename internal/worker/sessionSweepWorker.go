package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SessionSweeper is the part of the session service the worker drives.
type SessionSweeper interface {
	ExpireSessions(ctx context.Context) (int, error)
	ReapStalePending(ctx context.Context) (int, error)
}

type SessionSweepWorker struct {
	sweeper  SessionSweeper
	interval time.Duration
}

func NewSessionSweepWorker(sweeper SessionSweeper, interval time.Duration) *SessionSweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionSweepWorker{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (w *SessionSweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.WithField("interval", w.interval.String()).Info("Session sweep worker started")

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Session sweep worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SessionSweepWorker) sweep(ctx context.Context) {
	expired, err := w.sweeper.ExpireSessions(ctx)
	if err != nil {
		logrus.Errorf("Failed to expire overdue sessions: %v", err)
	} else if expired > 0 {
		logrus.Infof("Expired %d overdue parking sessions", expired)
	}

	// Shutting down between passes.
	if ctx.Err() != nil {
		return
	}

	cancelled, err := w.sweeper.ReapStalePending(ctx)
	if err != nil {
		logrus.Errorf("Failed to cancel stale pending sessions: %v", err)
		return
	}
	if cancelled > 0 {
		logrus.Infof("Cancelled %d unpaid pending sessions", cancelled)
	}
}

