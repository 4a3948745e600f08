package claimd

import (
	"context"
	"log/slog"
	"time"

	"airdrop/native/claims"
)

type expirySweeper interface {
	SweepExpired(ctx context.Context) ([]claims.Entry, error)
}

// ExpiryWatcher periodically returns stale reservations to the available pool.
type ExpiryWatcher struct {
	issuer   expirySweeper
	interval time.Duration
	logger   *slog.Logger
}

// NewExpiryWatcher constructs a watcher. A non-positive interval defaults to one minute.
func NewExpiryWatcher(issuer expirySweeper, interval time.Duration, logger *slog.Logger) *ExpiryWatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiryWatcher{issuer: issuer, interval: interval, logger: logger.With(slog.String("component", "sweeper"))}
}

// Run sweeps on every tick until the context is cancelled.
func (w *ExpiryWatcher) Run(ctx context.Context) {
	if w.issuer == nil {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWatcher) sweep(ctx context.Context) {
	released, err := w.issuer.SweepExpired(ctx)
	if err != nil {
		w.logger.Error("expiry sweep failed", slog.String("reason", claims.Outcome(err)), slog.Any("error", err))
		return
	}
	if len(released) > 0 {
		w.logger.Info("expiry sweep released reservations", slog.Int("count", len(released)))
	}
}
