package events

import (
	"context"
	"log/slog"
	"time"
)

type activationExpirer interface {
	ExpireLapsedActivations(ctx context.Context) (int, error)
}

// ExpiryWorker periodically frees seats held on licenses that lapsed past the
// grace period.
type ExpiryWorker struct {
	logger   *slog.Logger
	service  activationExpirer
	interval time.Duration
}

func NewExpiryWorker(logger *slog.Logger, service activationExpirer, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ExpiryWorker{logger: logger, service: service, interval: interval}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.sweep(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	released, err := w.service.ExpireLapsedActivations(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "activation expiry sweep failed",
			"module", "events.expiry_worker",
			"layer", "adapter",
			"operation", "expire_lapsed_activations",
			"outcome", "failure",
			"error", err,
		)
		return
	}
	if released > 0 {
		w.logger.InfoContext(ctx, "activation expiry sweep completed",
			"module", "events.expiry_worker",
			"layer", "adapter",
			"operation", "expire_lapsed_activations",
			"outcome", "success",
			"released", released,
		)
	}
}
