package worker

import (
	"context"
	"log/slog"
	"time"
)

// PriceUpdater fetches external prices and pushes them to their consumers.
type PriceUpdater interface {
	UpdatePrices(ctx context.Context) error
}

// PriceWorker periodically refreshes oracle prices.
type PriceWorker struct {
	updater  PriceUpdater
	interval time.Duration
}

// NewPriceWorker creates a new PriceWorker.
func NewPriceWorker(updater PriceUpdater, interval time.Duration) *PriceWorker {
	return &PriceWorker{
		updater:  updater,
		interval: interval,
	}
}

// Run starts the price worker loop. It blocks until the context is cancelled.
func (w *PriceWorker) Run(ctx context.Context) {
	slog.Info("PriceWorker: starting", "interval", w.interval)

	// Update immediately on startup
	if err := w.updater.UpdatePrices(ctx); err != nil {
		slog.Error("PriceWorker: initial update failed", "error", err)
	} else {
		slog.Info("PriceWorker: initial update completed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("PriceWorker: shutting down")
			return
		case <-ticker.C:
			if err := w.updater.UpdatePrices(ctx); err != nil {
				slog.Error("PriceWorker: update failed", "error", err)
			} else {
				slog.Info("PriceWorker: update completed")
			}
		}
	}
}
