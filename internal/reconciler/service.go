package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonefinance/sectorvault/internal/audit"
)

// Service runs one Listener per vault. All vaults share the fulfiller account, so they
// share its Transactor and approval cache.
type Service struct {
	listeners []*Listener
	opts      Options
	inflight  atomic.Int64
}

// NewService wires a listener and fulfiller for each target.
func NewService(client Client, tx *Transactor, recorder audit.Recorder, targets []Target, opts Options) *Service {
	if recorder == nil {
		recorder = audit.Noop{}
	}
	s := &Service{opts: opts}
	approvals := NewApprovals(client, tx)
	for _, target := range targets {
		f := NewFulfiller(target, client, tx, approvals, recorder)
		s.listeners = append(s.listeners, &Listener{
			target:    target,
			client:    client,
			vault:     f.vault,
			fulfiller: f,
			recorder:  recorder,
			opts:      opts,
			inflight:  &s.inflight,
		})
	}
	return s
}

// InFlight returns the number of fulfillments currently running.
func (s *Service) InFlight() int64 {
	return s.inflight.Load()
}

// Run blocks until ctx is cancelled or a listener fails to start. After cancellation no
// new fulfillment starts; running ones get ShutdownTimeout to finish.
func (s *Service) Run(ctx context.Context) error {
	slog.Info("Service: starting", "vaults", len(s.listeners))

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range s.listeners {
		g.Go(func() error { return l.Run(gctx) })
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	slog.Info("Service: shutdown requested, waiting for in-flight fulfillments",
		"in_flight", s.inflight.Load(), "timeout", s.opts.ShutdownTimeout)
	timer := time.NewTimer(s.opts.ShutdownTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		slog.Info("Service: stopped")
		return err
	case <-timer.C:
		return fmt.Errorf("%d fulfillments still running: %w", s.inflight.Load(), ErrShutdownTimeout)
	}
}
