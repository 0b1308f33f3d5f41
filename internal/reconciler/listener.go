package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tonefinance/sectorvault/internal/audit"
	"github.com/tonefinance/sectorvault/internal/contracts"
	"github.com/tonefinance/sectorvault/internal/domain"
)

// Options controls the reconciler loops.
type Options struct {
	PollInterval    time.Duration
	RescanInterval  time.Duration
	ShutdownTimeout time.Duration
}

// DefaultOptions returns the production loop timings.
func DefaultOptions() Options {
	return Options{
		PollInterval:    12 * time.Second,
		RescanInterval:  10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Listener discovers the requests of one vault and hands them to its Fulfiller in
// discovery order: ascending id during backlog scans, log order while polling.
type Listener struct {
	target    Target
	client    Client
	vault     *contracts.Vault
	fulfiller *Fulfiller
	recorder  audit.Recorder
	opts      Options
	inflight  *atomic.Int64

	lastBlock uint64
}

// Run scans the backlog, then polls for new request events until ctx is cancelled.
// Fulfillments already started when ctx is cancelled run to completion.
func (l *Listener) Run(ctx context.Context) error {
	slog.Info("Listener: starting", "vault", l.target.Name, "address", l.target.Address.Hex())

	head, err := l.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("vault %s: reading head block: %w", l.target.Name, err)
	}
	l.lastBlock = head
	l.scanBacklog(ctx)

	poll := time.NewTicker(l.opts.PollInterval)
	defer poll.Stop()

	var rescan <-chan time.Time
	if l.opts.RescanInterval > 0 {
		t := time.NewTicker(l.opts.RescanInterval)
		defer t.Stop()
		rescan = t.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Listener: shutting down", "vault", l.target.Name)
			return nil
		case <-poll.C:
			l.poll(ctx)
		case <-rescan:
			slog.Info("Listener: periodic backlog rescan", "vault", l.target.Name)
			l.scanBacklog(ctx)
		}
	}
}

// scanBacklog walks every deposit and withdrawal id ever issued, then the pending
// rebalance. Closed ids read as absent and are skipped by the fulfiller.
func (l *Listener) scanBacklog(ctx context.Context) {
	nextDeposit, err := l.vault.NextDepositID(ctx)
	if err != nil {
		slog.Error("Listener: reading next deposit id failed", "vault", l.target.Name, "error", err)
	} else {
		for i := uint64(0); i < nextDeposit.Uint64() && ctx.Err() == nil; i++ {
			id := new(big.Int).SetUint64(i)
			l.do(ctx, domain.RequestDeposit, id, func(ctx context.Context) error {
				return l.fulfiller.FulfillDeposit(ctx, id)
			})
		}
	}

	nextWithdrawal, err := l.vault.NextWithdrawalID(ctx)
	if err != nil {
		slog.Error("Listener: reading next withdrawal id failed", "vault", l.target.Name, "error", err)
	} else {
		for i := uint64(0); i < nextWithdrawal.Uint64() && ctx.Err() == nil; i++ {
			id := new(big.Int).SetUint64(i)
			l.do(ctx, domain.RequestWithdrawal, id, func(ctx context.Context) error {
				return l.fulfiller.FulfillWithdrawal(ctx, id)
			})
		}
	}

	l.do(ctx, domain.RequestRebalance, nil, l.fulfiller.FulfillRebalance)
}

// poll handles request events mined since the previous poll. The block cursor only
// advances when the log query succeeded.
func (l *Listener) poll(ctx context.Context) {
	head, err := l.client.BlockNumber(ctx)
	if err != nil {
		slog.Error("Listener: reading head block failed", "vault", l.target.Name, "error", err)
		return
	}
	if head <= l.lastBlock {
		return
	}

	q := contracts.EventQuery([]common.Address{l.target.Address}, l.lastBlock+1, head,
		contracts.EventDepositRequested, contracts.EventWithdrawalRequested, contracts.EventRebalanceRequested)
	logs, err := l.client.FilterLogs(ctx, q)
	if err != nil {
		slog.Error("Listener: filtering logs failed", "vault", l.target.Name, "from", l.lastBlock+1, "to", head, "error", err)
		return
	}
	if len(logs) > 0 {
		slog.Debug("Listener: new request events", "vault", l.target.Name, "count", len(logs), "from", l.lastBlock+1, "to", head)
	}
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		l.handle(ctx, lg)
	}
	l.lastBlock = head
}

func (l *Listener) handle(ctx context.Context, lg types.Log) {
	switch contracts.EventName(lg) {
	case contracts.EventDepositRequested:
		ev, err := contracts.ParseDepositRequested(lg)
		if err != nil {
			slog.Error("Listener: bad DepositRequested log", "vault", l.target.Name, "tx", lg.TxHash.Hex(), "error", err)
			return
		}
		l.observe(ctx, domain.RequestDeposit, ev.DepositId, ev.User, ev.QuoteAmount, lg)
		l.do(ctx, domain.RequestDeposit, ev.DepositId, func(ctx context.Context) error {
			return l.fulfiller.FulfillDeposit(ctx, ev.DepositId)
		})

	case contracts.EventWithdrawalRequested:
		ev, err := contracts.ParseWithdrawalRequested(lg)
		if err != nil {
			slog.Error("Listener: bad WithdrawalRequested log", "vault", l.target.Name, "tx", lg.TxHash.Hex(), "error", err)
			return
		}
		l.observe(ctx, domain.RequestWithdrawal, ev.WithdrawalId, ev.User, ev.SharesAmount, lg)
		l.do(ctx, domain.RequestWithdrawal, ev.WithdrawalId, func(ctx context.Context) error {
			return l.fulfiller.FulfillWithdrawal(ctx, ev.WithdrawalId)
		})

	case contracts.EventRebalanceRequested:
		l.observe(ctx, domain.RequestRebalance, nil, common.Address{}, nil, lg)
		// Open requests block the rebalance, so clear them first.
		l.scanBacklog(ctx)
	}
}

// do runs one fulfillment. It is skipped once ctx is cancelled; once started it runs
// on a context detached from cancellation so confirmation waits are not cut short.
func (l *Listener) do(ctx context.Context, kind domain.RequestKind, id *big.Int, fn func(context.Context) error) {
	if ctx.Err() != nil {
		return
	}
	l.inflight.Add(1)
	defer l.inflight.Add(-1)

	if err := fn(context.WithoutCancel(ctx)); err != nil {
		slog.Error("Listener: fulfillment failed", "vault", l.target.Name, "kind", kind, "request_id", id, "error", err)
	}
}

func (l *Listener) observe(ctx context.Context, kind domain.RequestKind, id *big.Int, user common.Address, amount *big.Int, lg types.Log) {
	o := audit.Observation{
		Vault:        l.target.Name,
		VaultAddress: l.target.Address,
		Kind:         kind,
		RequestID:    id,
		User:         user,
		Amount:       amount,
		BlockNumber:  lg.BlockNumber,
		TxHash:       lg.TxHash,
		ObservedAt:   time.Now().UTC(),
	}
	if err := l.recorder.RecordObservation(context.WithoutCancel(ctx), o); err != nil {
		slog.Warn("Listener: failed to record observation", "vault", l.target.Name, "kind", kind, "error", err)
	}
}
