// Package audit keeps an append-only trail of what the reconciler observed and attempted.
// The trail is write-only: nothing in the reconciler reads it back to make decisions.
package audit

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/tonefinance/sectorvault/internal/domain"
)

// Outcome is the result of one fulfillment attempt.
type Outcome string

const (
	OutcomeFulfilled Outcome = "fulfilled"
	// OutcomeSkipped means the request was left open without sending a transaction.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeSuperseded means the transaction reverted because the request was closed
	// by someone else in the meantime.
	OutcomeSuperseded Outcome = "superseded"
	OutcomeReverted   Outcome = "reverted"
	OutcomeFailed     Outcome = "failed"
)

// Observation is a request event seen on chain.
type Observation struct {
	Vault        string
	VaultAddress common.Address
	Kind         domain.RequestKind
	RequestID    *big.Int
	User         common.Address
	Amount       *big.Int
	BlockNumber  uint64
	TxHash       common.Hash
	ObservedAt   time.Time
}

// Attempt is one try at fulfilling a request.
type Attempt struct {
	ID           uuid.UUID
	Vault        string
	VaultAddress common.Address
	Kind         domain.RequestKind
	RequestID    *big.Int
	Amounts      []*big.Int
	TxHash       common.Hash
	Outcome      Outcome
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// NewAttempt starts an attempt record with a fresh id.
func NewAttempt(vault string, address common.Address, kind domain.RequestKind, requestID *big.Int) Attempt {
	return Attempt{
		ID:           uuid.New(),
		Vault:        vault,
		VaultAddress: address,
		Kind:         kind,
		RequestID:    requestID,
		StartedAt:    time.Now().UTC(),
	}
}

// Finish stamps the outcome and completion time.
func (a *Attempt) Finish(outcome Outcome, err error) {
	a.Outcome = outcome
	a.FinishedAt = time.Now().UTC()
	if err != nil {
		a.Error = err.Error()
	}
}

// Recorder persists observations and attempts.
type Recorder interface {
	RecordObservation(ctx context.Context, o Observation) error
	RecordAttempt(ctx context.Context, a Attempt) error
	Close() error
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordObservation(context.Context, Observation) error { return nil }
func (Noop) RecordAttempt(context.Context, Attempt) error         { return nil }
func (Noop) Close() error                                         { return nil }

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// joinAmounts renders amounts as a comma-separated list of base-unit integers.
func joinAmounts(amounts []*big.Int) string {
	return strings.Join(lo.Map(amounts, func(a *big.Int, _ int) string { return bigString(a) }), ",")
}

func txHash(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}
