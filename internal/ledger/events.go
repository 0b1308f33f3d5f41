package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a record emitted by a successful ledger operation. Events of a reverted
// operation are discarded.
type Event interface {
	EventName() string
}

// EventSink receives events in emission order.
type EventSink func(Event)

type DepositRequested struct {
	User        common.Address
	DepositID   uint64
	QuoteAmount *big.Int
	Timestamp   time.Time
}

type DepositFulfilled struct {
	User         common.Address
	DepositID    uint64
	SharesMinted *big.Int
	AssetAmounts []*big.Int
}

type DepositCancelled struct {
	User        common.Address
	DepositID   uint64
	QuoteAmount *big.Int
}

type WithdrawalRequested struct {
	User         common.Address
	WithdrawalID uint64
	SharesAmount *big.Int
	Timestamp    time.Time
}

type WithdrawalFulfilled struct {
	User         common.Address
	WithdrawalID uint64
	SharesBurned *big.Int
	QuoteAmount  *big.Int
	AssetAmounts []*big.Int
}

type WithdrawalCancelled struct {
	User         common.Address
	WithdrawalID uint64
}

type RebalanceRequested struct {
	Assets  []common.Address
	Weights []*big.Int
}

type RebalanceFulfilled struct {
	Assets  []common.Address
	Weights []*big.Int
	Amounts []*big.Int
}

type RebalanceCancelled struct{}

type BasketUpdated struct {
	Assets  []common.Address
	Weights []*big.Int
}

type FulfillerUpdated struct {
	Fulfiller common.Address
}

type OracleUpdated struct {
	Oracle common.Address
}

func (DepositRequested) EventName() string    { return "DepositRequested" }
func (DepositFulfilled) EventName() string    { return "DepositFulfilled" }
func (DepositCancelled) EventName() string    { return "DepositCancelled" }
func (WithdrawalRequested) EventName() string { return "WithdrawalRequested" }
func (WithdrawalFulfilled) EventName() string { return "WithdrawalFulfilled" }
func (WithdrawalCancelled) EventName() string { return "WithdrawalCancelled" }
func (RebalanceRequested) EventName() string  { return "RebalanceRequested" }
func (RebalanceFulfilled) EventName() string  { return "RebalanceFulfilled" }
func (RebalanceCancelled) EventName() string  { return "RebalanceCancelled" }
func (BasketUpdated) EventName() string       { return "BasketUpdated" }
func (FulfillerUpdated) EventName() string    { return "FulfillerUpdated" }
func (OracleUpdated) EventName() string       { return "OracleUpdated" }

func (l *Ledger) emit(e Event) {
	l.pending = append(l.pending, e)
}
