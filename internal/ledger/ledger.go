// Package ledger implements the sector vault accounting core: basket composition,
// pending deposit/withdrawal/rebalance bookkeeping, NAV computation and share mint/burn.
//
// Every mutating operation is atomic. A failed operation leaves no trace: token
// movements, records and emitted events are all rolled back through the chain journal.
// Operations must be serialized by the caller, as a chain serializes transactions.
package ledger

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tonefinance/sectorvault/internal/chain"
	"github.com/tonefinance/sectorvault/internal/domain"
)

// Config describes a vault at deployment.
type Config struct {
	Address    common.Address
	Owner      common.Address
	Fulfiller  common.Address
	QuoteToken common.Address
	Oracle     common.Address
	Assets     []common.Address
	Weights    []*big.Int
	Name       string
	Symbol     string
}

// Ledger is one sector vault. The vault is also the share token: shares live at the
// vault address and carry the quote token's decimals.
type Ledger struct {
	state    *chain.State
	registry *Registry

	address   common.Address
	owner     common.Address
	fulfiller common.Address
	quote     Token
	oracle    PriceOracle
	basket    domain.Basket
	shares    *chain.Token

	deposits         map[uint64]domain.PendingDeposit
	withdrawals      map[uint64]domain.PendingWithdrawal
	committed        map[common.Address]*big.Int
	nextDepositID    uint64
	nextWithdrawalID uint64
	rebalance        *domain.RebalanceRequest

	locked  bool
	pending []Event
	sink    EventSink
	now     func() time.Time
}

// New deploys a vault. The quote token, the oracle and every basket asset must be
// registered, and the oracle's price decimals must equal the quote token's decimals.
func New(state *chain.State, registry *Registry, cfg Config) (*Ledger, error) {
	if cfg.Address == (common.Address{}) || cfg.Owner == (common.Address{}) || cfg.Fulfiller == (common.Address{}) {
		return nil, fmt.Errorf("new vault: %w", ErrZeroAddress)
	}
	quote, ok := registry.Token(cfg.QuoteToken)
	if !ok {
		return nil, fmt.Errorf("quote token %s: %w", cfg.QuoteToken.Hex(), ErrUnknownAsset)
	}
	oracle, ok := registry.Oracle(cfg.Oracle)
	if !ok {
		return nil, fmt.Errorf("oracle %s: %w", cfg.Oracle.Hex(), ErrUnknownOracle)
	}
	if oracle.Decimals() != quote.Decimals() {
		return nil, fmt.Errorf("oracle %d, quote %d: %w", oracle.Decimals(), quote.Decimals(), ErrOracleDecimals)
	}

	l := &Ledger{
		state:       state,
		registry:    registry,
		address:     cfg.Address,
		owner:       cfg.Owner,
		fulfiller:   cfg.Fulfiller,
		quote:       quote,
		oracle:      oracle,
		shares:      chain.NewToken(state, cfg.Address, cfg.Name, cfg.Symbol, quote.Decimals()),
		deposits:    make(map[uint64]domain.PendingDeposit),
		withdrawals: make(map[uint64]domain.PendingWithdrawal),
		committed:   make(map[common.Address]*big.Int),
		now:         time.Now,
	}

	basket := domain.NewBasket(cfg.Assets, cfg.Weights)
	if err := l.validateBasket(basket); err != nil {
		return nil, err
	}
	l.basket = basket
	return l, nil
}

// SetEventSink installs the receiver of events emitted by successful operations.
func (l *Ledger) SetEventSink(sink EventSink) {
	l.sink = sink
}

// SetClock replaces the time source used for request timestamps.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// mutate runs fn as one atomic, non-reentrant operation. Events emitted by fn are
// delivered to the sink only if fn succeeds.
func (l *Ledger) mutate(fn func() error) error {
	if l.locked {
		return ErrReentrantCall
	}
	l.locked = true
	defer func() { l.locked = false }()

	l.pending = nil
	err := l.state.Atomic(fn)
	events := l.pending
	l.pending = nil
	if err != nil {
		return err
	}
	if l.sink != nil {
		for _, e := range events {
			l.sink(e)
		}
	}
	return nil
}

func (l *Ledger) onlyOwner(caller common.Address) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	return nil
}

func (l *Ledger) onlyFulfiller(caller common.Address) error {
	if caller != l.fulfiller {
		return ErrNotFulfiller
	}
	return nil
}

func (l *Ledger) validateBasket(b domain.Basket) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("basket: %w", err)
	}
	if b.Contains(l.quote.Address()) {
		return ErrQuoteInBasket
	}
	for _, asset := range b.Assets {
		if _, ok := l.registry.Token(asset); !ok {
			return fmt.Errorf("basket asset %s: %w", asset.Hex(), ErrUnknownAsset)
		}
	}
	return nil
}

func (l *Ledger) token(asset common.Address) (Token, error) {
	t, ok := l.registry.Token(asset)
	if !ok {
		return nil, fmt.Errorf("%s: %w", asset.Hex(), ErrUnknownAsset)
	}
	return t, nil
}

func checkAmounts(amounts []*big.Int, want int) error {
	if len(amounts) != want {
		return fmt.Errorf("%d amounts for %d assets: %w", len(amounts), want, ErrLengthMismatch)
	}
	for i, a := range amounts {
		if a == nil || a.Sign() < 0 {
			return fmt.Errorf("amount %d: %w", i, ErrInvalidAmount)
		}
	}
	return nil
}

// UpdateBasket replaces the basket without moving funds. Only allowed while no shares
// exist and no rebalance is pending.
func (l *Ledger) UpdateBasket(caller common.Address, assets []common.Address, weights []*big.Int) error {
	return l.mutate(func() error {
		if err := l.onlyOwner(caller); err != nil {
			return err
		}
		if l.rebalance != nil {
			return ErrRebalancePending
		}
		if l.shares.TotalSupply().Sign() != 0 {
			return ErrVaultNotEmpty
		}
		basket := domain.NewBasket(assets, weights)
		if err := l.validateBasket(basket); err != nil {
			return err
		}
		chain.Assign(l.state, &l.basket, basket)
		l.emit(BasketUpdated{Assets: basket.Assets, Weights: basket.Weights})
		return nil
	})
}

// SetFulfillerRole changes the account allowed to fulfill requests.
func (l *Ledger) SetFulfillerRole(caller, fulfiller common.Address) error {
	return l.mutate(func() error {
		if err := l.onlyOwner(caller); err != nil {
			return err
		}
		if fulfiller == (common.Address{}) {
			return fmt.Errorf("fulfiller: %w", ErrZeroAddress)
		}
		chain.Assign(l.state, &l.fulfiller, fulfiller)
		l.emit(FulfillerUpdated{Fulfiller: fulfiller})
		return nil
	})
}

// SetOracle switches the price feed. The new oracle must quote in the quote token's decimals.
func (l *Ledger) SetOracle(caller, oracle common.Address) error {
	return l.mutate(func() error {
		if err := l.onlyOwner(caller); err != nil {
			return err
		}
		if oracle == (common.Address{}) {
			return fmt.Errorf("oracle: %w", ErrZeroAddress)
		}
		o, ok := l.registry.Oracle(oracle)
		if !ok {
			return fmt.Errorf("oracle %s: %w", oracle.Hex(), ErrUnknownOracle)
		}
		if o.Decimals() != l.quote.Decimals() {
			return fmt.Errorf("oracle %d, quote %d: %w", o.Decimals(), l.quote.Decimals(), ErrOracleDecimals)
		}
		chain.Assign(l.state, &l.oracle, o)
		l.emit(OracleUpdated{Oracle: oracle})
		return nil
	})
}

func (l *Ledger) Address() common.Address    { return l.address }
func (l *Ledger) Owner() common.Address      { return l.owner }
func (l *Ledger) Fulfiller() common.Address  { return l.fulfiller }
func (l *Ledger) QuoteToken() common.Address { return l.quote.Address() }
func (l *Ledger) Oracle() common.Address     { return l.oracle.Address() }

// Basket returns a copy of the current basket.
func (l *Ledger) Basket() domain.Basket {
	return domain.NewBasket(l.basket.Assets, l.basket.Weights)
}

// NextDepositID returns the id the next deposit request will receive.
func (l *Ledger) NextDepositID() uint64 { return l.nextDepositID }

// NextWithdrawalID returns the id the next withdrawal request will receive.
func (l *Ledger) NextWithdrawalID() uint64 { return l.nextWithdrawalID }

// PendingDeposit returns the open deposit with the given id.
func (l *Ledger) PendingDeposit(id uint64) (domain.PendingDeposit, bool) {
	d, ok := l.deposits[id]
	return d, ok
}

// PendingWithdrawal returns the open withdrawal with the given id.
func (l *Ledger) PendingWithdrawal(id uint64) (domain.PendingWithdrawal, bool) {
	w, ok := l.withdrawals[id]
	return w, ok
}

// PendingRebalance returns the pending rebalance, if any.
func (l *Ledger) PendingRebalance() (domain.RebalanceRequest, bool) {
	if l.rebalance == nil {
		return domain.RebalanceRequest{}, false
	}
	return domain.RebalanceRequest{NewBasket: domain.NewBasket(l.rebalance.NewBasket.Assets, l.rebalance.NewBasket.Weights)}, true
}

// OpenRequests returns the number of open deposits and withdrawals.
func (l *Ledger) OpenRequests() int {
	return len(l.deposits) + len(l.withdrawals)
}
