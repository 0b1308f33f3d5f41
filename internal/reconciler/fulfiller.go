package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/tonefinance/sectorvault/internal/audit"
	"github.com/tonefinance/sectorvault/internal/contracts"
	"github.com/tonefinance/sectorvault/internal/domain"
)

// Target names one vault to reconcile.
type Target struct {
	Name    string
	Address common.Address
}

// Fulfiller serves the requests of one vault.
type Fulfiller struct {
	target    Target
	client    Client
	vault     *contracts.Vault
	tx        *Transactor
	approvals *Approvals
	recorder  audit.Recorder
}

// NewFulfiller creates a Fulfiller for target. tx and approvals are shared by every vault.
func NewFulfiller(target Target, client Client, tx *Transactor, approvals *Approvals, recorder audit.Recorder) *Fulfiller {
	if recorder == nil {
		recorder = audit.Noop{}
	}
	return &Fulfiller{
		target:    target,
		client:    client,
		vault:     contracts.NewVault(target.Address, client),
		tx:        tx,
		approvals: approvals,
		recorder:  recorder,
	}
}

// vaultView is the vault configuration an attempt works against.
type vaultView struct {
	basket        domain.Basket
	quote         common.Address
	quoteDecimals uint8
	oracle        *contracts.Oracle
}

func (f *Fulfiller) view(ctx context.Context) (vaultView, error) {
	basket, err := f.vault.Basket(ctx)
	if err != nil {
		return vaultView{}, fmt.Errorf("reading basket: %w", err)
	}
	quote, err := f.vault.QuoteToken(ctx)
	if err != nil {
		return vaultView{}, fmt.Errorf("reading quote token: %w", err)
	}
	quoteDec, err := contracts.NewERC20(quote, f.client).Decimals(ctx)
	if err != nil {
		return vaultView{}, fmt.Errorf("reading quote decimals: %w", err)
	}
	oracleAddr, err := f.vault.Oracle(ctx)
	if err != nil {
		return vaultView{}, fmt.Errorf("reading oracle: %w", err)
	}
	return vaultView{
		basket:        basket,
		quote:         quote,
		quoteDecimals: quoteDec,
		oracle:        contracts.NewOracle(oracleAddr, f.client),
	}, nil
}

func (v vaultView) quotes(ctx context.Context, assets []common.Address) ([]domain.PriceQuote, error) {
	quotes := make([]domain.PriceQuote, len(assets))
	for i, asset := range assets {
		q, err := v.oracle.Quote(ctx, asset)
		if err != nil {
			return nil, fmt.Errorf("pricing %s: %w", asset.Hex(), err)
		}
		quotes[i] = q
	}
	return quotes, nil
}

// FulfillDeposit buys the basket for deposit id. An absent or empty record is skipped
// silently; it was fulfilled or cancelled already.
func (f *Fulfiller) FulfillDeposit(ctx context.Context, id *big.Int) error {
	rec, ok, err := f.vault.PendingDeposit(ctx, id)
	if err != nil {
		return fmt.Errorf("reading deposit %s: %w", id, err)
	}
	if !ok || domain.IsZero(rec.QuoteAmount) {
		slog.Debug("Fulfiller: deposit not pending", "vault", f.target.Name, "deposit_id", id)
		return nil
	}

	attempt := audit.NewAttempt(f.target.Name, f.target.Address, domain.RequestDeposit, id)
	slog.Info("Fulfiller: fulfilling deposit",
		"vault", f.target.Name, "deposit_id", id, "user", rec.User.Hex(), "quote_amount", rec.QuoteAmount)

	view, err := f.view(ctx)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	quotes, err := view.quotes(ctx, view.basket.Assets)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	amounts, err := DepositAmounts(rec.QuoteAmount, view.basket, quotes, view.quoteDecimals)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	attempt.Amounts = amounts
	if lo.EveryBy(amounts, domain.IsZero) {
		slog.Warn("Fulfiller: deposit too small to buy any basket unit, leaving it open",
			"vault", f.target.Name, "deposit_id", id, "quote_amount", rec.QuoteAmount)
		return f.finish(ctx, &attempt, audit.OutcomeSkipped, nil)
	}

	if err := f.checkInventory(ctx, view.basket.Assets, amounts); err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	if err := f.approvals.EnsureAll(ctx, view.basket.Assets, f.target.Address); err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}

	data, err := contracts.PackFulfillDeposit(id, amounts)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	return f.submit(ctx, &attempt, data, func(ctx context.Context) (bool, error) {
		_, open, err := f.vault.PendingDeposit(ctx, id)
		return open, err
	})
}

// FulfillWithdrawal pays out withdrawal id in quote and takes the pro-rata basket slice.
// A user who no longer holds the requested shares is left open for cancellation.
func (f *Fulfiller) FulfillWithdrawal(ctx context.Context, id *big.Int) error {
	rec, ok, err := f.vault.PendingWithdrawal(ctx, id)
	if err != nil {
		return fmt.Errorf("reading withdrawal %s: %w", id, err)
	}
	if !ok || domain.IsZero(rec.SharesAmount) {
		slog.Debug("Fulfiller: withdrawal not pending", "vault", f.target.Name, "withdrawal_id", id)
		return nil
	}

	attempt := audit.NewAttempt(f.target.Name, f.target.Address, domain.RequestWithdrawal, id)
	slog.Info("Fulfiller: fulfilling withdrawal",
		"vault", f.target.Name, "withdrawal_id", id, "user", rec.User.Hex(), "shares", rec.SharesAmount)

	held, err := f.vault.BalanceOf(ctx, rec.User)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, fmt.Errorf("reading user shares: %w", err))
	}
	if held.Cmp(rec.SharesAmount) < 0 {
		slog.Warn("Fulfiller: user no longer holds requested shares, leaving withdrawal open",
			"vault", f.target.Name, "withdrawal_id", id, "held", held, "requested", rec.SharesAmount)
		return f.finish(ctx, &attempt, audit.OutcomeSkipped, nil)
	}

	view, err := f.view(ctx)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	supply, err := f.vault.TotalSupply(ctx)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, fmt.Errorf("reading supply: %w", err))
	}
	balances := make([]*big.Int, view.basket.Len())
	for i, asset := range view.basket.Assets {
		bal, err := contracts.NewERC20(asset, f.client).BalanceOf(ctx, f.target.Address)
		if err != nil {
			return f.finish(ctx, &attempt, audit.OutcomeFailed, fmt.Errorf("reading vault balance of %s: %w", asset.Hex(), err))
		}
		balances[i] = bal
	}
	amounts, err := WithdrawalAmounts(balances, rec.SharesAmount, supply)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	attempt.Amounts = amounts

	owed, err := f.vault.CalculateWithdrawalValue(ctx, rec.SharesAmount)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, fmt.Errorf("reading withdrawal value: %w", err))
	}
	if err := f.checkInventory(ctx, []common.Address{view.quote}, []*big.Int{owed}); err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	if err := f.approvals.Ensure(ctx, view.quote, f.target.Address); err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}

	data, err := contracts.PackFulfillWithdrawal(id, amounts)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	return f.submit(ctx, &attempt, data, func(ctx context.Context) (bool, error) {
		_, open, err := f.vault.PendingWithdrawal(ctx, id)
		return open, err
	})
}

// FulfillRebalance supplies the pending target basket sized to the current NAV. It does
// nothing when no rebalance is pending. The vault refuses while requests are open.
func (f *Fulfiller) FulfillRebalance(ctx context.Context) error {
	req, ok, err := f.vault.PendingRebalance(ctx)
	if err != nil {
		return fmt.Errorf("reading pending rebalance: %w", err)
	}
	if !ok {
		return nil
	}

	attempt := audit.NewAttempt(f.target.Name, f.target.Address, domain.RequestRebalance, nil)
	slog.Info("Fulfiller: fulfilling rebalance", "vault", f.target.Name, "assets", len(req.NewBasket.Assets))

	view, err := f.view(ctx)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	nav, err := f.vault.TotalValue(ctx)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, fmt.Errorf("reading total value: %w", err))
	}
	quotes, err := view.quotes(ctx, req.NewBasket.Assets)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	amounts, err := DepositAmounts(nav, req.NewBasket, quotes, view.quoteDecimals)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	attempt.Amounts = amounts

	if err := f.approvals.EnsureAll(ctx, req.NewBasket.Assets, f.target.Address); err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	data, err := contracts.PackFulfillRebalance(amounts)
	if err != nil {
		return f.finish(ctx, &attempt, audit.OutcomeFailed, err)
	}
	return f.submit(ctx, &attempt, data, func(ctx context.Context) (bool, error) {
		_, open, err := f.vault.PendingRebalance(ctx)
		return open, err
	})
}

// checkInventory verifies the fulfiller holds amounts[i] of tokens[i].
func (f *Fulfiller) checkInventory(ctx context.Context, tokens []common.Address, amounts []*big.Int) error {
	for i, token := range tokens {
		bal, err := contracts.NewERC20(token, f.client).BalanceOf(ctx, f.tx.From())
		if err != nil {
			return fmt.Errorf("reading fulfiller balance of %s: %w", token.Hex(), err)
		}
		if bal.Cmp(amounts[i]) < 0 {
			return fmt.Errorf("%s: have %s, need %s: %w", token.Hex(), bal, amounts[i], ErrInsufficientInventory)
		}
	}
	return nil
}

// submit dry-runs the call, sends it and waits for the receipt. A reverted transaction
// whose request is no longer open lost a race with a cancellation or another fulfiller
// and counts as done.
func (f *Fulfiller) submit(ctx context.Context, attempt *audit.Attempt, data []byte, stillOpen func(context.Context) (bool, error)) error {
	to := f.target.Address
	if _, err := f.client.CallContract(ctx, ethereum.CallMsg{From: f.tx.From(), To: &to, Data: data}, nil); err != nil {
		return f.finish(ctx, attempt, audit.OutcomeFailed, fmt.Errorf("%w: %w", ErrRejected, err))
	}

	hash, err := f.tx.Send(ctx, to, data)
	if err != nil {
		return f.finish(ctx, attempt, audit.OutcomeFailed, err)
	}
	attempt.TxHash = hash

	receipt, err := f.tx.Wait(ctx, hash)
	switch {
	case errors.Is(err, ErrReverted):
		open, readErr := stillOpen(ctx)
		if readErr == nil && !open {
			slog.Info("Fulfiller: request closed before our transaction landed",
				"vault", f.target.Name, "kind", attempt.Kind, "request_id", attempt.RequestID, "tx", hash.Hex())
			return f.finish(ctx, attempt, audit.OutcomeSuperseded, nil)
		}
		return f.finish(ctx, attempt, audit.OutcomeReverted, err)
	case err != nil:
		return f.finish(ctx, attempt, audit.OutcomeFailed, err)
	}

	slog.Info("Fulfiller: request fulfilled",
		"vault", f.target.Name, "kind", attempt.Kind, "request_id", attempt.RequestID,
		"tx", hash.Hex(), "block", receipt.BlockNumber.Uint64())
	return f.finish(ctx, attempt, audit.OutcomeFulfilled, nil)
}

// finish records the attempt and returns err unchanged.
func (f *Fulfiller) finish(ctx context.Context, attempt *audit.Attempt, outcome audit.Outcome, err error) error {
	attempt.Finish(outcome, err)
	if recErr := f.recorder.RecordAttempt(ctx, *attempt); recErr != nil {
		slog.Warn("Fulfiller: failed to record attempt", "attempt", attempt.ID, "error", recErr)
	}
	return err
}
