package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tonefinance/sectorvault/internal/chain"
	"github.com/tonefinance/sectorvault/internal/domain"
)

// RequestDeposit escrows quoteAmount of the quote token from user and opens a deposit
// request. The vault must hold an allowance from user.
func (l *Ledger) RequestDeposit(user common.Address, quoteAmount *big.Int) (uint64, error) {
	var id uint64
	err := l.mutate(func() error {
		if domain.IsZero(quoteAmount) {
			return ErrZeroAmount
		}
		if quoteAmount.Sign() < 0 {
			return ErrInvalidAmount
		}
		if l.rebalance != nil {
			return ErrRebalancePending
		}
		if err := l.quote.TransferFrom(l.address, user, l.address, quoteAmount); err != nil {
			return fmt.Errorf("escrow quote: %w", err)
		}

		id = l.nextDepositID
		chain.Assign(l.state, &l.nextDepositID, id+1)
		rec := domain.PendingDeposit{
			ID:          new(big.Int).SetUint64(id),
			User:        user,
			QuoteAmount: new(big.Int).Set(quoteAmount),
			Timestamp:   l.now(),
		}
		chain.Put(l.state, l.deposits, id, rec)
		l.emit(DepositRequested{User: user, DepositID: id, QuoteAmount: rec.QuoteAmount, Timestamp: rec.Timestamp})
		return nil
	})
	return id, err
}

// FulfillDeposit completes deposit id: it pulls assetAmounts of the basket from the
// fulfiller, releases the escrowed quote to the fulfiller and mints shares to the
// depositor. The supplied basket must be worth the escrowed quote within tolerance.
func (l *Ledger) FulfillDeposit(caller common.Address, id uint64, assetAmounts []*big.Int) error {
	return l.mutate(func() error {
		if err := l.onlyFulfiller(caller); err != nil {
			return err
		}
		rec, ok := l.deposits[id]
		if !ok {
			return fmt.Errorf("deposit %d: %w", id, ErrNotFound)
		}
		if err := checkAmounts(assetAmounts, l.basket.Len()); err != nil {
			return err
		}

		navBefore, err := l.TotalValue()
		if err != nil {
			return err
		}
		supplied, err := l.basketValue(l.basket.Assets, assetAmounts)
		if err != nil {
			return err
		}
		if supplied.Sign() == 0 || !domain.WithinTolerance(supplied, rec.QuoteAmount, l.basket.Len()) {
			return fmt.Errorf("deposit %d: supplied %s, expected %s: %w", id, supplied, rec.QuoteAmount, ErrValueMismatch)
		}

		supply := l.shares.TotalSupply()
		if supply.Sign() > 0 && navBefore.Sign() == 0 {
			return fmt.Errorf("deposit %d: supply %s: %w", id, supply, ErrWorthlessShares)
		}
		minted := mintAmount(rec.QuoteAmount, supply, navBefore)
		if minted.Sign() == 0 {
			return ErrZeroShares
		}

		for i, asset := range l.basket.Assets {
			tok, err := l.token(asset)
			if err != nil {
				return err
			}
			if err := tok.TransferFrom(l.address, caller, l.address, assetAmounts[i]); err != nil {
				return fmt.Errorf("pull %s: %w", asset.Hex(), err)
			}
		}
		if err := l.quote.Transfer(l.address, caller, rec.QuoteAmount); err != nil {
			return fmt.Errorf("release escrow: %w", err)
		}
		if err := l.shares.Mint(rec.User, minted); err != nil {
			return fmt.Errorf("mint shares: %w", err)
		}

		chain.Remove(l.state, l.deposits, id)
		l.emit(DepositFulfilled{
			User:         rec.User,
			DepositID:    id,
			SharesMinted: minted,
			AssetAmounts: copyAmounts(assetAmounts),
		})
		return nil
	})
}

// CancelDeposit refunds the escrowed quote of deposit id and closes it.
func (l *Ledger) CancelDeposit(caller common.Address, id uint64) error {
	return l.mutate(func() error {
		rec, ok := l.deposits[id]
		if !ok {
			return fmt.Errorf("deposit %d: %w", id, ErrNotFound)
		}
		if caller != rec.User && caller != l.owner {
			return ErrNotRequester
		}
		if err := l.quote.Transfer(l.address, rec.User, rec.QuoteAmount); err != nil {
			return fmt.Errorf("refund: %w", err)
		}
		chain.Remove(l.state, l.deposits, id)
		l.emit(DepositCancelled{User: rec.User, DepositID: id, QuoteAmount: rec.QuoteAmount})
		return nil
	})
}

func copyAmounts(in []*big.Int) []*big.Int {
	out := make([]*big.Int, len(in))
	for i, a := range in {
		out[i] = new(big.Int).Set(a)
	}
	return out
}
