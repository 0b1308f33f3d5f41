package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tonefinance/sectorvault/internal/chain"
	"github.com/tonefinance/sectorvault/internal/domain"
)

// RequestWithdrawal opens a request to redeem shares. Shares are not locked, but the
// request must fit in the user's balance net of shares already committed to the user's
// other open withdrawals.
func (l *Ledger) RequestWithdrawal(user common.Address, shares *big.Int) (uint64, error) {
	var id uint64
	err := l.mutate(func() error {
		if domain.IsZero(shares) {
			return ErrZeroAmount
		}
		if shares.Sign() < 0 {
			return ErrInvalidAmount
		}
		if l.rebalance != nil {
			return ErrRebalancePending
		}
		available := new(big.Int).Sub(l.shares.BalanceOf(user), l.CommittedShares(user))
		if available.Cmp(shares) < 0 {
			return fmt.Errorf("requested %s, available %s: %w", shares, available, ErrInsufficientShares)
		}

		id = l.nextWithdrawalID
		chain.Assign(l.state, &l.nextWithdrawalID, id+1)
		rec := domain.PendingWithdrawal{
			ID:           new(big.Int).SetUint64(id),
			User:         user,
			SharesAmount: new(big.Int).Set(shares),
			Timestamp:    l.now(),
		}
		chain.Put(l.state, l.withdrawals, id, rec)
		l.addCommitted(user, rec.SharesAmount)
		l.emit(WithdrawalRequested{User: user, WithdrawalID: id, SharesAmount: rec.SharesAmount, Timestamp: rec.Timestamp})
		return nil
	})
	return id, err
}

// FulfillWithdrawal completes withdrawal id: the fulfiller pays the withdrawal value in
// quote, which goes to the user, and receives assetAmounts of the basket in exchange.
// The user's shares are burned. The removed basket must be worth the quote paid
// within tolerance, and the user must still hold the requested shares.
func (l *Ledger) FulfillWithdrawal(caller common.Address, id uint64, assetAmounts []*big.Int) error {
	return l.mutate(func() error {
		if err := l.onlyFulfiller(caller); err != nil {
			return err
		}
		rec, ok := l.withdrawals[id]
		if !ok {
			return fmt.Errorf("withdrawal %d: %w", id, ErrNotFound)
		}
		if err := checkAmounts(assetAmounts, l.basket.Len()); err != nil {
			return err
		}
		if bal := l.shares.BalanceOf(rec.User); bal.Cmp(rec.SharesAmount) < 0 {
			return fmt.Errorf("withdrawal %d: user holds %s of %s shares: %w", id, bal, rec.SharesAmount, ErrInsufficientShares)
		}

		quoteAmount, err := l.CalculateWithdrawalValue(rec.SharesAmount)
		if err != nil {
			return err
		}
		removed, err := l.basketValue(l.basket.Assets, assetAmounts)
		if err != nil {
			return err
		}
		if !domain.WithinTolerance(removed, quoteAmount, l.basket.Len()) {
			return fmt.Errorf("withdrawal %d: removed %s, paying %s: %w", id, removed, quoteAmount, ErrValueMismatch)
		}

		if err := l.quote.TransferFrom(l.address, caller, l.address, quoteAmount); err != nil {
			return fmt.Errorf("pull quote: %w", err)
		}
		if err := l.quote.Transfer(l.address, rec.User, quoteAmount); err != nil {
			return fmt.Errorf("pay user: %w", err)
		}
		for i, asset := range l.basket.Assets {
			tok, err := l.token(asset)
			if err != nil {
				return err
			}
			if err := tok.Transfer(l.address, caller, assetAmounts[i]); err != nil {
				return fmt.Errorf("release %s: %w", asset.Hex(), err)
			}
		}
		if err := l.shares.Burn(rec.User, rec.SharesAmount); err != nil {
			return fmt.Errorf("burn shares: %w", err)
		}

		chain.Remove(l.state, l.withdrawals, id)
		l.addCommitted(rec.User, new(big.Int).Neg(rec.SharesAmount))
		l.emit(WithdrawalFulfilled{
			User:         rec.User,
			WithdrawalID: id,
			SharesBurned: new(big.Int).Set(rec.SharesAmount),
			QuoteAmount:  quoteAmount,
			AssetAmounts: copyAmounts(assetAmounts),
		})
		return nil
	})
}

// CancelWithdrawal closes withdrawal id. Nothing was escrowed, so nothing moves.
func (l *Ledger) CancelWithdrawal(caller common.Address, id uint64) error {
	return l.mutate(func() error {
		rec, ok := l.withdrawals[id]
		if !ok {
			return fmt.Errorf("withdrawal %d: %w", id, ErrNotFound)
		}
		if caller != rec.User && caller != l.owner {
			return ErrNotRequester
		}
		chain.Remove(l.state, l.withdrawals, id)
		l.addCommitted(rec.User, new(big.Int).Neg(rec.SharesAmount))
		l.emit(WithdrawalCancelled{User: rec.User, WithdrawalID: id})
		return nil
	})
}
