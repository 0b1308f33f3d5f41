package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tonefinance/sectorvault/internal/chain"
	"github.com/tonefinance/sectorvault/internal/domain"
)

// RequestRebalance records a new target basket. New deposit and withdrawal requests are
// refused until the rebalance is fulfilled or cancelled.
func (l *Ledger) RequestRebalance(caller common.Address, assets []common.Address, weights []*big.Int) error {
	return l.mutate(func() error {
		if err := l.onlyOwner(caller); err != nil {
			return err
		}
		if l.rebalance != nil {
			return ErrRebalancePending
		}
		basket := domain.NewBasket(assets, weights)
		if err := l.validateBasket(basket); err != nil {
			return err
		}
		chain.Assign(l.state, &l.rebalance, &domain.RebalanceRequest{NewBasket: basket})
		l.emit(RebalanceRequested{Assets: basket.Assets, Weights: basket.Weights})
		return nil
	})
}

// FulfillRebalance swaps the vault inventory for the new basket: every current holding
// goes to the fulfiller and amounts of the new assets come in. Shares are untouched and
// the NAV after must match the NAV before within tolerance.
func (l *Ledger) FulfillRebalance(caller common.Address, amounts []*big.Int) error {
	return l.mutate(func() error {
		if err := l.onlyFulfiller(caller); err != nil {
			return err
		}
		if l.rebalance == nil {
			return ErrNoRebalance
		}
		if n := l.OpenRequests(); n > 0 {
			return fmt.Errorf("%d open: %w", n, ErrRequestsOutstanding)
		}
		next := l.rebalance.NewBasket
		if err := checkAmounts(amounts, next.Len()); err != nil {
			return err
		}

		navBefore, err := l.TotalValue()
		if err != nil {
			return err
		}
		supplied, err := l.basketValue(next.Assets, amounts)
		if err != nil {
			return err
		}
		if !domain.WithinTolerance(supplied, navBefore, l.basket.Len()+next.Len()) {
			return fmt.Errorf("rebalance: supplied %s, nav %s: %w", supplied, navBefore, ErrValueMismatch)
		}

		for _, asset := range l.basket.Assets {
			tok, err := l.token(asset)
			if err != nil {
				return err
			}
			bal := tok.BalanceOf(l.address)
			if bal.Sign() == 0 {
				continue
			}
			if err := tok.Transfer(l.address, caller, bal); err != nil {
				return fmt.Errorf("release %s: %w", asset.Hex(), err)
			}
		}
		for i, asset := range next.Assets {
			tok, err := l.token(asset)
			if err != nil {
				return err
			}
			if err := tok.TransferFrom(l.address, caller, l.address, amounts[i]); err != nil {
				return fmt.Errorf("pull %s: %w", asset.Hex(), err)
			}
		}

		chain.Assign(l.state, &l.basket, next)
		chain.Assign[*domain.RebalanceRequest](l.state, &l.rebalance, nil)
		l.emit(RebalanceFulfilled{Assets: next.Assets, Weights: next.Weights, Amounts: copyAmounts(amounts)})
		return nil
	})
}

// CancelRebalance drops the pending rebalance without moving funds.
func (l *Ledger) CancelRebalance(caller common.Address) error {
	return l.mutate(func() error {
		if err := l.onlyOwner(caller); err != nil {
			return err
		}
		if l.rebalance == nil {
			return ErrNoRebalance
		}
		chain.Assign[*domain.RebalanceRequest](l.state, &l.rebalance, nil)
		l.emit(RebalanceCancelled{})
		return nil
	})
}
