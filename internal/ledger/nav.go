package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tonefinance/sectorvault/internal/domain"
)

// Quote returns the oracle price snapshot for asset.
func (l *Ledger) Quote(asset common.Address) (domain.PriceQuote, error) {
	price, err := l.oracle.Price(asset)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: %w", ErrPriceNotSet, err)
	}
	dec, err := l.oracle.AssetDecimals(asset)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("%w: %w", ErrDecimalsNotSet, err)
	}
	return domain.PriceQuote{
		Asset:         asset,
		Price:         price,
		PriceDecimals: l.oracle.Decimals(),
		AssetDecimals: dec,
	}, nil
}

// TotalValue returns the NAV of the vault in quote units: the sum over basket assets of
// balance * price / 10^assetDecimals, each term floored.
func (l *Ledger) TotalValue() (*big.Int, error) {
	total := new(big.Int)
	for _, asset := range l.basket.Assets {
		tok, err := l.token(asset)
		if err != nil {
			return nil, err
		}
		q, err := l.Quote(asset)
		if err != nil {
			return nil, err
		}
		total.Add(total, q.Value(tok.BalanceOf(l.address)))
	}
	return total, nil
}

// basketValue prices amounts[i] of assets[i] with the NAV formula.
func (l *Ledger) basketValue(assets []common.Address, amounts []*big.Int) (*big.Int, error) {
	total := new(big.Int)
	for i, asset := range assets {
		q, err := l.Quote(asset)
		if err != nil {
			return nil, err
		}
		total.Add(total, q.Value(amounts[i]))
	}
	return total, nil
}

// CalculateWithdrawalValue returns shares * TotalValue / TotalSupply in quote units,
// or zero when no shares exist.
func (l *Ledger) CalculateWithdrawalValue(shares *big.Int) (*big.Int, error) {
	nav, err := l.TotalValue()
	if err != nil {
		return nil, err
	}
	return domain.MulDiv(shares, nav, l.shares.TotalSupply()), nil
}

// mintAmount is quote 1:1 for the first deposit, else quote * supply / nav.
func mintAmount(quoteAmount, supply, nav *big.Int) *big.Int {
	if supply.Sign() == 0 {
		return new(big.Int).Set(quoteAmount)
	}
	return domain.MulDiv(quoteAmount, supply, nav)
}
