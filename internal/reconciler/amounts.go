package reconciler

import (
	"fmt"
	"math/big"

	"github.com/tonefinance/sectorvault/internal/domain"
)

// DepositAmounts sizes the basket purchase for quoteAmount. Each asset gets
// quoteAmount * weight / totalWeight, rescaled from quote decimals to the oracle's price
// decimals, then converted to asset units as alloc * 10^assetDecimals / price.
// quotes must be parallel to basket.Assets.
func DepositAmounts(quoteAmount *big.Int, basket domain.Basket, quotes []domain.PriceQuote, quoteDecimals uint8) ([]*big.Int, error) {
	if len(quotes) != basket.Len() {
		return nil, fmt.Errorf("%d quotes for %d assets: %w", len(quotes), basket.Len(), domain.ErrLengthMismatch)
	}
	total := basket.TotalWeight()
	if total.Sign() == 0 {
		return nil, domain.ErrInvalidWeights
	}

	amounts := make([]*big.Int, basket.Len())
	for i, asset := range basket.Assets {
		q := quotes[i]
		if q.Asset != asset {
			return nil, fmt.Errorf("quote %d is for %s, basket has %s", i, q.Asset.Hex(), asset.Hex())
		}
		if domain.IsZero(q.Price) {
			return nil, fmt.Errorf("%s: %w", asset.Hex(), ErrZeroPrice)
		}
		alloc := domain.MulDiv(quoteAmount, basket.Weights[i], total)
		alloc = domain.Rescale(alloc, quoteDecimals, q.PriceDecimals)
		amounts[i] = domain.MulDiv(alloc, domain.Pow10(q.AssetDecimals), q.Price)
	}
	return amounts, nil
}

// WithdrawalAmounts returns the pro-rata slice of each vault balance that shares
// redeem: balance * shares / supply.
func WithdrawalAmounts(balances []*big.Int, shares, supply *big.Int) ([]*big.Int, error) {
	if domain.IsZero(supply) {
		return nil, ErrNoSupply
	}
	if shares.Cmp(supply) > 0 {
		return nil, fmt.Errorf("redeeming %s of %s shares", shares, supply)
	}
	amounts := make([]*big.Int, len(balances))
	for i, bal := range balances {
		amounts[i] = domain.MulDiv(bal, shares, supply)
	}
	return amounts, nil
}
