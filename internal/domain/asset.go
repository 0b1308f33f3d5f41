package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
)

var (
	// ErrEmptyBasket indicates a basket with no assets.
	ErrEmptyBasket = errors.New("basket has no assets")
	// ErrLengthMismatch indicates parallel arrays of different lengths.
	ErrLengthMismatch = errors.New("array length mismatch")
	// ErrInvalidWeights indicates weights that do not sum to BasisPoints or contain a zero weight.
	ErrInvalidWeights = errors.New("weights must be positive and sum to 10000")
	// ErrDuplicateAsset indicates the same asset listed twice.
	ErrDuplicateAsset = errors.New("duplicate basket asset")
	// ErrZeroAddress indicates an unset address.
	ErrZeroAddress = errors.New("zero address")
)

// Basket is the ordered set of assets a sector vault holds, with target weights in basis points.
type Basket struct {
	Assets  []common.Address `json:"assets"`
	Weights []*big.Int       `json:"weights"`
}

// NewBasket builds a basket from parallel slices, copying both.
func NewBasket(assets []common.Address, weights []*big.Int) Basket {
	return Basket{
		Assets:  append([]common.Address(nil), assets...),
		Weights: lo.Map(weights, func(w *big.Int, _ int) *big.Int { return new(big.Int).Set(w) }),
	}
}

// Len returns the number of assets.
func (b Basket) Len() int {
	return len(b.Assets)
}

// TotalWeight returns the sum of all weights.
func (b Basket) TotalWeight() *big.Int {
	return lo.Reduce(b.Weights, func(acc *big.Int, w *big.Int, _ int) *big.Int {
		return acc.Add(acc, w)
	}, new(big.Int))
}

// WeightOf returns the weight of asset, or nil if it is not in the basket.
func (b Basket) WeightOf(asset common.Address) *big.Int {
	idx := lo.IndexOf(b.Assets, asset)
	if idx < 0 {
		return nil
	}
	return b.Weights[idx]
}

// Contains reports whether asset is part of the basket.
func (b Basket) Contains(asset common.Address) bool {
	return lo.Contains(b.Assets, asset)
}

// Validate checks the basket invariants: non-empty, parallel arrays, unique non-zero
// addresses, positive weights summing to exactly BasisPoints.
func (b Basket) Validate() error {
	if len(b.Assets) != len(b.Weights) {
		return fmt.Errorf("%d assets, %d weights: %w", len(b.Assets), len(b.Weights), ErrLengthMismatch)
	}
	if len(b.Assets) == 0 {
		return ErrEmptyBasket
	}
	if lo.Contains(b.Assets, common.Address{}) {
		return fmt.Errorf("basket asset: %w", ErrZeroAddress)
	}
	if dups := lo.FindDuplicates(b.Assets); len(dups) > 0 {
		return fmt.Errorf("%s: %w", dups[0].Hex(), ErrDuplicateAsset)
	}
	for _, w := range b.Weights {
		if w == nil || w.Sign() <= 0 {
			return ErrInvalidWeights
		}
	}
	if total := b.TotalWeight(); total.Cmp(big.NewInt(BasisPoints)) != 0 {
		return fmt.Errorf("weights sum to %s: %w", total, ErrInvalidWeights)
	}
	return nil
}

// PriceQuote is an oracle price snapshot for one asset.
type PriceQuote struct {
	Asset         common.Address `json:"asset"`
	Price         *big.Int       `json:"price"`
	PriceDecimals uint8          `json:"priceDecimals"`
	AssetDecimals uint8          `json:"assetDecimals"`
}

// Value converts amount of the quoted asset into quote value using the NAV formula.
func (q PriceQuote) Value(amount *big.Int) *big.Int {
	return AssetValue(amount, q.Price, q.AssetDecimals)
}
