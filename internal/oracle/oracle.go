// Package oracle implements the price-feed collaborator of a sector vault: an owner-set
// price per asset at one global precision, plus a registry of each asset's native decimals.
package oracle

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tonefinance/sectorvault/internal/chain"
)

var (
	// ErrPriceNotSet is returned by Price for an asset without a price.
	ErrPriceNotSet = errors.New("price not set")
	// ErrDecimalsNotSet is returned by AssetDecimals for an unregistered asset.
	ErrDecimalsNotSet = errors.New("asset decimals not set")
	// ErrNotOwner is returned when a non-owner tries to update the oracle.
	ErrNotOwner = errors.New("caller is not the oracle owner")
	// ErrZeroPrice is returned when an owner tries to set a zero price.
	ErrZeroPrice = errors.New("price must be positive")
)

// Oracle is a manually maintained price feed.
type Oracle struct {
	state    *chain.State
	address  common.Address
	owner    common.Address
	decimals uint8

	prices        map[common.Address]*big.Int
	assetDecimals map[common.Address]uint8
}

// New creates an oracle whose prices carry the given number of decimals.
func New(state *chain.State, address, owner common.Address, decimals uint8) *Oracle {
	return &Oracle{
		state:         state,
		address:       address,
		owner:         owner,
		decimals:      decimals,
		prices:        make(map[common.Address]*big.Int),
		assetDecimals: make(map[common.Address]uint8),
	}
}

func (o *Oracle) Address() common.Address { return o.address }
func (o *Oracle) Owner() common.Address   { return o.owner }

// Decimals returns the precision of every price.
func (o *Oracle) Decimals() uint8 { return o.decimals }

// Price returns the price of asset.
func (o *Oracle) Price(asset common.Address) (*big.Int, error) {
	p, ok := o.prices[asset]
	if !ok {
		return nil, fmt.Errorf("%s: %w", asset.Hex(), ErrPriceNotSet)
	}
	return new(big.Int).Set(p), nil
}

// AssetDecimals returns the registered native decimals of asset.
func (o *Oracle) AssetDecimals(asset common.Address) (uint8, error) {
	d, ok := o.assetDecimals[asset]
	if !ok {
		return 0, fmt.Errorf("%s: %w", asset.Hex(), ErrDecimalsNotSet)
	}
	return d, nil
}

// SetPrice updates the price of asset.
func (o *Oracle) SetPrice(caller, asset common.Address, price *big.Int) error {
	if caller != o.owner {
		return ErrNotOwner
	}
	if price == nil || price.Sign() <= 0 {
		return ErrZeroPrice
	}
	chain.Put(o.state, o.prices, asset, new(big.Int).Set(price))
	return nil
}

// SetAssetDecimals registers the native decimals of asset.
func (o *Oracle) SetAssetDecimals(caller, asset common.Address, decimals uint8) error {
	if caller != o.owner {
		return ErrNotOwner
	}
	chain.Put(o.state, o.assetDecimals, asset, decimals)
	return nil
}
