package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tonefinance/sectorvault/internal/domain"
)

// Oracle is a read binding to the price oracle.
type Oracle struct {
	address common.Address
	caller  Caller
}

// NewOracle binds the oracle at address.
func NewOracle(address common.Address, caller Caller) *Oracle {
	return &Oracle{address: address, caller: caller}
}

func (o *Oracle) Address() common.Address { return o.address }

func (o *Oracle) Price(ctx context.Context, asset common.Address) (*big.Int, error) {
	return callBig(ctx, o.caller, OracleABI, o.address, "getPrice", asset)
}

func (o *Oracle) Decimals(ctx context.Context) (uint8, error) {
	return callUint8(ctx, o.caller, OracleABI, o.address, "decimals")
}

func (o *Oracle) AssetDecimals(ctx context.Context, asset common.Address) (uint8, error) {
	return callUint8(ctx, o.caller, OracleABI, o.address, "assetDecimals", asset)
}

// Quote reads price, price decimals and asset decimals of asset.
func (o *Oracle) Quote(ctx context.Context, asset common.Address) (domain.PriceQuote, error) {
	price, err := o.Price(ctx, asset)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	priceDec, err := o.Decimals(ctx)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	assetDec, err := o.AssetDecimals(ctx, asset)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	return domain.PriceQuote{Asset: asset, Price: price, PriceDecimals: priceDec, AssetDecimals: assetDec}, nil
}

func PackSetPrice(asset common.Address, price *big.Int) ([]byte, error) {
	return OracleABI.Pack("setPrice", asset, price)
}

func PackSetAssetDecimals(asset common.Address, decimals uint8) ([]byte, error) {
	return OracleABI.Pack("setAssetDecimals", asset, decimals)
}
