// Package portfolio reads a sector vault's holdings, NAV and share supply from chain.
package portfolio

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/tonefinance/sectorvault/internal/contracts"
	"github.com/tonefinance/sectorvault/internal/domain"
)

// ChainReader is the read-only chain surface the Service needs.
type ChainReader interface {
	contracts.Caller
	BlockNumber(ctx context.Context) (uint64, error)
}

// Service builds point-in-time vault states.
type Service struct {
	chain ChainReader
	now   func() time.Time
}

// NewService creates a new portfolio Service.
func NewService(chain ChainReader) *Service {
	return &Service{chain: chain, now: time.Now}
}

// FetchVaultState reads the basket, balances and oracle prices of the vault at address
// and values each holding with the vault's NAV formula.
func (s *Service) FetchVaultState(ctx context.Context, name string, address common.Address) (domain.VaultState, error) {
	block, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("reading head block: %w", err)
	}

	vault := contracts.NewVault(address, s.chain)
	basket, err := vault.Basket(ctx)
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("reading basket of %s: %w", name, err)
	}
	quoteAddr, err := vault.QuoteToken(ctx)
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("reading quote token of %s: %w", name, err)
	}
	quoteDec, err := contracts.NewERC20(quoteAddr, s.chain).Decimals(ctx)
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("reading quote decimals: %w", err)
	}
	oracleAddr, err := vault.Oracle(ctx)
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("reading oracle of %s: %w", name, err)
	}
	oracle := contracts.NewOracle(oracleAddr, s.chain)

	supply, err := vault.TotalSupply(ctx)
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("reading supply of %s: %w", name, err)
	}
	nextDeposit, err := vault.NextDepositID(ctx)
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("reading next deposit id: %w", err)
	}
	nextWithdrawal, err := vault.NextWithdrawalID(ctx)
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("reading next withdrawal id: %w", err)
	}
	_, rebalancing, err := vault.PendingRebalance(ctx)
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("reading pending rebalance: %w", err)
	}

	holdings := make([]domain.AssetHolding, basket.Len())
	for i, asset := range basket.Assets {
		bal, err := contracts.NewERC20(asset, s.chain).BalanceOf(ctx, address)
		if err != nil {
			return domain.VaultState{}, fmt.Errorf("reading balance of %s: %w", asset.Hex(), err)
		}
		q, err := oracle.Quote(ctx, asset)
		if err != nil {
			return domain.VaultState{}, fmt.Errorf("pricing %s: %w", asset.Hex(), err)
		}
		holdings[i] = domain.AssetHolding{
			Asset:         asset,
			Balance:       bal,
			AssetDecimals: q.AssetDecimals,
			Price:         q.Price,
			Value:         q.Value(bal),
			TargetBps:     basket.Weights[i].Int64(),
			BalanceUnits:  domain.ToDecimal(bal, q.AssetDecimals),
		}
	}

	nav := lo.Reduce(holdings, func(acc *big.Int, h domain.AssetHolding, _ int) *big.Int {
		return acc.Add(acc, h.Value)
	}, new(big.Int))
	for i := range holdings {
		holdings[i].ActualShare = domain.Ratio(holdings[i].Value, nav, 4)
	}

	return domain.VaultState{
		Name:             name,
		Address:          address,
		Block:            block,
		TakenAt:          s.now().UTC(),
		QuoteToken:       quoteAddr,
		QuoteDecimals:    quoteDec,
		TotalValue:       nav,
		TotalSupply:      supply,
		NextDepositID:    nextDeposit,
		NextWithdrawalID: nextWithdrawal,
		RebalancePending: rebalancing,
		NAV:              domain.ToDecimal(nav, quoteDec),
		SharePrice:       domain.Ratio(nav, supply, int32(quoteDec)),
		Holdings:         holdings,
	}, nil
}
