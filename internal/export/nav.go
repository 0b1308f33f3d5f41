package export

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/tonefinance/sectorvault/internal/domain"
)

// navColumn describes one column of the NAV sheet.
type navColumn struct {
	header string
	value  func(domain.VaultState) any
}

// navColumns are the NAV sheet columns A onward, in order.
var navColumns = []navColumn{
	{header: "Date", value: func(s domain.VaultState) any { return s.TakenAt.UTC().Format("02.01.2006 15:04") }},
	{header: "Vault", value: func(s domain.VaultState) any { return s.Name }},
	{header: "Address", value: func(s domain.VaultState) any { return s.Address.Hex() }},
	{header: "Block", value: func(s domain.VaultState) any { return float64(s.Block) }},
	{header: "NAV", value: func(s domain.VaultState) any { return toFloat(s.NAV) }},
	{header: "Shares", value: func(s domain.VaultState) any { return toFloat(domain.ToDecimal(s.TotalSupply, s.QuoteDecimals)) }},
	{header: "Share Price", value: func(s domain.VaultState) any { return toFloat(s.SharePrice) }},
	{header: "Deposit Requests", value: func(s domain.VaultState) any { return bigFloat(s.NextDepositID) }},
	{header: "Withdrawal Requests", value: func(s domain.VaultState) any { return bigFloat(s.NextWithdrawalID) }},
	{header: "Rebalance Pending", value: func(s domain.VaultState) any { return lo.Ternary(s.RebalancePending, 1, 0) }},
	{header: "Max Weight Drift", value: func(s domain.VaultState) any { return toFloat(maxDrift(s.Holdings)) }},
	{header: "Holdings", value: func(s domain.VaultState) any { return holdingsSummary(s.Holdings) }},
}

// navRange is the A1 range covering every NAV column.
var navRange = fmt.Sprintf("NAV!A:%c", 'A'+len(navColumns)-1)

// buildNAVRows returns the header row and one data row for state.
func buildNAVRows(state domain.VaultState) (header []any, row []any) {
	header = lo.Map(navColumns, func(c navColumn, _ int) any { return c.header })
	row = lo.Map(navColumns, func(c navColumn, _ int) any { return c.value(state) })
	return header, row
}

// maxDrift is the largest absolute gap between a holding's actual share and its target weight.
func maxDrift(holdings []domain.AssetHolding) decimal.Decimal {
	return lo.Reduce(holdings, func(acc decimal.Decimal, h domain.AssetHolding, _ int) decimal.Decimal {
		target := decimal.New(h.TargetBps, -4)
		return decimal.Max(acc, h.ActualShare.Sub(target).Abs())
	}, decimal.Zero)
}

// holdingsSummary renders "0xabc…: 12.5 (40.00%)" entries separated by "; ".
func holdingsSummary(holdings []domain.AssetHolding) string {
	parts := lo.Map(holdings, func(h domain.AssetHolding, _ int) string {
		return fmt.Sprintf("%s: %s (%s%%)", h.Asset.Hex(), h.BalanceUnits.String(), h.ActualShare.Shift(2).StringFixed(2))
	})
	return strings.Join(parts, "; ")
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func bigFloat(v *big.Int) any {
	if v == nil {
		return nil
	}
	return toFloat(decimal.NewFromBigInt(v, 0))
}
