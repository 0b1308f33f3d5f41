package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AssetHolding is one basket asset as seen at snapshot time.
type AssetHolding struct {
	Asset         common.Address  `json:"asset"`
	Balance       *big.Int        `json:"balance"`
	AssetDecimals uint8           `json:"assetDecimals"`
	Price         *big.Int        `json:"price"`
	Value         *big.Int        `json:"value"`
	TargetBps     int64           `json:"targetBps"`
	ActualShare   decimal.Decimal `json:"actualShare"`
	BalanceUnits  decimal.Decimal `json:"balanceUnits"`
}

// VaultState is a point-in-time view of a vault: NAV, share supply and holdings.
type VaultState struct {
	Name             string          `json:"name"`
	Address          common.Address  `json:"address"`
	Block            uint64          `json:"block"`
	TakenAt          time.Time       `json:"takenAt"`
	QuoteToken       common.Address  `json:"quoteToken"`
	QuoteDecimals    uint8           `json:"quoteDecimals"`
	TotalValue       *big.Int        `json:"totalValue"`
	TotalSupply      *big.Int        `json:"totalSupply"`
	NextDepositID    *big.Int        `json:"nextDepositId"`
	NextWithdrawalID *big.Int        `json:"nextWithdrawalId"`
	RebalancePending bool            `json:"rebalancePending"`
	NAV              decimal.Decimal `json:"nav"`
	SharePrice       decimal.Decimal `json:"sharePrice"`
	Holdings         []AssetHolding  `json:"holdings"`
}
