package contracts

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tonefinance/sectorvault/internal/domain"
)

// Vault is a read binding to a deployed sector vault.
type Vault struct {
	address common.Address
	caller  Caller
}

// NewVault binds the vault at address.
func NewVault(address common.Address, caller Caller) *Vault {
	return &Vault{address: address, caller: caller}
}

func (v *Vault) Address() common.Address { return v.address }

// Basket reads the asset list and weights in one call.
func (v *Vault) Basket(ctx context.Context) (domain.Basket, error) {
	out, err := call(ctx, v.caller, VaultABI, v.address, "getBasket")
	if err != nil {
		return domain.Basket{}, err
	}
	assets, ok1 := out[0].([]common.Address)
	weights, ok2 := out[1].([]*big.Int)
	if !ok1 || !ok2 {
		return domain.Basket{}, fmt.Errorf("getBasket: unexpected %T, %T", out[0], out[1])
	}
	return domain.Basket{Assets: assets, Weights: weights}, nil
}

func (v *Vault) QuoteToken(ctx context.Context) (common.Address, error) {
	return callAddress(ctx, v.caller, VaultABI, v.address, "quoteToken")
}

func (v *Vault) Oracle(ctx context.Context) (common.Address, error) {
	return callAddress(ctx, v.caller, VaultABI, v.address, "oracle")
}

func (v *Vault) Owner(ctx context.Context) (common.Address, error) {
	return callAddress(ctx, v.caller, VaultABI, v.address, "owner")
}

func (v *Vault) Fulfiller(ctx context.Context) (common.Address, error) {
	return callAddress(ctx, v.caller, VaultABI, v.address, "fulfiller")
}

func (v *Vault) NextDepositID(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, v.caller, VaultABI, v.address, "nextDepositId")
}

func (v *Vault) NextWithdrawalID(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, v.caller, VaultABI, v.address, "nextWithdrawalId")
}

func (v *Vault) TotalValue(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, v.caller, VaultABI, v.address, "getTotalValue")
}

func (v *Vault) TotalSupply(ctx context.Context) (*big.Int, error) {
	return callBig(ctx, v.caller, VaultABI, v.address, "totalSupply")
}

func (v *Vault) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	return callBig(ctx, v.caller, VaultABI, v.address, "balanceOf", holder)
}

func (v *Vault) Decimals(ctx context.Context) (uint8, error) {
	return callUint8(ctx, v.caller, VaultABI, v.address, "decimals")
}

func (v *Vault) CalculateWithdrawalValue(ctx context.Context, shares *big.Int) (*big.Int, error) {
	return callBig(ctx, v.caller, VaultABI, v.address, "calculateWithdrawalValue", shares)
}

// PendingDeposit reads deposit id. The boolean is false when the record is absent,
// i.e. the deposit was fulfilled, cancelled or never requested.
func (v *Vault) PendingDeposit(ctx context.Context, id *big.Int) (domain.PendingDeposit, bool, error) {
	user, amount, ts, err := v.pending(ctx, "pendingDeposits", id)
	if err != nil || user == (common.Address{}) {
		return domain.PendingDeposit{}, false, err
	}
	return domain.PendingDeposit{ID: new(big.Int).Set(id), User: user, QuoteAmount: amount, Timestamp: ts}, true, nil
}

// PendingWithdrawal reads withdrawal id. The boolean is false when the record is absent.
func (v *Vault) PendingWithdrawal(ctx context.Context, id *big.Int) (domain.PendingWithdrawal, bool, error) {
	user, amount, ts, err := v.pending(ctx, "pendingWithdrawals", id)
	if err != nil || user == (common.Address{}) {
		return domain.PendingWithdrawal{}, false, err
	}
	return domain.PendingWithdrawal{ID: new(big.Int).Set(id), User: user, SharesAmount: amount, Timestamp: ts}, true, nil
}

func (v *Vault) pending(ctx context.Context, method string, id *big.Int) (common.Address, *big.Int, time.Time, error) {
	out, err := call(ctx, v.caller, VaultABI, v.address, method, id)
	if err != nil {
		return common.Address{}, nil, time.Time{}, err
	}
	user, ok1 := out[0].(common.Address)
	amount, ok2 := out[1].(*big.Int)
	ts, ok3 := out[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return common.Address{}, nil, time.Time{}, fmt.Errorf("%s: unexpected result types", method)
	}
	return user, amount, time.Unix(ts.Int64(), 0).UTC(), nil
}

// PendingRebalance reads the pending rebalance. The boolean is false when none is pending.
func (v *Vault) PendingRebalance(ctx context.Context) (domain.RebalanceRequest, bool, error) {
	out, err := call(ctx, v.caller, VaultABI, v.address, "pendingRebalance")
	if err != nil {
		return domain.RebalanceRequest{}, false, err
	}
	active, ok1 := out[0].(bool)
	assets, ok2 := out[1].([]common.Address)
	weights, ok3 := out[2].([]*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return domain.RebalanceRequest{}, false, fmt.Errorf("pendingRebalance: unexpected result types")
	}
	if !active {
		return domain.RebalanceRequest{}, false, nil
	}
	return domain.RebalanceRequest{NewBasket: domain.Basket{Assets: assets, Weights: weights}}, true, nil
}

// Calldata for the vault's write surface.

func PackRequestDeposit(quoteAmount *big.Int) ([]byte, error) {
	return VaultABI.Pack("requestDeposit", quoteAmount)
}

func PackFulfillDeposit(id *big.Int, amounts []*big.Int) ([]byte, error) {
	return VaultABI.Pack("fulfillDeposit", id, amounts)
}

func PackCancelDeposit(id *big.Int) ([]byte, error) {
	return VaultABI.Pack("cancelDeposit", id)
}

func PackRequestWithdrawal(shares *big.Int) ([]byte, error) {
	return VaultABI.Pack("requestWithdrawal", shares)
}

func PackFulfillWithdrawal(id *big.Int, amounts []*big.Int) ([]byte, error) {
	return VaultABI.Pack("fulfillWithdrawal", id, amounts)
}

func PackCancelWithdrawal(id *big.Int) ([]byte, error) {
	return VaultABI.Pack("cancelWithdrawal", id)
}

func PackRequestRebalance(assets []common.Address, weights []*big.Int) ([]byte, error) {
	return VaultABI.Pack("requestRebalance", assets, weights)
}

func PackFulfillRebalance(amounts []*big.Int) ([]byte, error) {
	return VaultABI.Pack("fulfillRebalance", amounts)
}

func PackCancelRebalance() ([]byte, error) {
	return VaultABI.Pack("cancelRebalance")
}

func PackUpdateBasket(assets []common.Address, weights []*big.Int) ([]byte, error) {
	return VaultABI.Pack("updateBasket", assets, weights)
}

func PackSetFulfillerRole(fulfiller common.Address) ([]byte, error) {
	return VaultABI.Pack("setFulfillerRole", fulfiller)
}

func PackSetOracle(oracle common.Address) ([]byte, error) {
	return VaultABI.Pack("setOracle", oracle)
}
