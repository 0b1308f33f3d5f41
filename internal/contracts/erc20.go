package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ERC20 is a read binding to a fungible token.
type ERC20 struct {
	address common.Address
	caller  Caller
}

// NewERC20 binds the token at address.
func NewERC20(address common.Address, caller Caller) *ERC20 {
	return &ERC20{address: address, caller: caller}
}

func (t *ERC20) Address() common.Address { return t.address }

func (t *ERC20) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	return callBig(ctx, t.caller, ERC20ABI, t.address, "balanceOf", holder)
}

func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return callBig(ctx, t.caller, ERC20ABI, t.address, "allowance", owner, spender)
}

func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	return callUint8(ctx, t.caller, ERC20ABI, t.address, "decimals")
}

func (t *ERC20) Symbol(ctx context.Context) (string, error) {
	out, err := call(ctx, t.caller, ERC20ABI, t.address, "symbol")
	if err != nil {
		return "", err
	}
	s, _ := out[0].(string)
	return s, nil
}

func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("approve", spender, amount)
}

func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("transfer", to, amount)
}
