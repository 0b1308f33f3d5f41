package simulator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tonefinance/sectorvault/internal/chain"
	"github.com/tonefinance/sectorvault/internal/contracts"
	"github.com/tonefinance/sectorvault/internal/ledger"
	"github.com/tonefinance/sectorvault/internal/oracle"
)

var errBadCalldata = errors.New("invalid calldata")

// execute routes a call to the contract at to. Callers hold c.mu.
func (c *Chain) execute(from common.Address, to *common.Address, data []byte) ([]byte, error) {
	if to == nil {
		return nil, errors.New("contract creation is not supported")
	}
	if l, ok := c.vaults[*to]; ok {
		return c.callVault(l, from, data)
	}
	if t, ok := c.tokens[*to]; ok {
		return callToken(t, from, data)
	}
	if o, ok := c.oracles[*to]; ok {
		return c.callOracle(o, from, data)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return nil, fmt.Errorf("%s: %w", to.Hex(), ErrNoContract)
}

func decode(a abi.ABI, data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, errBadCalldata
	}
	method, err := a.MethodById(data[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errBadCalldata, err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", errBadCalldata, method.Name, err)
	}
	return method, args, nil
}

// requestID maps an on-chain uint256 id onto the ledger's id space. Ids beyond uint64
// were never issued.
func requestID(v any) (uint64, error) {
	id := v.(*big.Int)
	if !id.IsUint64() {
		return 0, fmt.Errorf("id %s: %w", id, ledger.ErrNotFound)
	}
	return id.Uint64(), nil
}

func packResult(m *abi.Method, values ...any) ([]byte, error) {
	return m.Outputs.Pack(values...)
}

func (c *Chain) callVault(l *ledger.Ledger, from common.Address, data []byte) ([]byte, error) {
	m, args, err := decode(contracts.VaultABI, data)
	if err != nil {
		return nil, err
	}

	switch m.Name {
	case "requestDeposit":
		id, err := l.RequestDeposit(from, args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return packResult(m, new(big.Int).SetUint64(id))
	case "fulfillDeposit":
		id, err := requestID(args[0])
		if err != nil {
			return nil, err
		}
		return nil, l.FulfillDeposit(from, id, args[1].([]*big.Int))
	case "cancelDeposit":
		id, err := requestID(args[0])
		if err != nil {
			return nil, err
		}
		return nil, l.CancelDeposit(from, id)
	case "requestWithdrawal":
		id, err := l.RequestWithdrawal(from, args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return packResult(m, new(big.Int).SetUint64(id))
	case "fulfillWithdrawal":
		id, err := requestID(args[0])
		if err != nil {
			return nil, err
		}
		return nil, l.FulfillWithdrawal(from, id, args[1].([]*big.Int))
	case "cancelWithdrawal":
		id, err := requestID(args[0])
		if err != nil {
			return nil, err
		}
		return nil, l.CancelWithdrawal(from, id)
	case "requestRebalance":
		return nil, l.RequestRebalance(from, args[0].([]common.Address), args[1].([]*big.Int))
	case "fulfillRebalance":
		return nil, l.FulfillRebalance(from, args[0].([]*big.Int))
	case "cancelRebalance":
		return nil, l.CancelRebalance(from)
	case "updateBasket":
		return nil, l.UpdateBasket(from, args[0].([]common.Address), args[1].([]*big.Int))
	case "setFulfillerRole":
		return nil, l.SetFulfillerRole(from, args[0].(common.Address))
	case "setOracle":
		return nil, l.SetOracle(from, args[0].(common.Address))

	case "getBasket":
		b := l.Basket()
		return packResult(m, b.Assets, b.Weights)
	case "oracle":
		return packResult(m, l.Oracle())
	case "quoteToken":
		return packResult(m, l.QuoteToken())
	case "owner":
		return packResult(m, l.Owner())
	case "fulfiller":
		return packResult(m, l.Fulfiller())
	case "nextDepositId":
		return packResult(m, new(big.Int).SetUint64(l.NextDepositID()))
	case "nextWithdrawalId":
		return packResult(m, new(big.Int).SetUint64(l.NextWithdrawalID()))
	case "pendingDeposits":
		id, err := requestID(args[0])
		if err != nil {
			return packResult(m, common.Address{}, new(big.Int), new(big.Int))
		}
		d, ok := l.PendingDeposit(id)
		if !ok {
			return packResult(m, common.Address{}, new(big.Int), new(big.Int))
		}
		return packResult(m, d.User, d.QuoteAmount, big.NewInt(d.Timestamp.Unix()))
	case "pendingWithdrawals":
		id, err := requestID(args[0])
		if err != nil {
			return packResult(m, common.Address{}, new(big.Int), new(big.Int))
		}
		w, ok := l.PendingWithdrawal(id)
		if !ok {
			return packResult(m, common.Address{}, new(big.Int), new(big.Int))
		}
		return packResult(m, w.User, w.SharesAmount, big.NewInt(w.Timestamp.Unix()))
	case "pendingRebalance":
		r, ok := l.PendingRebalance()
		if !ok {
			return packResult(m, false, []common.Address{}, []*big.Int{})
		}
		return packResult(m, true, r.NewBasket.Assets, r.NewBasket.Weights)
	case "getTotalValue":
		v, err := l.TotalValue()
		if err != nil {
			return nil, err
		}
		return packResult(m, v)
	case "calculateWithdrawalValue":
		v, err := l.CalculateWithdrawalValue(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return packResult(m, v)

	case "name":
		return packResult(m, l.Name())
	case "symbol":
		return packResult(m, l.Symbol())
	case "decimals":
		return packResult(m, l.Decimals())
	case "totalSupply":
		return packResult(m, l.TotalSupply())
	case "balanceOf":
		return packResult(m, l.BalanceOf(args[0].(common.Address)))
	case "allowance":
		return packResult(m, l.Allowance(args[0].(common.Address), args[1].(common.Address)))
	case "transfer":
		if err := l.Transfer(from, args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return packResult(m, true)
	case "approve":
		if err := l.Approve(from, args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return packResult(m, true)
	case "transferFrom":
		if err := l.TransferFrom(from, args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int)); err != nil {
			return nil, err
		}
		return packResult(m, true)
	}
	return nil, fmt.Errorf("vault method %s: %w", m.Name, errBadCalldata)
}

func callToken(t *chain.Token, from common.Address, data []byte) ([]byte, error) {
	m, args, err := decode(contracts.ERC20ABI, data)
	if err != nil {
		return nil, err
	}

	switch m.Name {
	case "name":
		return packResult(m, t.Name())
	case "symbol":
		return packResult(m, t.Symbol())
	case "decimals":
		return packResult(m, t.Decimals())
	case "totalSupply":
		return packResult(m, t.TotalSupply())
	case "balanceOf":
		return packResult(m, t.BalanceOf(args[0].(common.Address)))
	case "allowance":
		return packResult(m, t.Allowance(args[0].(common.Address), args[1].(common.Address)))
	case "transfer":
		if err := t.Transfer(from, args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return packResult(m, true)
	case "approve":
		if err := t.Approve(from, args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return packResult(m, true)
	case "transferFrom":
		if err := t.TransferFrom(from, args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int)); err != nil {
			return nil, err
		}
		return packResult(m, true)
	}
	return nil, fmt.Errorf("token method %s: %w", m.Name, errBadCalldata)
}

func (c *Chain) callOracle(o *oracle.Oracle, from common.Address, data []byte) ([]byte, error) {
	m, args, err := decode(contracts.OracleABI, data)
	if err != nil {
		return nil, err
	}

	switch m.Name {
	case "getPrice":
		p, err := o.Price(args[0].(common.Address))
		if err != nil {
			return nil, err
		}
		return packResult(m, p)
	case "decimals":
		return packResult(m, o.Decimals())
	case "assetDecimals":
		d, err := o.AssetDecimals(args[0].(common.Address))
		if err != nil {
			return nil, err
		}
		return packResult(m, d)
	case "owner":
		return packResult(m, o.Owner())
	case "setPrice":
		asset, price := args[0].(common.Address), args[1].(*big.Int)
		if err := o.SetPrice(from, asset, price); err != nil {
			return nil, err
		}
		return nil, c.emitPriceUpdated(o.Address(), asset, price)
	case "setAssetDecimals":
		return nil, o.SetAssetDecimals(from, args[0].(common.Address), args[1].(uint8))
	}
	return nil, fmt.Errorf("oracle method %s: %w", m.Name, errBadCalldata)
}
