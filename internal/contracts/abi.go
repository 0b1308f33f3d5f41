// Package contracts holds the ABIs of the sector vault, its ERC-20 assets and the price
// oracle, with typed read bindings and log decoding on top of any JSON-RPC backend.
package contracts

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

//go:embed abi/*.json
var abiFS embed.FS

var (
	VaultABI  = mustParse("abi/SectorVault.json")
	ERC20ABI  = mustParse("abi/ERC20.json")
	OracleABI = mustParse("abi/PriceOracle.json")
)

func mustParse(name string) abi.ABI {
	raw, err := abiFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("read %s: %v", name, err))
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse %s: %v", name, err))
	}
	return parsed
}

// Caller executes read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// LogFilterer queries historical logs.
type LogFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

func call(ctx context.Context, c Caller, a abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	res, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	out, err := a.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}

func callBig(ctx context.Context, c Caller, a abi.ABI, to common.Address, method string, args ...any) (*big.Int, error) {
	out, err := call(ctx, c, a, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected %T", method, out[0])
	}
	return v, nil
}

func callAddress(ctx context.Context, c Caller, a abi.ABI, to common.Address, method string, args ...any) (common.Address, error) {
	out, err := call(ctx, c, a, to, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected %T", method, out[0])
	}
	return v, nil
}

func callUint8(ctx context.Context, c Caller, a abi.ABI, to common.Address, method string, args ...any) (uint8, error) {
	out, err := call(ctx, c, a, to, method, args...)
	if err != nil {
		return 0, err
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected %T", method, out[0])
	}
	return v, nil
}

// UnpackLog decodes log into out, a pointer to a struct whose fields are named after
// the event arguments.
func UnpackLog(a abi.ABI, out any, event string, log types.Log) error {
	ev, ok := a.Events[event]
	if !ok {
		return fmt.Errorf("unknown event %s", event)
	}
	if len(log.Topics) == 0 || log.Topics[0] != ev.ID {
		return fmt.Errorf("log is not a %s event", event)
	}
	if len(ev.Inputs.NonIndexed()) > 0 {
		if err := a.UnpackIntoInterface(out, event, log.Data); err != nil {
			return fmt.Errorf("unpack %s data: %w", event, err)
		}
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopics(out, indexed, log.Topics[1:]); err != nil {
		return fmt.Errorf("parse %s topics: %w", event, err)
	}
	return nil
}
