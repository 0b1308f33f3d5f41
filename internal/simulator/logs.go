package simulator

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tonefinance/sectorvault/internal/contracts"
	"github.com/tonefinance/sectorvault/internal/ledger"
)

func addressTopic(a common.Address) common.Hash { return common.BytesToHash(a.Bytes()) }
func idTopic(id uint64) common.Hash            { return common.BigToHash(new(big.Int).SetUint64(id)) }

// appendLog encodes event name of contract a with the given indexed topics and
// non-indexed values into the current transaction's logs.
func (c *Chain) appendLog(a abi.ABI, address common.Address, name string, topics []common.Hash, values ...any) error {
	ev, ok := a.Events[name]
	if !ok {
		return fmt.Errorf("unknown event %s", name)
	}
	data, err := ev.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", name, err)
	}
	c.txLogs = append(c.txLogs, types.Log{
		Address: address,
		Topics:  append([]common.Hash{ev.ID}, topics...),
		Data:    data,
	})
	return nil
}

// vaultSink turns ledger events of the vault at address into logs.
func (c *Chain) vaultSink(address common.Address) ledger.EventSink {
	return func(e ledger.Event) {
		if err := c.appendVaultEvent(address, e); err != nil {
			slog.Error("Simulator: encoding vault event", "vault", address.Hex(), "event", e.EventName(), "error", err)
		}
	}
}

func (c *Chain) appendVaultEvent(address common.Address, e ledger.Event) error {
	a := contracts.VaultABI
	switch e := e.(type) {
	case ledger.DepositRequested:
		return c.appendLog(a, address, e.EventName(), []common.Hash{addressTopic(e.User), idTopic(e.DepositID)},
			e.QuoteAmount, big.NewInt(e.Timestamp.Unix()))
	case ledger.DepositFulfilled:
		return c.appendLog(a, address, e.EventName(), []common.Hash{addressTopic(e.User), idTopic(e.DepositID)},
			e.SharesMinted, e.AssetAmounts)
	case ledger.DepositCancelled:
		return c.appendLog(a, address, e.EventName(), []common.Hash{addressTopic(e.User), idTopic(e.DepositID)},
			e.QuoteAmount)
	case ledger.WithdrawalRequested:
		return c.appendLog(a, address, e.EventName(), []common.Hash{addressTopic(e.User), idTopic(e.WithdrawalID)},
			e.SharesAmount, big.NewInt(e.Timestamp.Unix()))
	case ledger.WithdrawalFulfilled:
		return c.appendLog(a, address, e.EventName(), []common.Hash{addressTopic(e.User), idTopic(e.WithdrawalID)},
			e.SharesBurned, e.QuoteAmount, e.AssetAmounts)
	case ledger.WithdrawalCancelled:
		return c.appendLog(a, address, e.EventName(), []common.Hash{addressTopic(e.User), idTopic(e.WithdrawalID)})
	case ledger.RebalanceRequested:
		return c.appendLog(a, address, e.EventName(), nil, e.Assets, e.Weights)
	case ledger.RebalanceFulfilled:
		return c.appendLog(a, address, e.EventName(), nil, e.Assets, e.Weights, e.Amounts)
	case ledger.RebalanceCancelled:
		return c.appendLog(a, address, e.EventName(), nil)
	case ledger.BasketUpdated:
		return c.appendLog(a, address, e.EventName(), nil, e.Assets, e.Weights)
	case ledger.FulfillerUpdated:
		return c.appendLog(a, address, e.EventName(), []common.Hash{addressTopic(e.Fulfiller)})
	case ledger.OracleUpdated:
		return c.appendLog(a, address, e.EventName(), []common.Hash{addressTopic(e.Oracle)})
	}
	return fmt.Errorf("unhandled event %T", e)
}

// transferHook records ERC-20 Transfer logs for the token at address.
func (c *Chain) transferHook(address common.Address) func(from, to common.Address, amount *big.Int) error {
	return func(from, to common.Address, amount *big.Int) error {
		return c.appendLog(contracts.ERC20ABI, address, "Transfer",
			[]common.Hash{addressTopic(from), addressTopic(to)}, new(big.Int).Set(amount))
	}
}

func (c *Chain) emitPriceUpdated(oracle, asset common.Address, price *big.Int) error {
	return c.appendLog(contracts.OracleABI, oracle, "PriceUpdated", []common.Hash{addressTopic(asset)}, price)
}
