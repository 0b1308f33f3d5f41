package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Vault request events watched by the reconciler.
const (
	EventDepositRequested    = "DepositRequested"
	EventWithdrawalRequested = "WithdrawalRequested"
	EventRebalanceRequested  = "RebalanceRequested"
)

type DepositRequestedEvent struct {
	User        common.Address
	DepositId   *big.Int
	QuoteAmount *big.Int
	Timestamp   *big.Int
	Raw         types.Log
}

type WithdrawalRequestedEvent struct {
	User         common.Address
	WithdrawalId *big.Int
	SharesAmount *big.Int
	Timestamp    *big.Int
	Raw          types.Log
}

type RebalanceRequestedEvent struct {
	NewAssets  []common.Address
	NewWeights []*big.Int
	Raw        types.Log
}

func ParseDepositRequested(log types.Log) (DepositRequestedEvent, error) {
	ev := DepositRequestedEvent{Raw: log}
	err := UnpackLog(VaultABI, &ev, EventDepositRequested, log)
	return ev, err
}

func ParseWithdrawalRequested(log types.Log) (WithdrawalRequestedEvent, error) {
	ev := WithdrawalRequestedEvent{Raw: log}
	err := UnpackLog(VaultABI, &ev, EventWithdrawalRequested, log)
	return ev, err
}

func ParseRebalanceRequested(log types.Log) (RebalanceRequestedEvent, error) {
	ev := RebalanceRequestedEvent{Raw: log}
	err := UnpackLog(VaultABI, &ev, EventRebalanceRequested, log)
	return ev, err
}

// EventName returns the vault event a log carries, or "" for foreign logs.
func EventName(log types.Log) string {
	if len(log.Topics) == 0 {
		return ""
	}
	ev, err := VaultABI.EventByID(log.Topics[0])
	if err != nil {
		return ""
	}
	return ev.Name
}

// EventQuery filters the given vault events emitted by addresses in blocks [from, to].
func EventQuery(addresses []common.Address, from, to uint64, events ...string) ethereum.FilterQuery {
	ids := make([]common.Hash, 0, len(events))
	for _, name := range events {
		if ev, ok := VaultABI.Events[name]; ok {
			ids = append(ids, ev.ID)
		}
	}
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addresses,
		Topics:    [][]common.Hash{ids},
	}
}
