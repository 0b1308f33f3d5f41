// Package reconciler watches sector vaults for deposit, withdrawal and rebalance requests
// and fulfills them with the fulfiller account's inventory.
package reconciler

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tonefinance/sectorvault/internal/contracts"
)

var (
	// ErrReverted indicates a mined transaction with a failed status.
	ErrReverted = errors.New("transaction reverted")
	// ErrReceiptTimeout indicates no receipt arrived within the confirmation window.
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")
	// ErrZeroPrice indicates an oracle price of zero, which cannot size an allocation.
	ErrZeroPrice = errors.New("oracle price is zero")
	// ErrInsufficientInventory indicates the fulfiller lacks the tokens an attempt needs.
	ErrInsufficientInventory = errors.New("insufficient fulfiller inventory")
	// ErrNoSupply indicates a withdrawal against a vault without shares.
	ErrNoSupply = errors.New("vault has no shares")
	// ErrRejected indicates a dry run of the fulfillment call failed, so nothing was sent.
	ErrRejected = errors.New("fulfillment rejected by dry run")
	// ErrShutdownTimeout indicates fulfillments were still running when the grace period ended.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// Client is the JSON-RPC surface the reconciler uses. *ethclient.Client satisfies it,
// as does the in-process simulator.
type Client interface {
	contracts.Caller
	contracts.LogFilterer
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}
