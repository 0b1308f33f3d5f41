// Package simulator runs sector vaults, tokens and oracles in-process behind the subset
// of the Ethereum JSON-RPC client the reconciler uses: calls, signed transactions,
// receipts, blocks and logs. Every transaction is mined into its own block.
package simulator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/samber/lo"

	"github.com/tonefinance/sectorvault/internal/chain"
	"github.com/tonefinance/sectorvault/internal/ledger"
	"github.com/tonefinance/sectorvault/internal/oracle"
)

// DefaultChainID is Base Sepolia.
var DefaultChainID = big.NewInt(84532)

const intrinsicGas = 21_000

var (
	ErrNonceTooLow  = errors.New("nonce too low")
	ErrNonceTooHigh = errors.New("nonce too high")
	ErrGasTooLow    = errors.New("intrinsic gas too low")
	ErrNoContract   = errors.New("no contract at address")
)

// RevertError is returned by CallContract when execution fails.
type RevertError struct {
	Err error
}

func (e *RevertError) Error() string { return "execution reverted: " + e.Err.Error() }
func (e *RevertError) Unwrap() error { return e.Err }

type block struct {
	number uint64
	hash   common.Hash
	time   time.Time
}

// Chain is an in-memory chain. It is safe for concurrent use; transactions and calls
// are serialized.
type Chain struct {
	mu sync.Mutex

	state    *chain.State
	registry *ledger.Registry
	chainID  *big.Int
	signer   types.Signer
	gasPrice *big.Int
	clock    func() time.Time

	tokens  map[common.Address]*chain.Token
	oracles map[common.Address]*oracle.Oracle
	vaults  map[common.Address]*ledger.Ledger

	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	blocks   []block
	logs     []types.Log
	txLogs   []types.Log
	nextAddr uint64

	sendHook func(*types.Transaction)
}

// Option configures a Chain.
type Option func(*Chain)

// WithClock sets the source of block timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) { c.clock = now }
}

// WithChainID overrides DefaultChainID.
func WithChainID(id *big.Int) Option {
	return func(c *Chain) { c.chainID = new(big.Int).Set(id) }
}

// New creates a chain holding only the genesis block.
func New(opts ...Option) *Chain {
	c := &Chain{
		state:    chain.NewState(),
		registry: ledger.NewRegistry(),
		chainID:  new(big.Int).Set(DefaultChainID),
		gasPrice: big.NewInt(1_000_000_000),
		clock:    time.Now,
		tokens:   make(map[common.Address]*chain.Token),
		oracles:  make(map[common.Address]*oracle.Oracle),
		vaults:   make(map[common.Address]*ledger.Ledger),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		nextAddr: 0x1000,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.signer = types.LatestSignerForChainID(c.chainID)
	c.blocks = []block{c.newBlock(0)}
	return c
}

func (c *Chain) newBlock(number uint64) block {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], number)
	return block{number: number, hash: crypto.Keccak256Hash(c.chainID.Bytes(), buf[:]), time: c.clock()}
}

func (c *Chain) head() block {
	return c.blocks[len(c.blocks)-1]
}

// SetSendHook registers fn to run before every SendTransaction, outside the chain lock.
func (c *Chain) SetSendHook(fn func(*types.Transaction)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendHook = fn
}

// Signer returns the transaction signer of this chain.
func (c *Chain) Signer() types.Signer { return c.signer }

func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head().number, nil
}

func (c *Chain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.gasPrice), nil
}

func (c *Chain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account], nil
}

// CallContract executes msg against the latest state and discards every effect.
func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.state.Snapshot()
	defer func() {
		c.state.RevertToSnapshot(snap)
		c.txLogs = nil
	}()
	out, err := c.execute(msg.From, msg.To, msg.Data)
	if err != nil {
		return nil, &RevertError{Err: err}
	}
	return out, nil
}

// SendTransaction validates, executes and mines tx. A failing execution is mined with
// a failed receipt; only malformed transactions are rejected with an error.
func (c *Chain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	hook := c.sendHook
	c.mu.Unlock()
	if hook != nil {
		hook(tx)
	}

	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tx.Gas() < intrinsicGas {
		return ErrGasTooLow
	}
	if err := c.checkNonce(from, tx.Nonce()); err != nil {
		return err
	}
	if _, err := c.mine(from, tx.To(), tx.Data(), tx.Hash(), tx.Type()); err != nil {
		slog.Debug("Simulator: transaction reverted", "tx", tx.Hash().Hex(), "from", from.Hex(), "error", err)
	}
	return nil
}

// Transact executes a call as from without a signature, as a development node with an
// unlocked account would. It consumes from's next nonce. A reverted execution is mined
// and its cause returned as a *RevertError.
func (c *Chain) Transact(from, to common.Address, data []byte) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce := c.nonces[from]
	hash := crypto.Keccak256Hash(from.Bytes(), to.Bytes(), new(big.Int).SetUint64(nonce).Bytes(), data)
	receipt, err := c.mine(from, &to, data, hash, types.LegacyTxType)
	if err != nil {
		return receipt, &RevertError{Err: err}
	}
	return receipt, nil
}

func (c *Chain) checkNonce(from common.Address, nonce uint64) error {
	want := c.nonces[from]
	switch {
	case nonce < want:
		return fmt.Errorf("%w: address %s, tx: %d state: %d", ErrNonceTooLow, from.Hex(), nonce, want)
	case nonce > want:
		return fmt.Errorf("%w: address %s, tx: %d state: %d", ErrNonceTooHigh, from.Hex(), nonce, want)
	}
	return nil
}

// mine executes one transaction atomically into a new block. Callers hold c.mu.
func (c *Chain) mine(from common.Address, to *common.Address, data []byte, hash common.Hash, txType uint8) (*types.Receipt, error) {
	c.nonces[from]++
	blk := c.newBlock(c.head().number + 1)
	c.blocks = append(c.blocks, blk)

	c.txLogs = nil
	status := types.ReceiptStatusSuccessful
	execErr := c.state.Atomic(func() error {
		_, err := c.execute(from, to, data)
		return err
	})
	if execErr != nil {
		status = types.ReceiptStatusFailed
		c.txLogs = nil
	}

	receipt := &types.Receipt{
		Type:              txType,
		Status:            status,
		TxHash:            hash,
		BlockHash:         blk.hash,
		BlockNumber:       new(big.Int).SetUint64(blk.number),
		GasUsed:           intrinsicGas,
		CumulativeGasUsed: intrinsicGas,
		EffectiveGasPrice: new(big.Int).Set(c.gasPrice),
	}
	for i, l := range c.txLogs {
		l.BlockNumber = blk.number
		l.BlockHash = blk.hash
		l.TxHash = hash
		l.Index = uint(i)
		c.logs = append(c.logs, l)
		receipt.Logs = append(receipt.Logs, &l)
	}
	receipt.Bloom = types.CreateBloom(types.Receipts{receipt})
	c.txLogs = nil
	c.receipts[hash] = receipt
	return receipt, execErr
}

func (c *Chain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// FilterLogs returns logs matching q. Topics match positionally; an empty position
// matches anything.
func (c *Chain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	from, to := uint64(0), c.head().number
	if q.FromBlock != nil {
		from = q.FromBlock.Uint64()
	}
	if q.ToBlock != nil && q.ToBlock.Sign() >= 0 {
		to = q.ToBlock.Uint64()
	}

	var out []types.Log
	for _, l := range c.logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if len(q.Addresses) > 0 && !lo.Contains(q.Addresses, l.Address) {
			continue
		}
		if !matchTopics(q.Topics, l.Topics) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	if len(filter) > len(topics) {
		return false
	}
	for i, options := range filter {
		if len(options) == 0 {
			continue
		}
		if !lo.Contains(options, topics[i]) {
			return false
		}
	}
	return true
}
