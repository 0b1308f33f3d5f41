package reconciler

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TxConfig controls how transactions are built and confirmed.
type TxConfig struct {
	GasLimit       uint64
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// DefaultTxConfig returns the fixed gas limit and confirmation window used in production.
func DefaultTxConfig() TxConfig {
	return TxConfig{
		GasLimit:       8_000_000,
		ReceiptTimeout: 60 * time.Second,
		PollInterval:   time.Second,
	}
}

// Transactor signs and submits transactions from the fulfiller account. It owns the
// account's nonce: the next nonce is cached after the first fetch and the cache is
// dropped when the node reports a conflict, so the next send resynchronizes.
type Transactor struct {
	client Client
	key    *ecdsa.PrivateKey
	from   common.Address
	signer types.Signer
	cfg    TxConfig

	mu    sync.Mutex
	nonce *uint64
}

// NewTransactor creates a Transactor for key, reading the chain id from client.
func NewTransactor(ctx context.Context, client Client, key *ecdsa.PrivateKey, cfg TxConfig) (*Transactor, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching chain id: %w", err)
	}
	return &Transactor{
		client: client,
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		signer: types.LatestSignerForChainID(chainID),
		cfg:    cfg,
	}, nil
}

// ParsePrivateKey decodes a hex private key with or without the 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return key, nil
}

// From returns the sending account.
func (t *Transactor) From() common.Address { return t.from }

// Send signs and submits a call to `to` with data, returning the transaction hash.
// The nonce lock is held across fetch, sign and send so concurrent vaults never
// reuse a nonce.
func (t *Transactor) Send(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.nonce == nil {
		n, err := t.client.PendingNonceAt(ctx, t.from)
		if err != nil {
			return common.Hash{}, fmt.Errorf("fetching nonce: %w", err)
		}
		t.nonce = &n
		slog.Debug("Transactor: fetched nonce", "nonce", n)
	}
	nonce := *t.nonce

	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggesting gas price: %w", err)
	}

	tx, err := types.SignNewTx(t.key, t.signer, &types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      t.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("signing transaction: %w", err)
	}

	if err := t.client.SendTransaction(ctx, tx); err != nil {
		if isNonceConflict(err) {
			slog.Warn("Transactor: nonce conflict, resetting nonce cache", "nonce", nonce, "error", err)
			t.nonce = nil
		}
		return common.Hash{}, fmt.Errorf("sending transaction: %w", err)
	}

	next := nonce + 1
	t.nonce = &next
	slog.Debug("Transactor: transaction sent", "tx", tx.Hash().Hex(), "to", to.Hex(), "nonce", nonce, "gas_price", gasPrice)
	return tx.Hash(), nil
}

// ResetNonce drops the cached nonce.
func (t *Transactor) ResetNonce() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nonce = nil
}

// Wait polls for the receipt of hash until it is mined or the receipt timeout passes.
// A failed receipt is returned together with ErrReverted.
func (t *Transactor) Wait(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%s in block %d: %w", hash.Hex(), receipt.BlockNumber.Uint64(), ErrReverted)
			}
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			slog.Debug("Transactor: receipt lookup failed", "tx", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", hash.Hex(), ErrReceiptTimeout)
		case <-ticker.C:
		}
	}
}

// SendAndWait submits the call and waits for its receipt.
func (t *Transactor) SendAndWait(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	hash, err := t.Send(ctx, to, data)
	if err != nil {
		return nil, err
	}
	return t.Wait(ctx, hash)
}

func isNonceConflict(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce too low") || strings.Contains(msg, "replacement transaction underpriced")
}
