package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/tonefinance/sectorvault/internal/contracts"
)

// approvalThreshold is the allowance above which a spender counts as approved.
var approvalThreshold = new(big.Int).Exp(big.NewInt(10), big.NewInt(70), nil)

type approvalKey struct {
	token   common.Address
	spender common.Address
}

// Approvals grants vaults an unlimited allowance over the fulfiller's tokens, once per
// token and spender. Granted pairs are cached for the life of the process.
type Approvals struct {
	client Client
	tx     *Transactor

	mu       sync.Mutex
	approved map[approvalKey]bool
}

// NewApprovals creates an approval cache that submits through tx.
func NewApprovals(client Client, tx *Transactor) *Approvals {
	return &Approvals{
		client:   client,
		tx:       tx,
		approved: make(map[approvalKey]bool),
	}
}

// Ensure makes sure spender may pull the fulfiller's token. The lock is held through the
// approval round trip so two vaults never approve the same pair twice.
func (a *Approvals) Ensure(ctx context.Context, token, spender common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := approvalKey{token: token, spender: spender}
	if a.approved[key] {
		return nil
	}

	allowance, err := contracts.NewERC20(token, a.client).Allowance(ctx, a.tx.From(), spender)
	if err != nil {
		return fmt.Errorf("reading allowance of %s: %w", token.Hex(), err)
	}
	if allowance.Cmp(approvalThreshold) >= 0 {
		a.approved[key] = true
		return nil
	}

	slog.Info("Approvals: approving spender", "token", token.Hex(), "spender", spender.Hex())
	data, err := contracts.PackApprove(spender, math.MaxBig256)
	if err != nil {
		return err
	}
	receipt, err := a.tx.SendAndWait(ctx, token, data)
	if err != nil {
		return fmt.Errorf("approving %s for %s: %w", token.Hex(), spender.Hex(), err)
	}
	slog.Info("Approvals: approval confirmed", "token", token.Hex(), "spender", spender.Hex(), "tx", receipt.TxHash.Hex())
	a.approved[key] = true
	return nil
}

// EnsureAll approves spender for every token in order.
func (a *Approvals) EnsureAll(ctx context.Context, tokens []common.Address, spender common.Address) error {
	for _, token := range tokens {
		if err := a.Ensure(ctx, token, spender); err != nil {
			return err
		}
	}
	return nil
}
