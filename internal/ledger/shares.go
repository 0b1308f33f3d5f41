package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tonefinance/sectorvault/internal/chain"
)

func (l *Ledger) Name() string    { return l.shares.Name() }
func (l *Ledger) Symbol() string  { return l.shares.Symbol() }
func (l *Ledger) Decimals() uint8 { return l.shares.Decimals() }

// TotalSupply returns the number of outstanding shares.
func (l *Ledger) TotalSupply() *big.Int { return l.shares.TotalSupply() }

// BalanceOf returns the shares held by holder.
func (l *Ledger) BalanceOf(holder common.Address) *big.Int { return l.shares.BalanceOf(holder) }

// Allowance returns the shares spender may move on behalf of owner.
func (l *Ledger) Allowance(owner, spender common.Address) *big.Int {
	return l.shares.Allowance(owner, spender)
}

// CommittedShares returns the shares of holder referenced by open withdrawal requests.
func (l *Ledger) CommittedShares(holder common.Address) *big.Int {
	if c, ok := l.committed[holder]; ok {
		return new(big.Int).Set(c)
	}
	return new(big.Int)
}

// Transfer moves shares between holders. Shares referenced by open withdrawals stay
// transferable; fulfillment re-checks the balance.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	return l.mutate(func() error { return l.shares.Transfer(from, to, amount) })
}

// Approve lets spender move up to amount of owner's shares.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) error {
	return l.mutate(func() error { return l.shares.Approve(owner, spender, amount) })
}

// TransferFrom moves shares on behalf of from.
func (l *Ledger) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	return l.mutate(func() error { return l.shares.TransferFrom(spender, from, to, amount) })
}

func (l *Ledger) addCommitted(holder common.Address, delta *big.Int) {
	next := new(big.Int).Add(l.CommittedShares(holder), delta)
	if next.Sign() <= 0 {
		chain.Remove(l.state, l.committed, holder)
		return
	}
	chain.Put(l.state, l.committed, holder, next)
}
