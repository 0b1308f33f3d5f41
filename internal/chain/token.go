package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

var (
	// ErrInsufficientBalance is returned when a transfer or burn exceeds the holder's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAllowance is returned when transferFrom exceeds the approved amount.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrInvalidReceiver is returned when tokens are sent to the zero address.
	ErrInvalidReceiver = errors.New("invalid receiver")
	// ErrNegativeAmount is returned for negative amounts.
	ErrNegativeAmount = errors.New("negative amount")
)

// TransferHook runs after every balance movement of a token. A non-nil error aborts
// the enclosing operation.
type TransferHook func(from, to common.Address, amount *big.Int) error

// Token is a fungible token with ERC-20 semantics. An allowance of MaxUint256 is
// never decremented.
type Token struct {
	state    *State
	address  common.Address
	name     string
	symbol   string
	decimals uint8

	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	hook        TransferHook
}

// NewToken creates a token journaled by state.
func NewToken(state *State, address common.Address, name, symbol string, decimals uint8) *Token {
	return &Token{
		state:       state,
		address:     address,
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Name() string            { return t.name }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }

// TotalSupply returns a copy of the total supply.
func (t *Token) TotalSupply() *big.Int {
	return new(big.Int).Set(t.totalSupply)
}

// SetTransferHook installs fn as the post-transfer hook.
func (t *Token) SetTransferHook(fn TransferHook) {
	t.hook = fn
}

// BalanceOf returns a copy of holder's balance.
func (t *Token) BalanceOf(holder common.Address) *big.Int {
	if b, ok := t.balances[holder]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Allowance returns a copy of the amount spender may move on behalf of owner.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Approve sets the allowance of spender over owner's tokens.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if spender == (common.Address{}) {
		return fmt.Errorf("approve: %w", ErrInvalidReceiver)
	}
	t.setAllowance(owner, spender, amount)
	return nil
}

// Transfer moves amount from the sender to to.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	return t.move(from, to, amount)
}

// TransferFrom moves amount from from to to, spending spender's allowance.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	allowance := t.Allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%s transferFrom %s by %s: have %s, need %s: %w",
			t.symbol, from.Hex(), spender.Hex(), allowance, amount, ErrInsufficientAllowance)
	}
	if allowance.Cmp(math.MaxBig256) != 0 {
		t.setAllowance(from, spender, allowance.Sub(allowance, amount))
	}
	return t.move(from, to, amount)
}

// Mint creates amount new tokens for to.
func (t *Token) Mint(to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if to == (common.Address{}) {
		return fmt.Errorf("mint: %w", ErrInvalidReceiver)
	}
	t.setBalance(to, new(big.Int).Add(t.BalanceOf(to), amount))
	t.setTotalSupply(new(big.Int).Add(t.totalSupply, amount))
	return nil
}

// Burn destroys amount tokens held by from.
func (t *Token) Burn(from common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	balance := t.BalanceOf(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%s burn from %s: have %s, need %s: %w", t.symbol, from.Hex(), balance, amount, ErrInsufficientBalance)
	}
	t.setBalance(from, balance.Sub(balance, amount))
	t.setTotalSupply(new(big.Int).Sub(t.totalSupply, amount))
	return nil
}

func (t *Token) move(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if to == (common.Address{}) {
		return fmt.Errorf("transfer: %w", ErrInvalidReceiver)
	}
	balance := t.BalanceOf(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%s transfer from %s: have %s, need %s: %w", t.symbol, from.Hex(), balance, amount, ErrInsufficientBalance)
	}
	t.setBalance(from, balance.Sub(balance, amount))
	t.setBalance(to, new(big.Int).Add(t.BalanceOf(to), amount))
	if t.hook != nil {
		return t.hook(from, to, amount)
	}
	return nil
}

func (t *Token) setBalance(holder common.Address, v *big.Int) {
	Put(t.state, t.balances, holder, v)
}

func (t *Token) setAllowance(owner, spender common.Address, v *big.Int) {
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	Put(t.state, t.allowances[owner], spender, new(big.Int).Set(v))
}

func (t *Token) setTotalSupply(v *big.Int) {
	Assign(t.state, &t.totalSupply, v)
}
