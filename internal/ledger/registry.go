package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the fungible-token capability set the ledger needs from quote and basket assets.
type Token interface {
	Address() common.Address
	Decimals() uint8
	BalanceOf(holder common.Address) *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
}

// PriceOracle is the price-feed collaborator.
type PriceOracle interface {
	Address() common.Address
	Decimals() uint8
	Price(asset common.Address) (*big.Int, error)
	AssetDecimals(asset common.Address) (uint8, error)
}

// Registry resolves contract addresses to the tokens and oracles deployed on a chain.
type Registry struct {
	tokens  map[common.Address]Token
	oracles map[common.Address]PriceOracle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tokens:  make(map[common.Address]Token),
		oracles: make(map[common.Address]PriceOracle),
	}
}

// AddToken registers t under its address.
func (r *Registry) AddToken(t Token) {
	r.tokens[t.Address()] = t
}

// AddOracle registers o under its address.
func (r *Registry) AddOracle(o PriceOracle) {
	r.oracles[o.Address()] = o
}

// Token looks up a token by address.
func (r *Registry) Token(addr common.Address) (Token, bool) {
	t, ok := r.tokens[addr]
	return t, ok
}

// Oracle looks up an oracle by address.
func (r *Registry) Oracle(addr common.Address) (PriceOracle, bool) {
	o, ok := r.oracles[addr]
	return o, ok
}
