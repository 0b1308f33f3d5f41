package simulator

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/tonefinance/sectorvault/internal/chain"
	"github.com/tonefinance/sectorvault/internal/domain"
	"github.com/tonefinance/sectorvault/internal/ledger"
	"github.com/tonefinance/sectorvault/internal/oracle"
)

func (c *Chain) allocAddress() common.Address {
	c.nextAddr++
	return common.BigToAddress(new(big.Int).SetUint64(c.nextAddr))
}

// DeployToken creates an ERC-20 token and returns its address.
func (c *Chain) DeployToken(name, symbol string, decimals uint8) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr := c.allocAddress()
	t := chain.NewToken(c.state, addr, name, symbol, decimals)
	t.SetTransferHook(c.transferHook(addr))
	c.tokens[addr] = t
	c.registry.AddToken(t)
	return addr
}

// DeployOracle creates a price oracle owned by owner.
func (c *Chain) DeployOracle(owner common.Address, decimals uint8) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr := c.allocAddress()
	o := oracle.New(c.state, addr, owner, decimals)
	c.oracles[addr] = o
	c.registry.AddOracle(o)
	return addr
}

// DeployVault creates a sector vault. cfg.Address is assigned by the chain.
func (c *Chain) DeployVault(cfg ledger.Config) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg.Address = c.allocAddress()
	l, err := ledger.New(c.state, c.registry, cfg)
	if err != nil {
		c.nextAddr--
		return common.Address{}, fmt.Errorf("deploy vault: %w", err)
	}
	l.SetClock(func() time.Time { return c.head().time })
	l.SetEventSink(c.vaultSink(cfg.Address))
	c.vaults[cfg.Address] = l
	return cfg.Address, nil
}

// Mint credits amount of token to holder.
func (c *Chain) Mint(token, holder common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tokens[token]
	if !ok {
		return fmt.Errorf("%s: %w", token.Hex(), ErrNoContract)
	}
	return t.Mint(holder, amount)
}

// Inspect runs fn with the vault's ledger while the chain is locked.
func (c *Chain) Inspect(vault common.Address, fn func(*ledger.Ledger)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.vaults[vault]
	if !ok {
		return fmt.Errorf("%s: %w", vault.Hex(), ErrNoContract)
	}
	fn(l)
	return nil
}

// AssetSpec describes one basket asset of a sector deployment.
type AssetSpec struct {
	Name     string
	Symbol   string
	Decimals uint8
	Price    *big.Int
	Weight   int64
}

// SectorSpec describes a full sector deployment: quote token, oracle, basket and vault.
type SectorSpec struct {
	Name          string
	Symbol        string
	Owner         common.Address
	Fulfiller     common.Address
	QuoteSymbol   string
	QuoteDecimals uint8
	Assets        []AssetSpec
	// FulfillerFunding is minted to the fulfiller in each basket asset, in whole units.
	FulfillerFunding int64
}

// Sector is the result of DeploySector.
type Sector struct {
	Vault  common.Address
	Quote  common.Address
	Oracle common.Address
	Assets []common.Address
}

// DeploySector deploys a quote token, an oracle quoting in the quote token's decimals,
// the basket assets with their prices, and the vault. The fulfiller is funded with
// every basket asset.
func (c *Chain) DeploySector(spec SectorSpec) (Sector, error) {
	var s Sector
	s.Quote = c.DeployToken(spec.QuoteSymbol, spec.QuoteSymbol, spec.QuoteDecimals)
	s.Oracle = c.DeployOracle(spec.Owner, spec.QuoteDecimals)

	weights := make([]*big.Int, len(spec.Assets))
	for i, a := range spec.Assets {
		addr := c.DeployToken(a.Name, a.Symbol, a.Decimals)
		s.Assets = append(s.Assets, addr)
		weights[i] = big.NewInt(a.Weight)

		if err := c.setOracleAsset(s.Oracle, spec.Owner, addr, a.Price, a.Decimals); err != nil {
			return Sector{}, err
		}
		if spec.FulfillerFunding > 0 {
			funding := new(big.Int).Mul(big.NewInt(spec.FulfillerFunding), domain.Pow10(a.Decimals))
			if err := c.Mint(addr, spec.Fulfiller, funding); err != nil {
				return Sector{}, err
			}
		}
	}

	vault, err := c.DeployVault(ledger.Config{
		Owner:      spec.Owner,
		Fulfiller:  spec.Fulfiller,
		QuoteToken: s.Quote,
		Oracle:     s.Oracle,
		Assets:     s.Assets,
		Weights:    weights,
		Name:       spec.Name,
		Symbol:     spec.Symbol,
	})
	if err != nil {
		return Sector{}, err
	}
	s.Vault = vault
	return s, nil
}

func (c *Chain) setOracleAsset(oracleAddr, owner, asset common.Address, price *big.Int, decimals uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	o := c.oracles[oracleAddr]
	if err := o.SetPrice(owner, asset, price); err != nil {
		return fmt.Errorf("price %s: %w", asset.Hex(), err)
	}
	return o.SetAssetDecimals(owner, asset, decimals)
}

// ApproveMax grants spender an unlimited allowance of token from holder.
func (c *Chain) ApproveMax(token, holder, spender common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tokens[token]
	if !ok {
		return fmt.Errorf("%s: %w", token.Hex(), ErrNoContract)
	}
	return t.Approve(holder, spender, math.MaxBig256)
}
