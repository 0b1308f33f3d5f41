package ledger

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/tonefinance/sectorvault/internal/chain"
	"github.com/tonefinance/sectorvault/internal/domain"
	"github.com/tonefinance/sectorvault/internal/oracle"
)

var (
	owner      = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	fulfiller  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	stranger   = common.HexToAddress("0x000000000000000000000000000000000000dead")
	vaultAddr  = common.HexToAddress("0x0000000000000000000000000000000000005ec7")
	oracleAddr = common.HexToAddress("0x000000000000000000000000000000000000000c")
	quoteAddr  = common.HexToAddress("0x0000000000000000000000000000000000000005")
)

// usd is a quote amount in whole units at 6 decimals.
func usd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000))
}

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int " + s)
	}
	return v
}

type assetSpec struct {
	decimals uint8
	price    *big.Int
	weight   int64
}

type fixture struct {
	t      *testing.T
	state  *chain.State
	reg    *Registry
	quote  *chain.Token
	oracle *oracle.Oracle
	assets []*chain.Token
	ledger *Ledger
	events []Event
}

// dollar is $1 at the oracle's 6 decimals.
var dollar = big.NewInt(1_000_000)

func standardBasket() []assetSpec {
	return []assetSpec{
		{decimals: 6, price: dollar, weight: 4000},
		{decimals: 6, price: dollar, weight: 3000},
		{decimals: 6, price: dollar, weight: 3000},
	}
}

func newFixture(t *testing.T, specs []assetSpec) *fixture {
	t.Helper()
	f := &fixture{t: t, state: chain.NewState(), reg: NewRegistry()}

	f.quote = chain.NewToken(f.state, quoteAddr, "USD Coin", "USDC", 6)
	f.reg.AddToken(f.quote)
	f.oracle = oracle.New(f.state, oracleAddr, owner, 6)
	f.reg.AddOracle(f.oracle)

	assets := make([]common.Address, len(specs))
	weights := make([]*big.Int, len(specs))
	for i, s := range specs {
		tok := f.newAsset(i, s)
		assets[i] = tok.Address()
		weights[i] = big.NewInt(s.weight)
	}

	l, err := New(f.state, f.reg, Config{
		Address:    vaultAddr,
		Owner:      owner,
		Fulfiller:  fulfiller,
		QuoteToken: quoteAddr,
		Oracle:     oracleAddr,
		Assets:     assets,
		Weights:    weights,
		Name:       "Tech Sector",
		Symbol:     "sTECH",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	l.SetEventSink(func(e Event) { f.events = append(f.events, e) })
	f.ledger = l

	for _, user := range []common.Address{alice, bob} {
		f.must(f.quote.Mint(user, usd(1_000_000)))
		f.must(f.quote.Approve(user, vaultAddr, math.MaxBig256))
	}
	f.must(f.quote.Mint(fulfiller, usd(1_000_000)))
	f.must(f.quote.Approve(fulfiller, vaultAddr, math.MaxBig256))
	return f
}

func (f *fixture) newAsset(i int, s assetSpec) *chain.Token {
	f.t.Helper()
	addr := common.BigToAddress(big.NewInt(int64(0x100 + i)))
	tok := chain.NewToken(f.state, addr, "Asset", "AST", s.decimals)
	f.reg.AddToken(tok)
	f.must(f.oracle.SetPrice(owner, addr, s.price))
	f.must(f.oracle.SetAssetDecimals(owner, addr, s.decimals))
	f.must(tok.Mint(fulfiller, new(big.Int).Mul(big.NewInt(1_000_000_000), domain.Pow10(s.decimals))))
	f.must(tok.Approve(fulfiller, vaultAddr, math.MaxBig256))
	f.assets = append(f.assets, tok)
	return tok
}

func (f *fixture) must(err error) {
	f.t.Helper()
	if err != nil {
		f.t.Fatal(err)
	}
}

// depositAmounts sizes a basket worth quote the way the reconciler does.
func (f *fixture) depositAmounts(b domain.Basket, quote *big.Int) []*big.Int {
	f.t.Helper()
	total := b.TotalWeight()
	out := make([]*big.Int, b.Len())
	for i, asset := range b.Assets {
		q, err := f.ledger.Quote(asset)
		f.must(err)
		alloc := domain.MulDiv(quote, b.Weights[i], total)
		out[i] = domain.MulDiv(alloc, domain.Pow10(q.AssetDecimals), q.Price)
	}
	return out
}

// withdrawalAmounts is the proportional slice of every vault holding.
func (f *fixture) withdrawalAmounts(shares *big.Int) []*big.Int {
	supply := f.ledger.TotalSupply()
	out := make([]*big.Int, len(f.ledger.basket.Assets))
	for i, asset := range f.ledger.basket.Assets {
		tok, _ := f.reg.Token(asset)
		out[i] = domain.MulDiv(tok.BalanceOf(vaultAddr), shares, supply)
	}
	return out
}

func (f *fixture) depositAndFulfill(user common.Address, quote *big.Int) uint64 {
	f.t.Helper()
	id, err := f.ledger.RequestDeposit(user, quote)
	f.must(err)
	f.must(f.ledger.FulfillDeposit(fulfiller, id, f.depositAmounts(f.ledger.Basket(), quote)))
	return id
}

func (f *fixture) nav() *big.Int {
	f.t.Helper()
	v, err := f.ledger.TotalValue()
	f.must(err)
	return v
}

func (f *fixture) balances(holders ...common.Address) map[string]string {
	out := make(map[string]string)
	for _, h := range holders {
		out["quote:"+h.Hex()] = f.quote.BalanceOf(h).String()
		for _, a := range f.assets {
			out[a.Address().Hex()+":"+h.Hex()] = a.BalanceOf(h).String()
		}
		out["shares:"+h.Hex()] = f.ledger.BalanceOf(h).String()
	}
	out["supply"] = f.ledger.TotalSupply().String()
	return out
}

func amounts(vals ...*big.Int) []*big.Int {
	return vals
}
