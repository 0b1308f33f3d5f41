package portfolio

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tonefinance/sectorvault/internal/contracts"
	"github.com/tonefinance/sectorvault/internal/simulator"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	fulfiller = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

func usd(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000)) }

func deploy(t *testing.T) (*simulator.Chain, simulator.Sector) {
	t.Helper()
	c := simulator.New()
	s, err := c.DeploySector(simulator.SectorSpec{
		Name:          "Tech",
		Symbol:        "sTECH",
		Owner:         owner,
		Fulfiller:     fulfiller,
		QuoteSymbol:   "USDC",
		QuoteDecimals: 6,
		Assets: []simulator.AssetSpec{
			{Name: "A", Symbol: "A", Decimals: 6, Price: big.NewInt(1_000_000), Weight: 5000},
			{Name: "C", Symbol: "C", Decimals: 8, Price: big.NewInt(2_000_000), Weight: 5000},
		},
		FulfillerFunding: 1_000_000,
	})
	if err != nil {
		t.Fatalf("DeploySector: %v", err)
	}
	return c, s
}

func mustTransact(t *testing.T, c *simulator.Chain, from, to common.Address, data []byte, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Transact(from, to, data); err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func TestFetchVaultState(t *testing.T) {
	c, s := deploy(t)
	if err := c.Mint(s.Quote, alice, usd(1000)); err != nil {
		t.Fatal(err)
	}
	for _, token := range append([]common.Address{s.Quote}, s.Assets...) {
		holder := fulfiller
		if token == s.Quote {
			holder = alice
		}
		if err := c.ApproveMax(token, holder, s.Vault); err != nil {
			t.Fatal(err)
		}
	}
	data, err := contracts.PackRequestDeposit(usd(1000))
	mustTransact(t, c, alice, s.Vault, data, err)
	// 500 of A and 250 C (8 decimals) at $2 each.
	data, err = contracts.PackFulfillDeposit(big.NewInt(0), []*big.Int{usd(500), big.NewInt(25_000_000_000)})
	mustTransact(t, c, fulfiller, s.Vault, data, err)

	svc := NewService(c)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	state, err := svc.FetchVaultState(context.Background(), "Tech", s.Vault)
	if err != nil {
		t.Fatalf("FetchVaultState: %v", err)
	}

	if state.TotalValue.Cmp(usd(1000)) != 0 {
		t.Errorf("TotalValue = %s, want %s", state.TotalValue, usd(1000))
	}
	if state.NAV.String() != "1000" {
		t.Errorf("NAV = %s, want 1000", state.NAV)
	}
	if state.SharePrice.String() != "1" {
		t.Errorf("SharePrice = %s, want 1", state.SharePrice)
	}
	if state.TotalSupply.Cmp(usd(1000)) != 0 {
		t.Errorf("TotalSupply = %s", state.TotalSupply)
	}
	if state.NextDepositID.Int64() != 1 || state.NextWithdrawalID.Int64() != 0 {
		t.Errorf("ids = %s/%s", state.NextDepositID, state.NextWithdrawalID)
	}
	if state.RebalancePending {
		t.Error("RebalancePending = true")
	}
	if state.QuoteToken != s.Quote || state.QuoteDecimals != 6 {
		t.Errorf("quote = %s/%d", state.QuoteToken.Hex(), state.QuoteDecimals)
	}
	if len(state.Holdings) != 2 {
		t.Fatalf("holdings = %d, want 2", len(state.Holdings))
	}
	c8 := state.Holdings[1]
	if c8.BalanceUnits.String() != "250" {
		t.Errorf("C balance units = %s, want 250", c8.BalanceUnits)
	}
	if c8.Value.Cmp(usd(500)) != 0 {
		t.Errorf("C value = %s, want %s", c8.Value, usd(500))
	}
	if c8.ActualShare.String() != "0.5" || c8.TargetBps != 5000 {
		t.Errorf("C share = %s target %d", c8.ActualShare, c8.TargetBps)
	}
	if !state.TakenAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("TakenAt = %v", state.TakenAt)
	}
}

func TestFetchVaultStateEmptyVault(t *testing.T) {
	c, s := deploy(t)
	state, err := NewService(c).FetchVaultState(context.Background(), "Tech", s.Vault)
	if err != nil {
		t.Fatalf("FetchVaultState: %v", err)
	}
	if state.TotalValue.Sign() != 0 || !state.SharePrice.IsZero() {
		t.Errorf("empty vault nav %s share price %s", state.TotalValue, state.SharePrice)
	}
	for _, h := range state.Holdings {
		if !h.ActualShare.IsZero() {
			t.Errorf("holding %s share = %s, want 0", h.Asset.Hex(), h.ActualShare)
		}
	}
}

type failingReader struct{}

func (failingReader) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("rpc down")
}

func (failingReader) BlockNumber(context.Context) (uint64, error) { return 7, nil }

func TestFetchVaultStateCallError(t *testing.T) {
	_, err := NewService(failingReader{}).FetchVaultState(context.Background(), "Tech", common.HexToAddress("0x01"))
	if err == nil {
		t.Fatal("expected error")
	}
}
