package reconciler

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/tonefinance/sectorvault/internal/audit"
	"github.com/tonefinance/sectorvault/internal/contracts"
	"github.com/tonefinance/sectorvault/internal/simulator"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func usd(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000)) }

type memRecorder struct {
	mu           sync.Mutex
	attempts     []audit.Attempt
	observations []audit.Observation
}

func (m *memRecorder) RecordObservation(_ context.Context, o audit.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = append(m.observations, o)
	return nil
}

func (m *memRecorder) RecordAttempt(_ context.Context, a audit.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *memRecorder) Close() error { return nil }

func (m *memRecorder) outcomes() []audit.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Outcome, len(m.attempts))
	for i, a := range m.attempts {
		out[i] = a.Outcome
	}
	return out
}

func (m *memRecorder) observationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.observations)
}

type harness struct {
	chain     *simulator.Chain
	sector    simulator.Sector
	tx        *Transactor
	recorder  *memRecorder
	fulfiller *Fulfiller
	vault     *contracts.Vault
}

func testTxConfig() TxConfig {
	return TxConfig{GasLimit: 8_000_000, ReceiptTimeout: 2 * time.Second, PollInterval: 5 * time.Millisecond}
}

// newHarness deploys a 40/30/30 sector on a fresh simulator with a funded fulfiller
// and a depositor holding 10,000 quote.
func newHarness(t *testing.T) *harness {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	chain := simulator.New(simulator.WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }))

	sector, err := chain.DeploySector(simulator.SectorSpec{
		Name:          "Tech",
		Symbol:        "sTECH",
		Owner:         owner,
		Fulfiller:     from,
		QuoteSymbol:   "USDC",
		QuoteDecimals: 6,
		Assets: []simulator.AssetSpec{
			{Name: "A", Symbol: "A", Decimals: 6, Price: big.NewInt(1_000_000), Weight: 4000},
			{Name: "B", Symbol: "B", Decimals: 18, Price: big.NewInt(468_400), Weight: 3000},
			{Name: "C", Symbol: "C", Decimals: 8, Price: big.NewInt(2_000_000), Weight: 3000},
		},
		FulfillerFunding: 1_000_000,
	})
	if err != nil {
		t.Fatalf("DeploySector: %v", err)
	}
	if err := chain.Mint(sector.Quote, alice, usd(10_000)); err != nil {
		t.Fatal(err)
	}

	tx, err := NewTransactor(context.Background(), chain, key, testTxConfig())
	if err != nil {
		t.Fatalf("NewTransactor: %v", err)
	}
	rec := &memRecorder{}
	target := Target{Name: "Tech", Address: sector.Vault}
	return &harness{
		chain:     chain,
		sector:    sector,
		tx:        tx,
		recorder:  rec,
		fulfiller: NewFulfiller(target, chain, tx, NewApprovals(chain, tx), rec),
		vault:     contracts.NewVault(sector.Vault, chain),
	}
}

func (h *harness) transact(t *testing.T, from, to common.Address, data []byte, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.chain.Transact(from, to, data); err != nil {
		t.Fatalf("transact: %v", err)
	}
}

func (h *harness) requestDeposit(t *testing.T, user common.Address, amount *big.Int) {
	t.Helper()
	data, err := contracts.PackApprove(h.sector.Vault, math.MaxBig256)
	h.transact(t, user, h.sector.Quote, data, err)
	data, err = contracts.PackRequestDeposit(amount)
	h.transact(t, user, h.sector.Vault, data, err)
}

func (h *harness) requestWithdrawal(t *testing.T, user common.Address, shares *big.Int) {
	t.Helper()
	data, err := contracts.PackRequestWithdrawal(shares)
	h.transact(t, user, h.sector.Vault, data, err)
}

func (h *harness) depositOpen(t *testing.T, id int64) bool {
	t.Helper()
	_, ok, err := h.vault.PendingDeposit(context.Background(), big.NewInt(id))
	if err != nil {
		t.Fatalf("PendingDeposit: %v", err)
	}
	return ok
}

func (h *harness) withdrawalOpen(t *testing.T, id int64) bool {
	t.Helper()
	_, ok, err := h.vault.PendingWithdrawal(context.Background(), big.NewInt(id))
	if err != nil {
		t.Fatalf("PendingWithdrawal: %v", err)
	}
	return ok
}

func (h *harness) balanceOf(t *testing.T, token, holder common.Address) *big.Int {
	t.Helper()
	bal, err := contracts.NewERC20(token, h.chain).BalanceOf(context.Background(), holder)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	return bal
}

func (h *harness) nonce(t *testing.T) uint64 {
	t.Helper()
	n, err := h.chain.PendingNonceAt(context.Background(), h.tx.From())
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
