package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/tonefinance/sectorvault/internal/domain"
)

type mockReader struct {
	state domain.VaultState
	err   error
	calls []string
}

func (m *mockReader) FetchVaultState(_ context.Context, name string, address common.Address) (domain.VaultState, error) {
	m.calls = append(m.calls, name)
	if m.err != nil {
		return domain.VaultState{}, m.err
	}
	st := m.state
	st.Name = name
	st.Address = address
	return st, nil
}

type mockRepo struct {
	vaultID   int
	vaultErr  error
	saveErr   error
	savedData json.RawMessage
	savedDate time.Time
	saves     int
	ensured   []string
	latest    *Snapshot
	latestErr error
	byDate    *Snapshot
	byDateErr error
	list      []Snapshot
	listErr   error
}

func (m *mockRepo) Save(_ context.Context, _ int, date time.Time, data json.RawMessage) error {
	m.savedData = data
	m.savedDate = date
	m.saves++
	return m.saveErr
}

func (m *mockRepo) GetLatest(_ context.Context, _ string) (*Snapshot, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	return m.latest, nil
}

func (m *mockRepo) GetByDate(_ context.Context, _ string, _ time.Time) (*Snapshot, error) {
	if m.byDateErr != nil {
		return nil, m.byDateErr
	}
	return m.byDate, nil
}

func (m *mockRepo) List(_ context.Context, _ string, _ int) ([]Snapshot, error) {
	return m.list, m.listErr
}

func (m *mockRepo) GetVaultID(_ context.Context, _ string) (int, error) {
	return m.vaultID, m.vaultErr
}

func (m *mockRepo) EnsureVault(_ context.Context, slug, _, _ string) (int, error) {
	m.ensured = append(m.ensured, slug)
	return m.vaultID, m.vaultErr
}

func (m *mockRepo) ListVaults(_ context.Context) ([]VaultRecord, error) {
	return nil, nil
}

type mockExporter struct {
	exported []string
	err      error
}

func (m *mockExporter) Export(_ context.Context, state domain.VaultState) error {
	m.exported = append(m.exported, state.Name)
	return m.err
}

var (
	techAddr   = common.HexToAddress("0x0000000000000000000000000000000000001001")
	energyAddr = common.HexToAddress("0x0000000000000000000000000000000000001002")
	vaults     = []Vault{NewVault("Tech Leaders", techAddr), NewVault("Energy", energyAddr)}
)

func sampleState() domain.VaultState {
	return domain.VaultState{
		TotalValue:  big.NewInt(1_000_000_000),
		TotalSupply: big.NewInt(1_000_000_000),
		NAV:         decimal.NewFromInt(1000),
		SharePrice:  decimal.NewFromInt(1),
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Tech", "tech"},
		{"Tech Leaders", "tech-leaders"},
		{"  Clean   Energy ", "clean-energy"},
		{"Vault-1", "vault-1"},
	}
	for _, tt := range tests {
		if got := Slug(tt.name); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestGenerateSuccess(t *testing.T) {
	repo := &mockRepo{vaultID: 1}
	reader := &mockReader{state: sampleState()}
	exporter := &mockExporter{}
	svc := NewService(reader, repo, vaults, exporter)

	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	state, err := svc.Generate(context.Background(), "tech-leaders", date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Name != "Tech Leaders" || state.Address != techAddr {
		t.Errorf("state = %s/%s", state.Name, state.Address.Hex())
	}
	if !repo.savedDate.Equal(date) {
		t.Errorf("saved date = %v, want %v", repo.savedDate, date)
	}

	var stored domain.VaultState
	if err := json.Unmarshal(repo.savedData, &stored); err != nil {
		t.Fatalf("stored data is not a vault state: %v", err)
	}
	if stored.TotalValue.Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Errorf("stored TotalValue = %s", stored.TotalValue)
	}
	if !stored.NAV.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("stored NAV = %s", stored.NAV)
	}
	if len(exporter.exported) != 1 || exporter.exported[0] != "Tech Leaders" {
		t.Errorf("exported = %v", exporter.exported)
	}
}

func TestGenerateUnknownVault(t *testing.T) {
	repo := &mockRepo{vaultID: 1}
	svc := NewService(&mockReader{}, repo, vaults)

	_, err := svc.Generate(context.Background(), "unknown", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if repo.saves != 0 {
		t.Error("nothing should be saved")
	}
}

func TestGenerateVaultNotRegistered(t *testing.T) {
	repo := &mockRepo{vaultErr: ErrNotFound}
	svc := NewService(&mockReader{}, repo, vaults)

	_, err := svc.Generate(context.Background(), "energy", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGenerateReaderError(t *testing.T) {
	repo := &mockRepo{vaultID: 1}
	svc := NewService(&mockReader{err: errors.New("rpc down")}, repo, vaults)

	if _, err := svc.Generate(context.Background(), "energy", time.Now()); err == nil {
		t.Fatal("expected error from reader")
	}
	if repo.saves != 0 {
		t.Error("nothing should be saved")
	}
}

func TestGenerateRepoSaveError(t *testing.T) {
	repo := &mockRepo{vaultID: 1, saveErr: errors.New("save failed")}
	exporter := &mockExporter{}
	svc := NewService(&mockReader{state: sampleState()}, repo, vaults, exporter)

	if _, err := svc.Generate(context.Background(), "energy", time.Now()); err == nil {
		t.Fatal("expected error from repo save")
	}
	if len(exporter.exported) != 0 {
		t.Error("unsaved snapshot must not be exported")
	}
}

func TestGenerateExportErrorIsNotFatal(t *testing.T) {
	repo := &mockRepo{vaultID: 1}
	svc := NewService(&mockReader{state: sampleState()}, repo, vaults, &mockExporter{err: errors.New("sheets down")})

	if _, err := svc.Generate(context.Background(), "energy", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGenerateAll(t *testing.T) {
	repo := &mockRepo{vaultID: 1}
	reader := &mockReader{state: sampleState()}
	svc := NewService(reader, repo, vaults)

	if err := svc.GenerateAll(context.Background(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.saves != 2 {
		t.Errorf("saves = %d, want 2", repo.saves)
	}
	if len(reader.calls) != 2 || reader.calls[0] != "Tech Leaders" || reader.calls[1] != "Energy" {
		t.Errorf("reader calls = %v", reader.calls)
	}
}

func TestGenerateAllJoinsErrors(t *testing.T) {
	repo := &mockRepo{vaultID: 1}
	svc := NewService(&mockReader{err: errors.New("rpc down")}, repo, vaults)

	err := svc.GenerateAll(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected joined error")
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Errorf("err = %v, want two wrapped errors", err)
	}
}

func TestRegister(t *testing.T) {
	repo := &mockRepo{vaultID: 1}
	svc := NewService(&mockReader{}, repo, vaults)

	if err := svc.Register(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.ensured) != 2 || repo.ensured[0] != "tech-leaders" || repo.ensured[1] != "energy" {
		t.Errorf("ensured = %v", repo.ensured)
	}
}

func TestGetLatestPassesThroughNotFound(t *testing.T) {
	svc := NewService(&mockReader{}, &mockRepo{latestErr: ErrNotFound}, vaults)

	if _, err := svc.GetLatest(context.Background(), "energy"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
