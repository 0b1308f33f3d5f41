package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/tonefinance/sectorvault/internal/domain"
)

// StateReader reads the live state of a vault from chain.
type StateReader interface {
	FetchVaultState(ctx context.Context, name string, address common.Address) (domain.VaultState, error)
}

// Exporter receives every successfully stored snapshot, e.g. to append a spreadsheet row.
type Exporter interface {
	Export(ctx context.Context, state domain.VaultState) error
}

// Vault is a vault the service takes snapshots of.
type Vault struct {
	Slug    string
	Name    string
	Address common.Address
}

// Slug turns a vault name into its URL and storage key: "Tech Leaders" becomes "tech-leaders".
func Slug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// NewVault builds a Vault with its slug derived from name.
func NewVault(name string, address common.Address) Vault {
	return Vault{Slug: Slug(name), Name: name, Address: address}
}

// Service manages snapshot generation and retrieval.
type Service struct {
	reader   StateReader
	repo     Repository
	vaults   []Vault
	exporter Exporter
}

// NewService creates a new snapshot Service for the given vaults. An optional Exporter
// receives each stored snapshot; export failures are logged and do not fail generation.
func NewService(reader StateReader, repo Repository, vaults []Vault, exporters ...Exporter) *Service {
	var exporter Exporter
	if len(exporters) > 0 {
		exporter = exporters[0]
	}
	return &Service{reader: reader, repo: repo, vaults: vaults, exporter: exporter}
}

// Vaults returns the vaults the service covers.
func (s *Service) Vaults() []Vault {
	return s.vaults
}

// Register ensures every configured vault has a row in the repository.
func (s *Service) Register(ctx context.Context) error {
	for _, v := range s.vaults {
		if _, err := s.repo.EnsureVault(ctx, v.Slug, v.Name, v.Address.Hex()); err != nil {
			return err
		}
	}
	return nil
}

// Generate reads the current state of the vault with the given slug and stores it
// as the snapshot for date.
func (s *Service) Generate(ctx context.Context, slug string, date time.Time) (domain.VaultState, error) {
	vault, ok := lo.Find(s.vaults, func(v Vault) bool { return v.Slug == slug })
	if !ok {
		return domain.VaultState{}, fmt.Errorf("vault %s: %w", slug, ErrNotFound)
	}

	vaultID, err := s.repo.GetVaultID(ctx, slug)
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("getting vault: %w", err)
	}

	state, err := s.reader.FetchVaultState(ctx, vault.Name, vault.Address)
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("reading vault state: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return domain.VaultState{}, fmt.Errorf("marshaling vault state: %w", err)
	}

	if err := s.repo.Save(ctx, vaultID, date, data); err != nil {
		return domain.VaultState{}, fmt.Errorf("saving snapshot: %w", err)
	}

	if s.exporter != nil {
		if err := s.exporter.Export(ctx, state); err != nil {
			slog.Warn("failed to export snapshot", "vault", vault.Name, "error", err)
		}
	}

	return state, nil
}

// GenerateAll snapshots every vault for date. A failing vault does not stop the others.
func (s *Service) GenerateAll(ctx context.Context, date time.Time) error {
	var errs []error
	for _, v := range s.vaults {
		state, err := s.Generate(ctx, v.Slug, date)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", v.Slug, err))
			continue
		}
		slog.Info("snapshot stored", "vault", v.Name, "nav", state.NAV.String(), "share_price", state.SharePrice.String())
	}
	return errors.Join(errs...)
}

// GetLatest retrieves the most recent snapshot for the vault.
func (s *Service) GetLatest(ctx context.Context, slug string) (*Snapshot, error) {
	return s.repo.GetLatest(ctx, slug)
}

// GetByDate retrieves a snapshot for a specific date.
func (s *Service) GetByDate(ctx context.Context, slug string, date time.Time) (*Snapshot, error) {
	return s.repo.GetByDate(ctx, slug, date)
}

// List retrieves recent snapshots.
func (s *Service) List(ctx context.Context, slug string, limit int) ([]Snapshot, error) {
	return s.repo.List(ctx, slug, limit)
}
