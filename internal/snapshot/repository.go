package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that the requested snapshot or vault was not found.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot represents a stored vault NAV snapshot.
type Snapshot struct {
	ID           int             `json:"id"`
	VaultID      int             `json:"vaultId"`
	SnapshotDate time.Time       `json:"snapshotDate"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// VaultRecord is a registered vault row.
type VaultRecord struct {
	ID      int    `json:"id"`
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Repository defines persistent storage for snapshots.
type Repository interface {
	Save(ctx context.Context, vaultID int, date time.Time, data json.RawMessage) error
	GetLatest(ctx context.Context, vaultSlug string) (*Snapshot, error)
	GetByDate(ctx context.Context, vaultSlug string, date time.Time) (*Snapshot, error)
	List(ctx context.Context, vaultSlug string, limit int) ([]Snapshot, error)
	GetVaultID(ctx context.Context, slug string) (int, error)
	EnsureVault(ctx context.Context, slug, name, address string) (int, error)
	ListVaults(ctx context.Context) ([]VaultRecord, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Save(ctx context.Context, vaultID int, date time.Time, data json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO vault_snapshots (vault_id, snapshot_date, data)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (vault_id, snapshot_date)
		 DO UPDATE SET data = $3::jsonb`,
		vaultID, date, data)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (r *PgRepository) GetLatest(ctx context.Context, vaultSlug string) (*Snapshot, error) {
	var s Snapshot
	err := r.pool.QueryRow(ctx,
		`SELECT vs.id, vs.vault_id, vs.snapshot_date, vs.data, vs.created_at
		 FROM vault_snapshots vs
		 JOIN vaults v ON v.id = vs.vault_id
		 WHERE v.slug = $1
		 ORDER BY vs.snapshot_date DESC
		 LIMIT 1`, vaultSlug).Scan(&s.ID, &s.VaultID, &s.SnapshotDate, &s.Data, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) GetByDate(ctx context.Context, vaultSlug string, date time.Time) (*Snapshot, error) {
	var s Snapshot
	err := r.pool.QueryRow(ctx,
		`SELECT vs.id, vs.vault_id, vs.snapshot_date, vs.data, vs.created_at
		 FROM vault_snapshots vs
		 JOIN vaults v ON v.id = vs.vault_id
		 WHERE v.slug = $1 AND vs.snapshot_date = $2`, vaultSlug, date).Scan(&s.ID, &s.VaultID, &s.SnapshotDate, &s.Data, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting snapshot by date: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) List(ctx context.Context, vaultSlug string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := r.pool.Query(ctx,
		`SELECT vs.id, vs.vault_id, vs.snapshot_date, vs.data, vs.created_at
		 FROM vault_snapshots vs
		 JOIN vaults v ON v.id = vs.vault_id
		 WHERE v.slug = $1
		 ORDER BY vs.snapshot_date DESC
		 LIMIT $2`, vaultSlug, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.VaultID, &s.SnapshotDate, &s.Data, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}

func (r *PgRepository) GetVaultID(ctx context.Context, slug string) (int, error) {
	var id int
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM vaults WHERE slug = $1`, slug).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("getting vault ID for %s: %w", slug, err)
	}
	return id, nil
}

func (r *PgRepository) EnsureVault(ctx context.Context, slug, name, address string) (int, error) {
	var id int
	err := r.pool.QueryRow(ctx,
		`INSERT INTO vaults (slug, name, address)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (slug) DO UPDATE SET name = $2, address = $3
		 RETURNING id`,
		slug, name, address).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensuring vault %s: %w", slug, err)
	}
	return id, nil
}

func (r *PgRepository) ListVaults(ctx context.Context) ([]VaultRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, slug, name, address FROM vaults ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("listing vaults: %w", err)
	}
	defer rows.Close()

	var vaults []VaultRecord
	for rows.Next() {
		var v VaultRecord
		if err := rows.Scan(&v.ID, &v.Slug, &v.Name, &v.Address); err != nil {
			return nil, fmt.Errorf("scanning vault: %w", err)
		}
		vaults = append(vaults, v)
	}
	return vaults, rows.Err()
}
