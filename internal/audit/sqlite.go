package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tonefinance/sectorvault/internal/database"
)

// SQLiteRecorder persists the audit trail to a local SQLite file when no
// PostgreSQL database is configured.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and creates its tables.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	db, err := database.OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("SQLite audit recorder opened", "path", path)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS request_observations (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			vault         TEXT    NOT NULL,
			vault_address TEXT    NOT NULL,
			kind          TEXT    NOT NULL,
			request_id    TEXT,
			user_address  TEXT,
			amount        TEXT,
			block_number  INTEGER NOT NULL,
			tx_hash       TEXT,
			observed_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_vault ON request_observations(vault_address, kind, request_id)`,

		`CREATE TABLE IF NOT EXISTS fulfillment_attempts (
			id            TEXT    PRIMARY KEY,
			vault         TEXT    NOT NULL,
			vault_address TEXT    NOT NULL,
			kind          TEXT    NOT NULL,
			request_id    TEXT,
			amounts       TEXT,
			tx_hash       TEXT,
			outcome       TEXT    NOT NULL,
			error         TEXT,
			started_at    INTEGER NOT NULL,
			finished_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_vault ON fulfillment_attempts(vault_address, kind, request_id)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordObservation(ctx context.Context, o Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO request_observations
		   (vault, vault_address, kind, request_id, user_address, amount, block_number, tx_hash, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Vault, o.VaultAddress.Hex(), string(o.Kind), bigString(o.RequestID), o.User.Hex(),
		bigString(o.Amount), int64(o.BlockNumber), txHash(o.TxHash), o.ObservedAt.Unix())
	if err != nil {
		return fmt.Errorf("recording observation: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) RecordAttempt(ctx context.Context, a Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fulfillment_attempts
		   (id, vault, vault_address, kind, request_id, amounts, tx_hash, outcome, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.Vault, a.VaultAddress.Hex(), string(a.Kind), bigString(a.RequestID),
		joinAmounts(a.Amounts), txHash(a.TxHash), string(a.Outcome), a.Error,
		a.StartedAt.Unix(), a.FinishedAt.Unix())
	if err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}
	return nil
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
