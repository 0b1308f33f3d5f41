package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRecorder implements Recorder with PostgreSQL. Tables are created by the
// application migrations.
type PgRecorder struct {
	pool *pgxpool.Pool
}

// NewPgRecorder creates a PostgreSQL audit recorder.
func NewPgRecorder(pool *pgxpool.Pool) *PgRecorder {
	return &PgRecorder{pool: pool}
}

func (r *PgRecorder) RecordObservation(ctx context.Context, o Observation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO request_observations
		   (vault, vault_address, kind, request_id, user_address, amount, block_number, tx_hash, observed_at)
		 VALUES ($1, $2, $3, NULLIF($4, '')::numeric, $5, NULLIF($6, '')::numeric, $7, $8, $9)`,
		o.Vault, o.VaultAddress.Hex(), string(o.Kind), bigString(o.RequestID), o.User.Hex(),
		bigString(o.Amount), int64(o.BlockNumber), txHash(o.TxHash), o.ObservedAt)
	if err != nil {
		return fmt.Errorf("recording observation: %w", err)
	}
	return nil
}

func (r *PgRecorder) RecordAttempt(ctx context.Context, a Attempt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO fulfillment_attempts
		   (id, vault, vault_address, kind, request_id, amounts, tx_hash, outcome, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, '')::numeric, $6, $7, $8, $9, $10, $11)`,
		a.ID.String(), a.Vault, a.VaultAddress.Hex(), string(a.Kind), bigString(a.RequestID),
		joinAmounts(a.Amounts), txHash(a.TxHash), string(a.Outcome), a.Error, a.StartedAt, a.FinishedAt)
	if err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (r *PgRecorder) Close() error { return nil }
