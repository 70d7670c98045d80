package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresStore is the production Queue. Claim exclusivity rides on
// FOR UPDATE SKIP LOCKED, so any number of workers can share one
// table without handing out a record twice.
type PostgresStore struct {
	db                *sql.DB
	visibilityTimeout time.Duration
}

func NewPostgresStore(db *sql.DB, visibilityTimeout time.Duration) *PostgresStore {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	return &PostgresStore{
		db:                db,
		visibilityTimeout: visibilityTimeout,
	}
}

// EnsureSchema creates the queue tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			payload      BYTEA NOT NULL,
			status       TEXT NOT NULL DEFAULT 'pending',
			available_at TIMESTAMPTZ NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_claim
		ON jobs (status, available_at, created_at);

		CREATE TABLE IF NOT EXISTS failed_jobs (
			id        TEXT PRIMARY KEY,
			payload   BYTEA NOT NULL,
			reason    TEXT NOT NULL,
			failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Enqueue(ctx context.Context, payload []byte, delay time.Duration) (string, error) {
	if err := validateEnqueue(payload); err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, payload, status, available_at)
		VALUES ($1, $2, 'pending', $3)
	`, id, payload, time.Now().Add(delay))
	if err != nil {
		return "", fmt.Errorf("store: enqueue: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Pop(ctx context.Context) (*Record, error) {
	now := time.Now()

	var r Record
	err := s.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'processing', available_at = $1
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending' AND available_at <= $2
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, payload
	`, now.Add(s.visibilityTimeout), now).Scan(&r.ID, &r.Payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: pop: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: complete %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Retry(ctx context.Context, id string, payload []byte, delay time.Duration) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateEnqueue(payload); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET payload = $1, status = 'pending', available_at = $2
		WHERE id = $3
	`, payload, time.Now().Add(delay), id)
	if err != nil {
		return fmt.Errorf("store: retry %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, id string, payload []byte, reason string) error {
	if err := validateID(id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: fail %s: begin: %w", id, err)
	}
	defer tx.Rollback()

	if payload == nil {
		// The caller could not decode the blob; fail it as stored.
		err = tx.QueryRowContext(ctx, `SELECT payload FROM jobs WHERE id = $1`, id).Scan(&payload)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("store: fail %s: %w", id, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: fail %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO failed_jobs (id, payload, reason, failed_at)
		VALUES ($1, $2, $3, now())
	`, id, payload, reason)
	if err != nil {
		return fmt.Errorf("store: fail %s: %w", id, err)
	}

	return tx.Commit()
}

func (s *PostgresStore) ReleaseStuck(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', available_at = now()
		WHERE status = 'processing' AND available_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: release stuck: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM jobs WHERE status = 'pending'),
			(SELECT count(*) FROM jobs WHERE status = 'processing'),
			(SELECT count(*) FROM failed_jobs)
	`).Scan(&st.Pending, &st.Processing, &st.Failed)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) ListFailed(ctx context.Context, limit int) ([]FailedRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, reason, failed_at
		FROM failed_jobs
		ORDER BY failed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list failed: %w", err)
	}
	defer rows.Close()

	var out []FailedRecord
	for rows.Next() {
		var r FailedRecord
		if err := rows.Scan(&r.ID, &r.Payload, &r.Reason, &r.FailedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ Queue = (*PostgresStore)(nil)
