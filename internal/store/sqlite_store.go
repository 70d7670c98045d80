package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore is the single-node Queue, for CLI and small
// deployments. SQLite serializes writers, so the single-statement
// claim below is atomic across worker processes sharing the file.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db                *sql.DB
	visibilityTimeout time.Duration
}

func NewSQLiteStore(db *sql.DB, visibilityTimeout time.Duration) *SQLiteStore {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	return &SQLiteStore{
		db:                db,
		visibilityTimeout: visibilityTimeout,
	}
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY NOT NULL,
			payload      BLOB NOT NULL,
			status       TEXT NOT NULL DEFAULT 'pending',
			available_at INTEGER NOT NULL,
			created_at   INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_claim
		ON jobs (status, available_at, created_at);

		CREATE TABLE IF NOT EXISTS failed_jobs (
			id        TEXT PRIMARY KEY NOT NULL,
			payload   BLOB NOT NULL,
			reason    TEXT NOT NULL,
			failed_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Enqueue(ctx context.Context, payload []byte, delay time.Duration) (string, error) {
	if err := validateEnqueue(payload); err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, payload, status, available_at, created_at)
		VALUES (?, ?, 'pending', ?, ?)
	`, id, payload, now.Add(delay).UnixMilli(), now.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("store: enqueue: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Pop(ctx context.Context) (*Record, error) {
	now := time.Now()

	var r Record
	err := s.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'processing', available_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending' AND available_at <= ?
			ORDER BY created_at
			LIMIT 1
		)
		RETURNING id, payload
	`, now.Add(s.visibilityTimeout).UnixMilli(), now.UnixMilli()).Scan(&r.ID, &r.Payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: pop: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStore) Complete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: complete %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Retry(ctx context.Context, id string, payload []byte, delay time.Duration) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateEnqueue(payload); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET payload = ?, status = 'pending', available_at = ?
		WHERE id = ?
	`, payload, time.Now().Add(delay).UnixMilli(), id)
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

func (s *SQLiteStore) Fail(ctx context.Context, id string, payload []byte, reason string) error {
	if err := validateID(id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: fail %s: begin: %w", id, err)
	}
	defer tx.Rollback()

	if payload == nil {
		err = tx.QueryRowContext(ctx, `SELECT payload FROM jobs WHERE id = ?`, id).Scan(&payload)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("store: fail %s: %w", id, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
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
		VALUES (?, ?, ?, ?)
	`, id, payload, reason, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: fail %s: %w", id, err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) ReleaseStuck(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', available_at = ?
		WHERE status = 'processing' AND available_at < ?
	`, time.Now().UnixMilli(), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: release stuck: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
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

func (s *SQLiteStore) ListFailed(ctx context.Context, limit int) ([]FailedRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, reason, failed_at
		FROM failed_jobs
		ORDER BY failed_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list failed: %w", err)
	}
	defer rows.Close()

	var out []FailedRecord
	for rows.Next() {
		var (
			r        FailedRecord
			failedAt int64
		)
		if err := rows.Scan(&r.ID, &r.Payload, &r.Reason, &failedAt); err != nil {
			return nil, err
		}
		r.FailedAt = time.UnixMilli(failedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ Queue = (*SQLiteStore)(nil)
