package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyID    = errors.New("store: record id must not be empty")
	ErrNilPayload = errors.New("store: payload must not be nil")
	ErrNotFound   = errors.New("store: record not found")
)

// Record is one claimed queue entry: an id and the serialized job
// blob. The holder owns it exclusively until Complete, Retry or Fail
// hands it back.
type Record struct {
	ID      string
	Payload []byte
}

// FailedRecord is a terminally failed entry kept for operator
// inspection.
type FailedRecord struct {
	ID       string
	Payload  []byte
	Reason   string
	FailedAt time.Time
}

// Stats is a point-in-time census of the queue.
type Stats struct {
	Pending    int64
	Processing int64
	Failed     int64
}

// Queue is the durable queue store contract. Pop must guarantee
// at-most-one concurrent owner per record; everything else in the
// worker builds on that.
type Queue interface {
	// Enqueue inserts a new pending record, available after delay
	// (zero means immediately). Returns the record id.
	Enqueue(ctx context.Context, payload []byte, delay time.Duration) (string, error)

	// Pop atomically claims one available pending record and marks it
	// processing under a visibility deadline. Returns (nil, nil) when
	// nothing is available.
	Pop(ctx context.Context) (*Record, error)

	// Complete removes a record. Idempotent: completing an unknown id
	// is not an error.
	Complete(ctx context.Context, id string) error

	// Retry rewrites the record's blob and returns it to pending,
	// available again after delay.
	Retry(ctx context.Context, id string, payload []byte, delay time.Duration) error

	// Fail moves the record to the failed set with a diagnostic
	// reason. Terminal: failed records are never popped again.
	Fail(ctx context.Context, id string, payload []byte, reason string) error

	// ReleaseStuck returns processing records whose visibility
	// deadline passed before cutoff to pending, so a crashed worker's
	// claims are not lost. Reports how many were released.
	ReleaseStuck(ctx context.Context, cutoff time.Time) (int, error)

	// Stats counts records by state.
	Stats(ctx context.Context) (Stats, error)

	// ListFailed returns up to limit failed records, most recent
	// first.
	ListFailed(ctx context.Context, limit int) ([]FailedRecord, error)
}

func validateEnqueue(payload []byte) error {
	if payload == nil {
		return ErrNilPayload
	}
	return nil
}

func validateID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	return nil
}
