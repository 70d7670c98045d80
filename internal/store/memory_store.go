package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	statusPending    = "pending"
	statusProcessing = "processing"
)

type memoryRecord struct {
	id          string
	payload     []byte
	status      string
	availableAt time.Time
	enqueuedSeq int64
	failedAt    time.Time
	reason      string
}

// MemoryStore is an in-process Queue used by tests and the memory
// driver. It honors the same claim exclusivity and availability rules
// as the durable stores and is safe for concurrent use within one
// process.
type MemoryStore struct {
	mu                sync.Mutex
	records           map[string]*memoryRecord
	failed            []*memoryRecord
	seq               int64
	visibilityTimeout time.Duration
	now               func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the clock, for deterministic tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// WithVisibilityTimeout overrides how long a popped record stays
// claimed before ReleaseStuck may return it.
func WithVisibilityTimeout(d time.Duration) MemoryOption {
	return func(m *MemoryStore) {
		if d > 0 {
			m.visibilityTimeout = d
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		records:           make(map[string]*memoryRecord),
		visibilityTimeout: 5 * time.Minute,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Enqueue(ctx context.Context, payload []byte, delay time.Duration) (string, error) {
	if err := validateEnqueue(payload); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	id := uuid.NewString()
	m.records[id] = &memoryRecord{
		id:          id,
		payload:     append([]byte(nil), payload...),
		status:      statusPending,
		availableAt: m.now().Add(delay),
		enqueuedSeq: m.seq,
	}
	return id, nil
}

func (m *MemoryStore) Pop(ctx context.Context) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	var oldest *memoryRecord
	for _, r := range m.records {
		if r.status != statusPending || r.availableAt.After(now) {
			continue
		}
		if oldest == nil || r.enqueuedSeq < oldest.enqueuedSeq {
			oldest = r
		}
	}
	if oldest == nil {
		return nil, nil
	}

	oldest.status = statusProcessing
	oldest.availableAt = now.Add(m.visibilityTimeout)

	return &Record{
		ID:      oldest.id,
		Payload: append([]byte(nil), oldest.payload...),
	}, nil
}

func (m *MemoryStore) Complete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, id)
	return nil
}

func (m *MemoryStore) Retry(ctx context.Context, id string, payload []byte, delay time.Duration) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateEnqueue(payload); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	r.payload = append([]byte(nil), payload...)
	r.status = statusPending
	r.availableAt = m.now().Add(delay)
	return nil
}

func (m *MemoryStore) Fail(ctx context.Context, id string, payload []byte, reason string) error {
	if err := validateID(id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.records, id)

	r.status = ""
	if payload != nil {
		r.payload = append([]byte(nil), payload...)
	}
	r.reason = reason
	r.failedAt = m.now()
	m.failed = append(m.failed, r)
	return nil
}

func (m *MemoryStore) ReleaseStuck(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	for _, r := range m.records {
		if r.status == statusProcessing && r.availableAt.Before(cutoff) {
			r.status = statusPending
			r.availableAt = m.now()
			released++
		}
	}
	return released, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Failed: int64(len(m.failed))}
	for _, r := range m.records {
		switch r.status {
		case statusPending:
			s.Pending++
		case statusProcessing:
			s.Processing++
		}
	}
	return s, nil
}

func (m *MemoryStore) ListFailed(ctx context.Context, limit int) ([]FailedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]FailedRecord, 0, len(m.failed))
	for _, r := range m.failed {
		out = append(out, FailedRecord{
			ID:       r.id,
			Payload:  append([]byte(nil), r.payload...),
			Reason:   r.reason,
			FailedAt: r.failedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Queue = (*MemoryStore)(nil)
