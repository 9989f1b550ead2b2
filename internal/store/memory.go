package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/learnsphere/moderation/internal/model"
)

const maxCommitAttempts = 3

// maxPendingChanges bounds the in-process outbox when nothing publishes it.
const maxPendingChanges = 4096

var (
	// ErrQuotaExceeded is the cause of StoreUnavailable when a write would
	// grow the memory store past its quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrConflict is the cause of StoreUnavailable when a transaction kept
	// losing to concurrent writers.
	ErrConflict = errors.New("write conflict")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store closed")
)

type memBucket struct {
	data    []byte
	version uint64
}

// Memory is an in-process store that keeps each bucket as one JSON array
// string, the way the browser's local key/value area does.
type Memory struct {
	mu       sync.Mutex
	buckets  map[string]memBucket
	quota    int
	origin   string
	changes  []model.Change
	nextID   int64
	watchers map[int]func(model.Change)
	nextW    int
	closed   bool
	logger   *slog.Logger
	now      func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithQuota bounds the total bytes held across buckets; zero disables the bound.
func WithQuota(bytes int) MemoryOption {
	return func(m *Memory) { m.quota = bytes }
}

// WithDefaultOrigin sets the origin stamped on changes whose context carries none.
func WithDefaultOrigin(origin string) MemoryOption {
	return func(m *Memory) { m.origin = origin }
}

// WithMemoryLogger sets the logger.
func WithMemoryLogger(logger *slog.Logger) MemoryOption {
	return func(m *Memory) { m.logger = logger }
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		buckets:  make(map[string]memBucket),
		watchers: make(map[int]func(model.Change)),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Read returns the records of bucket.
func (m *Memory) Read(ctx context.Context, bucket string) ([]Record, error) {
	return ReadVia(ctx, m, bucket)
}

// Write replaces bucket wholesale.
func (m *Memory) Write(ctx context.Context, bucket string, records []Record) error {
	return m.Update(ctx, func(tx Tx) error {
		return tx.Write(bucket, records)
	})
}

// Mutate reads bucket, applies fn and writes the result atomically.
func (m *Memory) Mutate(ctx context.Context, bucket string, fn func([]Record) ([]Record, error)) error {
	return MutateVia(ctx, m, bucket, fn)
}

// Update runs fn against a snapshot and commits if nothing it read changed meanwhile.
// No lock is held while fn runs, so fn may itself use the store.
func (m *Memory) Update(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.isClosed() {
			return model.StoreUnavailable(ErrClosed)
		}

		tx := &memTx{
			store:  m,
			seen:   make(map[string]uint64),
			staged: make(map[string][]byte),
		}
		if err := fn(tx); err != nil {
			return err
		}

		committed, err := m.commit(ctx, tx)
		if err != nil {
			return err
		}
		if committed != nil {
			m.notify(committed)
			return nil
		}

		if attempt == maxCommitAttempts {
			return model.StoreUnavailable(ErrConflict)
		}
		m.logger.Debug("memory store retrying conflicted transaction", slog.Int("attempt", attempt))
	}
}

// commit applies tx if every bucket it read is unchanged. A nil slice with
// nil error means a conflict.
func (m *Memory) commit(ctx context.Context, tx *memTx) ([]model.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, model.StoreUnavailable(ErrClosed)
	}

	for name, version := range tx.seen {
		if m.buckets[name].version != version {
			return nil, nil
		}
	}

	if m.quota > 0 {
		size := 0
		for name, b := range m.buckets {
			if staged, ok := tx.staged[name]; ok {
				size += len(name) + len(staged)
				continue
			}
			size += len(name) + len(b.data)
		}
		for name, staged := range tx.staged {
			if _, ok := m.buckets[name]; !ok {
				size += len(name) + len(staged)
			}
		}
		if size > m.quota {
			return nil, model.StoreUnavailable(fmt.Errorf("%w: %d > %d bytes", ErrQuotaExceeded, size, m.quota))
		}
	}

	for name, data := range tx.staged {
		m.buckets[name] = memBucket{data: data, version: m.buckets[name].version + 1}
	}

	origin := OriginFrom(ctx, m.origin)
	committed := make([]model.Change, 0, len(tx.announced))
	for _, a := range tx.announced {
		m.nextID++
		change := model.Change{
			ID:        m.nextID,
			Origin:    origin,
			Topic:     a.Topic,
			EntityID:  a.EntityID,
			Payload:   a.Payload,
			CreatedAt: m.now().UTC(),
		}
		m.changes = append(m.changes, change)
		committed = append(committed, change)
	}
	if over := len(m.changes) - maxPendingChanges; over > 0 {
		m.changes = append(m.changes[:0:0], m.changes[over:]...)
		m.logger.Warn("memory outbox full, dropping oldest changes", slog.Int("dropped", over))
	}

	return committed, nil
}

func (m *Memory) notify(changes []model.Change) {
	m.mu.Lock()
	watchers := make([]func(model.Change), 0, len(m.watchers))
	for i := 0; i < m.nextW; i++ {
		if fn, ok := m.watchers[i]; ok {
			watchers = append(watchers, fn)
		}
	}
	m.mu.Unlock()

	for _, change := range changes {
		for _, fn := range watchers {
			fn(change)
		}
	}
}

// Watch registers fn for every committed change, in commit order.
func (m *Memory) Watch(fn func(model.Change)) (cancel func()) {
	m.mu.Lock()
	id := m.nextW
	m.nextW++
	m.watchers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// Unpublished returns up to limit changes not yet marked published.
func (m *Memory) Unpublished(_ context.Context, limit int) ([]model.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Change, 0, limit)
	for _, change := range m.changes {
		if len(out) == limit {
			break
		}
		if change.PublishedAt == nil {
			out = append(out, change)
		}
	}

	return out, nil
}

// MarkPublished marks a change published and forgets it.
func (m *Memory) MarkPublished(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, change := range m.changes {
		if change.ID == id {
			m.changes = append(m.changes[:i], m.changes[i+1:]...)
			return nil
		}
	}

	return model.NotFound("change")
}

// Size returns the bytes currently held across buckets.
func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := 0
	for name, b := range m.buckets {
		size += len(name) + len(b.data)
	}

	return size
}

func (m *Memory) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}

// Close drops the contents and rejects further transactions.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	clear(m.buckets)
	clear(m.watchers)

	return nil
}

type memTx struct {
	store     *Memory
	seen      map[string]uint64
	staged    map[string][]byte
	announced []model.Announcement
}

func (tx *memTx) Read(bucket string) ([]Record, error) {
	if data, ok := tx.staged[bucket]; ok {
		return DecodeArray(bucket, data)
	}

	tx.store.mu.Lock()
	b := tx.store.buckets[bucket]
	tx.store.mu.Unlock()

	if _, ok := tx.seen[bucket]; !ok {
		tx.seen[bucket] = b.version
	}

	return DecodeArray(bucket, b.data)
}

func (tx *memTx) Write(bucket string, records []Record) error {
	data, err := EncodeArray(records)
	if err != nil {
		return err
	}

	if _, ok := tx.seen[bucket]; !ok {
		tx.store.mu.Lock()
		tx.seen[bucket] = tx.store.buckets[bucket].version
		tx.store.mu.Unlock()
	}
	tx.staged[bucket] = data

	return nil
}

func (tx *memTx) Announce(a model.Announcement) {
	tx.announced = append(tx.announced, a)
}

// Snapshot returns a copy of the raw bucket documents, for tests and export.
func (m *Memory) Snapshot() map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]byte, len(m.buckets))
	for name, b := range m.buckets {
		out[name] = append([]byte(nil), b.data...)
	}

	return out
}
