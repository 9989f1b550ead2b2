// Package postgres provides a PostgreSQL-backed bucket store with a change outbox.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS buckets (
    name       TEXT PRIMARY KEY,
    records    JSONB NOT NULL,
    version    BIGINT NOT NULL DEFAULT 1,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS changes (
    id           BIGSERIAL PRIMARY KEY,
    origin       TEXT NOT NULL,
    topic        TEXT NOT NULL,
    entity_id    TEXT NOT NULL,
    payload      JSONB NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_changes_unpublished ON changes (id) WHERE published_at IS NULL;
`

// Store persists buckets in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	origin string
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)
var _ store.Outbox = (*Store)(nil)

// Open connects to databaseURL and applies the schema.
func Open(ctx context.Context, databaseURL, origin string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("postgres store opened")

	return New(pool, origin, logger), nil
}

// New wraps an existing pool; the schema must already exist.
func New(pool *pgxpool.Pool, origin string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, origin: origin, logger: logger}
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Read returns the records of bucket.
func (s *Store) Read(ctx context.Context, bucket string) ([]store.Record, error) {
	return readBucket(ctx, s.pool, bucket, false)
}

// Write replaces bucket wholesale.
func (s *Store) Write(ctx context.Context, bucket string, records []store.Record) error {
	return s.Update(ctx, func(tx store.Tx) error {
		return tx.Write(bucket, records)
	})
}

// Mutate reads bucket, applies fn and writes the result atomically.
func (s *Store) Mutate(ctx context.Context, bucket string, fn func([]store.Record) ([]store.Record, error)) error {
	return store.MutateVia(ctx, s, bucket, fn)
}

// Update executes fn within a database transaction. Buckets read through the
// transaction are row-locked until commit.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.StoreUnavailable(fmt.Errorf("failed to begin transaction: %w", err))
	}

	tx := &postgresTx{ctx: ctx, tx: pgTx}
	if err := fn(tx); err != nil {
		if rollbackErr := pgTx.Rollback(ctx); rollbackErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rollbackErr)
		}

		return err
	}

	origin := store.OriginFrom(ctx, s.origin)
	for _, a := range tx.announced {
		_, err := pgTx.Exec(ctx,
			`INSERT INTO changes (origin, topic, entity_id, payload) VALUES ($1, $2, $3, $4)`,
			origin, string(a.Topic), a.EntityID, string(payloadOrEmpty(a.Payload)),
		)
		if err != nil {
			_ = pgTx.Rollback(ctx)
			return model.StoreUnavailable(fmt.Errorf("failed to create change: %w", err))
		}
	}

	if err := pgTx.Commit(ctx); err != nil {
		if rollbackErr := pgTx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			return model.StoreUnavailable(fmt.Errorf("commit failed: %w, rollback failed: %v", err, rollbackErr))
		}

		return model.StoreUnavailable(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// Unpublished retrieves unpublished changes.
func (s *Store) Unpublished(ctx context.Context, limit int) ([]model.Change, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, origin, topic, entity_id, payload, created_at
		   FROM changes
		  WHERE published_at IS NULL
		  ORDER BY id
		  LIMIT $1`, limit)
	if err != nil {
		return nil, model.StoreUnavailable(fmt.Errorf("query changes: %w", err))
	}
	defer rows.Close()

	var changes []model.Change
	for rows.Next() {
		var (
			change model.Change
			topic  string
		)
		if err := rows.Scan(&change.ID, &change.Origin, &topic, &change.EntityID, &change.Payload, &change.CreatedAt); err != nil {
			return nil, model.StoreUnavailable(fmt.Errorf("scan change: %w", err))
		}
		change.Topic = model.Topic(topic)
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StoreUnavailable(fmt.Errorf("iterate changes: %w", err))
	}

	return changes, nil
}

// MarkPublished marks a change as published.
func (s *Store) MarkPublished(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE changes SET published_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return model.StoreUnavailable(fmt.Errorf("mark change published: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return model.NotFound("change")
	}

	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readBucket(ctx context.Context, q querier, bucket string, lock bool) ([]store.Record, error) {
	query := `SELECT records FROM buckets WHERE name = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var data []byte
	err := q.QueryRow(ctx, query, bucket).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return []store.Record{}, nil
	}
	if err != nil {
		return nil, model.StoreUnavailable(fmt.Errorf("read bucket %s: %w", bucket, err))
	}

	return store.DecodeArray(bucket, data)
}

func payloadOrEmpty(p []byte) []byte {
	if len(p) == 0 {
		return []byte("{}")
	}
	return p
}

type postgresTx struct {
	ctx       context.Context
	tx        pgx.Tx
	announced []model.Announcement
}

func (t *postgresTx) Read(bucket string) ([]store.Record, error) {
	return readBucket(t.ctx, t.tx, bucket, true)
}

func (t *postgresTx) Write(bucket string, records []store.Record) error {
	data, err := store.EncodeArray(records)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(t.ctx,
		`INSERT INTO buckets (name, records, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (name) DO UPDATE SET
		   records = EXCLUDED.records,
		   version = buckets.version + 1,
		   updated_at = EXCLUDED.updated_at`,
		bucket, string(data),
	)
	if err != nil {
		return model.StoreUnavailable(fmt.Errorf("write bucket %s: %w", bucket, err))
	}

	return nil
}

func (t *postgresTx) Announce(a model.Announcement) {
	t.announced = append(t.announced, a)
}
