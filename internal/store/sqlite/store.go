// Package sqlite provides a SQLite-backed bucket store with a change outbox.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/store"
)

//go:embed schema.sql
var schema string

// Store persists buckets in a SQLite file.
type Store struct {
	sqlDB  *sql.DB
	origin string
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)
var _ store.Outbox = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the SQLite file at path and applies the schema.
func Open(path, origin string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("sqlite store opened", slog.String("path", cleanPath))

	return &Store{sqlDB: sqlDB, origin: origin, logger: logger}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Read returns the records of bucket.
func (s *Store) Read(ctx context.Context, bucket string) ([]store.Record, error) {
	var data string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT records FROM buckets WHERE name = ?`, bucket).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []store.Record{}, nil
	}
	if err != nil {
		return nil, model.StoreUnavailable(fmt.Errorf("read bucket %s: %w", bucket, err))
	}

	return store.DecodeArray(bucket, []byte(data))
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

// Update runs fn inside an immediate transaction; writes and announced
// changes commit together.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return model.StoreUnavailable(fmt.Errorf("failed to begin transaction: %w", err))
	}

	tx := &sqliteTx{ctx: ctx, tx: sqlTx}
	if err := fn(tx); err != nil {
		if rollbackErr := sqlTx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rollbackErr)
		}
		return err
	}

	origin := store.OriginFrom(ctx, s.origin)
	now := toMillis(time.Now())
	for _, a := range tx.announced {
		_, err := sqlTx.ExecContext(ctx,
			`INSERT INTO changes (origin, topic, entity_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
			origin, string(a.Topic), a.EntityID, string(a.Payload), now,
		)
		if err != nil {
			_ = sqlTx.Rollback()
			return model.StoreUnavailable(fmt.Errorf("failed to record change: %w", err))
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return model.StoreUnavailable(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// Unpublished returns up to limit changes not yet marked published.
func (s *Store) Unpublished(ctx context.Context, limit int) ([]model.Change, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, origin, topic, entity_id, payload, created_at
		   FROM changes
		  WHERE published_at IS NULL
		  ORDER BY id
		  LIMIT ?`, limit)
	if err != nil {
		return nil, model.StoreUnavailable(fmt.Errorf("query changes: %w", err))
	}
	defer rows.Close()

	var out []model.Change
	for rows.Next() {
		var (
			change    model.Change
			topic     string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&change.ID, &change.Origin, &topic, &change.EntityID, &payload, &createdAt); err != nil {
			return nil, model.StoreUnavailable(fmt.Errorf("scan change: %w", err))
		}
		change.Topic = model.Topic(topic)
		change.Payload = []byte(payload)
		change.CreatedAt = fromMillis(createdAt)
		out = append(out, change)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StoreUnavailable(fmt.Errorf("iterate changes: %w", err))
	}

	return out, nil
}

// MarkPublished marks a change as published.
func (s *Store) MarkPublished(ctx context.Context, id int64) error {
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE changes SET published_at = ? WHERE id = ?`, toMillis(time.Now()), id)
	if err != nil {
		return model.StoreUnavailable(fmt.Errorf("mark change published: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.NotFound("change")
	}

	return nil
}

type sqliteTx struct {
	ctx       context.Context
	tx        *sql.Tx
	announced []model.Announcement
}

func (t *sqliteTx) Read(bucket string) ([]store.Record, error) {
	var data string
	err := t.tx.QueryRowContext(t.ctx, `SELECT records FROM buckets WHERE name = ?`, bucket).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []store.Record{}, nil
	}
	if err != nil {
		return nil, model.StoreUnavailable(fmt.Errorf("read bucket %s: %w", bucket, err))
	}

	return store.DecodeArray(bucket, []byte(data))
}

func (t *sqliteTx) Write(bucket string, records []store.Record) error {
	data, err := store.EncodeArray(records)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO buckets (name, records, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   records = excluded.records,
		   version = buckets.version + 1,
		   updated_at = excluded.updated_at`,
		bucket, string(data), toMillis(time.Now()),
	)
	if err != nil {
		return model.StoreUnavailable(fmt.Errorf("write bucket %s: %w", bucket, err))
	}

	return nil
}

func (t *sqliteTx) Announce(a model.Announcement) {
	t.announced = append(t.announced, a)
}
