// Package catalog provides the read/write surface over courses, enrolments,
// discussions, notes, ratings, drafts, users and notifications. Every query
// and command is filtered through the policy package.
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/store"
)

// DefaultMaxFileSize bounds uploaded note files.
const DefaultMaxFileSize = 10 << 20

// CourseDeleter performs the course delete transition and its cascade.
type CourseDeleter interface {
	DeleteCourse(ctx context.Context, actor model.Actor, courseID string) error
}

// Catalog caches decoded bucket records until the next event.
type Catalog struct {
	store       store.Store
	bus         *bus.Bus
	courses     CourseDeleter
	validate    *validator.Validate
	maxFileSize int64
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger

	mu    sync.Mutex
	cache map[string][]store.Record
	token bus.Token
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCourseDeleter routes course deletes to the approval engine.
func WithCourseDeleter(d CourseDeleter) Option {
	return func(c *Catalog) { c.courses = d }
}

// WithMaxFileSize bounds note uploads.
func WithMaxFileSize(bytes int64) Option {
	return func(c *Catalog) {
		if bytes > 0 {
			c.maxFileSize = bytes
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// WithIDs overrides the identifier source.
func WithIDs(newID func() string) Option {
	return func(c *Catalog) { c.newID = newID }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) { c.logger = logger }
}

// New creates a catalog over s and subscribes its cache invalidation to b.
// Create it before any view subscribes so invalidation runs first.
func New(s store.Store, b *bus.Bus, opts ...Option) *Catalog {
	c := &Catalog{
		store:       s,
		bus:         b,
		validate:    NewValidator(),
		maxFileSize: DefaultMaxFileSize,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      slog.Default(),
		cache:       make(map[string][]store.Record),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.token = b.OnAll(func(model.Event) { c.Invalidate() })

	return c
}

// Close releases the bus subscription.
func (c *Catalog) Close() {
	c.bus.Off(c.token)
}

// Invalidate drops every cached bucket.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.cache)
}

func (c *Catalog) records(ctx context.Context, bucket string) ([]store.Record, error) {
	c.mu.Lock()
	if records, ok := c.cache[bucket]; ok {
		c.mu.Unlock()
		return records, nil
	}
	c.mu.Unlock()

	records, err := c.store.Read(ctx, bucket)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[bucket] = records
	c.mu.Unlock()

	return records, nil
}

// reader serves queries from the cache.
func (c *Catalog) reader(ctx context.Context) store.Reader {
	return cacheReader{ctx: ctx, c: c}
}

type cacheReader struct {
	ctx context.Context
	c   *Catalog
}

func (r cacheReader) Read(bucket string) ([]store.Record, error) {
	return r.c.records(r.ctx, bucket)
}

func (c *Catalog) transact(ctx context.Context, fn func(tx store.Tx, events *bus.Batch) error) error {
	err := bus.Transact(ctx, c.store, c.bus, fn)
	// Commands without events still change buckets.
	c.Invalidate()
	return err
}

func (c *Catalog) stamp() time.Time {
	return c.now().UTC()
}

// conceal turns a failed lookup into the error the actor may see. Only
// admins learn that an entity does not exist.
func conceal(actor model.Actor, kind model.EntityKind, found, visible bool) error {
	switch {
	case !found && actor.IsAdmin():
		return model.NotFound(kind)
	case !found, !visible:
		return model.Forbidden()
	}
	return nil
}
