// Package core wires the store, bus, catalog and approval engine into one
// explicitly passed context.
package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnsphere/moderation/internal/approval"
	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/catalog"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/notify"
	"github.com/learnsphere/moderation/internal/presenter"
	"github.com/learnsphere/moderation/internal/store"
)

// Context is one running core. All mutation from outside callers goes
// through Exclusive, so the core sees a single writer at a time.
type Context struct {
	Store   store.Store
	Bus     *bus.Bus
	Catalog *catalog.Catalog
	Engine  *approval.Engine
	Inbox   *notify.Inbox

	origin string
	logger *slog.Logger
	mu     sync.Mutex
	detach func()
	once   sync.Once
}

type options struct {
	origin          string
	maxDepth        int
	maxFileSize     int64
	enforceCapacity bool
	inlineNotify    bool
	now             func() time.Time
	logger          *slog.Logger
}

// Option configures New.
type Option func(*options)

// WithOrigin sets the instance id stamped on this core's changes.
func WithOrigin(origin string) Option {
	return func(o *options) { o.origin = origin }
}

// WithMaxDepth bounds nested event dispatch.
func WithMaxDepth(depth int) Option {
	return func(o *options) { o.maxDepth = depth }
}

// WithMaxFileSize bounds note uploads.
func WithMaxFileSize(size int64) Option {
	return func(o *options) { o.maxFileSize = size }
}

// WithCapacityEnforced turns the advisory enrolment cap into a hard one.
func WithCapacityEnforced(enforce bool) Option {
	return func(o *options) { o.enforceCapacity = enforce }
}

// WithInlineNotifications records inbox entries from this core's own bus.
// Leave it off when a separate consumer owns the inbox.
func WithInlineNotifications(inline bool) Option {
	return func(o *options) { o.inlineNotify = inline }
}

// WithClock sets the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger of every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New wires a core over s. The catalog subscribes first so its cache is
// invalidated before any other listener reads.
func New(s store.Store, opts ...Option) *Context {
	o := options{
		maxDepth:    bus.DefaultMaxDepth,
		maxFileSize: catalog.DefaultMaxFileSize,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.origin == "" {
		o.origin = uuid.NewString()
	}

	b := bus.New(bus.WithMaxDepth(o.maxDepth), bus.WithLogger(o.logger))
	engine := approval.New(s, b,
		approval.WithCapacityEnforced(o.enforceCapacity),
		approval.WithClock(o.now),
		approval.WithLogger(o.logger),
	)
	cat := catalog.New(s, b,
		catalog.WithCourseDeleter(engine),
		catalog.WithMaxFileSize(o.maxFileSize),
		catalog.WithClock(o.now),
		catalog.WithLogger(o.logger),
	)
	inbox := notify.NewInbox(s,
		notify.WithBus(b),
		notify.WithClock(o.now),
		notify.WithLogger(o.logger),
	)

	c := &Context{
		Store:   s,
		Bus:     b,
		Catalog: cat,
		Engine:  engine,
		Inbox:   inbox,
		origin:  o.origin,
		logger:  o.logger,
		detach:  func() {},
	}
	if o.inlineNotify {
		c.detach = inbox.Attach(c.WithOrigin(context.Background()), b)
	}

	o.logger.Info("core ready",
		slog.String("origin", o.origin),
		slog.Int("max_depth", o.maxDepth),
		slog.Bool("enforce_capacity", o.enforceCapacity),
		slog.Bool("inline_notifications", o.inlineNotify),
	)

	return c
}

// Origin returns the instance id of this core.
func (c *Context) Origin() string {
	return c.origin
}

// WithOrigin tags ctx so changes written under it carry this core's origin.
func (c *Context) WithOrigin(ctx context.Context) context.Context {
	return store.WithOrigin(ctx, c.origin)
}

// Exclusive runs fn as the only writer. fn must not call Exclusive again.
func (c *Context) Exclusive(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn()
}

// Presenter returns a presenter bound to actor.
func (c *Context) Presenter(actor model.Actor, opts ...presenter.Option) *presenter.Presenter {
	opts = append([]presenter.Option{presenter.WithLogger(c.logger)}, opts...)
	return presenter.New(actor, c.Catalog, c.Engine, c.Bus, opts...)
}

// Outbox returns the store's change outbox, if it keeps one.
func (c *Context) Outbox() (store.Outbox, bool) {
	o, ok := c.Store.(store.Outbox)
	return o, ok
}

// Feed returns the store's in-process change feed, if it has one.
func (c *Context) Feed() (store.Feed, bool) {
	f, ok := c.Store.(store.Feed)
	return f, ok
}

// Close releases subscriptions and closes the store.
func (c *Context) Close() error {
	var err error
	c.once.Do(func() {
		c.detach()
		c.Catalog.Close()
		err = c.Store.Close()
	})

	return err
}
