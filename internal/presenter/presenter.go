// Package presenter is the surface views consume: subscriptions that
// recompute on events, queries bound to the session actor, and commands
// that return a Result and raise one toast.
package presenter

import (
	"context"
	"iter"
	"log/slog"
	"sync"

	"github.com/learnsphere/moderation/internal/approval"
	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/catalog"
	"github.com/learnsphere/moderation/internal/model"
)

// Presenter binds the core to one authenticated actor.
type Presenter struct {
	actor    model.Actor
	catalog  *catalog.Catalog
	engine   *approval.Engine
	bus      *bus.Bus
	notifier Notifier
	logger   *slog.Logger
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithNotifier sets where toasts go; by default they are dropped.
func WithNotifier(n Notifier) Option {
	return func(p *Presenter) { p.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Presenter) { p.logger = logger }
}

// New creates a presenter for actor.
func New(actor model.Actor, c *catalog.Catalog, e *approval.Engine, b *bus.Bus, opts ...Option) *Presenter {
	p := &Presenter{
		actor:    actor,
		catalog:  c,
		engine:   e,
		bus:      b,
		notifier: NotifierFunc(func(Toast) {}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Actor returns the session actor.
func (p *Presenter) Actor() model.Actor {
	return p.actor
}

// Subscribe runs recompute now and again after every event in topics; an
// empty set means every topic. The returned release is idempotent.
func (p *Presenter) Subscribe(topics []model.Topic, recompute func()) (release func()) {
	var token bus.Token
	if len(topics) == 0 {
		token = p.bus.OnAll(func(model.Event) { recompute() })
	} else {
		token = p.bus.OnEach(topics, func(model.Event) { recompute() })
	}

	recompute()

	var once sync.Once
	return func() {
		once.Do(func() { p.bus.Off(token) })
	}
}

// Query returns the read surface for the session actor.
func (p *Presenter) Query() Queries {
	return Queries{p: p}
}

// Command returns the write surface for the session actor.
func (p *Presenter) Command() Commands {
	return Commands{p: p}
}

// Queries pass through to the catalog, pre-filtered for the session actor.
type Queries struct {
	p *Presenter
}

func (q Queries) Courses(ctx context.Context) (iter.Seq[model.Course], error) {
	return q.p.catalog.Courses(ctx, q.p.actor)
}

func (q Queries) Course(ctx context.Context, id string) (model.Course, error) {
	return q.p.catalog.Course(ctx, q.p.actor, id)
}

func (q Queries) PendingCourses(ctx context.Context) (iter.Seq[model.Course], error) {
	return q.p.catalog.PendingCourses(ctx, q.p.actor)
}

func (q Queries) RejectedCourses(ctx context.Context) (iter.Seq[model.Course], error) {
	return q.p.catalog.RejectedCourses(ctx, q.p.actor)
}

func (q Queries) Enrollments(ctx context.Context, state model.EnrollmentState) (iter.Seq[model.EnrollmentRequest], error) {
	return q.p.catalog.Enrollments(ctx, q.p.actor, state)
}

func (q Queries) Discussions(ctx context.Context, filter catalog.Filter) (iter.Seq[model.Discussion], error) {
	return q.p.catalog.Discussions(ctx, q.p.actor, filter)
}

func (q Queries) Discussion(ctx context.Context, id string) (model.Discussion, error) {
	return q.p.catalog.Discussion(ctx, q.p.actor, id)
}

func (q Queries) Notes(ctx context.Context, filter catalog.Filter) (iter.Seq[model.Note], error) {
	return q.p.catalog.Notes(ctx, q.p.actor, filter)
}

func (q Queries) Ratings(ctx context.Context, courseID string) (iter.Seq[model.Rating], error) {
	return q.p.catalog.Ratings(ctx, q.p.actor, courseID)
}

func (q Queries) RatingSummary(ctx context.Context, courseID string) (model.RatingSummary, error) {
	return q.p.catalog.RatingSummary(ctx, q.p.actor, courseID)
}

func (q Queries) Drafts(ctx context.Context) (iter.Seq[model.Draft], error) {
	return q.p.catalog.Drafts(ctx, q.p.actor)
}

func (q Queries) Users(ctx context.Context) (iter.Seq[model.Actor], error) {
	return q.p.catalog.Users(ctx, q.p.actor)
}

func (q Queries) Notifications(ctx context.Context) (iter.Seq[model.Notification], error) {
	return q.p.catalog.Notifications(ctx, q.p.actor)
}
