// Package approval owns the course and enrolment state machines. No other
// package moves records between the pending and terminal buckets.
package approval

import (
	"log/slog"
	"slices"
	"time"

	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/policy"
	"github.com/learnsphere/moderation/internal/store"
)

// Engine applies legal transitions only. Every operation reads the record
// afresh inside its transaction, so a failed call may simply be retried.
type Engine struct {
	store           store.Store
	bus             *bus.Bus
	enforceCapacity bool
	now             func() time.Time
	logger          *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCapacityEnforced makes approving into a full course fail CapacityExceeded.
func WithCapacityEnforced(enforce bool) Option {
	return func(e *Engine) { e.enforceCapacity = enforce }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an engine over s publishing on b.
func New(s store.Store, b *bus.Bus, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		bus:    b,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) stamp() *time.Time {
	t := e.now().UTC()
	return &t
}

// courseSet holds the three course buckets read in one transaction.
type courseSet struct {
	active   []model.Course
	pending  []model.Course
	rejected []model.Course
}

func loadCourses(tx store.Tx) (*courseSet, error) {
	active, err := store.Load[model.Course](tx, store.BucketCourses)
	if err != nil {
		return nil, err
	}
	pending, err := store.Load[model.Course](tx, store.BucketPendingCourses)
	if err != nil {
		return nil, err
	}
	rejected, err := store.Load[model.Course](tx, store.BucketRejectedCourses)
	if err != nil {
		return nil, err
	}

	return &courseSet{active: active, pending: pending, rejected: rejected}, nil
}

// state reports where id lives. Legacy pendingCourses entries marked
// rejected count as rejected.
func (s *courseSet) state(id string) (model.CourseState, bool) {
	byID := func(c model.Course) bool { return c.ID == id }

	if slices.ContainsFunc(s.active, byID) {
		return model.CourseActive, true
	}
	if slices.ContainsFunc(s.rejected, byID) {
		return model.CourseRejected, true
	}
	if i := slices.IndexFunc(s.pending, byID); i >= 0 {
		if s.pending[i].Status == model.CourseRejected {
			return model.CourseRejected, true
		}
		return model.CoursePending, true
	}

	return "", false
}

func (s *courseSet) save(tx store.Tx) error {
	if err := store.Save(tx, store.BucketCourses, s.active); err != nil {
		return err
	}
	if err := store.Save(tx, store.BucketPendingCourses, s.pending); err != nil {
		return err
	}
	return store.Save(tx, store.BucketRejectedCourses, s.rejected)
}

// take removes id from whichever bucket holds it.
func (s *courseSet) take(id string) (model.Course, bool) {
	for _, list := range []*[]model.Course{&s.active, &s.rejected, &s.pending} {
		if i := slices.IndexFunc(*list, func(c model.Course) bool { return c.ID == id }); i >= 0 {
			c := (*list)[i]
			*list = slices.Delete(*list, i, i+1)
			return c, true
		}
	}
	return model.Course{}, false
}

// updateUsers applies fn to every user record and writes the bucket back.
func updateUsers(tx store.Tx, fn func(u *model.Actor)) error {
	users, err := store.Load[model.Actor](tx, store.BucketUsers)
	if err != nil {
		return err
	}
	for i := range users {
		fn(&users[i])
	}
	return store.Save(tx, store.BucketUsers, users)
}

func (e *Engine) fail(op string, actor model.Actor, id string, err error) error {
	e.logger.Info("transition refused",
		slog.String("op", op),
		slog.String("actor", actor.ID),
		slog.String("id", id),
		slog.String("kind", string(model.KindOf(err))),
	)
	return err
}

func requireApprover(actor model.Actor, kind model.EntityKind) error {
	if !policy.CanApprove(actor, kind) {
		return model.Forbidden()
	}
	return nil
}
