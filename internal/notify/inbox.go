// Package notify turns moderation outcomes into inbox notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/store"
)

// Topics are the events that produce notifications.
var Topics = []model.Topic{
	model.TopicCourseCreated,
	model.TopicCourseApproved,
	model.TopicCourseRejected,
	model.TopicEnrollmentRequested,
	model.TopicEnrollmentApproved,
	model.TopicEnrollmentRejected,
}

// Inbox writes notifications into the notifications bucket.
type Inbox struct {
	store  bus.Updater
	bus    *bus.Bus
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithBus publishes NOTIFICATION_CREATED on b after each commit.
func WithBus(b *bus.Bus) Option {
	return func(i *Inbox) { i.bus = b }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Inbox) { i.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Inbox) { i.logger = logger }
}

// NewInbox creates an inbox over s.
func NewInbox(s bus.Updater, opts ...Option) *Inbox {
	i := &Inbox{
		store:  s,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.bus == nil {
		i.bus = bus.New(bus.WithLogger(i.logger))
	}

	return i
}

// Attach records notifications for events delivered on b. Use it only in
// a process that is the sole writer of notifications; otherwise each relay
// would record the same outcome again.
func (i *Inbox) Attach(ctx context.Context, b *bus.Bus) (release func()) {
	token := b.OnEach(Topics, func(ev model.Event) {
		if _, err := i.Record(ctx, ev); err != nil {
			i.logger.Error("failed to record notification",
				slog.String("topic", string(ev.Topic)),
				slog.String("entity_id", ev.EntityID),
				slog.String("error", err.Error()),
			)
		}
	})

	return func() { b.Off(token) }
}

// Record stores the notifications ev produces and returns those newly
// written. Recording the same event twice writes nothing the second time.
func (i *Inbox) Record(ctx context.Context, ev model.Event) ([]model.Notification, error) {
	var added []model.Notification

	err := bus.Transact(ctx, i.store, i.bus, func(tx store.Tx, events *bus.Batch) error {
		added = nil

		drafts, err := i.compose(tx, ev)
		if err != nil || len(drafts) == 0 {
			return err
		}

		inbox, err := store.Load[model.Notification](tx, store.BucketNotifications)
		if err != nil {
			return err
		}

		for _, n := range drafts {
			if slices.ContainsFunc(inbox, func(have model.Notification) bool { return have.ID == n.ID }) {
				continue
			}
			inbox = append(inbox, n)
			added = append(added, n)
		}
		if len(added) == 0 {
			return nil
		}

		if err := store.Save(tx, store.BucketNotifications, inbox); err != nil {
			return err
		}
		for _, n := range added {
			if err := events.Stage(tx, model.TopicNotificationCreated, n.ID, n); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record %s notifications: %w", ev.Topic, err)
	}

	if len(added) > 0 {
		i.logger.Info("recorded notifications",
			slog.String("topic", string(ev.Topic)),
			slog.String("entity_id", ev.EntityID),
			slog.Int("count", len(added)),
		)
	}

	return added, nil
}

func (i *Inbox) compose(r store.Reader, ev model.Event) ([]model.Notification, error) {
	switch p := ev.Payload.(type) {
	case model.Course:
		switch ev.Topic {
		case model.TopicCourseApproved:
			return i.one(ev, p.InstructorID, p.ID, "Course approved",
				fmt.Sprintf("Your course %q has been approved.", p.Title)), nil
		case model.TopicCourseRejected:
			return i.one(ev, p.InstructorID, p.ID, "Course rejected",
				fmt.Sprintf("Your course %q has been rejected.", p.Title)), nil
		case model.TopicCourseCreated:
			return i.admins(r, ev, p.ID, "New course pending approval",
				fmt.Sprintf("%s submitted %q for approval.", nameOr(p.InstructorName, "An instructor"), p.Title))
		}
	case model.EnrollmentRequest:
		switch ev.Topic {
		case model.TopicEnrollmentApproved:
			return i.one(ev, p.StudentID, p.CourseID, "Enrollment approved",
				fmt.Sprintf("Your enrollment in %q has been approved.", p.CourseName)), nil
		case model.TopicEnrollmentRejected:
			return i.one(ev, p.StudentID, p.CourseID, "Enrollment rejected",
				fmt.Sprintf("Your enrollment in %q has been rejected.", p.CourseName)), nil
		case model.TopicEnrollmentRequested:
			return i.admins(r, ev, p.CourseID, "New enrollment request",
				fmt.Sprintf("%s requested to join %q.", nameOr(p.StudentName, "A student"), p.CourseName))
		}
	}

	return nil, nil
}

func (i *Inbox) one(ev model.Event, recipientID, courseID, title, message string) []model.Notification {
	if recipientID == "" {
		return nil
	}

	return []model.Notification{i.build(ev, recipientID, courseID, title, message)}
}

func (i *Inbox) admins(r store.Reader, ev model.Event, courseID, title, message string) ([]model.Notification, error) {
	users, err := store.Load[model.Actor](r, store.BucketUsers)
	if err != nil {
		return nil, err
	}

	var out []model.Notification
	for _, u := range users {
		if u.IsAdmin() {
			out = append(out, i.build(ev, u.ID, courseID, title, message))
		}
	}

	return out, nil
}

func (i *Inbox) build(ev model.Event, recipientID, courseID, title, message string) model.Notification {
	return model.Notification{
		ID:          NotificationID(ev.Topic, ev.EntityID, recipientID),
		RecipientID: recipientID,
		Topic:       ev.Topic,
		Title:       title,
		Message:     message,
		CourseID:    courseID,
		CreatedAt:   i.now().UTC(),
	}
}

// NotificationID derives a stable id so redelivered events are recorded once.
func NotificationID(topic model.Topic, entityID, recipientID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(string(topic)+"/"+entityID+"/"+recipientID)).String()
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
