package catalog

import (
	"context"
	"fmt"
	"slices"

	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/policy"
	"github.com/learnsphere/moderation/internal/store"
)

// CreateCourse submits a course for approval.
func (c *Catalog) CreateCourse(ctx context.Context, actor model.Actor, fields model.CourseFields) (model.Course, error) {
	if !policy.CanCreateCourse(actor) {
		return model.Course{}, model.Forbidden()
	}
	if err := c.check(fields); err != nil {
		return model.Course{}, err
	}

	now := c.stamp()
	course := model.Course{
		ID:             c.newID(),
		Title:          fields.Title,
		Description:    fields.Description,
		Category:       fields.Category,
		Level:          fields.Level,
		Duration:       fields.Duration,
		Capacity:       fields.Capacity,
		Image:          fields.Image,
		Prerequisites:  fields.Prerequisites,
		Objectives:     fields.Objectives,
		InstructorID:   actor.ID,
		InstructorName: actor.Name,
		Status:         model.CoursePending,
		CreatedAt:      now,
		SubmittedAt:    now,
	}

	err := c.transact(ctx, func(tx store.Tx, events *bus.Batch) error {
		pending, err := store.Load[model.Course](tx, store.BucketPendingCourses)
		if err != nil {
			return err
		}
		if err := store.Save(tx, store.BucketPendingCourses, append(pending, course)); err != nil {
			return err
		}
		return events.Stage(tx, model.TopicCourseCreated, course.ID, course)
	})
	if err != nil {
		return model.Course{}, err
	}

	return course, nil
}

// RequestEnrollment files a pending enrolment request for an active course.
func (c *Catalog) RequestEnrollment(ctx context.Context, actor model.Actor, courseID string) (model.EnrollmentRequest, error) {
	if !policy.Decide(actor, policy.CapCreate, model.KindEnrollment, nil).Permitted() {
		return model.EnrollmentRequest{}, model.Forbidden()
	}

	var req model.EnrollmentRequest
	err := c.transact(ctx, func(tx store.Tx, events *bus.Batch) error {
		courses, err := store.Load[model.Course](tx, store.BucketCourses)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(courses, func(co model.Course) bool { return co.ID == courseID })
		if i < 0 {
			return model.NotFound(model.KindCourse)
		}
		course := courses[i]

		pending, err := store.Load[model.EnrollmentRequest](tx, store.BucketPendingEnrollments)
		if err != nil {
			return err
		}
		mine := func(r model.EnrollmentRequest) bool { return r.StudentID == actor.ID && r.CourseID == courseID }
		if slices.ContainsFunc(pending, mine) {
			return model.AlreadyPending("an enrollment request for this course is already pending")
		}

		approved, err := store.Load[model.EnrollmentRequest](tx, store.BucketApprovedEnrollments)
		if err != nil {
			return err
		}
		if slices.ContainsFunc(approved, mine) {
			return model.AlreadyPending("already enrolled in this course")
		}

		users, err := store.Load[model.Actor](tx, store.BucketUsers)
		if err != nil {
			return err
		}
		student := actor
		if j := slices.IndexFunc(users, func(u model.Actor) bool { return u.ID == actor.ID }); j >= 0 {
			student = users[j]
		}

		req = model.EnrollmentRequest{
			ID:            c.newID(),
			StudentID:     student.ID,
			StudentName:   student.Name,
			StudentEmail:  student.Email,
			StudentAvatar: student.Avatar,
			CourseID:      course.ID,
			CourseName:    course.Title,
			RequestedAt:   c.stamp(),
			Status:        model.EnrollmentPending,
		}
		if err := store.Save(tx, store.BucketPendingEnrollments, append(pending, req)); err != nil {
			return err
		}
		return events.Stage(tx, model.TopicEnrollmentRequested, req.ID, req)
	})
	if err != nil {
		return model.EnrollmentRequest{}, err
	}

	return req, nil
}

// Delete removes an entity. Courses go through the approval engine and
// cascade; enrolment records only move through their state machine.
func (c *Catalog) Delete(ctx context.Context, actor model.Actor, ref model.EntityRef) error {
	switch ref.Kind {
	case model.KindCourse:
		if c.courses == nil {
			return model.ValidationFailed("kind", "course deletion is not configured")
		}
		return c.courses.DeleteCourse(ctx, actor, ref.ID)
	case model.KindDiscussion:
		return deleteOne(ctx, c, actor, ref, store.BucketDiscussions, model.TopicDiscussionDeleted,
			func(d model.Discussion) string { return d.ID })
	case model.KindNote:
		return deleteOne(ctx, c, actor, ref, store.BucketDiscussionNotes, model.TopicNoteDeleted,
			func(n model.Note) string { return n.ID })
	case model.KindRating:
		return deleteOne(ctx, c, actor, ref, store.BucketCourseRatings, model.TopicRatingDeleted,
			func(r model.Rating) string { return r.Key })
	case model.KindEnrollment:
		return c.deleteEnrollment(ctx, actor, ref.ID)
	case model.KindUser:
		return c.DeleteUser(ctx, actor, ref.ID)
	}

	return model.ValidationFailed("kind", fmt.Sprintf("unknown entity kind %q", ref.Kind))
}

func deleteOne[T any](ctx context.Context, c *Catalog, actor model.Actor, ref model.EntityRef,
	bucket string, topic model.Topic, key func(T) string) error {
	return c.transact(ctx, func(tx store.Tx, events *bus.Batch) error {
		f, err := loadFacts(tx)
		if err != nil {
			return err
		}
		items, err := store.Load[T](tx, bucket)
		if err != nil {
			return err
		}

		i := slices.IndexFunc(items, func(item T) bool { return key(item) == ref.ID })
		if i < 0 {
			return conceal(actor, ref.Kind, false, false)
		}
		target := items[i]
		if !policy.CanView(actor, target, f) || !policy.CanDelete(actor, target, f) {
			return model.Forbidden()
		}

		if err := store.Save(tx, bucket, slices.Delete(items, i, i+1)); err != nil {
			return err
		}
		return events.Stage(tx, topic, ref.ID, target)
	})
}

func (c *Catalog) deleteEnrollment(ctx context.Context, actor model.Actor, id string) error {
	f, err := loadFacts(c.reader(ctx))
	if err != nil {
		return err
	}

	for _, state := range []model.EnrollmentState{model.EnrollmentPending, model.EnrollmentApproved, model.EnrollmentRejected} {
		bucket, _ := enrollmentBucket(state)
		requests, err := store.Load[model.EnrollmentRequest](c.reader(ctx), bucket)
		if err != nil {
			return err
		}
		for _, req := range requests {
			if req.ID != id {
				continue
			}
			if !policy.CanView(actor, req, f) {
				return model.Forbidden()
			}
			return model.IllegalTransition("delete enrollment", string(req.Status))
		}
	}

	return conceal(actor, model.KindEnrollment, false, false)
}

// DeleteUser removes a user record. Admins cannot remove themselves.
func (c *Catalog) DeleteUser(ctx context.Context, actor model.Actor, userID string) error {
	if !policy.CanManageUsers(actor) {
		return model.Forbidden()
	}
	if userID == actor.ID {
		return model.ValidationFailed("userId", "cannot delete your own account")
	}

	return c.transact(ctx, func(tx store.Tx, events *bus.Batch) error {
		users, err := store.Load[model.Actor](tx, store.BucketUsers)
		if err != nil {
			return err
		}

		i := slices.IndexFunc(users, func(u model.Actor) bool { return u.ID == userID })
		if i < 0 {
			return model.NotFound(model.KindUser)
		}
		user := users[i]

		if err := store.Save(tx, store.BucketUsers, slices.Delete(users, i, i+1)); err != nil {
			return err
		}
		return events.Stage(tx, model.TopicUserDeleted, user.ID, user)
	})
}

// SaveDraft stores a new draft or replaces one of the actor's own.
func (c *Catalog) SaveDraft(ctx context.Context, actor model.Actor, draft model.Draft) (model.Draft, error) {
	if !actor.Role.IsValid() || !actor.IsActive() {
		return model.Draft{}, model.Forbidden()
	}
	if err := c.check(draft); err != nil {
		return model.Draft{}, err
	}

	draft.AuthorID = actor.ID
	draft.SavedAt = c.stamp()

	err := c.transact(ctx, func(tx store.Tx, _ *bus.Batch) error {
		drafts, err := store.Load[model.Draft](tx, store.BucketDrafts)
		if err != nil {
			return err
		}

		if draft.ID == "" {
			draft.ID = c.newID()
			return store.Save(tx, store.BucketDrafts, append(drafts, draft))
		}

		i := slices.IndexFunc(drafts, func(d model.Draft) bool { return d.ID == draft.ID })
		if i < 0 || drafts[i].AuthorID != actor.ID {
			return conceal(actor, "draft", i >= 0, false)
		}
		drafts[i] = draft
		return store.Save(tx, store.BucketDrafts, drafts)
	})
	if err != nil {
		return model.Draft{}, err
	}

	return draft, nil
}

// DeleteDraft removes one of the actor's own drafts.
func (c *Catalog) DeleteDraft(ctx context.Context, actor model.Actor, id string) error {
	return c.transact(ctx, func(tx store.Tx, _ *bus.Batch) error {
		drafts, err := store.Load[model.Draft](tx, store.BucketDrafts)
		if err != nil {
			return err
		}

		i := slices.IndexFunc(drafts, func(d model.Draft) bool { return d.ID == id })
		if i < 0 || !policy.CanDelete(actor, drafts[i], nil) {
			return conceal(actor, "draft", i >= 0, false)
		}
		return store.Save(tx, store.BucketDrafts, slices.Delete(drafts, i, i+1))
	})
}

// MarkRead marks one of the actor's notifications read.
func (c *Catalog) MarkRead(ctx context.Context, actor model.Actor, id string) (model.Notification, error) {
	var marked model.Notification

	err := c.transact(ctx, func(tx store.Tx, _ *bus.Batch) error {
		inbox, err := store.Load[model.Notification](tx, store.BucketNotifications)
		if err != nil {
			return err
		}

		i := slices.IndexFunc(inbox, func(n model.Notification) bool { return n.ID == id })
		if i < 0 || inbox[i].RecipientID != actor.ID {
			return conceal(actor, "notification", i >= 0, false)
		}
		if inbox[i].Read {
			return model.AlreadyInState("mark read", "read")
		}

		inbox[i].Read = true
		marked = inbox[i]
		return store.Save(tx, store.BucketNotifications, inbox)
	})
	if err != nil {
		return model.Notification{}, err
	}

	return marked, nil
}

// Seed writes users when the users bucket is empty.
func (c *Catalog) Seed(ctx context.Context, users []model.Actor) (bool, error) {
	seeded := false

	err := c.transact(ctx, func(tx store.Tx, _ *bus.Batch) error {
		seeded = false
		existing, err := tx.Read(store.BucketUsers)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}

		seeded = true
		return store.Save(tx, store.BucketUsers, users)
	})

	return seeded, err
}
