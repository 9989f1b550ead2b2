package approval

import (
	"context"
	"slices"

	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/policy"
	"github.com/learnsphere/moderation/internal/store"
)

// ApproveCourse moves a pending course to the active catalogue.
func (e *Engine) ApproveCourse(ctx context.Context, actor model.Actor, courseID string) (model.Course, error) {
	if err := requireApprover(actor, model.KindCourse); err != nil {
		return model.Course{}, err
	}

	var approved model.Course
	err := bus.Transact(ctx, e.store, e.bus, func(tx store.Tx, events *bus.Batch) error {
		courses, err := loadCourses(tx)
		if err != nil {
			return err
		}

		state, found := courses.state(courseID)
		switch {
		case !found:
			return model.NotFound(model.KindCourse)
		case state == model.CourseActive:
			return model.AlreadyInState("approve course", "active")
		case state != model.CoursePending:
			return model.IllegalTransition("approve course", string(state))
		}

		approved, _ = courses.take(courseID)
		now := e.stamp()
		approved.Status = model.CourseActive
		approved.ApprovedAt, approved.ApprovedBy = now, actor.ID
		approved.DecidedAt, approved.DecidedBy = now, actor.ID
		courses.active = append(courses.active, approved)

		if err := courses.save(tx); err != nil {
			return err
		}
		err = updateUsers(tx, func(u *model.Actor) {
			if u.ID == approved.InstructorID {
				u.Teach(approved.ID)
			}
		})
		if err != nil {
			return err
		}

		return events.Stage(tx, model.TopicCourseApproved, approved.ID, approved)
	})
	if err != nil {
		return model.Course{}, e.fail("approve course", actor, courseID, err)
	}

	return approved, nil
}

// RejectCourse moves a pending course to the rejected bucket.
func (e *Engine) RejectCourse(ctx context.Context, actor model.Actor, courseID string) (model.Course, error) {
	if err := requireApprover(actor, model.KindCourse); err != nil {
		return model.Course{}, err
	}

	var rejected model.Course
	err := bus.Transact(ctx, e.store, e.bus, func(tx store.Tx, events *bus.Batch) error {
		courses, err := loadCourses(tx)
		if err != nil {
			return err
		}

		state, found := courses.state(courseID)
		switch {
		case !found:
			return model.NotFound(model.KindCourse)
		case state == model.CourseRejected:
			return model.AlreadyInState("reject course", "rejected")
		case state != model.CoursePending:
			return model.IllegalTransition("reject course", string(state))
		}

		rejected, _ = courses.take(courseID)
		now := e.stamp()
		rejected.Status = model.CourseRejected
		rejected.RejectedAt, rejected.RejectedBy = now, actor.ID
		rejected.DecidedAt, rejected.DecidedBy = now, actor.ID
		courses.rejected = append(courses.rejected, rejected)

		if err := courses.save(tx); err != nil {
			return err
		}
		return events.Stage(tx, model.TopicCourseRejected, rejected.ID, rejected)
	})
	if err != nil {
		return model.Course{}, e.fail("reject course", actor, courseID, err)
	}

	return rejected, nil
}

// DeleteCourse removes an active or rejected course together with every
// discussion, note, rating and enrolment record that references it. Events
// follow in a fixed order: the course, then discussions, notes, ratings and
// enrolments.
func (e *Engine) DeleteCourse(ctx context.Context, actor model.Actor, courseID string) error {
	err := bus.Transact(ctx, e.store, e.bus, func(tx store.Tx, events *bus.Batch) error {
		courses, err := loadCourses(tx)
		if err != nil {
			return err
		}

		state, found := courses.state(courseID)
		if !found {
			if actor.IsAdmin() {
				return model.NotFound(model.KindCourse)
			}
			return model.Forbidden()
		}

		course, _ := courses.take(courseID)
		if !policy.CanDelete(actor, course, nil) {
			return model.Forbidden()
		}
		if state == model.CoursePending {
			return model.IllegalTransition("delete course", string(state))
		}

		now := e.stamp()
		course.Status = model.CourseDeleted
		course.DecidedAt, course.DecidedBy = now, actor.ID

		if err := courses.save(tx); err != nil {
			return err
		}
		if err := events.Stage(tx, model.TopicCourseDeleted, course.ID, course); err != nil {
			return err
		}

		if err := cascade(tx, events, store.BucketDiscussions, model.TopicDiscussionDeleted,
			func(d model.Discussion) (string, bool) { return d.ID, d.CourseID == courseID }); err != nil {
			return err
		}
		if err := cascade(tx, events, store.BucketDiscussionNotes, model.TopicNoteDeleted,
			func(n model.Note) (string, bool) { return n.ID, n.CourseID == courseID }); err != nil {
			return err
		}
		if err := cascade(tx, events, store.BucketCourseRatings, model.TopicRatingDeleted,
			func(r model.Rating) (string, bool) { return r.Key, r.CourseID == courseID }); err != nil {
			return err
		}
		for _, bucket := range []string{
			store.BucketPendingEnrollments,
			store.BucketApprovedEnrollments,
			store.BucketRejectedEnrollments,
		} {
			if err := cascade(tx, events, bucket, model.TopicEnrollmentCancelled,
				func(r model.EnrollmentRequest) (string, bool) { return r.ID, r.CourseID == courseID }); err != nil {
				return err
			}
		}

		if err := unlink(tx, store.BucketDrafts, func(d *model.Draft) *string { return &d.CourseID }, courseID); err != nil {
			return err
		}
		if err := unlink(tx, store.BucketNotifications, func(n *model.Notification) *string { return &n.CourseID }, courseID); err != nil {
			return err
		}

		return updateUsers(tx, func(u *model.Actor) { u.Forget(courseID) })
	})
	if err != nil {
		return e.fail("delete course", actor, courseID, err)
	}

	return nil
}

// cascade drops the records of bucket that match and stages one event per
// dropped record, in stored order.
func cascade[T any](tx store.Tx, events *bus.Batch, bucket string, topic model.Topic, match func(T) (string, bool)) error {
	items, err := store.Load[T](tx, bucket)
	if err != nil {
		return err
	}

	var dropped []T
	kept := slices.DeleteFunc(slices.Clone(items), func(item T) bool {
		_, hit := match(item)
		if hit {
			dropped = append(dropped, item)
		}
		return hit
	})
	if len(dropped) == 0 {
		return nil
	}

	if err := store.Save(tx, bucket, kept); err != nil {
		return err
	}
	for _, item := range dropped {
		id, _ := match(item)
		if err := events.Stage(tx, topic, id, item); err != nil {
			return err
		}
	}

	return nil
}

// unlink clears the course reference of every record in bucket that points
// at courseID. The records themselves stay.
func unlink[T any](tx store.Tx, bucket string, ref func(*T) *string, courseID string) error {
	items, err := store.Load[T](tx, bucket)
	if err != nil {
		return err
	}

	changed := false
	for i := range items {
		if id := ref(&items[i]); *id == courseID {
			*id = ""
			changed = true
		}
	}
	if !changed {
		return nil
	}

	return store.Save(tx, bucket, items)
}
