package approval

import (
	"context"
	"slices"

	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/store"
)

// requestSet holds the three enrolment buckets read in one transaction.
type requestSet struct {
	pending  []model.EnrollmentRequest
	approved []model.EnrollmentRequest
	rejected []model.EnrollmentRequest
}

func loadRequests(tx store.Tx) (*requestSet, error) {
	pending, err := store.Load[model.EnrollmentRequest](tx, store.BucketPendingEnrollments)
	if err != nil {
		return nil, err
	}
	approved, err := store.Load[model.EnrollmentRequest](tx, store.BucketApprovedEnrollments)
	if err != nil {
		return nil, err
	}
	rejected, err := store.Load[model.EnrollmentRequest](tx, store.BucketRejectedEnrollments)
	if err != nil {
		return nil, err
	}

	return &requestSet{pending: pending, approved: approved, rejected: rejected}, nil
}

// pendingIndex finds a pending request, or explains why the transition
// cannot start from the state the request is in.
func (s *requestSet) pendingIndex(id, action string, target model.EnrollmentState) (int, error) {
	byID := func(r model.EnrollmentRequest) bool { return r.ID == id }

	if i := slices.IndexFunc(s.pending, byID); i >= 0 {
		return i, nil
	}

	for state, list := range map[model.EnrollmentState][]model.EnrollmentRequest{
		model.EnrollmentApproved: s.approved,
		model.EnrollmentRejected: s.rejected,
	} {
		if slices.ContainsFunc(list, byID) {
			if state == target {
				return -1, model.AlreadyInState(action, string(state))
			}
			return -1, model.IllegalTransition(action, string(state))
		}
	}

	return -1, model.NotFound(model.KindEnrollment)
}

// ApproveEnrollment enrols the student: the request becomes approved, the
// course counter grows and the course joins the student's enrolled set.
// COURSE_FULL follows ENROLLMENT_APPROVED when the course reaches capacity.
func (e *Engine) ApproveEnrollment(ctx context.Context, actor model.Actor, requestID string) (model.EnrollmentRequest, error) {
	if err := requireApprover(actor, model.KindEnrollment); err != nil {
		return model.EnrollmentRequest{}, err
	}

	var approved model.EnrollmentRequest
	err := bus.Transact(ctx, e.store, e.bus, func(tx store.Tx, events *bus.Batch) error {
		requests, err := loadRequests(tx)
		if err != nil {
			return err
		}
		i, err := requests.pendingIndex(requestID, "approve enrollment", model.EnrollmentApproved)
		if err != nil {
			return err
		}

		courses, err := store.Load[model.Course](tx, store.BucketCourses)
		if err != nil {
			return err
		}
		j := slices.IndexFunc(courses, func(c model.Course) bool { return c.ID == requests.pending[i].CourseID })
		if j < 0 {
			return model.NotFound(model.KindCourse)
		}
		course := &courses[j]
		if course.IsFull() && e.enforceCapacity {
			return model.CapacityExceeded(course.Title)
		}

		approved = requests.pending[i]
		now := e.stamp()
		approved.Status = model.EnrollmentApproved
		approved.ApprovedAt, approved.ApprovedBy = now, actor.ID
		approved.DecidedAt, approved.DecidedBy = now, actor.ID

		requests.pending = slices.Delete(requests.pending, i, i+1)
		requests.approved = append(requests.approved, approved)
		course.CurrentEnrolment++

		if err := store.Save(tx, store.BucketPendingEnrollments, requests.pending); err != nil {
			return err
		}
		if err := store.Save(tx, store.BucketApprovedEnrollments, requests.approved); err != nil {
			return err
		}
		if err := store.Save(tx, store.BucketCourses, courses); err != nil {
			return err
		}
		err = updateUsers(tx, func(u *model.Actor) {
			if u.ID == approved.StudentID {
				u.Enroll(approved.CourseID)
			}
		})
		if err != nil {
			return err
		}

		if err := events.Stage(tx, model.TopicEnrollmentApproved, approved.ID, approved); err != nil {
			return err
		}
		if course.IsFull() {
			return events.Stage(tx, model.TopicCourseFull, course.ID, *course)
		}
		return nil
	})
	if err != nil {
		return model.EnrollmentRequest{}, e.fail("approve enrollment", actor, requestID, err)
	}

	return approved, nil
}

// RejectEnrollment moves a pending request to the rejected bucket.
func (e *Engine) RejectEnrollment(ctx context.Context, actor model.Actor, requestID string) (model.EnrollmentRequest, error) {
	if err := requireApprover(actor, model.KindEnrollment); err != nil {
		return model.EnrollmentRequest{}, err
	}

	var rejected model.EnrollmentRequest
	err := bus.Transact(ctx, e.store, e.bus, func(tx store.Tx, events *bus.Batch) error {
		requests, err := loadRequests(tx)
		if err != nil {
			return err
		}
		i, err := requests.pendingIndex(requestID, "reject enrollment", model.EnrollmentRejected)
		if err != nil {
			return err
		}

		rejected = requests.pending[i]
		now := e.stamp()
		rejected.Status = model.EnrollmentRejected
		rejected.RejectedAt, rejected.RejectedBy = now, actor.ID
		rejected.DecidedAt, rejected.DecidedBy = now, actor.ID

		requests.pending = slices.Delete(requests.pending, i, i+1)
		requests.rejected = append(requests.rejected, rejected)

		if err := store.Save(tx, store.BucketPendingEnrollments, requests.pending); err != nil {
			return err
		}
		if err := store.Save(tx, store.BucketRejectedEnrollments, requests.rejected); err != nil {
			return err
		}
		return events.Stage(tx, model.TopicEnrollmentRejected, rejected.ID, rejected)
	})
	if err != nil {
		return model.EnrollmentRequest{}, e.fail("reject enrollment", actor, requestID, err)
	}

	return rejected, nil
}
