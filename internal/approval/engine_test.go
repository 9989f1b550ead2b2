package approval

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/catalog"
	"github.com/learnsphere/moderation/internal/logger"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/store"
)

var (
	admin      = model.Actor{ID: "a1", Name: "Ada", Role: model.RoleAdmin, Status: model.ActorActive}
	admin2     = model.Actor{ID: "a2", Name: "Abe", Role: model.RoleAdmin, Status: model.ActorActive}
	instructor = model.Actor{ID: "i1", Name: "Ian", Role: model.RoleInstructor, Status: model.ActorActive}
	other      = model.Actor{ID: "i2", Name: "Ivy", Role: model.RoleInstructor, Status: model.ActorActive}
	s1         = model.Actor{ID: "s1", Name: "Sam", Email: "sam@example.com", Role: model.RoleStudent, Status: model.ActorActive}
	s2         = model.Actor{ID: "s2", Name: "Sue", Email: "sue@example.com", Role: model.RoleStudent, Status: model.ActorActive}
	s3         = model.Actor{ID: "s3", Name: "Sid", Email: "sid@example.com", Role: model.RoleStudent, Status: model.ActorActive}
)

var clock = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *store.Memory
	bus    *bus.Bus
	engine *Engine
	cat    *catalog.Catalog
	events []model.Event
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	fx := &fixture{store: store.NewMemory(), bus: bus.New(bus.WithLogger(logger.Discard()))}
	fx.engine = New(fx.store, fx.bus, append([]Option{
		WithLogger(logger.Discard()),
		WithClock(func() time.Time { return clock }),
	}, opts...)...)
	fx.cat = catalog.New(fx.store, fx.bus, catalog.WithLogger(logger.Discard()), catalog.WithCourseDeleter(fx.engine))
	fx.bus.OnAll(func(ev model.Event) { fx.events = append(fx.events, ev) })

	_, err := fx.cat.Seed(context.Background(), []model.Actor{admin, admin2, instructor, other, s1, s2, s3})
	require.NoError(t, err)

	return fx
}

func (fx *fixture) topics() []model.Topic {
	out := make([]model.Topic, len(fx.events))
	for i, ev := range fx.events {
		out[i] = ev.Topic
	}
	return out
}

func (fx *fixture) reset() { fx.events = nil }

func load[T any](t *testing.T, fx *fixture, bucket string) []T {
	t.Helper()
	records, err := fx.store.Read(context.Background(), bucket)
	require.NoError(t, err)
	items, err := store.Decode[T](bucket, records)
	require.NoError(t, err)
	return items
}

func createCourse(t *testing.T, fx *fixture, title string, capacity int) model.Course {
	t.Helper()
	course, err := fx.cat.CreateCourse(context.Background(), instructor, model.CourseFields{
		Title: title, Description: "d", Category: "Web", Level: model.LevelBeginner, Duration: "4 weeks", Capacity: capacity,
	})
	require.NoError(t, err)
	return course
}

func enroll(t *testing.T, fx *fixture, student model.Actor, courseID string) model.EnrollmentRequest {
	t.Helper()
	ctx := context.Background()
	req, err := fx.cat.RequestEnrollment(ctx, student, courseID)
	require.NoError(t, err)
	approved, err := fx.engine.ApproveEnrollment(ctx, admin, req.ID)
	require.NoError(t, err)
	return approved
}

func TestCreateApproveView(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	course := createCourse(t, fx, "React 101", 30)
	assert.Equal(t, []model.Topic{model.TopicCourseCreated}, fx.topics())

	approved, err := fx.engine.ApproveCourse(ctx, admin, course.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CourseActive, approved.Status)
	assert.Equal(t, "a1", approved.ApprovedBy)
	assert.Equal(t, clock, *approved.ApprovedAt)
	assert.Equal(t, "a1", approved.DecidedBy)

	assert.Empty(t, load[model.Course](t, fx, store.BucketPendingCourses))
	active := load[model.Course](t, fx, store.BucketCourses)
	require.Len(t, active, 1)
	assert.Equal(t, model.CourseActive, active[0].Status)
	assert.NotNil(t, active[0].ApprovedAt)

	enroll(t, fx, s1, course.ID)

	seq, err := fx.cat.Courses(ctx, s1)
	require.NoError(t, err)
	got := slices.Collect(seq)
	require.Len(t, got, 1, "appears exactly once")
	assert.Equal(t, "React 101", got[0].Title)
	assert.Equal(t, model.CourseActive, got[0].Status)

	users := load[model.Actor](t, fx, store.BucketUsers)
	i := slices.IndexFunc(users, func(u model.Actor) bool { return u.ID == "i1" })
	assert.Contains(t, users[i].TeachingCourseIDs, course.ID)
}

func TestRejectedEnrollment(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	course := createCourse(t, fx, "React 101", 30)
	_, err := fx.engine.ApproveCourse(ctx, admin, course.ID)
	require.NoError(t, err)
	fx.reset()

	req, err := fx.cat.RequestEnrollment(ctx, s2, course.ID)
	require.NoError(t, err)
	rejected, err := fx.engine.RejectEnrollment(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentRejected, rejected.Status)
	assert.Equal(t, "a1", rejected.DecidedBy)
	assert.NotNil(t, rejected.DecidedAt)

	assert.Empty(t, load[model.EnrollmentRequest](t, fx, store.BucketPendingEnrollments))
	stored := load[model.EnrollmentRequest](t, fx, store.BucketRejectedEnrollments)
	require.Len(t, stored, 1)
	assert.NotNil(t, stored[0].DecidedAt)

	seq, err := fx.cat.Courses(ctx, s2)
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(seq))

	assert.Equal(t, []model.Topic{model.TopicEnrollmentRequested, model.TopicEnrollmentRejected}, fx.topics())

	_, err = fx.engine.ApproveEnrollment(ctx, admin, req.ID)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
	assert.False(t, model.AsError(err).NoOp)

	_, err = fx.cat.RequestEnrollment(ctx, s2, course.ID)
	assert.NoError(t, err, "a rejected student may ask again")
}

func TestDoubleApproveIsNoOp(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	course := createCourse(t, fx, "React 101", 30)
	fx.reset()

	_, err := fx.engine.ApproveCourse(ctx, admin, course.ID)
	require.NoError(t, err)
	before := fx.store.Snapshot()

	_, err = fx.engine.ApproveCourse(ctx, admin2, course.ID)
	require.ErrorIs(t, err, model.ErrIllegalTransition)
	assert.True(t, model.AsError(err).NoOp)

	assert.Equal(t, before, fx.store.Snapshot())
	assert.Equal(t, []model.Topic{model.TopicCourseApproved}, fx.topics())
}

func TestCourseTransitions(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	course := createCourse(t, fx, "React 101", 30)

	_, err := fx.engine.ApproveCourse(ctx, instructor, course.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	err = fx.engine.DeleteCourse(ctx, instructor, course.ID)
	assert.ErrorIs(t, err, model.ErrIllegalTransition, "pending has no delete arc")

	rejected, err := fx.engine.RejectCourse(ctx, admin, course.ID)
	require.NoError(t, err)
	assert.Equal(t, "a1", rejected.RejectedBy)
	assert.Equal(t, "a1", rejected.DecidedBy)

	stored := load[model.Course](t, fx, store.BucketRejectedCourses)
	require.Len(t, stored, 1)
	assert.NotNil(t, stored[0].DecidedAt)

	_, err = fx.engine.RejectCourse(ctx, admin, course.ID)
	assert.True(t, model.AsError(err).NoOp)
	_, err = fx.engine.ApproveCourse(ctx, admin, course.ID)
	require.ErrorIs(t, err, model.ErrIllegalTransition)
	assert.False(t, model.AsError(err).NoOp)

	err = fx.engine.DeleteCourse(ctx, other, course.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)
	require.NoError(t, fx.engine.DeleteCourse(ctx, instructor, course.ID))
	assert.Empty(t, load[model.Course](t, fx, store.BucketRejectedCourses))

	err = fx.engine.DeleteCourse(ctx, instructor, course.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)
	err = fx.engine.DeleteCourse(ctx, admin, course.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLegacyRejectedEntryInPendingBucket(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	require.NoError(t, fx.store.Update(ctx, func(tx store.Tx) error {
		return store.Save(tx, store.BucketPendingCourses, []model.Course{
			{ID: "old", InstructorID: "i1", Status: model.CourseRejected},
		})
	}))

	_, err := fx.engine.ApproveCourse(ctx, admin, "old")
	assert.ErrorIs(t, err, model.ErrIllegalTransition)

	require.NoError(t, fx.engine.DeleteCourse(ctx, admin, "old"))
	assert.Empty(t, load[model.Course](t, fx, store.BucketPendingCourses))
}

func TestCascadeDelete(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	course := createCourse(t, fx, "React 101", 30)
	keep := createCourse(t, fx, "Vue 101", 30)
	_, err := fx.engine.ApproveCourse(ctx, admin, course.ID)
	require.NoError(t, err)
	_, err = fx.engine.ApproveCourse(ctx, admin, keep.ID)
	require.NoError(t, err)

	enroll(t, fx, s1, course.ID)
	enroll(t, fx, s1, keep.ID)
	_, err = fx.cat.RequestEnrollment(ctx, s2, course.ID)
	require.NoError(t, err)

	d1, err := fx.cat.PostDiscussion(ctx, s1, course.ID, model.DiscussionDraft{Title: "Q", Content: "?"})
	require.NoError(t, err)
	_, err = fx.cat.PostDiscussion(ctx, s1, keep.ID, model.DiscussionDraft{Title: "Other", Content: "!"})
	require.NoError(t, err)
	n1, err := fx.cat.AddNote(ctx, s1, course.ID, model.NotePayload{Title: "Docs", Kind: model.NoteLink, URL: "https://react.dev"})
	require.NoError(t, err)
	_, err = fx.cat.Rate(ctx, s1, course.ID, 4, "")
	require.NoError(t, err)
	fx.reset()

	require.NoError(t, fx.cat.Delete(ctx, admin, model.EntityRef{Kind: model.KindCourse, ID: course.ID}))

	refersTo := func(courseID string) bool { return courseID == course.ID }
	for _, d := range load[model.Discussion](t, fx, store.BucketDiscussions) {
		assert.False(t, refersTo(d.CourseID))
	}
	assert.Len(t, load[model.Discussion](t, fx, store.BucketDiscussions), 1)
	assert.Empty(t, load[model.Note](t, fx, store.BucketDiscussionNotes))
	assert.Empty(t, load[model.Rating](t, fx, store.BucketCourseRatings))
	assert.Empty(t, load[model.EnrollmentRequest](t, fx, store.BucketPendingEnrollments))
	approved := load[model.EnrollmentRequest](t, fx, store.BucketApprovedEnrollments)
	require.Len(t, approved, 1)
	assert.Equal(t, keep.ID, approved[0].CourseID)

	users := load[model.Actor](t, fx, store.BucketUsers)
	for _, u := range users {
		assert.NotContains(t, u.EnrolledCourseIDs, course.ID)
		assert.NotContains(t, u.TeachingCourseIDs, course.ID)
	}

	assert.Equal(t, []model.Topic{
		model.TopicCourseDeleted,
		model.TopicDiscussionDeleted,
		model.TopicNoteDeleted,
		model.TopicRatingDeleted,
		model.TopicEnrollmentCancelled,
		model.TopicEnrollmentCancelled,
	}, fx.topics())
	assert.Equal(t, d1.ID, fx.events[1].EntityID)
	assert.Equal(t, n1.ID, fx.events[2].EntityID)
	assert.Equal(t, model.RatingKey("s1", course.ID), fx.events[3].EntityID)
}

func TestDeleteCourseUnlinksDraftsAndNotifications(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	course := createCourse(t, fx, "React 101", 30)
	_, err := fx.engine.ApproveCourse(ctx, admin, course.ID)
	require.NoError(t, err)
	enroll(t, fx, s1, course.ID)

	draft, err := fx.cat.SaveDraft(ctx, s1, model.Draft{CourseID: course.ID, Title: "Later"})
	require.NoError(t, err)
	_, err = fx.cat.SaveDraft(ctx, s1, model.Draft{Title: "Loose"})
	require.NoError(t, err)

	inbox, err := store.Encode([]model.Notification{
		{ID: "n1", RecipientID: "s1", Topic: model.TopicEnrollmentApproved, CourseID: course.ID},
		{ID: "n2", RecipientID: "s1", Topic: model.TopicCourseApproved, CourseID: "elsewhere"},
	})
	require.NoError(t, err)
	require.NoError(t, fx.store.Write(ctx, store.BucketNotifications, inbox))

	require.NoError(t, fx.engine.DeleteCourse(ctx, admin, course.ID))

	drafts := load[model.Draft](t, fx, store.BucketDrafts)
	require.Len(t, drafts, 2)
	for _, d := range drafts {
		assert.Empty(t, d.CourseID)
	}
	assert.Equal(t, draft.ID, drafts[0].ID)

	notifications := load[model.Notification](t, fx, store.BucketNotifications)
	require.Len(t, notifications, 2)
	assert.Empty(t, notifications[0].CourseID)
	assert.Equal(t, "elsewhere", notifications[1].CourseID)
}

func TestCapacityEnforced(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, WithCapacityEnforced(true))
	course := createCourse(t, fx, "Tiny", 2)
	_, err := fx.engine.ApproveCourse(ctx, admin, course.ID)
	require.NoError(t, err)

	enroll(t, fx, s1, course.ID)
	fx.reset()

	// Reaching the cap exactly still approves and hints COURSE_FULL after the transition.
	enroll(t, fx, s2, course.ID)
	assert.Equal(t, []model.Topic{
		model.TopicEnrollmentRequested,
		model.TopicEnrollmentApproved,
		model.TopicCourseFull,
	}, fx.topics())

	req, err := fx.cat.RequestEnrollment(ctx, s3, course.ID)
	require.NoError(t, err)
	_, err = fx.engine.ApproveEnrollment(ctx, admin, req.ID)
	assert.ErrorIs(t, err, model.ErrCapacityExceeded)

	active := load[model.Course](t, fx, store.BucketCourses)
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].CurrentEnrolment)
	assert.Len(t, load[model.EnrollmentRequest](t, fx, store.BucketPendingEnrollments), 1)
}

func TestCapacityAdvisory(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	course := createCourse(t, fx, "Tiny", 1)
	_, err := fx.engine.ApproveCourse(ctx, admin, course.ID)
	require.NoError(t, err)

	enroll(t, fx, s1, course.ID)
	fx.reset()
	enroll(t, fx, s2, course.ID)

	assert.Contains(t, fx.topics(), model.TopicCourseFull)
	active := load[model.Course](t, fx, store.BucketCourses)
	assert.Equal(t, 2, active[0].CurrentEnrolment)
}

func TestEnrollmentApprovalUpdatesStudent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	course := createCourse(t, fx, "React 101", 30)
	_, err := fx.engine.ApproveCourse(ctx, admin, course.ID)
	require.NoError(t, err)

	req, err := fx.cat.RequestEnrollment(ctx, s1, course.ID)
	require.NoError(t, err)

	_, err = fx.engine.ApproveEnrollment(ctx, s2, req.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	approved, err := fx.engine.ApproveEnrollment(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentApproved, approved.Status)
	assert.Equal(t, "a1", approved.ApprovedBy)

	_, err = fx.engine.ApproveEnrollment(ctx, admin, req.ID)
	assert.True(t, model.AsError(err).NoOp)
	_, err = fx.engine.RejectEnrollment(ctx, admin, req.ID)
	require.ErrorIs(t, err, model.ErrIllegalTransition)
	assert.False(t, model.AsError(err).NoOp)
	_, err = fx.engine.RejectEnrollment(ctx, admin, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	users := load[model.Actor](t, fx, store.BucketUsers)
	i := slices.IndexFunc(users, func(u model.Actor) bool { return u.ID == "s1" })
	assert.Equal(t, []string{course.ID}, users[i].EnrolledCourseIDs)
}
