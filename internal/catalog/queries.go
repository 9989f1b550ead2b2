package catalog

import (
	"context"
	"iter"
	"strings"

	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/policy"
	"github.com/learnsphere/moderation/internal/store"
)

// Filter narrows discussion and note queries. Zero values match everything.
type Filter struct {
	CourseID string
	// Search matches title and body, case-insensitively.
	Search string
	Kind   model.NoteKind
}

func (f Filter) matches(courseID string, text ...string) bool {
	if f.CourseID != "" && f.CourseID != courseID {
		return false
	}
	if f.Search == "" {
		return true
	}

	needle := strings.ToLower(f.Search)
	for _, t := range text {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

// filtered yields the items keep accepts, in stored order.
func filtered[T any](items []T, keep func(T) (T, bool)) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, item := range items {
			out, ok := keep(item)
			if !ok {
				continue
			}
			if !yield(out) {
				return
			}
		}
	}
}

// Courses yields the active courses the actor may view.
func (c *Catalog) Courses(ctx context.Context, actor model.Actor) (iter.Seq[model.Course], error) {
	r := c.reader(ctx)
	f, err := loadFacts(r)
	if err != nil {
		return nil, err
	}
	courses, err := store.Load[model.Course](r, store.BucketCourses)
	if err != nil {
		return nil, err
	}

	return filtered(courses, func(course model.Course) (model.Course, bool) {
		return course, policy.CanView(actor, course, f)
	}), nil
}

// PendingCourses yields courses awaiting a decision: all of them for admins,
// their own for instructors.
func (c *Catalog) PendingCourses(ctx context.Context, actor model.Actor) (iter.Seq[model.Course], error) {
	return c.coursesIn(ctx, actor, model.CoursePending)
}

// RejectedCourses yields rejected courses the actor may view.
func (c *Catalog) RejectedCourses(ctx context.Context, actor model.Actor) (iter.Seq[model.Course], error) {
	return c.coursesIn(ctx, actor, model.CourseRejected)
}

func (c *Catalog) coursesIn(ctx context.Context, actor model.Actor, state model.CourseState) (iter.Seq[model.Course], error) {
	r := c.reader(ctx)
	f, err := loadFacts(r)
	if err != nil {
		return nil, err
	}
	courses, err := allCourses(r)
	if err != nil {
		return nil, err
	}

	return filtered(courses, func(course model.Course) (model.Course, bool) {
		return course, course.Status == state && policy.CanView(actor, course, f)
	}), nil
}

// Course returns one course in any state.
func (c *Catalog) Course(ctx context.Context, actor model.Actor, id string) (model.Course, error) {
	f, err := loadFacts(c.reader(ctx))
	if err != nil {
		return model.Course{}, err
	}

	course, found := f.Course(id)
	if err := conceal(actor, model.KindCourse, found, found && policy.CanView(actor, course, f)); err != nil {
		return model.Course{}, err
	}

	return course, nil
}

// Enrollments yields enrolment requests in state that the actor may view.
func (c *Catalog) Enrollments(ctx context.Context, actor model.Actor, state model.EnrollmentState) (iter.Seq[model.EnrollmentRequest], error) {
	bucket, err := enrollmentBucket(state)
	if err != nil {
		return nil, err
	}

	r := c.reader(ctx)
	f, err := loadFacts(r)
	if err != nil {
		return nil, err
	}
	requests, err := store.Load[model.EnrollmentRequest](r, bucket)
	if err != nil {
		return nil, err
	}

	return filtered(requests, func(req model.EnrollmentRequest) (model.EnrollmentRequest, bool) {
		return req, policy.CanView(actor, req, f)
	}), nil
}

func enrollmentBucket(state model.EnrollmentState) (string, error) {
	switch state {
	case model.EnrollmentPending:
		return store.BucketPendingEnrollments, nil
	case model.EnrollmentApproved:
		return store.BucketApprovedEnrollments, nil
	case model.EnrollmentRejected:
		return store.BucketRejectedEnrollments, nil
	}
	return "", model.ValidationFailed("status", "unknown enrollment status")
}

// mask hides the author of anonymous threads from everyone but admins.
func mask(actor model.Actor, d model.Discussion) model.Discussion {
	d = d.Clone()
	if d.Anonymous && !actor.IsAdmin() {
		d.Author = model.AnonymousAuthor
		d.AuthorID = ""
	}
	return d
}

// Discussions yields visible threads matching filter.
func (c *Catalog) Discussions(ctx context.Context, actor model.Actor, filter Filter) (iter.Seq[model.Discussion], error) {
	r := c.reader(ctx)
	f, err := loadFacts(r)
	if err != nil {
		return nil, err
	}
	threads, err := store.Load[model.Discussion](r, store.BucketDiscussions)
	if err != nil {
		return nil, err
	}

	return filtered(threads, func(d model.Discussion) (model.Discussion, bool) {
		if !filter.matches(d.CourseID, d.Title, d.Content) || !policy.CanView(actor, d, f) {
			return d, false
		}
		return mask(actor, d), true
	}), nil
}

// Discussion returns one visible thread.
func (c *Catalog) Discussion(ctx context.Context, actor model.Actor, id string) (model.Discussion, error) {
	r := c.reader(ctx)
	f, err := loadFacts(r)
	if err != nil {
		return model.Discussion{}, err
	}
	threads, err := store.Load[model.Discussion](r, store.BucketDiscussions)
	if err != nil {
		return model.Discussion{}, err
	}

	for _, d := range threads {
		if d.ID == id {
			if !policy.CanView(actor, d, f) {
				return model.Discussion{}, model.Forbidden()
			}
			return mask(actor, d), nil
		}
	}

	return model.Discussion{}, conceal(actor, model.KindDiscussion, false, false)
}

// Notes yields visible notes matching filter.
func (c *Catalog) Notes(ctx context.Context, actor model.Actor, filter Filter) (iter.Seq[model.Note], error) {
	r := c.reader(ctx)
	f, err := loadFacts(r)
	if err != nil {
		return nil, err
	}
	notes, err := store.Load[model.Note](r, store.BucketDiscussionNotes)
	if err != nil {
		return nil, err
	}

	return filtered(notes, func(n model.Note) (model.Note, bool) {
		if filter.Kind != "" && n.Kind != filter.Kind {
			return n, false
		}
		return n, filter.matches(n.CourseID, n.Title, n.Description) && policy.CanView(actor, n, f)
	}), nil
}

// Ratings yields the visible ratings of courseID, or of every course when empty.
func (c *Catalog) Ratings(ctx context.Context, actor model.Actor, courseID string) (iter.Seq[model.Rating], error) {
	r := c.reader(ctx)
	f, err := loadFacts(r)
	if err != nil {
		return nil, err
	}
	ratings, err := store.Load[model.Rating](r, store.BucketCourseRatings)
	if err != nil {
		return nil, err
	}

	return filtered(ratings, func(rt model.Rating) (model.Rating, bool) {
		return rt, (courseID == "" || rt.CourseID == courseID) && policy.CanView(actor, rt, f)
	}), nil
}

// RatingSummary aggregates the ratings of a course the actor may view.
func (c *Catalog) RatingSummary(ctx context.Context, actor model.Actor, courseID string) (model.RatingSummary, error) {
	if _, err := c.Course(ctx, actor, courseID); err != nil {
		return model.RatingSummary{}, err
	}

	ratings, err := store.Load[model.Rating](c.reader(ctx), store.BucketCourseRatings)
	if err != nil {
		return model.RatingSummary{}, err
	}

	summary := model.RatingSummary{CourseID: courseID}
	total := 0
	for _, rt := range ratings {
		if rt.CourseID == courseID {
			summary.Count++
			total += rt.Score
		}
	}
	if summary.Count > 0 {
		summary.Average = float64(total) / float64(summary.Count)
	}

	return summary, nil
}

// Drafts yields the actor's own drafts.
func (c *Catalog) Drafts(ctx context.Context, actor model.Actor) (iter.Seq[model.Draft], error) {
	drafts, err := store.Load[model.Draft](c.reader(ctx), store.BucketDrafts)
	if err != nil {
		return nil, err
	}

	return filtered(drafts, func(d model.Draft) (model.Draft, bool) {
		return d, d.AuthorID == actor.ID
	}), nil
}

// Users yields every user record; admins only.
func (c *Catalog) Users(ctx context.Context, actor model.Actor) (iter.Seq[model.Actor], error) {
	if !policy.CanManageUsers(actor) {
		return nil, model.Forbidden()
	}

	users, err := store.Load[model.Actor](c.reader(ctx), store.BucketUsers)
	if err != nil {
		return nil, err
	}

	return filtered(users, func(u model.Actor) (model.Actor, bool) { return u, true }), nil
}

// Notifications yields the actor's own inbox.
func (c *Catalog) Notifications(ctx context.Context, actor model.Actor) (iter.Seq[model.Notification], error) {
	inbox, err := store.Load[model.Notification](c.reader(ctx), store.BucketNotifications)
	if err != nil {
		return nil, err
	}

	return filtered(inbox, func(n model.Notification) (model.Notification, bool) {
		return n, n.RecipientID == actor.ID
	}), nil
}

// ActorByID returns a user record without policy checks; for session setup.
func (c *Catalog) ActorByID(ctx context.Context, id string) (model.Actor, error) {
	return c.findActor(ctx, func(a model.Actor) bool { return a.ID == id })
}

// ActorByEmail returns a user record without policy checks; for login.
func (c *Catalog) ActorByEmail(ctx context.Context, email string) (model.Actor, error) {
	return c.findActor(ctx, func(a model.Actor) bool { return strings.EqualFold(a.Email, email) })
}

func (c *Catalog) findActor(ctx context.Context, match func(model.Actor) bool) (model.Actor, error) {
	users, err := store.Load[model.Actor](c.reader(ctx), store.BucketUsers)
	if err != nil {
		return model.Actor{}, err
	}

	for _, u := range users {
		if match(u) {
			return u, nil
		}
	}

	return model.Actor{}, model.NotFound(model.KindUser)
}
