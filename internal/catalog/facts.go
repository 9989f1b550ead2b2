package catalog

import (
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/policy"
	"github.com/learnsphere/moderation/internal/store"
)

// facts is a policy.Facts snapshot of the relationship buckets.
type facts struct {
	courses  map[string]model.Course
	approved map[string]struct{}
	rated    map[string]struct{}
	teaches  map[string]struct{}
}

var _ policy.Facts = (*facts)(nil)

func pair(a, b string) string { return a + "\x00" + b }

func loadFacts(r store.Reader) (*facts, error) {
	courses, err := allCourses(r)
	if err != nil {
		return nil, err
	}
	approved, err := store.Load[model.EnrollmentRequest](r, store.BucketApprovedEnrollments)
	if err != nil {
		return nil, err
	}
	ratings, err := store.Load[model.Rating](r, store.BucketCourseRatings)
	if err != nil {
		return nil, err
	}

	f := &facts{
		courses:  make(map[string]model.Course, len(courses)),
		approved: make(map[string]struct{}, len(approved)),
		rated:    make(map[string]struct{}, len(ratings)),
		teaches:  make(map[string]struct{}),
	}
	for _, c := range courses {
		f.courses[c.ID] = c
		if c.Status == model.CourseActive {
			f.teaches[pair(c.InstructorID, c.Category)] = struct{}{}
		}
	}
	for _, e := range approved {
		f.approved[pair(e.StudentID, e.CourseID)] = struct{}{}
	}
	for _, rt := range ratings {
		f.rated[pair(rt.RaterID, rt.CourseID)] = struct{}{}
	}

	return f, nil
}

func (f *facts) Course(id string) (model.Course, bool) {
	c, ok := f.courses[id]
	return c, ok
}

func (f *facts) IsApprovedEnrollee(studentID, courseID string) bool {
	_, ok := f.approved[pair(studentID, courseID)]
	return ok
}

func (f *facts) HasRated(actorID, courseID string) bool {
	_, ok := f.rated[pair(actorID, courseID)]
	return ok
}

func (f *facts) TeachesCategory(instructorID, category string) bool {
	_, ok := f.teaches[pair(instructorID, category)]
	return ok
}

// allCourses returns active, pending and rejected courses, each id once.
// Rejected courses are read from their own bucket and from legacy
// pendingCourses entries marked rejected.
func allCourses(r store.Reader) ([]model.Course, error) {
	active, err := store.Load[model.Course](r, store.BucketCourses)
	if err != nil {
		return nil, err
	}
	rejected, err := store.Load[model.Course](r, store.BucketRejectedCourses)
	if err != nil {
		return nil, err
	}
	pending, err := store.Load[model.Course](r, store.BucketPendingCourses)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(active)+len(rejected)+len(pending))
	out := make([]model.Course, 0, len(active)+len(rejected)+len(pending))
	add := func(c model.Course, status model.CourseState) {
		if _, dup := seen[c.ID]; dup {
			return
		}
		seen[c.ID] = struct{}{}
		c.Status = status
		out = append(out, c)
	}

	for _, c := range active {
		add(c, model.CourseActive)
	}
	for _, c := range rejected {
		add(c, model.CourseRejected)
	}
	for _, c := range pending {
		if c.Status == model.CourseRejected {
			add(c, model.CourseRejected)
			continue
		}
		add(c, model.CoursePending)
	}

	return out, nil
}
