package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/learnsphere/moderation/internal/model"
)

type facts struct {
	courses    map[string]model.Course
	enrolled   map[string]bool // studentID/courseID
	rated      map[string]bool
	categories map[string]bool // instructorID/category
}

func (f facts) Course(id string) (model.Course, bool) {
	c, ok := f.courses[id]
	return c, ok
}

func (f facts) IsApprovedEnrollee(studentID, courseID string) bool {
	return f.enrolled[studentID+"/"+courseID]
}

func (f facts) HasRated(actorID, courseID string) bool {
	return f.rated[actorID+"/"+courseID]
}

func (f facts) TeachesCategory(instructorID, category string) bool {
	return f.categories[instructorID+"/"+category]
}

var (
	admin     = model.Actor{ID: "a1", Role: model.RoleAdmin, Status: model.ActorActive}
	owner     = model.Actor{ID: "i1", Role: model.RoleInstructor, Status: model.ActorActive}
	colleague = model.Actor{ID: "i2", Role: model.RoleInstructor, Status: model.ActorActive}
	outsider  = model.Actor{ID: "i3", Role: model.RoleInstructor, Status: model.ActorActive}
	enrolled  = model.Actor{ID: "s1", Role: model.RoleStudent, Status: model.ActorActive}
	stranger  = model.Actor{ID: "s2", Role: model.RoleStudent, Status: model.ActorActive}
	suspended = model.Actor{ID: "s3", Role: model.RoleStudent, Status: model.ActorSuspended}
	unknown   = model.Actor{ID: "x1", Role: model.Role("superuser"), Status: model.ActorActive}

	active  = model.Course{ID: "c1", InstructorID: "i1", Category: "Web", Status: model.CourseActive}
	pending = model.Course{ID: "c2", InstructorID: "i1", Category: "Web", Status: model.CoursePending}
)

func testFacts() facts {
	return facts{
		courses:    map[string]model.Course{"c1": active, "c2": pending},
		enrolled:   map[string]bool{"s1/c1": true, "s3/c1": true},
		rated:      map[string]bool{},
		categories: map[string]bool{"i1/Web": true, "i2/Web": true},
	}
}

func TestCanViewCourse(t *testing.T) {
	f := testFacts()
	tests := []struct {
		name   string
		actor  model.Actor
		course model.Course
		want   bool
	}{
		{"admin sees pending", admin, pending, true},
		{"owner sees pending", owner, pending, true},
		{"colleague in category sees active", colleague, active, true},
		{"colleague does not see pending", colleague, pending, false},
		{"instructor outside category", outsider, active, false},
		{"approved enrolee", enrolled, active, true},
		{"student without enrolment", stranger, active, false},
		{"enrolee never sees pending", enrolled, pending, false},
		{"unknown role", unknown, active, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanView(tt.actor, tt.course, f))
		})
	}
}

func TestCanViewNotesAndDiscussions(t *testing.T) {
	f := testFacts()
	public := model.Note{CourseID: "c1", Visibility: model.VisibilityPublic}
	private := model.Note{CourseID: "c1", Visibility: model.VisibilityEnrolled}
	thread := model.Discussion{CourseID: "c1"}

	assert.True(t, CanView(stranger, public, f))
	assert.False(t, CanView(stranger, private, f))
	assert.True(t, CanView(enrolled, private, f))
	assert.True(t, CanView(enrolled, thread, f))
	assert.False(t, CanView(stranger, thread, f))
	assert.True(t, CanView(colleague, thread, f))
	assert.False(t, CanView(enrolled, model.Discussion{CourseID: "missing"}, f))
}

func TestCanReplyIsMostRestrictive(t *testing.T) {
	f := testFacts()
	thread := model.Discussion{CourseID: "c1"}

	assert.True(t, CanReply(enrolled, thread, f))
	assert.True(t, CanReply(owner, thread, f))
	// Sees the thread through its category but neither enrolled nor teaching.
	assert.False(t, CanReply(colleague, thread, f))
	// Sees everything but participates in nothing.
	assert.False(t, CanReply(admin, thread, f))
	assert.False(t, CanReply(suspended, thread, f))
	assert.False(t, CanPost(owner, "c2", f), "pending course takes no posts")
}

func TestCanRate(t *testing.T) {
	f := testFacts()

	assert.NoError(t, CheckRate(enrolled, "c1", f))
	assert.ErrorIs(t, CheckRate(stranger, "c1", f), model.ErrForbidden)
	assert.ErrorIs(t, CheckRate(owner, "c1", f), model.ErrForbidden)
	assert.ErrorIs(t, CheckRate(suspended, "c1", f), model.ErrForbidden)

	f.rated["s1/c1"] = true
	assert.ErrorIs(t, CheckRate(enrolled, "c1", f), model.ErrAlreadyRated)
	assert.False(t, CanRate(enrolled, "c1", f))
}

func TestCanDelete(t *testing.T) {
	f := testFacts()
	tests := []struct {
		name   string
		actor  model.Actor
		target any
		want   bool
	}{
		{"admin any course", admin, active, true},
		{"owner own course", owner, active, true},
		{"owner deleted course", owner, model.Course{InstructorID: "i1", Status: model.CourseDeleted}, false},
		{"colleague course", colleague, active, false},
		{"author own discussion", enrolled, model.Discussion{AuthorID: "s1"}, true},
		{"other discussion", stranger, model.Discussion{AuthorID: "s1"}, false},
		{"pending own enrolment", stranger, model.EnrollmentRequest{StudentID: "s2", Status: model.EnrollmentPending}, false},
		{"admin pending enrolment", admin, model.EnrollmentRequest{StudentID: "s2", Status: model.EnrollmentPending}, false},
		{"approved own enrolment", stranger, model.EnrollmentRequest{StudentID: "s2", Status: model.EnrollmentApproved}, false},
		{"suspended author", suspended, model.Discussion{AuthorID: "s3"}, false},
		{"unsupported target", admin, 42, true},
		{"unsupported target non-admin", owner, 42, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanDelete(tt.actor, tt.target, f))
		})
	}
}

func TestDecide(t *testing.T) {
	f := testFacts()

	assert.Equal(t, RequireApproval, Decide(owner, CapCreate, model.KindCourse, f))
	assert.Equal(t, Deny, Decide(enrolled, CapCreate, model.KindCourse, f))
	assert.Equal(t, RequireApproval, Decide(stranger, CapCreate, model.KindEnrollment, f))
	assert.Equal(t, Allow, Decide(enrolled, CapCreate, active, f))
	assert.Equal(t, Allow, Decide(admin, CapApprove, model.KindEnrollment, f))
	assert.Equal(t, Deny, Decide(owner, CapApprove, model.KindCourse, f))
	assert.Equal(t, Deny, Decide(admin, CapApprove, model.KindNote, f))
	assert.Equal(t, Allow, Decide(owner, CapEdit, model.Discussion{CourseID: "c1"}, f))
	assert.Equal(t, Deny, Decide(unknown, CapView, active, f))
	assert.Equal(t, Deny, Decide(admin, Capability("fly"), active, f))
	assert.True(t, RequireApproval.Permitted())
	assert.Equal(t, "require-approval", RequireApproval.String())
}
