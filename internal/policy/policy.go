// Package policy provides authorization decisions over actors and entities.
// Every function is pure: relationships are answered by the caller's Facts.
package policy

import (
	"slices"

	"github.com/learnsphere/moderation/internal/model"
)

// Decision is the outcome of a capability check.
type Decision int

const (
	// Deny refuses the action.
	Deny Decision = iota
	// Allow permits the action.
	Allow
	// RequireApproval permits the action as a request an admin must decide.
	RequireApproval
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RequireApproval:
		return "require-approval"
	default:
		return "deny"
	}
}

// Permitted reports whether the action may proceed, directly or as a request.
func (d Decision) Permitted() bool {
	return d == Allow || d == RequireApproval
}

// Capability names an action on an entity.
type Capability string

// Capabilities.
const (
	CapView    Capability = "view"
	CapCreate  Capability = "create"
	CapEdit    Capability = "edit"
	CapDelete  Capability = "delete"
	CapApprove Capability = "approve"
	CapRate    Capability = "rate"
	CapReply   Capability = "reply"
)

// Facts answers the relationship questions decisions depend on.
type Facts interface {
	Course(id string) (model.Course, bool)
	// IsApprovedEnrollee reports an approved enrolment record for the pair.
	IsApprovedEnrollee(studentID, courseID string) bool
	HasRated(actorID, courseID string) bool
	// TeachesCategory reports whether the instructor teaches any course in category.
	TeachesCategory(instructorID, category string) bool
}

// Decide maps a capability on target to a decision. target is one of the
// model entity values, or a model.EntityKind for create and approve.
func Decide(actor model.Actor, capability Capability, target any, f Facts) Decision {
	if !actor.Role.IsValid() {
		return Deny
	}

	switch capability {
	case CapView:
		return of(CanView(actor, target, f))
	case CapCreate:
		return decideCreate(actor, target, f)
	case CapEdit:
		if d, ok := target.(model.Discussion); ok {
			return of(CanEditDiscussion(actor, d, f))
		}
		return Deny
	case CapDelete:
		return of(CanDelete(actor, target, f))
	case CapApprove:
		if kind, ok := target.(model.EntityKind); ok {
			return of(CanApprove(actor, kind))
		}
		return Deny
	case CapRate:
		if c, ok := target.(model.Course); ok {
			return of(CanRate(actor, c.ID, f))
		}
		return Deny
	case CapReply:
		if d, ok := target.(model.Discussion); ok {
			return of(CanReply(actor, d, f))
		}
		return Deny
	}

	return Deny
}

func decideCreate(actor model.Actor, target any, f Facts) Decision {
	switch t := target.(type) {
	case model.EntityKind:
		switch t {
		case model.KindCourse:
			if CanCreateCourse(actor) {
				return RequireApproval
			}
		case model.KindEnrollment:
			if canAct(actor) && actor.IsStudent() {
				return RequireApproval
			}
		}
	case model.Course:
		return of(CanPost(actor, t.ID, f))
	}

	return Deny
}

func of(ok bool) Decision {
	if ok {
		return Allow
	}
	return Deny
}

// canAct reports whether the actor may mutate anything at all.
func canAct(actor model.Actor) bool {
	return actor.Role.IsValid() && actor.IsActive()
}

// Teaches reports whether the actor owns or is assigned to course.
func Teaches(actor model.Actor, course model.Course) bool {
	if !actor.IsInstructor() {
		return false
	}
	return course.InstructorID == actor.ID || slices.Contains(actor.TeachingCourseIDs, course.ID)
}

// CanView reports whether the actor may see target.
func CanView(actor model.Actor, target any, f Facts) bool {
	if !actor.Role.IsValid() {
		return false
	}
	if actor.IsAdmin() {
		return true
	}

	switch t := target.(type) {
	case model.Course:
		return CanViewCourse(actor, t, f)
	case model.Discussion:
		return canViewInCourse(actor, t.CourseID, f)
	case model.Note:
		if t.Visibility == model.VisibilityPublic {
			return true
		}
		return canViewInCourse(actor, t.CourseID, f)
	case model.Rating:
		return t.RaterID == actor.ID || canViewInCourse(actor, t.CourseID, f)
	case model.EnrollmentRequest:
		if t.StudentID == actor.ID {
			return true
		}
		c, ok := f.Course(t.CourseID)
		return ok && Teaches(actor, c)
	case model.Draft:
		return t.AuthorID == actor.ID
	case model.Notification:
		return t.RecipientID == actor.ID
	case model.Actor:
		return t.ID == actor.ID
	}

	return false
}

// CanViewCourse applies the course visibility rule for a non-admin actor.
func CanViewCourse(actor model.Actor, c model.Course, f Facts) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RoleInstructor:
		if c.InstructorID == actor.ID {
			return true
		}
		return c.Status == model.CourseActive &&
			(Teaches(actor, c) || f.TeachesCategory(actor.ID, c.Category))
	case model.RoleStudent:
		return c.Status == model.CourseActive && f.IsApprovedEnrollee(actor.ID, c.ID)
	}

	return false
}

func canViewInCourse(actor model.Actor, courseID string, f Facts) bool {
	c, ok := f.Course(courseID)
	if !ok {
		return false
	}
	if actor.IsStudent() {
		return f.IsApprovedEnrollee(actor.ID, courseID)
	}
	return CanViewCourse(actor, c, f)
}

// participates reports whether the actor is enrolled in or teaches the course.
func participates(actor model.Actor, c model.Course, f Facts) bool {
	switch actor.Role {
	case model.RoleStudent:
		return f.IsApprovedEnrollee(actor.ID, c.ID)
	case model.RoleInstructor:
		return Teaches(actor, c)
	}
	return false
}

// CanCreateCourse reports whether the actor may submit a course.
func CanCreateCourse(actor model.Actor) bool {
	return canAct(actor) && actor.IsInstructor()
}

// CanApprove reports whether the actor may decide requests of kind.
func CanApprove(actor model.Actor, kind model.EntityKind) bool {
	if kind != model.KindCourse && kind != model.KindEnrollment {
		return false
	}
	return canAct(actor) && actor.IsAdmin()
}

// CanRate reports whether the actor may rate the course now.
func CanRate(actor model.Actor, courseID string, f Facts) bool {
	return CheckRate(actor, courseID, f) == nil
}

// CheckRate explains a rating refusal: Forbidden when the actor is not an
// approved enrolee, AlreadyRated when a rating exists.
func CheckRate(actor model.Actor, courseID string, f Facts) error {
	if !canAct(actor) || !actor.IsStudent() || !f.IsApprovedEnrollee(actor.ID, courseID) {
		return model.Forbidden()
	}
	if c, ok := f.Course(courseID); !ok || c.Status != model.CourseActive {
		return model.Forbidden()
	}
	if f.HasRated(actor.ID, courseID) {
		return model.AlreadyRated()
	}
	return nil
}

// CanReply reports whether the actor may reply to a discussion.
// Both visibility and participation must hold.
func CanReply(actor model.Actor, d model.Discussion, f Facts) bool {
	if !canAct(actor) || !CanView(actor, d, f) {
		return false
	}

	c, ok := f.Course(d.CourseID)
	return ok && c.Status == model.CourseActive && participates(actor, c, f)
}

// CanPost reports whether the actor may open a discussion or share a note in
// the course, that is reply to its implicit general thread.
func CanPost(actor model.Actor, courseID string, f Facts) bool {
	return CanReply(actor, model.Discussion{CourseID: courseID}, f)
}

// CanEditDiscussion reports whether the actor may moderate a thread (pin it).
func CanEditDiscussion(actor model.Actor, d model.Discussion, f Facts) bool {
	if !canAct(actor) {
		return false
	}
	if actor.IsAdmin() {
		return true
	}

	c, ok := f.Course(d.CourseID)
	return ok && Teaches(actor, c)
}

// CanInteract reports whether the actor may like a thread it can see.
func CanInteract(actor model.Actor, target any, f Facts) bool {
	return canAct(actor) && CanView(actor, target, f)
}

// CanDelete reports whether the actor may delete target: admins always,
// owners while the entity is not terminal. Enrollment requests never.
func CanDelete(actor model.Actor, target any, f Facts) bool {
	if !canAct(actor) {
		return false
	}
	// Enrollment requests leave only through a decision or their course's cascade.
	if _, ok := target.(model.EnrollmentRequest); ok {
		return false
	}
	if actor.IsAdmin() {
		return true
	}

	switch t := target.(type) {
	case model.Course:
		return t.InstructorID == actor.ID && t.Status != model.CourseDeleted
	case model.Discussion:
		return t.AuthorID == actor.ID
	case model.Note:
		return t.CreatedBy == actor.ID
	case model.Rating:
		return t.RaterID == actor.ID
	case model.Draft:
		return t.AuthorID == actor.ID
	}

	return false
}

// CanManageUsers reports whether the actor may list and delete users.
func CanManageUsers(actor model.Actor) bool {
	return canAct(actor) && actor.IsAdmin()
}
