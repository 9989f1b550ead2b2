// Package model defines domain models and data structures.
package model

import (
	"slices"
	"time"
)

// Role is the closed set of actor roles. Unknown values are denied by the policy.
type Role string

// Roles.
const (
	RoleAdmin      Role = "admin"
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleInstructor, RoleStudent:
		return true
	}
	return false
}

// ActorStatus is the account status of an actor.
type ActorStatus string

// Actor statuses.
const (
	ActorActive    ActorStatus = "active"
	ActorSuspended ActorStatus = "suspended"
)

// Actor is an authenticated user of the client. Role never changes within a session.
type Actor struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Email             string      `json:"email"`
	Role              Role        `json:"role"`
	Status            ActorStatus `json:"status"`
	JoinDate          time.Time   `json:"joinDate"`
	Avatar            string      `json:"avatar,omitempty"`
	EnrolledCourseIDs []string    `json:"enrolledCourseIds,omitempty"`
	TeachingCourseIDs []string    `json:"teachingCourseIds,omitempty"`
}

// IsAdmin reports whether the actor is an admin.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsInstructor reports whether the actor is an instructor.
func (a Actor) IsInstructor() bool { return a.Role == RoleInstructor }

// IsStudent reports whether the actor is a student.
func (a Actor) IsStudent() bool { return a.Role == RoleStudent }

// IsActive reports whether the account is not suspended.
func (a Actor) IsActive() bool { return a.Status == ActorActive }

// Enroll adds courseID to the student's enrolled set.
func (a *Actor) Enroll(courseID string) {
	if !slices.Contains(a.EnrolledCourseIDs, courseID) {
		a.EnrolledCourseIDs = append(a.EnrolledCourseIDs, courseID)
	}
}

// Teach adds courseID to the instructor's teaching set.
func (a *Actor) Teach(courseID string) {
	if !slices.Contains(a.TeachingCourseIDs, courseID) {
		a.TeachingCourseIDs = append(a.TeachingCourseIDs, courseID)
	}
}

// Forget drops courseID from both course sets.
func (a *Actor) Forget(courseID string) {
	a.EnrolledCourseIDs = slices.DeleteFunc(a.EnrolledCourseIDs, func(id string) bool { return id == courseID })
	a.TeachingCourseIDs = slices.DeleteFunc(a.TeachingCourseIDs, func(id string) bool { return id == courseID })
}
