package model

import "time"

// EnrollmentState is the state of an enrolment request.
type EnrollmentState string

// Enrolment states; approved and rejected are terminal.
const (
	EnrollmentPending  EnrollmentState = "pending"
	EnrollmentApproved EnrollmentState = "approved"
	EnrollmentRejected EnrollmentState = "rejected"
)

// IsTerminal reports whether no further transition is possible.
func (s EnrollmentState) IsTerminal() bool {
	return s == EnrollmentApproved || s == EnrollmentRejected
}

// EnrollmentRequest is a student's request to join a course, with the
// student and course attributes denormalised at request time.
type EnrollmentRequest struct {
	ID            string          `json:"id"`
	StudentID     string          `json:"studentId"`
	StudentName   string          `json:"studentName"`
	StudentEmail  string          `json:"studentEmail"`
	StudentAvatar string          `json:"studentAvatar,omitempty"`
	CourseID      string          `json:"courseId"`
	CourseName    string          `json:"courseName"`
	RequestedAt   time.Time       `json:"requestedAt"`
	Status        EnrollmentState `json:"status"`
	ApprovedAt    *time.Time      `json:"approvedAt,omitempty"`
	ApprovedBy    string          `json:"approvedBy,omitempty"`
	RejectedAt    *time.Time      `json:"rejectedAt,omitempty"`
	RejectedBy    string          `json:"rejectedBy,omitempty"`
	DecidedAt     *time.Time      `json:"decidedAt,omitempty"`
	DecidedBy     string          `json:"decidedBy,omitempty"`
}
