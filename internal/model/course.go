package model

import "time"

// Level is the difficulty of a course.
type Level string

// Course levels.
const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
)

// CourseState is the lifecycle state of a course.
type CourseState string

// Course states. CourseDeleted is terminal and never persisted.
const (
	CoursePending  CourseState = "pending"
	CourseActive   CourseState = "active"
	CourseRejected CourseState = "rejected"
	CourseArchived CourseState = "archived"
	CourseDeleted  CourseState = "deleted"
)

// Course is an offering owned by one instructor.
type Course struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	Category         string      `json:"category"`
	Level            Level       `json:"level"`
	Duration         string      `json:"duration"`
	Capacity         int         `json:"capacity"`
	CurrentEnrolment int         `json:"currentEnrolment"`
	Image            string      `json:"image,omitempty"`
	Prerequisites    string      `json:"prerequisites,omitempty"`
	Objectives       string      `json:"objectives,omitempty"`
	InstructorID     string      `json:"instructorId"`
	InstructorName   string      `json:"instructor,omitempty"`
	Status           CourseState `json:"status"`
	CreatedAt        time.Time   `json:"createdAt"`
	SubmittedAt      time.Time   `json:"submittedAt"`
	ApprovedAt       *time.Time  `json:"approvedAt,omitempty"`
	ApprovedBy       string      `json:"approvedBy,omitempty"`
	RejectedAt       *time.Time  `json:"rejectedAt,omitempty"`
	RejectedBy       string      `json:"rejectedBy,omitempty"`
	DecidedAt        *time.Time  `json:"decidedAt,omitempty"`
	DecidedBy        string      `json:"decidedBy,omitempty"`
}

// IsFull reports whether enrolment has reached capacity.
func (c Course) IsFull() bool {
	return c.Capacity > 0 && c.CurrentEnrolment >= c.Capacity
}

// CourseFields holds the instructor-supplied attributes of a new course.
type CourseFields struct {
	Title         string `json:"title"         validate:"required,max=200"`
	Description   string `json:"description"   validate:"required"`
	Category      string `json:"category"      validate:"required"`
	Level         Level  `json:"level"         validate:"required,oneof=Beginner Intermediate Advanced"`
	Duration      string `json:"duration"      validate:"required"`
	Capacity      int    `json:"capacity"      validate:"gte=1"`
	Image         string `json:"image"         validate:"omitempty,url"`
	Prerequisites string `json:"prerequisites"`
	Objectives    string `json:"objectives"`
}
