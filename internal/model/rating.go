package model

import "time"

// Rating score bounds.
const (
	MinScore = 1
	MaxScore = 5
)

// RatingKey is the composite key of the single rating an actor may give a course.
func RatingKey(actorID, courseID string) string {
	return actorID + "-" + courseID
}

// Rating is a student's score for a course.
type Rating struct {
	Key         string    `json:"key"`
	RaterID     string    `json:"userId"`
	RaterName   string    `json:"userName"`
	CourseID    string    `json:"courseId"`
	Score       int       `json:"rating"`
	Review      string    `json:"review,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// RatingSummary aggregates the ratings of one course.
type RatingSummary struct {
	CourseID string  `json:"courseId"`
	Count    int     `json:"count"`
	Average  float64 `json:"average"`
}
