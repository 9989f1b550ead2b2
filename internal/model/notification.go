package model

import "time"

// Notification is an inbox entry for one recipient.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	Topic       Topic     `json:"topic"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	CourseID    string    `json:"courseId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Read        bool      `json:"read"`
}
