package model

import (
	"slices"
	"time"
)

// AnonymousAuthor replaces the author name of anonymous posts.
const AnonymousAuthor = "Anonymous"

// Reply is one answer in a discussion thread.
type Reply struct {
	ID       string    `json:"id"`
	AuthorID string    `json:"authorId"`
	Author   string    `json:"author"`
	Content  string    `json:"content"`
	Date     time.Time `json:"date"`
}

// Discussion is a thread attached to a course.
type Discussion struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"courseId"`
	CourseName string    `json:"courseName,omitempty"`
	Author     string    `json:"author"`
	AuthorID   string    `json:"authorId,omitempty"`
	Anonymous  bool      `json:"anonymous"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Pinned     bool      `json:"pinned"`
	Date       time.Time `json:"date"`
	Replies    []Reply   `json:"replies"`
	Views      int       `json:"views"`
	Likes      int       `json:"likes"`
	LikedBy    []string  `json:"likedBy,omitempty"`
}

// Clone returns a copy that shares no slices with d.
func (d Discussion) Clone() Discussion {
	d.Replies = slices.Clone(d.Replies)
	d.LikedBy = slices.Clone(d.LikedBy)
	return d
}

// DiscussionDraft is what an actor submits when opening a thread.
type DiscussionDraft struct {
	Title     string `json:"title"     validate:"required,max=300"`
	Content   string `json:"content"   validate:"required"`
	Anonymous bool   `json:"anonymous"`
	Pinned    bool   `json:"pinned"`
}

// Draft is an unsent discussion saved by its author.
type Draft struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	CourseID  string    `json:"courseId,omitempty"`
	Title     string    `json:"title"     validate:"required"`
	Content   string    `json:"content"`
	Anonymous bool      `json:"anonymous"`
	SavedAt   time.Time `json:"savedAt"`
}
