package model

import "time"

// NoteKind is the payload kind of a note.
type NoteKind string

// Note kinds.
const (
	NotePDF   NoteKind = "pdf"
	NoteImage NoteKind = "image"
	NoteLink  NoteKind = "link"
)

// Visibility controls who besides enrolees may see a note.
type Visibility string

// Note visibilities.
const (
	VisibilityEnrolled Visibility = "enrolled"
	VisibilityPublic   Visibility = "public"
)

// FileRef describes an uploaded file. Head optionally carries the first
// bytes of the content for type sniffing and is never persisted.
type FileRef struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	MIME string `json:"type"`
	URL  string `json:"url"`
	Head []byte `json:"-"`
}

// Note is course material shared in the discussion area.
type Note struct {
	ID            string     `json:"id"`
	CourseID      string     `json:"courseId"`
	CourseName    string     `json:"courseName,omitempty"`
	CreatedBy     string     `json:"createdBy"`
	CreatedByName string     `json:"createdByName"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Kind          NoteKind   `json:"kind"`
	File          *FileRef   `json:"file,omitempty"`
	URL           string     `json:"url,omitempty"`
	Visibility    Visibility `json:"visibility"`
	CreatedAt     time.Time  `json:"createdAt"`
	Downloads     int        `json:"downloads"`
}

// NotePayload is what an actor submits when sharing a note.
type NotePayload struct {
	Title       string     `json:"title"       validate:"required,max=200"`
	Description string     `json:"description"`
	Kind        NoteKind   `json:"kind"        validate:"required,oneof=pdf image link"`
	File        *FileRef   `json:"file"`
	URL         string     `json:"url"`
	Visibility  Visibility `json:"visibility"  validate:"omitempty,oneof=enrolled public"`
}
