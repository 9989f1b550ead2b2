package catalog

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/policy"
	"github.com/learnsphere/moderation/internal/store"
)

var allowedMIME = map[model.NoteKind][]string{
	model.NotePDF:   {"application/pdf"},
	model.NoteImage: {"image/png", "image/jpeg", "image/gif", "image/webp", "image/svg+xml"},
}

// AddNote shares material in a course the actor participates in.
func (c *Catalog) AddNote(ctx context.Context, actor model.Actor, courseID string, payload model.NotePayload) (model.Note, error) {
	var note model.Note

	err := c.transact(ctx, func(tx store.Tx, events *bus.Batch) error {
		f, err := loadFacts(tx)
		if err != nil {
			return err
		}
		if !policy.CanPost(actor, courseID, f) {
			return model.Forbidden()
		}

		note, err = c.buildNote(actor, payload)
		if err != nil {
			return err
		}
		course, _ := f.Course(courseID)
		note.CourseID = courseID
		note.CourseName = course.Title

		notes, err := store.Load[model.Note](tx, store.BucketDiscussionNotes)
		if err != nil {
			return err
		}
		if err := store.Save(tx, store.BucketDiscussionNotes, append(notes, note)); err != nil {
			return err
		}
		return events.Stage(tx, model.TopicNoteCreated, note.ID, note)
	})
	if err != nil {
		return model.Note{}, err
	}

	return note, nil
}

func (c *Catalog) buildNote(actor model.Actor, payload model.NotePayload) (model.Note, error) {
	if err := c.check(payload); err != nil {
		return model.Note{}, err
	}

	note := model.Note{
		ID:            c.newID(),
		CreatedBy:     actor.ID,
		CreatedByName: actor.Name,
		Title:         payload.Title,
		Description:   payload.Description,
		Kind:          payload.Kind,
		Visibility:    payload.Visibility,
		CreatedAt:     c.stamp(),
	}
	if note.Visibility == "" {
		note.Visibility = model.VisibilityEnrolled
	}

	switch payload.Kind {
	case model.NoteLink:
		if err := checkLink(payload.URL); err != nil {
			return model.Note{}, err
		}
		note.URL = payload.URL
	default:
		file, err := c.checkFile(payload.Kind, payload.File)
		if err != nil {
			return model.Note{}, err
		}
		note.File = file
	}

	return note, nil
}

// checkFile enforces the size bound and the per-kind MIME whitelist. When the
// leading bytes are supplied the sniffed type overrides the declared one.
func (c *Catalog) checkFile(kind model.NoteKind, file *model.FileRef) (*model.FileRef, error) {
	if file == nil {
		return nil, model.ValidationFailed("file", "file is a required field")
	}
	if file.Size < 0 || file.Size > c.maxFileSize {
		return nil, model.ValidationFailed("file", fmt.Sprintf("file must be at most %d bytes", c.maxFileSize))
	}

	out := *file
	out.Head = nil
	if len(file.Head) > 0 {
		out.MIME = mimetype.Detect(file.Head).String()
	}

	if !mimetype.EqualsAny(out.MIME, allowedMIME[kind]...) {
		return nil, model.ValidationFailed("file", fmt.Sprintf("type %q is not allowed for %s notes", out.MIME, kind))
	}

	return &out, nil
}

func checkLink(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return model.ValidationFailed("url", "url must be absolute")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return model.ValidationFailed("url", "url must use http or https")
	}
	return nil
}

// RecordDownload counts one download of a visible note.
func (c *Catalog) RecordDownload(ctx context.Context, actor model.Actor, noteID string) (model.Note, error) {
	var note model.Note

	err := c.transact(ctx, func(tx store.Tx, events *bus.Batch) error {
		f, err := loadFacts(tx)
		if err != nil {
			return err
		}
		notes, err := store.Load[model.Note](tx, store.BucketDiscussionNotes)
		if err != nil {
			return err
		}

		i := slices.IndexFunc(notes, func(n model.Note) bool { return n.ID == noteID })
		if i < 0 {
			return conceal(actor, model.KindNote, false, false)
		}
		if !policy.CanView(actor, notes[i], f) {
			return model.Forbidden()
		}

		notes[i].Downloads++
		note = notes[i]
		if err := store.Save(tx, store.BucketDiscussionNotes, notes); err != nil {
			return err
		}
		return events.Stage(tx, model.TopicNoteUpdated, note.ID, note)
	})
	if err != nil {
		return model.Note{}, err
	}

	return note, nil
}
