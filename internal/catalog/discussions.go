package catalog

import (
	"context"
	"slices"
	"strings"

	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/policy"
	"github.com/learnsphere/moderation/internal/store"
)

// PostDiscussion opens a thread in an active course the actor participates in.
// Anonymous threads store the placeholder author but keep the author id.
func (c *Catalog) PostDiscussion(ctx context.Context, actor model.Actor, courseID string, draft model.DiscussionDraft) (model.Discussion, error) {
	var posted model.Discussion

	err := c.transact(ctx, func(tx store.Tx, events *bus.Batch) error {
		f, err := loadFacts(tx)
		if err != nil {
			return err
		}
		if !policy.CanPost(actor, courseID, f) {
			return model.Forbidden()
		}
		if err := c.check(draft); err != nil {
			return err
		}

		course, _ := f.Course(courseID)
		posted = model.Discussion{
			ID:         c.newID(),
			CourseID:   courseID,
			CourseName: course.Title,
			Author:     actor.Name,
			AuthorID:   actor.ID,
			Anonymous:  draft.Anonymous,
			Title:      draft.Title,
			Content:    draft.Content,
			Pinned:     draft.Pinned && policy.CanEditDiscussion(actor, model.Discussion{CourseID: courseID}, f),
			Date:       c.stamp(),
			Replies:    []model.Reply{},
		}
		if draft.Anonymous {
			posted.Author = model.AnonymousAuthor
		}

		threads, err := store.Load[model.Discussion](tx, store.BucketDiscussions)
		if err != nil {
			return err
		}
		if err := store.Save(tx, store.BucketDiscussions, append(threads, posted)); err != nil {
			return err
		}
		return events.Stage(tx, model.TopicDiscussionCreated, posted.ID, posted)
	})
	if err != nil {
		return model.Discussion{}, err
	}

	return mask(actor, posted), nil
}

// Reply appends a reply to a thread.
func (c *Catalog) Reply(ctx context.Context, actor model.Actor, discussionID, content string) (model.Discussion, error) {
	content = strings.TrimSpace(content)

	return c.updateDiscussion(ctx, actor, discussionID, func(f *facts, d *model.Discussion) error {
		if !policy.CanReply(actor, *d, f) {
			return model.Forbidden()
		}
		if content == "" {
			return model.ValidationFailed("content", "content is a required field")
		}

		d.Replies = append(d.Replies, model.Reply{
			ID:       c.newID(),
			AuthorID: actor.ID,
			Author:   actor.Name,
			Content:  content,
			Date:     c.stamp(),
		})
		return nil
	})
}

// Like records the actor's like once.
func (c *Catalog) Like(ctx context.Context, actor model.Actor, discussionID string) (model.Discussion, error) {
	return c.updateDiscussion(ctx, actor, discussionID, func(f *facts, d *model.Discussion) error {
		if !policy.CanInteract(actor, *d, f) {
			return model.Forbidden()
		}
		if slices.Contains(d.LikedBy, actor.ID) {
			return model.AlreadyInState("like", "liked")
		}

		d.LikedBy = append(d.LikedBy, actor.ID)
		d.Likes++
		return nil
	})
}

// View counts one view of a thread.
func (c *Catalog) View(ctx context.Context, actor model.Actor, discussionID string) (model.Discussion, error) {
	return c.updateDiscussion(ctx, actor, discussionID, func(_ *facts, d *model.Discussion) error {
		d.Views++
		return nil
	})
}

// Pin sets or clears the pinned flag; admins and the course's instructors only.
func (c *Catalog) Pin(ctx context.Context, actor model.Actor, discussionID string, pinned bool) (model.Discussion, error) {
	return c.updateDiscussion(ctx, actor, discussionID, func(f *facts, d *model.Discussion) error {
		if !policy.CanEditDiscussion(actor, *d, f) {
			return model.Forbidden()
		}
		if d.Pinned == pinned {
			if pinned {
				return model.AlreadyInState("pin", "pinned")
			}
			return model.AlreadyInState("unpin", "unpinned")
		}

		d.Pinned = pinned
		return nil
	})
}

// updateDiscussion applies fn to a visible thread and emits DISCUSSION_UPDATED.
func (c *Catalog) updateDiscussion(ctx context.Context, actor model.Actor, id string, fn func(f *facts, d *model.Discussion) error) (model.Discussion, error) {
	var updated model.Discussion

	err := c.transact(ctx, func(tx store.Tx, events *bus.Batch) error {
		f, err := loadFacts(tx)
		if err != nil {
			return err
		}
		threads, err := store.Load[model.Discussion](tx, store.BucketDiscussions)
		if err != nil {
			return err
		}

		i := slices.IndexFunc(threads, func(d model.Discussion) bool { return d.ID == id })
		if i < 0 {
			return conceal(actor, model.KindDiscussion, false, false)
		}
		if !policy.CanView(actor, threads[i], f) {
			return model.Forbidden()
		}

		d := threads[i].Clone()
		if err := fn(f, &d); err != nil {
			return err
		}
		threads[i] = d
		updated = d

		if err := store.Save(tx, store.BucketDiscussions, threads); err != nil {
			return err
		}
		return events.Stage(tx, model.TopicDiscussionUpdated, d.ID, d)
	})
	if err != nil {
		return model.Discussion{}, err
	}

	return mask(actor, updated), nil
}
