package presenter

import (
	"context"
	"log/slog"

	"github.com/learnsphere/moderation/internal/model"
)

// Commands pass through to the catalog and the approval engine. Each
// returns a Result and raises at most one toast; idempotent no-ops raise none.
type Commands struct {
	p *Presenter
}

// Done is the value of commands that return nothing.
type Done struct{}

// run converts err to a Result and raises the toast. An empty success
// message keeps the command silent on success.
func run[T any](c Commands, op, success string, value T, err error) Result[T] {
	res := ResultOf(value, err)
	p := c.p

	if res.Failure == nil {
		if success != "" {
			p.notifier.Notify(Toast{Level: ToastSuccess, Message: success})
		}
		return res
	}

	p.logger.Info("command failed",
		slog.String("op", op),
		slog.String("actor", p.actor.ID),
		slog.String("kind", string(res.Failure.Kind)),
		slog.String("field", res.Failure.Field),
		slog.Bool("noop", res.Failure.NoOp),
	)
	if !res.Failure.NoOp {
		p.notifier.Notify(Toast{Level: ToastError, Message: res.Failure.Message, Retry: res.Failure.Retryable()})
	}

	return res
}

func done(err error) (Done, error) { return Done{}, err }

func (c Commands) CreateCourse(ctx context.Context, fields model.CourseFields) Result[model.Course] {
	v, err := c.p.catalog.CreateCourse(ctx, c.p.actor, fields)
	return run(c, "createCourse", "Course submitted for approval", v, err)
}

func (c Commands) RequestEnrollment(ctx context.Context, courseID string) Result[model.EnrollmentRequest] {
	v, err := c.p.catalog.RequestEnrollment(ctx, c.p.actor, courseID)
	return run(c, "requestEnrollment", "Enrollment requested", v, err)
}

func (c Commands) PostDiscussion(ctx context.Context, courseID string, draft model.DiscussionDraft) Result[model.Discussion] {
	v, err := c.p.catalog.PostDiscussion(ctx, c.p.actor, courseID, draft)
	return run(c, "postDiscussion", "Discussion posted", v, err)
}

func (c Commands) Reply(ctx context.Context, discussionID, content string) Result[model.Discussion] {
	v, err := c.p.catalog.Reply(ctx, c.p.actor, discussionID, content)
	return run(c, "reply", "Reply posted", v, err)
}

func (c Commands) Like(ctx context.Context, discussionID string) Result[model.Discussion] {
	v, err := c.p.catalog.Like(ctx, c.p.actor, discussionID)
	return run(c, "like", "Liked", v, err)
}

// View counts a view silently.
func (c Commands) View(ctx context.Context, discussionID string) Result[model.Discussion] {
	v, err := c.p.catalog.View(ctx, c.p.actor, discussionID)
	return run(c, "view", "", v, err)
}

func (c Commands) Pin(ctx context.Context, discussionID string, pinned bool) Result[model.Discussion] {
	v, err := c.p.catalog.Pin(ctx, c.p.actor, discussionID, pinned)
	msg := "Discussion unpinned"
	if pinned {
		msg = "Discussion pinned"
	}
	return run(c, "pin", msg, v, err)
}

func (c Commands) AddNote(ctx context.Context, courseID string, payload model.NotePayload) Result[model.Note] {
	v, err := c.p.catalog.AddNote(ctx, c.p.actor, courseID, payload)
	return run(c, "addNote", "Note shared", v, err)
}

// RecordDownload counts a download silently.
func (c Commands) RecordDownload(ctx context.Context, noteID string) Result[model.Note] {
	v, err := c.p.catalog.RecordDownload(ctx, c.p.actor, noteID)
	return run(c, "recordDownload", "", v, err)
}

func (c Commands) Rate(ctx context.Context, courseID string, score int, review string) Result[model.Rating] {
	v, err := c.p.catalog.Rate(ctx, c.p.actor, courseID, score, review)
	return run(c, "rate", "Thanks for rating", v, err)
}

func (c Commands) Delete(ctx context.Context, ref model.EntityRef) Result[Done] {
	v, err := done(c.p.catalog.Delete(ctx, c.p.actor, ref))
	return run(c, "delete", "Deleted", v, err)
}

func (c Commands) ApproveCourse(ctx context.Context, courseID string) Result[model.Course] {
	v, err := c.p.engine.ApproveCourse(ctx, c.p.actor, courseID)
	return run(c, "approveCourse", "Course approved", v, err)
}

func (c Commands) RejectCourse(ctx context.Context, courseID string) Result[model.Course] {
	v, err := c.p.engine.RejectCourse(ctx, c.p.actor, courseID)
	return run(c, "rejectCourse", "Course rejected", v, err)
}

func (c Commands) ApproveEnrollment(ctx context.Context, requestID string) Result[model.EnrollmentRequest] {
	v, err := c.p.engine.ApproveEnrollment(ctx, c.p.actor, requestID)
	return run(c, "approveEnrollment", "Enrollment approved", v, err)
}

func (c Commands) RejectEnrollment(ctx context.Context, requestID string) Result[model.EnrollmentRequest] {
	v, err := c.p.engine.RejectEnrollment(ctx, c.p.actor, requestID)
	return run(c, "rejectEnrollment", "Enrollment rejected", v, err)
}

func (c Commands) SaveDraft(ctx context.Context, draft model.Draft) Result[model.Draft] {
	v, err := c.p.catalog.SaveDraft(ctx, c.p.actor, draft)
	return run(c, "saveDraft", "Draft saved", v, err)
}

func (c Commands) DeleteDraft(ctx context.Context, id string) Result[Done] {
	v, err := done(c.p.catalog.DeleteDraft(ctx, c.p.actor, id))
	return run(c, "deleteDraft", "Draft deleted", v, err)
}

func (c Commands) DeleteUser(ctx context.Context, userID string) Result[Done] {
	v, err := done(c.p.catalog.DeleteUser(ctx, c.p.actor, userID))
	return run(c, "deleteUser", "User deleted", v, err)
}

func (c Commands) MarkRead(ctx context.Context, id string) Result[model.Notification] {
	v, err := c.p.catalog.MarkRead(ctx, c.p.actor, id)
	return run(c, "markRead", "", v, err)
}
