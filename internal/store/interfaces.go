// Package store provides the bucketed record store the core persists to.
package store

import (
	"context"
	"encoding/json"

	"github.com/learnsphere/moderation/internal/model"
)

// Record is one JSON-shaped entry in a bucket.
type Record = json.RawMessage

// Bucket names.
const (
	BucketUsers               = "users"
	BucketCourses             = "courses"
	BucketPendingCourses      = "pendingCourses"
	BucketRejectedCourses     = "rejectedCourses"
	BucketPendingEnrollments  = "pendingEnrollments"
	BucketApprovedEnrollments = "approvedEnrollments"
	BucketRejectedEnrollments = "rejectedEnrollments"
	BucketDiscussions         = "discussions"
	BucketDiscussionNotes     = "discussionNotes"
	BucketCourseRatings       = "courseRatings"
	BucketDrafts              = "drafts"
	BucketNotifications       = "notifications"
)

// Reader reads whole buckets. A missing bucket reads as an empty list.
type Reader interface {
	Read(bucket string) ([]Record, error)
}

// Tx is one atomic read-modify-write over any number of buckets.
// Writes and announcements become visible together on commit, or not at all.
type Tx interface {
	Reader
	// Write replaces the bucket wholesale.
	Write(bucket string, records []Record) error
	// Announce stages a change signal committed with the writes.
	Announce(a model.Announcement)
}

// Store persists named buckets of records.
type Store interface {
	Read(ctx context.Context, bucket string) ([]Record, error)
	Write(ctx context.Context, bucket string, records []Record) error
	Mutate(ctx context.Context, bucket string, fn func([]Record) ([]Record, error)) error
	// Update runs fn in a transaction. fn may run more than once if a
	// concurrent writer invalidated what it read.
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Outbox exposes committed change signals to the publisher.
type Outbox interface {
	Unpublished(ctx context.Context, limit int) ([]model.Change, error)
	MarkPublished(ctx context.Context, id int64) error
}

// Feed delivers committed changes to in-process watchers, such as other
// tabs sharing one local store.
type Feed interface {
	Watch(fn func(model.Change)) (cancel func())
}

type originKey struct{}

// WithOrigin tags changes announced under ctx with the writer's instance id.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the origin set by WithOrigin, or fallback.
func OriginFrom(ctx context.Context, fallback string) string {
	if origin, ok := ctx.Value(originKey{}).(string); ok && origin != "" {
		return origin
	}
	return fallback
}

// MutateVia implements Store.Mutate on top of Store.Update.
func MutateVia(ctx context.Context, s Store, bucket string, fn func([]Record) ([]Record, error)) error {
	return s.Update(ctx, func(tx Tx) error {
		records, err := tx.Read(bucket)
		if err != nil {
			return err
		}

		next, err := fn(records)
		if err != nil {
			return err
		}

		return tx.Write(bucket, next)
	})
}

// ReadVia implements Store.Read on top of Store.Update.
func ReadVia(ctx context.Context, s Store, bucket string) ([]Record, error) {
	var out []Record

	err := s.Update(ctx, func(tx Tx) error {
		records, err := tx.Read(bucket)
		out = records
		return err
	})

	return out, err
}
