package catalog

import (
	"context"
	"fmt"

	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/policy"
	"github.com/learnsphere/moderation/internal/store"
)

// Rate records the actor's single rating of a course.
func (c *Catalog) Rate(ctx context.Context, actor model.Actor, courseID string, score int, review string) (model.Rating, error) {
	var rating model.Rating

	err := c.transact(ctx, func(tx store.Tx, events *bus.Batch) error {
		f, err := loadFacts(tx)
		if err != nil {
			return err
		}
		if err := policy.CheckRate(actor, courseID, f); err != nil {
			return err
		}
		if score < model.MinScore || score > model.MaxScore {
			return model.ValidationFailed("score", fmt.Sprintf("score must be between %d and %d", model.MinScore, model.MaxScore))
		}

		rating = model.Rating{
			Key:         model.RatingKey(actor.ID, courseID),
			RaterID:     actor.ID,
			RaterName:   actor.Name,
			CourseID:    courseID,
			Score:       score,
			Review:      review,
			SubmittedAt: c.stamp(),
		}

		ratings, err := store.Load[model.Rating](tx, store.BucketCourseRatings)
		if err != nil {
			return err
		}
		if err := store.Save(tx, store.BucketCourseRatings, append(ratings, rating)); err != nil {
			return err
		}
		return events.Stage(tx, model.TopicRatingSubmitted, rating.Key, rating)
	})
	if err != nil {
		return model.Rating{}, err
	}

	return rating, nil
}
