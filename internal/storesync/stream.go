// Package storesync relays committed store changes between processes over a Redis stream.
package storesync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/learnsphere/moderation/internal/model"
)

// DefaultStream is the stream key changes are appended to.
const DefaultStream = "learnsphere:changes"

// Stream entry fields.
const (
	FieldOrigin   = "origin"
	FieldTopic    = "topic"
	FieldEntityID = "entity_id"
	FieldPayload  = "payload"
	FieldChangeID = "change_id"
)

var (
	// ErrMissingField is returned for a stream entry without a required field.
	ErrMissingField = errors.New("missing field in stream entry")
	// ErrUnknownTopic is returned for a stream entry whose topic is not in the closed set.
	ErrUnknownTopic = errors.New("unknown topic in stream entry")
)

// Fields returns the stream entry fields for c, in XADD order.
func Fields(c model.Change) [][2]string {
	return [][2]string{
		{FieldOrigin, c.Origin},
		{FieldTopic, string(c.Topic)},
		{FieldEntityID, c.EntityID},
		{FieldPayload, string(payloadOrNull(c.Payload))},
		{FieldChangeID, strconv.FormatInt(c.ID, 10)},
	}
}

// ParseEntry turns a stream entry back into a change. The change id is the
// publishing store's id, informational only.
func ParseEntry(entry rueidis.XRangeEntry) (model.Change, error) {
	var c model.Change

	topic, ok := entry.FieldValues[FieldTopic]
	if !ok {
		return c, fmt.Errorf("%w: %s (%s)", ErrMissingField, FieldTopic, entry.ID)
	}
	c.Topic = model.Topic(topic)
	if !c.Topic.IsValid() {
		return c, fmt.Errorf("%w: %q (%s)", ErrUnknownTopic, topic, entry.ID)
	}

	payload, ok := entry.FieldValues[FieldPayload]
	if !ok {
		return c, fmt.Errorf("%w: %s (%s)", ErrMissingField, FieldPayload, entry.ID)
	}
	c.Payload = []byte(payload)
	c.Origin = entry.FieldValues[FieldOrigin]
	c.EntityID = entry.FieldValues[FieldEntityID]

	if raw, ok := entry.FieldValues[FieldChangeID]; ok {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c, fmt.Errorf("failed to parse change id %q: %w", raw, err)
		}
		c.ID = id
	}

	return c, nil
}

// EventOf decodes the payload of c into the entity type its topic carries
// and returns it as a remote event.
func EventOf(c model.Change) (model.Event, error) {
	payload, err := decodePayload(c.Topic, c.Payload)
	if err != nil {
		return model.Event{}, err
	}

	return model.Event{
		Topic:    c.Topic,
		EntityID: c.EntityID,
		Payload:  payload,
		Remote:   true,
	}, nil
}

func decodePayload(topic model.Topic, data []byte) (any, error) {
	switch topic {
	case model.TopicCourseCreated, model.TopicCourseApproved, model.TopicCourseRejected,
		model.TopicCourseDeleted, model.TopicCourseFull:
		return decodeAs[model.Course](topic, data)
	case model.TopicEnrollmentRequested, model.TopicEnrollmentApproved, model.TopicEnrollmentRejected,
		model.TopicEnrollmentCancelled:
		return decodeAs[model.EnrollmentRequest](topic, data)
	case model.TopicDiscussionCreated, model.TopicDiscussionUpdated, model.TopicDiscussionDeleted:
		return decodeAs[model.Discussion](topic, data)
	case model.TopicNoteCreated, model.TopicNoteUpdated, model.TopicNoteDeleted:
		return decodeAs[model.Note](topic, data)
	case model.TopicRatingSubmitted, model.TopicRatingDeleted:
		return decodeAs[model.Rating](topic, data)
	case model.TopicUserDeleted:
		return decodeAs[model.Actor](topic, data)
	case model.TopicNotificationCreated:
		return decodeAs[model.Notification](topic, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
}

func decodeAs[T any](topic model.Topic, data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payloadOrNull(data), &v); err != nil {
		return v, fmt.Errorf("failed to parse %s payload: %w", topic, err)
	}

	return v, nil
}

func payloadOrNull(data []byte) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}
