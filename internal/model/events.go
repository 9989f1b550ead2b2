package model

// Topic names a domain event. The set is closed.
type Topic string

// Core topics.
const (
	TopicCourseCreated       Topic = "COURSE_CREATED"
	TopicCourseApproved      Topic = "COURSE_APPROVED"
	TopicCourseRejected      Topic = "COURSE_REJECTED"
	TopicCourseDeleted       Topic = "COURSE_DELETED"
	TopicEnrollmentRequested Topic = "ENROLLMENT_REQUESTED"
	TopicEnrollmentApproved  Topic = "ENROLLMENT_APPROVED"
	TopicEnrollmentRejected  Topic = "ENROLLMENT_REJECTED"
	TopicDiscussionCreated   Topic = "DISCUSSION_CREATED"
	TopicNoteCreated         Topic = "NOTE_CREATED"
	TopicRatingSubmitted     Topic = "RATING_SUBMITTED"
	TopicUserDeleted         Topic = "USER_DELETED"
)

// Secondary and per-child topics.
const (
	TopicCourseFull          Topic = "COURSE_FULL"
	TopicDiscussionUpdated   Topic = "DISCUSSION_UPDATED"
	TopicDiscussionDeleted   Topic = "DISCUSSION_DELETED"
	TopicNoteUpdated         Topic = "NOTE_UPDATED"
	TopicNoteDeleted         Topic = "NOTE_DELETED"
	TopicRatingDeleted       Topic = "RATING_DELETED"
	TopicEnrollmentCancelled Topic = "ENROLLMENT_CANCELLED"
	TopicNotificationCreated Topic = "NOTIFICATION_CREATED"
)

var allTopics = []Topic{
	TopicCourseCreated,
	TopicCourseApproved,
	TopicCourseRejected,
	TopicCourseDeleted,
	TopicEnrollmentRequested,
	TopicEnrollmentApproved,
	TopicEnrollmentRejected,
	TopicDiscussionCreated,
	TopicNoteCreated,
	TopicRatingSubmitted,
	TopicUserDeleted,
	TopicCourseFull,
	TopicDiscussionUpdated,
	TopicDiscussionDeleted,
	TopicNoteUpdated,
	TopicNoteDeleted,
	TopicRatingDeleted,
	TopicEnrollmentCancelled,
	TopicNotificationCreated,
}

// AllTopics returns every known topic.
func AllTopics() []Topic {
	out := make([]Topic, len(allTopics))
	copy(out, allTopics)
	return out
}

// IsValid reports whether t is a known topic.
func (t Topic) IsValid() bool {
	for _, known := range allTopics {
		if t == known {
			return true
		}
	}
	return false
}

// Event is one delivered domain event. Payload holds a value copy of the
// mutated entity; it is never modified after emit.
type Event struct {
	Seq      uint64 `json:"seq"`
	Topic    Topic  `json:"topic"`
	EntityID string `json:"entityId"`
	Payload  any    `json:"payload"`
	// Remote is set on events re-emitted from another process's change stream.
	Remote bool `json:"remote,omitempty"`
}

// EntityKind identifies what an EntityRef points at.
type EntityKind string

// Entity kinds.
const (
	KindCourse     EntityKind = "course"
	KindDiscussion EntityKind = "discussion"
	KindNote       EntityKind = "note"
	KindRating     EntityKind = "rating"
	KindEnrollment EntityKind = "enrollment"
	KindUser       EntityKind = "user"
)

// EntityRef addresses an entity by kind and id.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}
