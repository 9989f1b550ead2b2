package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("approve: %w", IllegalTransition("approve", "active"))

	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.Equal(t, KindIllegalTransition, KindOf(err))
}

func TestValidationFailedCarriesField(t *testing.T) {
	err := ValidationFailed("score", "must be between 1 and 5")

	e := AsError(err)
	assert.Equal(t, "score", e.Field)
	assert.Equal(t, "score: must be between 1 and 5", err.Error())
}

func TestAsErrorClassifiesForeignErrors(t *testing.T) {
	cause := errors.New("disk full")

	e := AsError(cause)
	assert.Equal(t, KindStoreUnavailable, e.Kind)
	assert.ErrorIs(t, e, cause)
	assert.True(t, e.Kind.Retryable())
	assert.Nil(t, AsError(nil))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestAlreadyInStateIsNoOp(t *testing.T) {
	e := AsError(AlreadyInState("approve", "active"))
	assert.True(t, e.NoOp)
	assert.Equal(t, KindIllegalTransition, e.Kind)
}

func TestTopicIsValid(t *testing.T) {
	for _, topic := range AllTopics() {
		t.Run(string(topic), func(t *testing.T) {
			assert.True(t, topic.IsValid())
		})
	}
	assert.False(t, Topic("COURSE_UPDATED").IsValid())
	assert.False(t, Topic("").IsValid())
}

func TestRoleIsValid(t *testing.T) {
	assert.True(t, RoleAdmin.IsValid())
	assert.True(t, RoleInstructor.IsValid())
	assert.True(t, RoleStudent.IsValid())
	assert.False(t, Role("guest").IsValid())
}

func TestActorCourseSets(t *testing.T) {
	a := Actor{ID: "s1", Role: RoleStudent}
	a.Enroll("c1")
	a.Enroll("c1")
	a.Enroll("c2")
	assert.Equal(t, []string{"c1", "c2"}, a.EnrolledCourseIDs)

	a.Forget("c1")
	assert.Equal(t, []string{"c2"}, a.EnrolledCourseIDs)
}
