package storesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnsphere/moderation/internal/bus"
	"github.com/learnsphere/moderation/internal/logger"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/store"
)

func entryOf(id string, c model.Change) rueidis.XRangeEntry {
	fields := make(map[string]string)
	for _, f := range Fields(c) {
		fields[f[0]] = f[1]
	}
	return rueidis.XRangeEntry{ID: id, FieldValues: fields}
}

func TestParseEntry(t *testing.T) {
	change := model.Change{
		ID:       7,
		Origin:   "api-1",
		Topic:    model.TopicCourseApproved,
		EntityID: "c1",
		Payload:  []byte(`{"id":"c1","title":"Go","status":"active"}`),
	}

	got, err := ParseEntry(entryOf("1-0", change))
	require.NoError(t, err)
	assert.Equal(t, change, got)

	ev, err := EventOf(got)
	require.NoError(t, err)
	assert.True(t, ev.Remote)
	assert.Equal(t, "c1", ev.EntityID)
	course, ok := ev.Payload.(model.Course)
	require.True(t, ok)
	assert.Equal(t, "Go", course.Title)
	assert.Equal(t, model.CourseActive, course.Status)
}

func TestParseEntryRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		want   error
	}{
		{"missing topic", map[string]string{FieldPayload: "{}"}, ErrMissingField},
		{"missing payload", map[string]string{FieldTopic: string(model.TopicNoteCreated)}, ErrMissingField},
		{"unknown topic", map[string]string{FieldTopic: "USER_CREATED", FieldPayload: "{}"}, ErrUnknownTopic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEntry(rueidis.XRangeEntry{ID: "1-0", FieldValues: tt.fields})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEventOfDecodesPerTopic(t *testing.T) {
	tests := []struct {
		topic model.Topic
		check func(t *testing.T, payload any)
	}{
		{model.TopicEnrollmentCancelled, func(t *testing.T, p any) { assert.IsType(t, model.EnrollmentRequest{}, p) }},
		{model.TopicDiscussionDeleted, func(t *testing.T, p any) { assert.IsType(t, model.Discussion{}, p) }},
		{model.TopicNoteUpdated, func(t *testing.T, p any) { assert.IsType(t, model.Note{}, p) }},
		{model.TopicRatingSubmitted, func(t *testing.T, p any) { assert.IsType(t, model.Rating{}, p) }},
		{model.TopicUserDeleted, func(t *testing.T, p any) { assert.IsType(t, model.Actor{}, p) }},
		{model.TopicNotificationCreated, func(t *testing.T, p any) { assert.IsType(t, model.Notification{}, p) }},
	}

	for _, tt := range tests {
		t.Run(string(tt.topic), func(t *testing.T) {
			ev, err := EventOf(model.Change{Topic: tt.topic, EntityID: "x", Payload: []byte(`{}`)})
			require.NoError(t, err)
			tt.check(t, ev.Payload)
		})
	}

	_, err := EventOf(model.Change{Topic: model.TopicCourseCreated, Payload: []byte(`{"capacity":"many"}`)})
	assert.Error(t, err)
}

type fakeSink struct {
	failFor  map[int64]bool
	appended []model.Change
}

func (s *fakeSink) Append(_ context.Context, c model.Change) (string, error) {
	if s.failFor[c.ID] {
		return "", errors.New("redis down")
	}
	s.appended = append(s.appended, c)
	return "1-0", nil
}

func announce(t *testing.T, m *store.Memory, topics ...model.Topic) {
	t.Helper()
	require.NoError(t, m.Update(context.Background(), func(tx store.Tx) error {
		for _, topic := range topics {
			tx.Announce(model.Announcement{Topic: topic, EntityID: "e", Payload: []byte(`{}`)})
		}
		return nil
	}))
}

func TestPublisherKeepsFailedChangesPending(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory(store.WithDefaultOrigin("api-1"))
	announce(t, m, model.TopicCourseCreated, model.TopicCourseApproved, model.TopicNoteCreated)

	sink := &fakeSink{failFor: map[int64]bool{2: true}}
	p := NewPublisher(m, sink, logger.Discard())

	n, err := p.ProcessUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, sink.appended, 2)
	assert.Equal(t, model.TopicCourseCreated, sink.appended[0].Topic)
	assert.Equal(t, "api-1", sink.appended[0].Origin)
	assert.Equal(t, model.TopicNoteCreated, sink.appended[1].Topic)

	pending, err := m.Unpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.TopicCourseApproved, pending[0].Topic)

	sink.failFor = nil
	n, err = p.ProcessUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRelayHandleSkipsOwnOriginAndMalformed(t *testing.T) {
	b := bus.New(bus.WithLogger(logger.Discard()))
	var got []model.Event
	b.OnAll(func(ev model.Event) { got = append(got, ev) })

	locked := 0
	d := NewDeliverer(b, "api-1",
		WithLogger(logger.Discard()),
		WithExclusive(func(fn func()) { locked++; fn() }),
	)
	r := NewRelay(nil, "", d)
	assert.Equal(t, "$", r.LastID())

	entries := []rueidis.XRangeEntry{
		entryOf("1-0", model.Change{Origin: "api-1", Topic: model.TopicCourseCreated, EntityID: "c1", Payload: []byte(`{}`)}),
		entryOf("2-0", model.Change{Origin: "api-2", Topic: model.TopicCourseCreated, EntityID: "c2", Payload: []byte(`{"id":"c2"}`)}),
		{ID: "3-0", FieldValues: map[string]string{FieldTopic: "BOGUS"}},
		entryOf("4-0", model.Change{Origin: "api-2", Topic: model.TopicNoteDeleted, EntityID: "n1", Payload: []byte(`{"id":"n1"}`)}),
	}

	assert.Equal(t, 2, r.Handle(entries))
	assert.Equal(t, "4-0", r.LastID())
	assert.Equal(t, 2, locked)

	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[0].EntityID)
	assert.True(t, got[0].Remote)
	assert.Equal(t, model.TopicNoteDeleted, got[1].Topic)
	assert.Less(t, got[0].Seq, got[1].Seq)
}

func TestLocalRelayMirrorsOtherOrigins(t *testing.T) {
	m := store.NewMemory(store.WithDefaultOrigin("tab-a"))
	b := bus.New(bus.WithLogger(logger.Discard()))

	var mu sync.Mutex
	var got []model.Event
	b.OnAll(func(ev model.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	l := StartLocal(m, NewDeliverer(b, "tab-a", WithLogger(logger.Discard())))
	defer l.Close()

	ctxB := store.WithOrigin(context.Background(), "tab-b")
	announce(t, m, model.TopicDiscussionCreated)
	require.NoError(t, m.Update(ctxB, func(tx store.Tx) error {
		tx.Announce(model.Announcement{Topic: model.TopicDiscussionUpdated, EntityID: "d1", Payload: []byte(`{"id":"d1"}`)})
		return nil
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, model.TopicDiscussionUpdated, got[0].Topic)
	assert.True(t, got[0].Remote)
	mu.Unlock()

	l.Close()
	l.Close()
}
