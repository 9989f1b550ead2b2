package core

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnsphere/moderation/internal/config"
	"github.com/learnsphere/moderation/internal/logger"
	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/store"
)

func newCore(t *testing.T, opts ...Option) *Context {
	t.Helper()

	opts = append([]Option{WithOrigin("test-core"), WithLogger(logger.Discard())}, opts...)
	c := New(store.NewMemory(store.WithDefaultOrigin("test-core")), opts...)
	t.Cleanup(func() { _ = c.Close() })

	seeded, err := c.Seed(context.Background())
	require.NoError(t, err)
	require.True(t, seeded)

	return c
}

func actor(t *testing.T, c *Context, email string) model.Actor {
	t.Helper()
	a, err := c.Catalog.ActorByEmail(context.Background(), email)
	require.NoError(t, err)
	return a
}

func TestSeedOnlyOnce(t *testing.T) {
	c := newCore(t)

	seeded, err := c.Seed(context.Background())
	require.NoError(t, err)
	assert.False(t, seeded)

	admin := actor(t, c, "ADMIN@learnsphere.com")
	assert.Equal(t, model.RoleAdmin, admin.Role)
}

func TestCoreEndToEndWithInlineNotifications(t *testing.T) {
	ctx := context.Background()
	c := newCore(t, WithInlineNotifications(true))

	admin := actor(t, c, "admin@learnsphere.com")
	sarah := actor(t, c, "sarah.johnson@learnsphere.com")
	emma := actor(t, c, "emma.wilson@learnsphere.com")

	instructor := c.Presenter(sarah)
	created := instructor.Command().CreateCourse(ctx, model.CourseFields{
		Title:       "React 101",
		Description: "Components and hooks",
		Category:    "Web",
		Level:       model.LevelBeginner,
		Duration:    "6 weeks",
		Capacity:    1,
	})
	require.True(t, created.OK(), created.Err())

	approved := c.Presenter(admin).Command().ApproveCourse(ctx, created.Value.ID)
	require.True(t, approved.OK(), approved.Err())

	student := c.Presenter(emma)
	requested := student.Command().RequestEnrollment(ctx, created.Value.ID)
	require.True(t, requested.OK(), requested.Err())

	var full []model.Event
	c.Bus.On(model.TopicCourseFull, func(ev model.Event) { full = append(full, ev) })

	enrolled := c.Presenter(admin).Command().ApproveEnrollment(ctx, requested.Value.ID)
	require.True(t, enrolled.OK(), enrolled.Err())
	assert.Len(t, full, 1)

	courses, err := student.Query().Courses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"React 101"}, titles(courses))

	inbox, err := instructor.Query().Notifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Topic{model.TopicCourseApproved}, topicsOf(inbox))

	inbox, err = student.Query().Notifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Topic{model.TopicEnrollmentApproved}, topicsOf(inbox))

	inbox, err = c.Presenter(admin).Query().Notifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Topic{model.TopicCourseCreated, model.TopicEnrollmentRequested}, topicsOf(inbox))

	outbox, ok := c.Outbox()
	require.True(t, ok)
	changes, err := outbox.Unpublished(ctx, 100)
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	for _, ch := range changes {
		assert.Equal(t, "test-core", ch.Origin)
	}
}

func TestNotificationsOffWithoutInline(t *testing.T) {
	ctx := context.Background()
	c := newCore(t)

	sarah := actor(t, c, "sarah.johnson@learnsphere.com")
	admin := actor(t, c, "admin@learnsphere.com")

	created := c.Presenter(sarah).Command().CreateCourse(ctx, model.CourseFields{
		Title: "Go", Description: "d", Category: "Systems", Level: model.LevelAdvanced, Duration: "1w", Capacity: 5,
	})
	require.True(t, created.OK(), created.Err())

	inbox, err := c.Presenter(admin).Query().Notifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, topicsOf(inbox))
}

func TestOpenStoreDrivers(t *testing.T) {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	s, err := OpenStore(ctx, cfg, "o1", logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, s)
	require.NoError(t, s.Close())

	cfg.StoreDriver = config.DriverSQLite
	cfg.SQLitePath = t.TempDir() + "/core.db"
	c, err := Open(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	_, hasFeed := c.Feed()
	assert.False(t, hasFeed)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	cfg.StoreDriver = "mongo"
	_, err = OpenStore(ctx, cfg, "o1", logger.Discard())
	assert.ErrorIs(t, err, config.ErrUnknownDriver)
}

func TestDefaultCapacityIsAdvisory(t *testing.T) {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	c, err := Open(ctx, cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	_, err = c.Seed(ctx)
	require.NoError(t, err)

	admin := c.Presenter(actor(t, c, "admin@learnsphere.com")).Command()
	created := c.Presenter(actor(t, c, "sarah.johnson@learnsphere.com")).Command().CreateCourse(ctx, model.CourseFields{
		Title: "T", Description: "d", Category: "Web", Level: model.LevelBeginner, Duration: "1w", Capacity: 1,
	})
	require.True(t, created.OK(), created.Err())
	require.True(t, admin.ApproveCourse(ctx, created.Value.ID).OK())

	var full int
	c.Bus.On(model.TopicCourseFull, func(model.Event) { full++ })

	for _, email := range []string{"emma.wilson@learnsphere.com", "james.brown@learnsphere.com"} {
		requested := c.Presenter(actor(t, c, email)).Command().RequestEnrollment(ctx, created.Value.ID)
		require.True(t, requested.OK(), requested.Err())
		approved := admin.ApproveEnrollment(ctx, requested.Value.ID)
		require.True(t, approved.OK(), approved.Err())
	}
	assert.Equal(t, 2, full)
}

func titles(seq func(func(model.Course) bool)) []string {
	var out []string
	for c := range seq {
		out = append(out, c.Title)
	}
	return out
}

func topicsOf(seq func(func(model.Notification) bool)) []model.Topic {
	var out []model.Topic
	for n := range seq {
		out = append(out, n.Topic)
	}
	slices.Sort(out)
	return out
}
