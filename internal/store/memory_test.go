package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnsphere/moderation/internal/model"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestMemoryReadMissingBucketIsEmpty(t *testing.T) {
	m := NewMemory()

	records, err := m.Read(context.Background(), BucketCourses)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)
}

func TestMemoryWriteThenRead(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	records, err := Encode([]item{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}})
	require.NoError(t, err)
	require.NoError(t, m.Write(ctx, BucketCourses, records))

	got, err := m.Read(ctx, BucketCourses)
	require.NoError(t, err)
	items, err := Decode[item](BucketCourses, got)
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}, items)
}

func TestMemoryMutate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	appendOne := func(records []Record) ([]Record, error) {
		rec, _ := json.Marshal(item{ID: "x"})
		return append(records, rec), nil
	}
	require.NoError(t, m.Mutate(ctx, BucketDrafts, appendOne))
	require.NoError(t, m.Mutate(ctx, BucketDrafts, appendOne))

	got, err := m.Read(ctx, BucketDrafts)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryUpdateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	err := m.Update(ctx, func(tx Tx) error {
		require.NoError(t, Save(tx, BucketCourses, []item{{ID: "1"}}))
		require.NoError(t, Save(tx, BucketPendingCourses, []item{}))
		tx.Announce(model.Announcement{Topic: model.TopicCourseApproved, EntityID: "1"})
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := m.Read(ctx, BucketCourses)
	require.NoError(t, err)
	assert.Empty(t, got)

	changes, err := m.Unpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestMemoryTxReadsItsOwnWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.Update(ctx, func(tx Tx) error {
		require.NoError(t, Save(tx, BucketUsers, []item{{ID: "u1"}}))
		users, err := Load[item](tx, BucketUsers)
		require.NoError(t, err)
		assert.Len(t, users, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryQuota(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(WithQuota(64))

	big, err := Encode([]item{{ID: "1", Name: "this name is long enough to blow a sixty-four byte quota"}})
	require.NoError(t, err)

	err = m.Write(ctx, BucketCourses, big)
	require.Error(t, err)
	assert.Equal(t, model.KindStoreUnavailable, model.KindOf(err))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Zero(t, m.Size())
}

func TestMemoryParseFailureIsStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Write(ctx, BucketCourses, []Record{json.RawMessage(`{"id":1}`)}))

	records, err := m.Read(ctx, BucketCourses)
	require.NoError(t, err)

	_, err = Decode[item](BucketCourses, records)
	assert.Equal(t, model.KindStoreUnavailable, model.KindOf(err))
}

func TestMemoryConflictRetriesTransaction(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	runs := 0

	err := m.Update(ctx, func(tx Tx) error {
		runs++
		items, err := Load[item](tx, BucketCourses)
		if err != nil {
			return err
		}
		if runs == 1 {
			// A nested writer commits between our read and our commit.
			require.NoError(t, m.Mutate(ctx, BucketCourses, func(r []Record) ([]Record, error) {
				rec, _ := json.Marshal(item{ID: "other"})
				return append(r, rec), nil
			}))
		}
		return Save(tx, BucketCourses, append(items, item{ID: "mine"}))
	})
	require.NoError(t, err)
	assert.Equal(t, 2, runs)

	items, err := Load[item](readerFunc(func(b string) ([]Record, error) { return m.Read(ctx, b) }), BucketCourses)
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "other"}, {ID: "mine"}}, items)
}

func TestMemoryOutboxAndWatch(t *testing.T) {
	m := NewMemory(WithDefaultOrigin("tab-a"))
	ctx := WithOrigin(context.Background(), "tab-b")

	var seen []model.Change
	cancel := m.Watch(func(c model.Change) { seen = append(seen, c) })

	err := m.Update(ctx, func(tx Tx) error {
		tx.Announce(model.Announcement{Topic: model.TopicCourseCreated, EntityID: "c1", Payload: []byte(`{}`)})
		tx.Announce(model.Announcement{Topic: model.TopicNoteCreated, EntityID: "n1", Payload: []byte(`{}`)})
		return nil
	})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "tab-b", seen[0].Origin)
	assert.Equal(t, model.TopicCourseCreated, seen[0].Topic)
	assert.Equal(t, model.TopicNoteCreated, seen[1].Topic)

	pending, err := m.Unpublished(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, m.MarkPublished(ctx, pending[0].ID))

	pending, err = m.Unpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "n1", pending[0].EntityID)

	cancel()
	require.NoError(t, m.Update(ctx, func(tx Tx) error {
		tx.Announce(model.Announcement{Topic: model.TopicCourseCreated, EntityID: "c2"})
		return nil
	}))
	assert.Len(t, seen, 2)
}

func TestMemoryClosed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())

	err := m.Write(context.Background(), BucketUsers, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

type readerFunc func(bucket string) ([]Record, error)

func (f readerFunc) Read(bucket string) ([]Record, error) { return f(bucket) }
