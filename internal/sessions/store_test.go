package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dhkts1/yoga-app-sub002/internal/collection"
	"github.com/dhkts1/yoga-app-sub002/internal/content"
	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.UnixMilli(1700000000000)

func testCatalog(t *testing.T) *content.Catalog {
	t.Helper()
	c, err := content.Default()
	require.NoError(t, err)
	return c
}

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client, err := kv.NewClient(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store, err := NewStore(client, testCatalog(t), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return store, mr
}

func poses(pairs ...any) []content.SessionPose {
	out := make([]content.SessionPose, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, content.SessionPose{PoseID: pairs[i].(string), Seconds: pairs[i+1].(int)})
	}
	return out
}

func TestValidate(t *testing.T) {
	catalog := testCatalog(t)
	valid := Session{Name: "Quick", Poses: poses("mountain", 30, "child", 60), Duration: 90}
	require.NoError(t, Validate(valid, catalog))

	tests := []struct {
		name   string
		modify func(*Session)
		want   string
	}{
		{"blank name", func(s *Session) { s.Name = "  " }, "name is required"},
		{"too few poses", func(s *Session) { s.Poses = s.Poses[:1]; s.Duration = 30 }, "must have 2 to 20 poses, got 1"},
		{"unknown pose", func(s *Session) { s.Poses[0].PoseID = "headstand" }, "unknown pose 'headstand'"},
		{"off-step duration", func(s *Session) { s.Poses[0].Seconds = 40; s.Duration = 100 }, "pose 0: duration 40s"},
		{"too long", func(s *Session) { s.Poses[1].Seconds = 135; s.Duration = 165 }, "pose 1: duration 135s"},
		{"duration mismatch", func(s *Session) { s.Duration = 10 }, "duration 10 does not match pose total 90"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			s.Poses = append([]content.SessionPose(nil), valid.Poses...)
			tt.modify(&s)

			err := Validate(s, catalog)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		var verr *ValidationError
		err := Validate(Session{}, catalog)
		require.True(t, errors.As(err, &verr))
		assert.Len(t, verr.Problems, 2)
	})
}

func TestCreate(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	s, err := store.Create(ctx, "Evening", poses("cobra", 30, "child", 60))
	require.NoError(t, err)

	_, err = uuid.Parse(s.ID)
	assert.NoError(t, err)
	assert.Equal(t, 90, s.Duration)
	assert.Equal(t, fixedNow.UnixMilli(), s.CreatedAtMs)

	got, ok := store.Get(ctx, s.ID)
	require.True(t, ok)
	assert.Equal(t, s, got)
	assert.Equal(t, []string{s.ID}, store.IDs(ctx))
}

func TestListIsSnapshot(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	s, err := store.Create(ctx, "Evening", poses("cobra", 30, "child", 60))
	require.NoError(t, err)

	store.List(ctx)[0].Poses[0].Seconds = 999
	s.Poses[1].Seconds = 999

	got, ok := store.Get(ctx, s.ID)
	require.True(t, ok)
	assert.Equal(t, poses("cobra", 30, "child", 60), got.Poses)
}

func TestCreateRejectsInvalid(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "", poses("cobra", 30))
	assert.True(t, IsValidationError(err))
	assert.Empty(t, store.List(ctx))
	assert.False(t, mr.Exists(kv.SlotKey("test", Key)))
}

func TestAddDuplicate(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	s := Session{ID: "fixed", Name: "A", Poses: poses("mountain", 30, "child", 60), Duration: 90}
	require.NoError(t, store.Add(ctx, s))
	assert.ErrorIs(t, store.Add(ctx, s), collection.ErrDuplicateID)
}

func TestUpdate(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	s, err := store.Create(ctx, "Evening", poses("cobra", 30, "child", 60))
	require.NoError(t, err)

	t.Run("rename", func(t *testing.T) {
		ok, err := store.Rename(ctx, s.ID, "Late evening")
		require.NoError(t, err)
		assert.True(t, ok)

		got, _ := store.Get(ctx, s.ID)
		assert.Equal(t, "Late evening", got.Name)
		assert.Equal(t, s.Poses, got.Poses)
	})

	t.Run("new poses recompute duration", func(t *testing.T) {
		ok, err := store.Update(ctx, s.ID, collection.Patch{
			"poses": poses("cobra", 45, "knees-to-chest", 30, "child", 60),
		})
		require.NoError(t, err)
		assert.True(t, ok)

		got, _ := store.Get(ctx, s.ID)
		assert.Equal(t, 135, got.Duration)
		assert.Len(t, got.Poses, 3)
	})

	t.Run("invalid result is not written", func(t *testing.T) {
		before, _ := store.Get(ctx, s.ID)

		_, err := store.Update(ctx, s.ID, collection.Patch{"name": ""})
		assert.True(t, IsValidationError(err))

		after, _ := store.Get(ctx, s.ID)
		assert.Equal(t, before, after)
	})

	t.Run("unknown id", func(t *testing.T) {
		ok, err := store.Update(ctx, "ghost", collection.Patch{"name": "x"})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRemove(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()
	s, err := store.Create(ctx, "Evening", poses("cobra", 30, "child", 60))
	require.NoError(t, err)

	ok, err := store.Remove(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, found := store.Get(ctx, s.ID)
	assert.False(t, found)

	persisted, err := mr.Get(kv.SlotKey("test", Key))
	require.NoError(t, err)
	assert.Equal(t, "[]", persisted)
}

func TestCheckSequence(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	bad, err := store.Create(ctx, "Twisty", poses("cobra", 30, "seated-twist", 45, "child", 60))
	require.NoError(t, err)
	result, err := store.CheckSequence(ctx, bad.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Warning, "cobra (backbend) is directly followed by seated-twist (twist)")

	good, err := store.Create(ctx, "Safe", poses("cobra", 30, "knees-to-chest", 30))
	require.NoError(t, err)
	result, err = store.CheckSequence(ctx, good.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	_, err = store.CheckSequence(ctx, "ghost")
	assert.ErrorIs(t, err, collection.ErrRecordNotFound)
}

func TestNewStoreRequiresCatalog(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := kv.NewClient(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	defer client.Close()

	_, err = NewStore(client, nil)
	assert.Error(t, err)
}
