package override

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dhkts1/yoga-app-sub002/internal/cell"
	"github.com/dhkts1/yoga-app-sub002/internal/content"
	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newBackend(t *testing.T, mr *miniredis.Miniredis) *kv.Client {
	client, err := kv.NewClient(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func setupSessionStore(t *testing.T, opts ...Option) (*SessionStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	store, err := NewSessionStore(newBackend(t, mr), opts...)
	require.NoError(t, err)
	return store, mr
}

func setupProgramStore(t *testing.T, opts ...Option) (*ProgramStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	store, err := NewProgramStore(newBackend(t, mr), opts...)
	require.NoError(t, err)
	return store, mr
}

var basePoses = []content.SessionPose{
	{PoseID: "mountain", Seconds: 30},
	{PoseID: "cobra", Seconds: 30},
	{PoseID: "knees-to-chest", Seconds: 30},
	{PoseID: "child", Seconds: 60},
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  float64
		want int
	}{
		{15, 15},
		{22, 15},
		{23, 30},
		{37.5, 45},
		{0, 15},
		{-100, 15},
		{299, 300},
		{10000, 300},
		{math.Inf(1), 300},
		{math.Inf(-1), 15},
		{math.NaN(), 15},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.raw), "raw=%v", tt.raw)
	}
}

func TestClampingIdempotence(t *testing.T) {
	store, _ := setupSessionStore(t)
	ctx := context.Background()

	for _, raw := range []float64{-1e9, -1, 0, 7, 8, 16, 61, 122.4, 299.9, 301, 1e9} {
		require.NoError(t, store.SetDuration(ctx, "s", 0, raw))
		got, ok := store.Duration(ctx, "s", 0)
		require.True(t, ok)
		assert.GreaterOrEqual(t, got, MinSeconds)
		assert.LessOrEqual(t, got, MaxSeconds)
		assert.Zero(t, got%StepSeconds, "raw=%v got=%d", raw, got)
	}
}

func TestSessionStoreBasics(t *testing.T) {
	store, mr := setupSessionStore(t)
	ctx := context.Background()

	_, ok := store.Duration(ctx, "morning-flow", 1)
	assert.False(t, ok)
	assert.False(t, store.HasOverrides(ctx, "morning-flow"))
	assert.Equal(t, Values{}, store.SessionDurations(ctx, "morning-flow"))

	require.NoError(t, store.SetDuration(ctx, "morning-flow", 1, 50))

	got, ok := store.Duration(ctx, "morning-flow", 1)
	require.True(t, ok)
	assert.Equal(t, 45, got)
	assert.True(t, store.HasOverrides(ctx, "morning-flow"))
	assert.Equal(t, []string{"morning-flow"}, store.Sessions(ctx))

	persisted, err := mr.Get(kv.SlotKey("test", SessionKey))
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"durationOverrides":{"morning-flow":{"1":45}}}`, persisted)
}

func TestSessionDurationsIsCopy(t *testing.T) {
	store, _ := setupSessionStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetDuration(ctx, "s", 0, 60))

	values := store.SessionDurations(ctx, "s")
	values[0] = 999
	values[5] = 15

	assert.Equal(t, Values{0: 60}, store.SessionDurations(ctx, "s"))
}

func TestSetSessionDurations(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store, _ := setupSessionStore(t, WithLogger(zap.New(core)))
	ctx := context.Background()

	require.NoError(t, store.SetDuration(ctx, "s", 3, 90))
	require.NoError(t, store.SetSessionDurations(ctx, "s", map[int]float64{0: 44, 1: 1000, -2: 30}))

	assert.Equal(t, Values{0: 45, 1: 300}, store.SessionDurations(ctx, "s"), "previous entries are replaced")
	assert.Equal(t, 1, logs.FilterMessage("dropping override with negative index").Len())

	require.NoError(t, store.SetSessionDurations(ctx, "s", nil))
	assert.False(t, store.HasOverrides(ctx, "s"))
	assert.Empty(t, store.Sessions(ctx))
}

func TestNegativeIndexIsDropped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store, mr := setupSessionStore(t, WithLogger(zap.New(core)))
	ctx := context.Background()

	require.NoError(t, store.SetDuration(ctx, "s", -1, 30))
	assert.False(t, store.HasOverrides(ctx, "s"))
	assert.False(t, mr.Exists(kv.SlotKey("test", SessionKey)))
	assert.Equal(t, 1, logs.FilterMessage("dropping override with negative index").Len())
}

func TestClearDuration(t *testing.T) {
	store, _ := setupSessionStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetDuration(ctx, "s", 0, 60))
	require.NoError(t, store.SetDuration(ctx, "s", 2, 90))

	cleared, err := store.ClearDuration(ctx, "s", 0)
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.Equal(t, Values{2: 90}, store.SessionDurations(ctx, "s"))

	cleared, err = store.ClearDuration(ctx, "s", 0)
	require.NoError(t, err)
	assert.False(t, cleared)

	_, err = store.ClearDuration(ctx, "s", 2)
	require.NoError(t, err)
	assert.False(t, store.HasOverrides(ctx, "s"))
	assert.Empty(t, store.Sessions(ctx), "an emptied session is removed")
}

func TestSessionResetScoping(t *testing.T) {
	store, _ := setupSessionStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetDuration(ctx, "a", 0, 60))
	require.NoError(t, store.SetDuration(ctx, "b", 1, 90))

	require.NoError(t, store.ResetSession(ctx, "a"))
	assert.False(t, store.HasOverrides(ctx, "a"))
	assert.Equal(t, Values{1: 90}, store.SessionDurations(ctx, "b"))

	require.NoError(t, store.ResetAll(ctx))
	assert.False(t, store.HasOverrides(ctx, "b"))
}

func TestComposeIdentity(t *testing.T) {
	store, _ := setupSessionStore(t)
	ctx := context.Background()

	got := store.Compose(ctx, "s", basePoses)
	require.Len(t, got, len(basePoses))
	assert.True(t, &got[0] == &basePoses[0], "no overrides returns the base slice itself")

	require.NoError(t, store.SetDuration(ctx, "s", 1, 45))
	got = store.Compose(ctx, "s", basePoses)
	assert.False(t, &got[0] == &basePoses[0], "overrides produce a new slice")
	assert.Equal(t, basePoses[0], got[0])
	assert.Equal(t, 30, basePoses[1].Seconds, "base is never mutated")
}

func TestComposeCorrectness(t *testing.T) {
	store, _ := setupSessionStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetDuration(ctx, "s", 1, 60))
	require.NoError(t, store.SetDuration(ctx, "s", 3, 120))

	want := []content.SessionPose{
		{PoseID: "mountain", Seconds: 30},
		{PoseID: "cobra", Seconds: 60},
		{PoseID: "knees-to-chest", Seconds: 30},
		{PoseID: "child", Seconds: 120},
	}
	if diff := cmp.Diff(want, store.Compose(ctx, "s", basePoses)); diff != "" {
		t.Errorf("Compose() mismatch (-want +got):\n%s", diff)
	}
}

func TestComposeIgnoresStaleIndices(t *testing.T) {
	store, _ := setupSessionStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetDuration(ctx, "s", 10, 60))

	got := store.Compose(ctx, "s", basePoses)
	if diff := cmp.Diff(basePoses, got); diff != "" {
		t.Errorf("stale override applied (-want +got):\n%s", diff)
	}
	assert.Empty(t, store.Compose(ctx, "s", nil))
}

func TestComposeGeneric(t *testing.T) {
	base := []string{"a", "b", "c"}
	apply := func(s string, n int) string { return s + "!" }

	assert.Equal(t, []string{"a", "b!", "c"}, Compose(Values{1: 15}, base, apply))
	assert.True(t, &Compose(nil, base, apply)[0] == &base[0])
}

func TestSnapshotsAreNotMutated(t *testing.T) {
	store, _ := setupSessionStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetDuration(ctx, "s", 0, 60))

	before := store.Compose(ctx, "s", basePoses)
	require.NoError(t, store.SetDuration(ctx, "s", 0, 120))
	require.NoError(t, store.ResetAll(ctx))

	assert.Equal(t, 60, before[0].Seconds)
}

func TestCorruptedDocuments(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		payload string
	}{
		{"version mismatch", `{"version":2,"durationOverrides":{"s":{"0":30}}}`},
		{"missing version", `{"durationOverrides":{}}`},
		{"off-step value", `{"version":1,"durationOverrides":{"s":{"0":31}}}`},
		{"out of range value", `{"version":1,"durationOverrides":{"s":{"0":600}}}`},
		{"negative index", `{"version":1,"durationOverrides":{"s":{"-1":30}}}`},
		{"not json", `{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mr := setupSessionStore(t)
			mr.Set(kv.SlotKey("test", SessionKey), tt.payload)

			assert.False(t, store.HasOverrides(ctx, "s"))
			assert.ErrorIs(t, store.Err(), cell.ErrCorruptedData)
			assert.False(t, mr.Exists(kv.SlotKey("test", SessionKey)))
		})
	}
}

func TestProgramStore(t *testing.T) {
	store, mr := setupProgramStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetDuration(ctx, "foundations", "back-care", 0, 62))
	require.NoError(t, store.SetDuration(ctx, "foundations", "wind-down", 2, 14))
	require.NoError(t, store.SetDuration(ctx, "gentle-week", "back-care", 0, 90))

	got, ok := store.Duration(ctx, "foundations", "back-care", 0)
	require.True(t, ok)
	assert.Equal(t, 60, got)

	got, _ = store.Duration(ctx, "foundations", "wind-down", 2)
	assert.Equal(t, 15, got)

	assert.True(t, store.HasOverrides(ctx, "foundations"))
	assert.False(t, store.HasOverrides(ctx, "other"))
	assert.Equal(t, []string{"foundations", "gentle-week"}, store.Programs(ctx))

	persisted, err := mr.Get(kv.SlotKey("test", ProgramKey))
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"durationOverrides":{
		"foundations":{"back-care":{"0":60},"wind-down":{"2":15}},
		"gentle-week":{"back-care":{"0":90}}}}`, persisted)
}

func TestProgramResetScoping(t *testing.T) {
	store, _ := setupProgramStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetDuration(ctx, "p1", "a", 0, 60))
	require.NoError(t, store.SetDuration(ctx, "p1", "b", 0, 60))
	require.NoError(t, store.SetDuration(ctx, "p2", "a", 0, 90))

	require.NoError(t, store.ResetSession(ctx, "p1", "a"))
	assert.Equal(t, Values{}, store.SessionDurations(ctx, "p1", "a"))
	assert.Equal(t, Values{0: 60}, store.SessionDurations(ctx, "p1", "b"), "sibling session untouched")
	assert.Equal(t, Values{0: 90}, store.SessionDurations(ctx, "p2", "a"), "other owner untouched")

	require.NoError(t, store.ResetProgram(ctx, "p1"))
	assert.False(t, store.HasOverrides(ctx, "p1"))
	assert.True(t, store.HasOverrides(ctx, "p2"))

	require.NoError(t, store.ResetAll(ctx))
	assert.False(t, store.HasOverrides(ctx, "p2"))
	assert.Empty(t, store.Programs(ctx))
}

func TestProgramClearAndBulk(t *testing.T) {
	store, _ := setupProgramStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetSessionDurations(ctx, "p", "s", map[int]float64{0: 30, 2: 45}))
	cleared, err := store.ClearDuration(ctx, "p", "s", 0)
	require.NoError(t, err)
	assert.True(t, cleared)

	cleared, err = store.ClearDuration(ctx, "p", "s", 7)
	require.NoError(t, err)
	assert.False(t, cleared)

	_, err = store.ClearDuration(ctx, "p", "s", 2)
	require.NoError(t, err)
	assert.Empty(t, store.Programs(ctx), "an emptied program is removed")
}

func TestProgramCompose(t *testing.T) {
	store, _ := setupProgramStore(t)
	ctx := context.Background()

	assert.True(t, &store.Compose(ctx, "p", "s", basePoses)[0] == &basePoses[0])

	require.NoError(t, store.SetDuration(ctx, "p", "s", 0, 120))
	got := store.Compose(ctx, "p", "s", basePoses)
	assert.Equal(t, 120, got[0].Seconds)
	assert.True(t, &store.Compose(ctx, "p", "other", basePoses)[0] == &basePoses[0],
		"overrides are scoped to the session")
}

func TestProgramCorruptedVersion(t *testing.T) {
	store, mr := setupProgramStore(t)
	mr.Set(kv.SlotKey("test", ProgramKey), `{"version":0,"durationOverrides":{"p":{"s":{"0":30}}}}`)

	assert.False(t, store.HasOverrides(context.Background(), "p"))
	assert.ErrorIs(t, store.Err(), cell.ErrCorruptedData)
}

func TestOverridesFollowOtherTab(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())

	tabA, err := NewSessionStore(newBackend(t, mr))
	require.NoError(t, err)
	tabB, err := NewSessionStore(newBackend(t, mr))
	require.NoError(t, err)

	changed := make(chan struct{}, 1)
	defer tabA.Subscribe(func() { changed <- struct{}{} })()

	done, err := tabA.Watch(ctx)
	require.NoError(t, err)
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, tabB.SetDuration(ctx, "s", 0, 45))

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change from other tab")
	}
	got, ok := tabA.Duration(ctx, "s", 0)
	require.True(t, ok)
	assert.Equal(t, 45, got)
}
