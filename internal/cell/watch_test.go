package cell

import (
	"context"
	"testing"
	"time"

	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// watchPrefs starts watching c and returns a channel of notified values.
func watchPrefs(t *testing.T, c *Cell[prefs]) <-chan prefs {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	done, err := c.Watch(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		<-done
	})

	got := make(chan prefs, 10)
	unsubscribe := c.Subscribe(func(p prefs) { got <- p })
	t.Cleanup(unsubscribe)
	return got
}

func next(t *testing.T, got <-chan prefs) prefs {
	t.Helper()
	select {
	case p := <-got:
		return p
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notification")
		return prefs{}
	}
}

func TestWatch(t *testing.T) {
	ctx := context.Background()

	t.Run("applies writes from another tab", func(t *testing.T) {
		tabA, mr := setupBackend(t)
		tabB := newTab(t, mr)

		watcher := newPrefsCell(t, tabA)
		writer := newPrefsCell(t, tabB)
		got := watchPrefs(t, watcher)

		require.NoError(t, writer.Save(ctx, prefs{Theme: "dark", Rate: 2}))

		assert.Equal(t, prefs{Theme: "dark", Rate: 2}, next(t, got))
		assert.Equal(t, prefs{Theme: "dark", Rate: 2}, watcher.Get(ctx))
	})

	t.Run("ignores other keys", func(t *testing.T) {
		tabA, mr := setupBackend(t)
		tabB := newTab(t, mr)

		watcher := newPrefsCell(t, tabA)
		got := watchPrefs(t, watcher)

		require.NoError(t, tabB.Set(ctx, "somethingElse", `{"theme":"x"}`))
		require.NoError(t, tabB.Set(ctx, "prefs", `{"theme":"light","rate":1}`))

		assert.Equal(t, prefs{Theme: "light", Rate: 1}, next(t, got))
	})

	t.Run("removal resets to default", func(t *testing.T) {
		tabA, mr := setupBackend(t)
		tabB := newTab(t, mr)

		watcher := newPrefsCell(t, tabA)
		require.NoError(t, watcher.Save(ctx, prefs{Theme: "dark"}))
		got := watchPrefs(t, watcher)

		require.NoError(t, tabB.Remove(ctx, "prefs"))

		assert.Equal(t, prefs{Theme: "system", Rate: 1}, next(t, got))
	})

	t.Run("corrupted external write falls back to default", func(t *testing.T) {
		tabA, mr := setupBackend(t)
		tabB := newTab(t, mr)

		watcher := newPrefsCell(t, tabA)
		got := watchPrefs(t, watcher)

		require.NoError(t, tabB.Set(ctx, "prefs", "{oops"))

		assert.Equal(t, prefs{Theme: "system", Rate: 1}, next(t, got))
		assert.ErrorIs(t, watcher.Err(), ErrCorruptedData)
	})

	t.Run("own writes are not echoed", func(t *testing.T) {
		tabA, mr := setupBackend(t)
		tabB := newTab(t, mr)

		watcher := newPrefsCell(t, tabA)
		got := watchPrefs(t, watcher)

		require.NoError(t, watcher.Save(ctx, prefs{Theme: "mine"}))
		require.NoError(t, tabB.Set(ctx, "prefs", `{"theme":"theirs"}`))

		assert.Equal(t, "theirs", next(t, got).Theme)
	})
}

func TestApplyAndUnsubscribe(t *testing.T) {
	ctx := context.Background()
	backend, _ := setupBackend(t)
	c := newPrefsCell(t, backend)

	calls := 0
	cancel := c.Subscribe(func(prefs) { calls++ })

	value := `{"theme":"dark"}`
	c.Apply(ctx, kv.Change{Key: "prefs", Value: &value})
	c.Apply(ctx, kv.Change{Key: "other", Value: &value})
	assert.Equal(t, 1, calls)

	cancel()
	c.Apply(ctx, kv.Change{Key: "prefs"})
	assert.Equal(t, 1, calls)
	assert.Equal(t, prefs{Theme: "system", Rate: 1}, c.Get(ctx))
}
