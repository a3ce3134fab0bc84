package watch

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, mr *miniredis.Miniredis) *kv.Client {
	client, err := kv.NewClient(&redis.Options{Addr: mr.Addr()}, "test-profile")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWaitForChange(t *testing.T) {
	mr := miniredis.RunT(t)
	watcher := newClient(t, mr)
	writer := newClient(t, mr)
	ctx := context.Background()

	t.Run("returns change written after a delay", func(t *testing.T) {
		go func() {
			time.Sleep(300 * time.Millisecond)
			writer.Set(context.Background(), "other", "1")
			writer.Set(context.Background(), "customSessions", "[]")
		}()

		start := time.Now()
		change, err := WaitForChange(ctx, watcher, []string{"customSessions"}, 2*time.Second)
		elapsed := time.Since(start)

		require.NoError(t, err)
		require.Equal(t, "customSessions", change.Key)
		require.Equal(t, writer.Origin(), change.Origin)
		require.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
		require.Less(t, elapsed, 2*time.Second)
	})

	t.Run("matches backups of watched keys", func(t *testing.T) {
		go func() {
			time.Sleep(100 * time.Millisecond)
			writer.Set(context.Background(), kv.CorruptedKey("customSessions", 1), "{oops")
		}()

		change, err := WaitForChange(ctx, watcher, []string{"customSessions"}, 2*time.Second)
		require.NoError(t, err)
		require.Equal(t, "customSessions-corrupted-1", change.Key)
	})

	t.Run("returns error on timeout", func(t *testing.T) {
		start := time.Now()
		_, err := WaitForChange(ctx, watcher, nil, 300*time.Millisecond)
		elapsed := time.Since(start)

		require.Error(t, err)
		require.Contains(t, err.Error(), "timeout waiting for change")
		require.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	})

	t.Run("zero timeout waits for context", func(t *testing.T) {
		deadlineCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()

		_, err := WaitForChange(deadlineCtx, watcher, nil, 0)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		_, err := WaitForChange(cancelCtx, watcher, nil, 5*time.Second)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestParseOutputFormat(t *testing.T) {
	f, err := ParseOutputFormat("json")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatJSON, f)

	_, err = ParseOutputFormat("xml")
	assert.ErrorContains(t, err, "unknown format: xml")

	_, err = NewPrinter("xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestFormatters(t *testing.T) {
	origin := uuid.New().String()
	value := `[{"id":"s1"}]`
	updated := kv.Change{Key: "customSessions", Value: &value, Origin: origin, AtMs: 1700000000000}
	removed := kv.Change{Key: "yoga-preferences", Origin: origin, AtMs: 1700000000000}
	garbage := "{oops"
	archived := kv.Change{Key: "customSessions-corrupted-1700000000000", Value: &garbage, Origin: origin}

	t.Run("defaultFormatter formats updates", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &defaultFormatter{writer: buf}

		require.NoError(t, formatter.FormatChange(updated))

		output := buf.String()
		assert.Contains(t, output, "💾")
		assert.Contains(t, output, "Updated: key=customSessions")
		assert.Contains(t, output, "by="+origin[:8])
		assert.Contains(t, output, "bytes=13")
	})

	t.Run("defaultFormatter formats removals", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &defaultFormatter{writer: buf}

		require.NoError(t, formatter.FormatChange(removed))
		assert.Contains(t, buf.String(), "Removed: key=yoga-preferences")
	})

	t.Run("defaultFormatter formats archived payloads", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &defaultFormatter{writer: buf}

		require.NoError(t, formatter.FormatChange(archived))
		output := buf.String()
		assert.Contains(t, output, "🚑")
		assert.Contains(t, output, "key=customSessions,")
		assert.Contains(t, output, "backup=customSessions-corrupted-1700000000000")
	})

	t.Run("jsonFormatter formats updates", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &jsonFormatter{writer: buf}

		require.NoError(t, formatter.FormatChange(updated))
		output := buf.String()
		assert.Contains(t, output, `"event":"updated"`)
		assert.Contains(t, output, `"key":"customSessions"`)
		assert.Contains(t, output, `"value":[{"id":"s1"}]`)
		assert.Contains(t, output, `"at_ms":1700000000000`)
	})

	t.Run("jsonFormatter formats removals and archives", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &jsonFormatter{writer: buf}

		require.NoError(t, formatter.FormatChange(removed))
		require.NoError(t, formatter.FormatChange(archived))

		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		require.Len(t, lines, 2)
		assert.Contains(t, string(lines[0]), `"event":"removed"`)
		assert.NotContains(t, string(lines[0]), `"value"`)
		assert.Contains(t, string(lines[1]), `"event":"corrupted_archived"`)
		assert.Contains(t, string(lines[1]), `"backup_key":"customSessions-corrupted-1700000000000"`)
		assert.NotContains(t, string(lines[1]), "oops")
	})
}

func TestFilter(t *testing.T) {
	all := NewFilter(nil)
	assert.True(t, all(kv.Change{Key: "anything"}))

	some := NewFilter([]string{"customSessions"})
	assert.True(t, some(kv.Change{Key: "customSessions"}))
	assert.True(t, some(kv.Change{Key: "customSessions-corrupted-9"}))
	assert.False(t, some(kv.Change{Key: "practiceHistory"}))
}
