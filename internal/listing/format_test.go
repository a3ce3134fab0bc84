package listing

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dhkts1/yoga-app-sub002/internal/content"
	"github.com/dhkts1/yoga-app-sub002/internal/override"
	"github.com/dhkts1/yoga-app-sub002/internal/practice"
	"github.com/dhkts1/yoga-app-sub002/internal/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		seconds  int
		expected string
	}{
		{0, "0s"},
		{45, "45s"},
		{60, "1m"},
		{315, "5m15s"},
		{3605, "60m05s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatSeconds(tt.seconds))
		})
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		name     string
		ago      time.Duration
		expected string
	}{
		{"seconds", 30 * time.Second, "30s ago"},
		{"minutes", 5 * time.Minute, "5m ago"},
		{"hours", 3 * time.Hour, "3h ago"},
		{"days", 50 * time.Hour, "2d ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatAge(now.Add(-tt.ago).UnixMilli(), now))
		})
	}

	assert.Equal(t, "-", formatAge(0, now))
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "4f1c2a9e", formatID("4f1c2a9e-1b7d-4c55-9a51-2f0e4c6d7a10"))
	assert.Equal(t, "morning-flow", formatID("morning-flow"))
}

func TestSessionRows(t *testing.T) {
	catalog, err := content.Default()
	require.NoError(t, err)

	custom := []sessions.Session{
		{ID: "newer", Name: "Newer", Poses: make([]content.SessionPose, 3), Duration: 90, CreatedAtMs: 2000},
		{ID: "older", Name: "Older", Poses: make([]content.SessionPose, 2), Duration: 60, CreatedAtMs: 1000},
	}

	rows := SessionRows(catalog, custom, func(id string) override.Values {
		if id == "back-care" {
			return override.Values{3: 120, 9: 300}
		}
		return nil
	})
	require.Len(t, rows, len(catalog.Sessions)+2)

	assert.Equal(t, "morning-flow", rows[0].ID)
	assert.Equal(t, SourceCatalog, rows[0].Source)
	assert.Equal(t, 315, rows[0].Seconds)
	assert.False(t, rows[0].Customized)
	assert.True(t, rows[1].Customized)
	assert.Equal(t, 225, rows[1].Seconds, "in-range overrides are applied")

	n := len(catalog.Sessions)
	assert.Equal(t, "older", rows[n].ID)
	assert.Equal(t, "newer", rows[n+1].ID)
	assert.Equal(t, SourceCustom, rows[n+1].Source)
	assert.Equal(t, "newer", custom[0].ID, "input slice is not reordered")
}

func TestFormatSessions(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		buf := &bytes.Buffer{}
		assert.Equal(t, 0, FormatSessions(buf, nil, now))
		assert.Equal(t, "No sessions found\n", buf.String())
	})

	t.Run("rows", func(t *testing.T) {
		buf := &bytes.Buffer{}
		rows := []SessionRow{
			{ID: "back-care", Name: "Back Care", Source: SourceCatalog, Poses: 4, Seconds: 165, Customized: true},
			{ID: "4f1c2a9e-1b7d-4c55-9a51-2f0e4c6d7a10", Name: strings.Repeat("n", 30), Source: SourceCustom,
				Poses: 2, Seconds: 60, CreatedAtMs: now.Add(-2 * time.Hour).UnixMilli()},
		}
		assert.Equal(t, 2, FormatSessions(buf, rows, now))

		output := buf.String()
		assert.Contains(t, output, "2m45s*")
		assert.Contains(t, output, "4f1c2a9e ")
		assert.Contains(t, output, strings.Repeat("n", 21)+"...")
		assert.Contains(t, output, "2h ago")
		assert.Contains(t, output, "2 sessions")
	})
}

func TestFormatPoses(t *testing.T) {
	catalog, err := content.Default()
	require.NoError(t, err)

	poses := []content.SessionPose{{PoseID: "cobra", Seconds: 30}, {PoseID: "child", Seconds: 90}, {PoseID: "gone", Seconds: 15}}
	rows := NewPoseRows(poses, catalog, func(i int) bool { return i == 1 })
	require.Len(t, rows, 3)
	assert.Equal(t, "backbend", rows[0].Category)
	assert.True(t, rows[1].Overridden)
	assert.Empty(t, rows[2].Name)

	buf := &bytes.Buffer{}
	FormatPoses(buf, "Back Care", rows)
	output := buf.String()
	assert.Contains(t, output, "1m30s*")
	assert.Contains(t, output, "gone")
	assert.Contains(t, output, "Total: 2m15s")
}

func TestFormatHistory(t *testing.T) {
	entries := []practice.Entry{
		{ID: "9d0e7c3b-58a4-4b8e-a0f1-c3d2e1f0a9b8", SessionID: "wind-down", ProgramID: "foundations",
			CompletedAtMs: now.Add(-26 * time.Hour).UnixMilli(), Seconds: 375},
		{ID: "e1", SessionID: "back-care", CompletedAtMs: now.Add(-time.Hour).UnixMilli(), Seconds: 165},
	}

	buf := &bytes.Buffer{}
	assert.Equal(t, 2, FormatHistory(buf, entries, now))
	output := buf.String()
	assert.Contains(t, output, "9d0e7c3b ")
	assert.Contains(t, output, "foundations")
	assert.Contains(t, output, "2025-03-09 10:00")
	assert.Contains(t, output, "1d ago")
	assert.Contains(t, output, "2 practices")

	buf.Reset()
	FormatHistory(buf, nil, now)
	assert.Equal(t, "No practice recorded\n", buf.String())
}

func TestFormatSummary(t *testing.T) {
	buf := &bytes.Buffer{}
	FormatSummary(buf, practice.Summary{Count: 3, TotalSeconds: 900, StreakDays: 1})
	assert.Contains(t, buf.String(), "Practices:  3")
	assert.Contains(t, buf.String(), "Total time: 15m")
	assert.Contains(t, buf.String(), "1 day\n")
}

func TestWriteJSONL(t *testing.T) {
	buf := &bytes.Buffer{}
	rows := []SessionRow{{ID: "a", Source: SourceCatalog}, {ID: "b", Source: SourceCustom}}
	require.NoError(t, WriteSessions(buf, rows, OutputFormatJSONL, now))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var got SessionRow
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
	assert.Equal(t, rows[1], got)

	buf.Reset()
	require.NoError(t, WriteHistory(buf, []practice.Entry{{ID: "e", SessionID: "s", Seconds: 30}}, OutputFormatJSONL, now))
	assert.Contains(t, buf.String(), `"sessionId":"s"`)

	assert.Error(t, WriteSessions(buf, rows, "xml", now))
}

func TestParseOutputFormat(t *testing.T) {
	f, err := ParseOutputFormat("jsonl")
	require.NoError(t, err)
	assert.Equal(t, OutputFormatJSONL, f)

	_, err = ParseOutputFormat("table")
	assert.ErrorContains(t, err, "unknown format: table")
}

func TestFormatSingleJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, FormatSingleJSON(buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}
