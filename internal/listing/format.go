// Package listing renders sessions, poses and practice history for the CLI,
// either as aligned tables or as line-delimited JSON.
package listing

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dhkts1/yoga-app-sub002/internal/content"
	"github.com/dhkts1/yoga-app-sub002/internal/practice"
)

// OutputFormat specifies how lists are rendered.
type OutputFormat string

const (
	// OutputFormatDefault renders a table.
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL renders one JSON object per line.
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates an --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSONL:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown format: %s (use 'default' or 'jsonl')", s)
}

// Source tells where a session comes from.
type Source string

const (
	SourceCatalog Source = "catalog"
	SourceCustom  Source = "custom"
)

// SessionRow is one line of the session list.
type SessionRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Source      Source `json:"source"`
	Poses       int    `json:"poses"`
	Seconds     int    `json:"seconds"`
	Customized  bool   `json:"customized"`
	CreatedAtMs int64  `json:"createdAt,omitempty"`
}

// PoseRow is one step of a session as it will be practised.
type PoseRow struct {
	Index      int    `json:"index"`
	PoseID     string `json:"poseId"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Seconds    int    `json:"seconds"`
	Overridden bool   `json:"overridden"`
}

// FormatSessions writes rows as a table and returns how many were written.
func FormatSessions(w io.Writer, rows []SessionRow, now time.Time) int {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No sessions found")
		return 0
	}

	fmt.Fprintf(w, "%-14s %-24s %-8s %-5s %-8s %s\n", "ID", "NAME", "SOURCE", "POSES", "LENGTH", "CREATED")
	fmt.Fprintf(w, "%-14s %-24s %-8s %-5s %-8s %s\n",
		"--------------", "------------------------", "--------", "-----", "--------", "--------")

	for _, r := range rows {
		length := formatSeconds(r.Seconds)
		if r.Customized {
			length += "*"
		}
		fmt.Fprintf(w, "%-14s %-24s %-8s %-5d %-8s %s\n",
			formatID(r.ID),
			truncate(r.Name, 24),
			r.Source,
			r.Poses,
			length,
			formatAge(r.CreatedAtMs, now),
		)
	}

	fmt.Fprintf(w, "\n%d %s\n", len(rows), plural(len(rows), "session", "sessions"))
	return len(rows)
}

// FormatPoses writes the steps of one session.
func FormatPoses(w io.Writer, title string, rows []PoseRow) {
	fmt.Fprintf(w, "%s\n\n", title)
	fmt.Fprintf(w, "%-3s %-16s %-22s %-13s %s\n", "#", "POSE", "NAME", "CATEGORY", "LENGTH")
	fmt.Fprintf(w, "%-3s %-16s %-22s %-13s %s\n", "---", "----------------", "----------------------", "-------------", "------")

	total := 0
	for _, r := range rows {
		length := formatSeconds(r.Seconds)
		if r.Overridden {
			length += "*"
		}
		fmt.Fprintf(w, "%-3d %-16s %-22s %-13s %s\n",
			r.Index, truncate(r.PoseID, 16), truncate(r.Name, 22), dash(r.Category), length)
		total += r.Seconds
	}

	fmt.Fprintf(w, "\nTotal: %s\n", formatSeconds(total))
}

// NewPoseRows joins poses with catalog metadata. overridden reports, by
// index, which durations differ from the base session.
func NewPoseRows(poses []content.SessionPose, catalog *content.Catalog, overridden func(int) bool) []PoseRow {
	rows := make([]PoseRow, len(poses))
	for i, p := range poses {
		row := PoseRow{Index: i, PoseID: p.PoseID, Seconds: p.Seconds}
		if pose, ok := catalog.Pose(p.PoseID); ok {
			row.Name = pose.Name
			row.Category = string(pose.Category)
		}
		if overridden != nil {
			row.Overridden = overridden(i)
		}
		rows[i] = row
	}
	return rows
}

// FormatHistory writes entries as a table.
func FormatHistory(w io.Writer, entries []practice.Entry, now time.Time) int {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No practice recorded")
		return 0
	}

	fmt.Fprintf(w, "%-10s %-16s %-14s %-8s %-17s %s\n", "ID", "SESSION", "PROGRAM", "LENGTH", "COMPLETED", "AGE")
	fmt.Fprintf(w, "%-10s %-16s %-14s %-8s %-17s %s\n",
		"----------", "----------------", "--------------", "--------", "-----------------", "--------")

	for _, e := range entries {
		fmt.Fprintf(w, "%-10s %-16s %-14s %-8s %-17s %s\n",
			formatID(e.ID),
			truncate(formatID(e.SessionID), 16),
			truncate(dash(e.ProgramID), 14),
			formatSeconds(e.Seconds),
			e.CompletedAt().In(now.Location()).Format("2006-01-02 15:04"),
			formatAge(e.CompletedAtMs, now),
		)
	}

	fmt.Fprintf(w, "\n%d %s\n", len(entries), plural(len(entries), "practice", "practices"))
	return len(entries)
}

// FormatSummary writes the history aggregate.
func FormatSummary(w io.Writer, s practice.Summary) {
	fmt.Fprintf(w, "Practices:  %d\n", s.Count)
	fmt.Fprintf(w, "Total time: %s\n", formatSeconds(s.TotalSeconds))
	fmt.Fprintf(w, "Streak:     %d %s\n", s.StreakDays, plural(s.StreakDays, "day", "days"))
}

// FormatJSONL writes each item as one compact JSON line.
func FormatJSONL[T any](w io.Writer, items []T) error {
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes v as indented JSON.
func FormatSingleJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	return nil
}

// formatID shortens UUIDs to their first 8 characters. Catalog ids are
// kept whole since they are typed by hand.
func formatID(id string) string {
	if len(id) == 36 && id[8] == '-' {
		return id[:8]
	}
	return id
}

func formatSeconds(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds%60 == 0 {
		return fmt.Sprintf("%dm", seconds/60)
	}
	return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
}

// formatAge renders a millisecond timestamp relative to now.
func formatAge(ms int64, now time.Time) string {
	if ms == 0 {
		return "-"
	}
	diff := now.Sub(time.UnixMilli(ms))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
