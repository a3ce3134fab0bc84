package listing

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dhkts1/yoga-app-sub002/internal/content"
	"github.com/dhkts1/yoga-app-sub002/internal/override"
	"github.com/dhkts1/yoga-app-sub002/internal/practice"
	"github.com/dhkts1/yoga-app-sub002/internal/sessions"
)

// SessionRows lists the catalog sessions in catalog order followed by the
// custom sessions, oldest first. overrides returns the duration overrides
// of a catalog session, which are applied to its length; it may be nil.
func SessionRows(catalog *content.Catalog, custom []sessions.Session, overrides func(id string) override.Values) []SessionRow {
	rows := make([]SessionRow, 0, len(catalog.Sessions)+len(custom))

	for _, s := range catalog.Sessions {
		row := SessionRow{
			ID:      s.ID,
			Name:    s.Name,
			Source:  SourceCatalog,
			Poses:   len(s.Poses),
			Seconds: s.TotalSeconds(),
		}
		if overrides != nil {
			if values := overrides(s.ID); len(values) > 0 {
				row.Customized = true
				row.Seconds = sessions.TotalSeconds(override.Compose(values, s.Poses, override.WithSeconds))
			}
		}
		rows = append(rows, row)
	}

	sorted := append([]sessions.Session(nil), custom...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAtMs < sorted[j].CreatedAtMs
	})
	for _, s := range sorted {
		rows = append(rows, SessionRow{
			ID:          s.ID,
			Name:        s.Name,
			Source:      SourceCustom,
			Poses:       len(s.Poses),
			Seconds:     s.Duration,
			CreatedAtMs: s.CreatedAtMs,
		})
	}
	return rows
}

// WriteSessions renders rows in format.
func WriteSessions(w io.Writer, rows []SessionRow, format OutputFormat, now time.Time) error {
	switch format {
	case OutputFormatDefault:
		FormatSessions(w, rows, now)
		return nil
	case OutputFormatJSONL:
		if err := FormatJSONL(w, rows); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown output format: %s", format)
}

// WriteHistory renders entries in format. Entries are expected in
// completion order, as returned by practice.History.List.
func WriteHistory(w io.Writer, entries []practice.Entry, format OutputFormat, now time.Time) error {
	switch format {
	case OutputFormatDefault:
		FormatHistory(w, entries, now)
		return nil
	case OutputFormatJSONL:
		if err := FormatJSONL(w, entries); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown output format: %s", format)
}
