// Package practice persists what the user has done and how they like it:
// completed-practice history, preferences and free-form drafts.
package practice

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dhkts1/yoga-app-sub002/internal/collection"
	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HistoryKey is the storage key of the practice history collection.
const HistoryKey = "practiceHistory"

// Entry is one completed practice.
type Entry struct {
	ID            string `json:"id"`
	SessionID     string `json:"sessionId"`
	ProgramID     string `json:"programId,omitempty"`
	CompletedAtMs int64  `json:"completedAt"`
	Seconds       int    `json:"seconds"`
}

// RecordID implements collection.Record.
func (e Entry) RecordID() string { return e.ID }

// CompletedAt returns the completion time.
func (e Entry) CompletedAt() time.Time {
	return time.UnixMilli(e.CompletedAtMs)
}

// Summary aggregates the history.
type Summary struct {
	Count        int `json:"count"`
	TotalSeconds int `json:"totalSeconds"`
	// StreakDays counts consecutive local days with at least one practice,
	// ending today or yesterday.
	StreakDays int `json:"streakDays"`
}

// History is the practice history store.
type History struct {
	entries *collection.Store[Entry]
	now     func() time.Time
}

// HistoryOption configures a History.
type HistoryOption func(*historyOptions)

type historyOptions struct {
	logger *zap.Logger
	backup bool
	now    func() time.Time
}

// WithHistoryLogger sets the logger for diagnostics.
func WithHistoryLogger(logger *zap.Logger) HistoryOption {
	return func(o *historyOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHistoryBackup controls archiving of corrupted history.
func WithHistoryBackup(enabled bool) HistoryOption {
	return func(o *historyOptions) {
		o.backup = enabled
	}
}

// WithHistoryClock overrides the clock used for new entries and streaks.
func WithHistoryClock(now func() time.Time) HistoryOption {
	return func(o *historyOptions) {
		o.now = now
	}
}

// NewHistory creates the history store.
func NewHistory(backend kv.Backend, opts ...HistoryOption) (*History, error) {
	o := historyOptions{logger: zap.NewNop(), backup: true, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := collection.New[Entry](backend, HistoryKey,
		collection.WithLogger(o.logger),
		collection.WithBackup(o.backup),
	)
	if err != nil {
		return nil, err
	}
	return &History{entries: entries, now: o.now}, nil
}

// Entries exposes the underlying collection for watching.
func (h *History) Entries() *collection.Store[Entry] {
	return h.entries
}

// Err returns the persistence error state.
func (h *History) Err() error {
	return h.entries.Err()
}

// Record appends a completed practice stamped with the current time.
func (h *History) Record(ctx context.Context, sessionID, programID string, seconds int) (Entry, error) {
	if sessionID == "" {
		return Entry{}, fmt.Errorf("%w: session id is required", collection.ErrInvalidRecord)
	}
	if seconds <= 0 {
		return Entry{}, fmt.Errorf("%w: seconds must be > 0, got %d", collection.ErrInvalidRecord, seconds)
	}

	entry := Entry{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		ProgramID:     programID,
		CompletedAtMs: h.now().UnixMilli(),
		Seconds:       seconds,
	}
	if err := h.entries.Add(ctx, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// List returns entries completed in [since, until), oldest first. A zero
// bound is open.
func (h *History) List(ctx context.Context, since, until time.Time) []Entry {
	var out []Entry
	for _, e := range h.entries.GetAll(ctx) {
		at := e.CompletedAt()
		if !since.IsZero() && at.Before(since) {
			continue
		}
		if !until.IsZero() && !at.Before(until) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAtMs < out[j].CompletedAtMs
	})
	return out
}

// Remove deletes an entry. Returns false if no such entry.
func (h *History) Remove(ctx context.Context, id string) (bool, error) {
	return h.entries.Remove(ctx, id)
}

// Summary aggregates the whole history.
func (h *History) Summary(ctx context.Context) Summary {
	entries := h.entries.GetAll(ctx)

	var s Summary
	days := make(map[string]bool)
	for _, e := range entries {
		s.Count++
		s.TotalSeconds += e.Seconds
		days[dayKey(e.CompletedAt())] = true
	}

	now := h.now()
	day := now
	if !days[dayKey(day)] {
		// A streak survives until the end of the day after the last practice.
		day = day.AddDate(0, 0, -1)
	}
	for days[dayKey(day)] {
		s.StreakDays++
		day = day.AddDate(0, 0, -1)
	}
	return s
}

func dayKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
