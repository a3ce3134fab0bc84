package override

import (
	"context"

	"github.com/dhkts1/yoga-app-sub002/internal/cell"
	"github.com/dhkts1/yoga-app-sub002/internal/content"
	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"go.uber.org/zap"
)

type sessionDoc struct {
	Version           int               `json:"version"`
	DurationOverrides map[string]Values `json:"durationOverrides"`
}

func (d sessionDoc) clone() sessionDoc {
	out := sessionDoc{Version: Version, DurationOverrides: make(map[string]Values, len(d.DurationOverrides))}
	for id, v := range d.DurationOverrides {
		out.DurationOverrides[id] = v
	}
	return out
}

func validateSessionDoc(d sessionDoc) error {
	if err := checkVersion(d.Version); err != nil {
		return err
	}
	for _, v := range d.DurationOverrides {
		if err := checkValues(v); err != nil {
			return err
		}
	}
	return nil
}

// SessionStore holds overrides keyed by session id.
type SessionStore struct {
	cell   *cell.Cell[sessionDoc]
	logger *zap.Logger
}

// NewSessionStore creates the store persisted under SessionKey.
func NewSessionStore(backend kv.Backend, opts ...Option) (*SessionStore, error) {
	o := buildOptions(opts)
	c, err := cell.New(backend, SessionKey,
		sessionDoc{Version: Version, DurationOverrides: map[string]Values{}},
		cell.WithValidator(validateSessionDoc),
		cell.WithBackup[sessionDoc](o.backup),
		cell.WithLogger[sessionDoc](o.logger),
	)
	if err != nil {
		return nil, err
	}
	return &SessionStore{cell: c, logger: o.logger}, nil
}

// Watch follows writes made by other contexts.
func (s *SessionStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	return s.cell.Watch(ctx)
}

// Subscribe registers fn to run after an external change has been applied.
func (s *SessionStore) Subscribe(fn func()) (cancel func()) {
	return s.cell.Subscribe(func(sessionDoc) { fn() })
}

// Err returns the persistence error state.
func (s *SessionStore) Err() error {
	return s.cell.Err()
}

// SetDuration normalizes raw and stores it for the pose at index.
func (s *SessionStore) SetDuration(ctx context.Context, sessionID string, index int, raw float64) error {
	if index < 0 {
		s.logger.Warn("dropping override with negative index",
			zap.String("key", SessionKey), zap.String("session", sessionID), zap.Int("index", index))
		return nil
	}
	value := Normalize(raw)

	return s.cell.Update(ctx, func(d sessionDoc) sessionDoc {
		next := d.clone()
		values := d.DurationOverrides[sessionID].clone()
		values[index] = value
		next.DurationOverrides[sessionID] = values
		return next
	})
}

// SetSessionDurations replaces every override of the session in one write.
// An empty map removes the session's overrides.
func (s *SessionStore) SetSessionDurations(ctx context.Context, sessionID string, raw map[int]float64) error {
	values := normalizeAll(s.logger, SessionKey, raw)

	return s.cell.Update(ctx, func(d sessionDoc) sessionDoc {
		next := d.clone()
		if len(values) == 0 {
			delete(next.DurationOverrides, sessionID)
		} else {
			next.DurationOverrides[sessionID] = values
		}
		return next
	})
}

// Duration returns the override at index. ok is false when the base
// duration applies.
func (s *SessionStore) Duration(ctx context.Context, sessionID string, index int) (seconds int, ok bool) {
	seconds, ok = s.cell.Get(ctx).DurationOverrides[sessionID][index]
	return seconds, ok
}

// SessionDurations returns a copy of the session's overrides, never nil.
func (s *SessionStore) SessionDurations(ctx context.Context, sessionID string) Values {
	return s.cell.Get(ctx).DurationOverrides[sessionID].clone()
}

// HasOverrides reports whether the session has at least one override.
func (s *SessionStore) HasOverrides(ctx context.Context, sessionID string) bool {
	return len(s.cell.Get(ctx).DurationOverrides[sessionID]) > 0
}

// ClearDuration removes a single override so the base duration applies
// again. Returns false if there was nothing to clear.
func (s *SessionStore) ClearDuration(ctx context.Context, sessionID string, index int) (bool, error) {
	if _, ok := s.Duration(ctx, sessionID, index); !ok {
		return false, nil
	}

	return true, s.cell.Update(ctx, func(d sessionDoc) sessionDoc {
		next := d.clone()
		values := d.DurationOverrides[sessionID].clone()
		delete(values, index)
		if len(values) == 0 {
			delete(next.DurationOverrides, sessionID)
		} else {
			next.DurationOverrides[sessionID] = values
		}
		return next
	})
}

// ResetSession removes all overrides of the session.
func (s *SessionStore) ResetSession(ctx context.Context, sessionID string) error {
	if !s.HasOverrides(ctx, sessionID) {
		return nil
	}
	return s.cell.Update(ctx, func(d sessionDoc) sessionDoc {
		next := d.clone()
		delete(next.DurationOverrides, sessionID)
		return next
	})
}

// ResetAll removes every override.
func (s *SessionStore) ResetAll(ctx context.Context) error {
	return s.cell.Save(ctx, sessionDoc{Version: Version, DurationOverrides: map[string]Values{}})
}

// Sessions lists the ids of sessions that carry overrides.
func (s *SessionStore) Sessions(ctx context.Context) []string {
	return sortedKeys(s.cell.Get(ctx).DurationOverrides)
}

// Compose applies the session's overrides to base. base itself is returned
// when the session has no overrides.
func (s *SessionStore) Compose(ctx context.Context, sessionID string, base []content.SessionPose) []content.SessionPose {
	return Compose(s.cell.Get(ctx).DurationOverrides[sessionID], base, WithSeconds)
}

// Apply handles one change event from a shared subscription.
func (s *SessionStore) Apply(ctx context.Context, change kv.Change) {
	s.cell.Apply(ctx, change)
}
