package override

import (
	"context"

	"github.com/dhkts1/yoga-app-sub002/internal/cell"
	"github.com/dhkts1/yoga-app-sub002/internal/content"
	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"go.uber.org/zap"
)

type programDoc struct {
	Version           int                          `json:"version"`
	DurationOverrides map[string]map[string]Values `json:"durationOverrides"`
}

func (d programDoc) clone() programDoc {
	out := programDoc{Version: Version, DurationOverrides: make(map[string]map[string]Values, len(d.DurationOverrides))}
	for id, sessions := range d.DurationOverrides {
		out.DurationOverrides[id] = sessions
	}
	return out
}

func validateProgramDoc(d programDoc) error {
	if err := checkVersion(d.Version); err != nil {
		return err
	}
	for _, sessions := range d.DurationOverrides {
		for _, v := range sessions {
			if err := checkValues(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// ProgramStore holds overrides keyed by program id, then session id.
type ProgramStore struct {
	cell   *cell.Cell[programDoc]
	logger *zap.Logger
}

// NewProgramStore creates the store persisted under ProgramKey.
func NewProgramStore(backend kv.Backend, opts ...Option) (*ProgramStore, error) {
	o := buildOptions(opts)
	c, err := cell.New(backend, ProgramKey,
		programDoc{Version: Version, DurationOverrides: map[string]map[string]Values{}},
		cell.WithValidator(validateProgramDoc),
		cell.WithBackup[programDoc](o.backup),
		cell.WithLogger[programDoc](o.logger),
	)
	if err != nil {
		return nil, err
	}
	return &ProgramStore{cell: c, logger: o.logger}, nil
}

// Watch follows writes made by other contexts.
func (s *ProgramStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	return s.cell.Watch(ctx)
}

// Subscribe registers fn to run after an external change has been applied.
func (s *ProgramStore) Subscribe(fn func()) (cancel func()) {
	return s.cell.Subscribe(func(programDoc) { fn() })
}

// Err returns the persistence error state.
func (s *ProgramStore) Err() error {
	return s.cell.Err()
}

// withSession copies the program's session map and replaces one entry.
// Empty values remove the session, and an empty program is removed.
func (d programDoc) withSession(programID, sessionID string, values Values) programDoc {
	next := d.clone()
	sessions := make(map[string]Values, len(d.DurationOverrides[programID])+1)
	for id, v := range d.DurationOverrides[programID] {
		sessions[id] = v
	}
	if len(values) == 0 {
		delete(sessions, sessionID)
	} else {
		sessions[sessionID] = values
	}
	if len(sessions) == 0 {
		delete(next.DurationOverrides, programID)
	} else {
		next.DurationOverrides[programID] = sessions
	}
	return next
}

// SetDuration normalizes raw and stores it for the pose at index.
func (s *ProgramStore) SetDuration(ctx context.Context, programID, sessionID string, index int, raw float64) error {
	if index < 0 {
		s.logger.Warn("dropping override with negative index",
			zap.String("key", ProgramKey), zap.String("program", programID),
			zap.String("session", sessionID), zap.Int("index", index))
		return nil
	}
	value := Normalize(raw)

	return s.cell.Update(ctx, func(d programDoc) programDoc {
		values := d.DurationOverrides[programID][sessionID].clone()
		values[index] = value
		return d.withSession(programID, sessionID, values)
	})
}

// SetSessionDurations replaces every override of the session in one write.
func (s *ProgramStore) SetSessionDurations(ctx context.Context, programID, sessionID string, raw map[int]float64) error {
	values := normalizeAll(s.logger, ProgramKey, raw)

	return s.cell.Update(ctx, func(d programDoc) programDoc {
		return d.withSession(programID, sessionID, values)
	})
}

// Duration returns the override at index. ok is false when the base
// duration applies.
func (s *ProgramStore) Duration(ctx context.Context, programID, sessionID string, index int) (seconds int, ok bool) {
	seconds, ok = s.cell.Get(ctx).DurationOverrides[programID][sessionID][index]
	return seconds, ok
}

// SessionDurations returns a copy of the session's overrides, never nil.
func (s *ProgramStore) SessionDurations(ctx context.Context, programID, sessionID string) Values {
	return s.cell.Get(ctx).DurationOverrides[programID][sessionID].clone()
}

// HasOverrides reports whether any session of the program has an override.
func (s *ProgramStore) HasOverrides(ctx context.Context, programID string) bool {
	for _, v := range s.cell.Get(ctx).DurationOverrides[programID] {
		if len(v) > 0 {
			return true
		}
	}
	return false
}

// ClearDuration removes a single override. Returns false if there was
// nothing to clear.
func (s *ProgramStore) ClearDuration(ctx context.Context, programID, sessionID string, index int) (bool, error) {
	if _, ok := s.Duration(ctx, programID, sessionID, index); !ok {
		return false, nil
	}

	return true, s.cell.Update(ctx, func(d programDoc) programDoc {
		values := d.DurationOverrides[programID][sessionID].clone()
		delete(values, index)
		return d.withSession(programID, sessionID, values)
	})
}

// ResetSession removes the overrides of one session inside the program.
func (s *ProgramStore) ResetSession(ctx context.Context, programID, sessionID string) error {
	if _, ok := s.cell.Get(ctx).DurationOverrides[programID][sessionID]; !ok {
		return nil
	}
	return s.cell.Update(ctx, func(d programDoc) programDoc {
		return d.withSession(programID, sessionID, nil)
	})
}

// ResetProgram removes every override of the program.
func (s *ProgramStore) ResetProgram(ctx context.Context, programID string) error {
	if _, ok := s.cell.Get(ctx).DurationOverrides[programID]; !ok {
		return nil
	}
	return s.cell.Update(ctx, func(d programDoc) programDoc {
		next := d.clone()
		delete(next.DurationOverrides, programID)
		return next
	})
}

// ResetAll removes every override of every program.
func (s *ProgramStore) ResetAll(ctx context.Context) error {
	return s.cell.Save(ctx, programDoc{Version: Version, DurationOverrides: map[string]map[string]Values{}})
}

// Programs lists the ids of programs that carry overrides.
func (s *ProgramStore) Programs(ctx context.Context) []string {
	return sortedKeys(s.cell.Get(ctx).DurationOverrides)
}

// Compose applies the overrides of the session inside the program to base.
// base itself is returned when there are none.
func (s *ProgramStore) Compose(ctx context.Context, programID, sessionID string, base []content.SessionPose) []content.SessionPose {
	return Compose(s.cell.Get(ctx).DurationOverrides[programID][sessionID], base, WithSeconds)
}

// Apply handles one change event from a shared subscription.
func (s *ProgramStore) Apply(ctx context.Context, change kv.Change) {
	s.cell.Apply(ctx, change)
}
