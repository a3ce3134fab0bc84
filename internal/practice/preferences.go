package practice

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dhkts1/yoga-app-sub002/internal/cell"
	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"go.uber.org/zap"
)

// PreferencesKey is the storage key of the preferences cell.
const PreferencesKey = "yoga-preferences"

// Preferences are the user's practice settings.
type Preferences struct {
	VoiceEnabled     bool    `json:"voiceEnabled"`
	VoiceRate        float64 `json:"voiceRate"`
	Theme            string  `json:"theme"`
	CountdownSeconds int     `json:"countdownSeconds"`
}

// DefaultPreferences returns the preferences used before anything is saved.
func DefaultPreferences() Preferences {
	return Preferences{
		VoiceEnabled:     true,
		VoiceRate:        1.0,
		Theme:            "system",
		CountdownSeconds: 3,
	}
}

// Validate checks value ranges.
func (p Preferences) Validate() error {
	if p.VoiceRate < 0.5 || p.VoiceRate > 2.0 {
		return fmt.Errorf("voiceRate must be between 0.5 and 2.0, got %g", p.VoiceRate)
	}
	switch p.Theme {
	case "light", "dark", "system":
	default:
		return fmt.Errorf("theme must be light, dark or system, got '%s'", p.Theme)
	}
	if p.CountdownSeconds < 0 || p.CountdownSeconds > 10 {
		return fmt.Errorf("countdownSeconds must be between 0 and 10, got %d", p.CountdownSeconds)
	}
	return nil
}

// With returns p with the named field set from its string form. Field names
// are the JSON names.
func (p Preferences) With(field, value string) (Preferences, error) {
	switch field {
	case "voiceEnabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return p, fmt.Errorf("voiceEnabled: %w", err)
		}
		p.VoiceEnabled = b
	case "voiceRate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return p, fmt.Errorf("voiceRate: %w", err)
		}
		p.VoiceRate = f
	case "theme":
		p.Theme = strings.ToLower(value)
	case "countdownSeconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return p, fmt.Errorf("countdownSeconds: %w", err)
		}
		p.CountdownSeconds = n
	default:
		return p, fmt.Errorf("unknown preference '%s' (valid: voiceEnabled, voiceRate, theme, countdownSeconds)", field)
	}
	return p, p.Validate()
}

// PreferenceStore persists Preferences in a cell.
type PreferenceStore struct {
	cell *cell.Cell[Preferences]
}

// NewPreferenceStore creates the preference store.
func NewPreferenceStore(backend kv.Backend, logger *zap.Logger, backup bool) (*PreferenceStore, error) {
	c, err := cell.New(backend, PreferencesKey, DefaultPreferences(),
		cell.WithValidator(Preferences.Validate),
		cell.WithLogger[Preferences](logger),
		cell.WithBackup[Preferences](backup),
	)
	if err != nil {
		return nil, err
	}
	return &PreferenceStore{cell: c}, nil
}

// Cell exposes the underlying cell for watching.
func (s *PreferenceStore) Cell() *cell.Cell[Preferences] {
	return s.cell
}

// Get returns the current preferences.
func (s *PreferenceStore) Get(ctx context.Context) Preferences {
	return s.cell.Get(ctx)
}

// Set validates and saves p.
func (s *PreferenceStore) Set(ctx context.Context, p Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.cell.Save(ctx, p)
}

// Reset restores the defaults.
func (s *PreferenceStore) Reset(ctx context.Context) error {
	return s.cell.Remove(ctx)
}

// DraftPrefix namespaces draft keys.
const DraftPrefix = "draft:"

// Draft returns a cell holding arbitrary JSON under DraftPrefix+name. The
// default is JSON null.
func Draft(backend kv.Backend, name string, logger *zap.Logger) (*cell.Cell[json.RawMessage], error) {
	return cell.New(backend, DraftPrefix+name, json.RawMessage("null"),
		cell.WithLogger[json.RawMessage](logger),
	)
}
