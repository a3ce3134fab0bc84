// Package override stores sparse per-pose duration overrides that are layered
// over immutable base sessions.
//
// Two stores share one contract. SessionStore keys overrides by session id;
// ProgramStore adds a program id in front of the session id so the same
// session can be tuned differently inside different programs. Every value
// written is normalized onto the [MinSeconds, MaxSeconds] grid of
// StepSeconds; callers cannot store anything else.
package override

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

const (
	MinSeconds  = 15
	MaxSeconds  = 300
	StepSeconds = 15

	// Version is the schema version of both persisted documents. A stored
	// document with any other version is discarded as corrupted.
	Version = 1

	SessionKey = "yoga-session-customizations"
	ProgramKey = "yoga-program-customizations"
)

// Normalize snaps raw to the nearest step and clamps it into range.
// NaN normalizes to MinSeconds.
func Normalize(raw float64) int {
	if math.IsNaN(raw) {
		return MinSeconds
	}
	snapped := math.Round(raw/StepSeconds) * StepSeconds
	switch {
	case snapped < MinSeconds:
		return MinSeconds
	case snapped > MaxSeconds:
		return MaxSeconds
	}
	return int(snapped)
}

// Values maps a pose index within a session to its overridden seconds.
type Values map[int]int

func (v Values) clone() Values {
	out := make(Values, len(v))
	for i, s := range v {
		out[i] = s
	}
	return out
}

func checkValues(v Values) error {
	for i, s := range v {
		if i < 0 {
			return fmt.Errorf("negative pose index %d", i)
		}
		if s < MinSeconds || s > MaxSeconds || s%StepSeconds != 0 {
			return fmt.Errorf("pose %d: %d seconds is off the %d..%d/%d grid",
				i, s, MinSeconds, MaxSeconds, StepSeconds)
		}
	}
	return nil
}

func checkVersion(v int) error {
	if v != Version {
		return fmt.Errorf("unsupported version %d (expected %d)", v, Version)
	}
	return nil
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger *zap.Logger
	backup bool
}

// WithLogger sets the logger for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBackup controls archiving of corrupted documents. Enabled by default.
func WithBackup(enabled bool) Option {
	return func(o *options) {
		o.backup = enabled
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), backup: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// normalizeAll converts raw values, dropping negative indices.
func normalizeAll(logger *zap.Logger, key string, raw map[int]float64) Values {
	out := make(Values, len(raw))
	for i, r := range raw {
		if i < 0 {
			logger.Warn("dropping override with negative index",
				zap.String("key", key), zap.Int("index", i))
			continue
		}
		out[i] = Normalize(r)
	}
	return out
}
