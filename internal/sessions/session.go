// Package sessions manages user-built custom sessions: an ordered list of
// catalog poses with per-pose durations, persisted as a collection.
package sessions

import (
	"fmt"
	"strings"

	"github.com/dhkts1/yoga-app-sub002/internal/content"
	"github.com/dhkts1/yoga-app-sub002/internal/sequencing"
)

// Key is the storage key of the custom session collection.
const Key = "customSessions"

const (
	MinPoses = 2
	MaxPoses = 20

	MinPoseSeconds  = 15
	MaxPoseSeconds  = 120
	PoseSecondsStep = 15
)

// Session is a custom session.
type Session struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Poses       []content.SessionPose `json:"poses"`
	Duration    int                   `json:"duration"`
	CreatedAtMs int64                 `json:"createdAt"`
}

// RecordID implements collection.Record.
func (s Session) RecordID() string { return s.ID }

// PoseIDs returns the pose ids in order.
func (s Session) PoseIDs() []string {
	ids := make([]string, len(s.Poses))
	for i, p := range s.Poses {
		ids[i] = p.PoseID
	}
	return ids
}

// TotalSeconds sums the pose durations.
func TotalSeconds(poses []content.SessionPose) int {
	total := 0
	for _, p := range poses {
		total += p.Seconds
	}
	return total
}

// ValidationError lists every shape problem found in a session.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid session: %s", strings.Join(e.Problems, "; "))
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// Validate checks s against the catalog. The id is not checked here; the
// collection owns id rules.
func Validate(s Session, catalog sequencing.Lookup) error {
	var problems []string

	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "name is required")
	}

	if len(s.Poses) < MinPoses || len(s.Poses) > MaxPoses {
		problems = append(problems, fmt.Sprintf("must have %d to %d poses, got %d", MinPoses, MaxPoses, len(s.Poses)))
	}

	for i, p := range s.Poses {
		if _, ok := catalog.CategoryOf(p.PoseID); !ok {
			problems = append(problems, fmt.Sprintf("pose %d: unknown pose '%s'", i, p.PoseID))
		}
		if p.Seconds < MinPoseSeconds || p.Seconds > MaxPoseSeconds || p.Seconds%PoseSecondsStep != 0 {
			problems = append(problems, fmt.Sprintf("pose %d: duration %ds must be %d-%ds in %ds steps",
				i, p.Seconds, MinPoseSeconds, MaxPoseSeconds, PoseSecondsStep))
		}
	}

	if total := TotalSeconds(s.Poses); s.Duration != total {
		problems = append(problems, fmt.Sprintf("duration %d does not match pose total %d", s.Duration, total))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
