package filter

import (
	"path/filepath"
	"time"

	"github.com/dhkts1/yoga-app-sub002/internal/practice"
)

// Criteria defines filtering criteria for practice entries.
// All filters are ANDed together - an entry must match ALL criteria to pass.
type Criteria struct {
	Since       time.Time // Inclusive, zero = no filter
	Until       time.Time // Exclusive, zero = no filter
	SessionGlob string    // Glob pattern for the session ID, empty = no filter
	ProgramID   string    // Exact match, empty = no filter
}

// Matches returns true if the entry matches all filter criteria.
func (c *Criteria) Matches(e practice.Entry) bool {
	at := e.CompletedAt()
	if !c.Since.IsZero() && at.Before(c.Since) {
		return false
	}
	if !c.Until.IsZero() && !at.Before(c.Until) {
		return false
	}

	if c.SessionGlob != "" {
		matched, err := filepath.Match(c.SessionGlob, e.SessionID)
		if err != nil || !matched {
			return false
		}
	}

	if c.ProgramID != "" && e.ProgramID != c.ProgramID {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return !c.Since.IsZero() ||
		!c.Until.IsZero() ||
		c.SessionGlob != "" ||
		c.ProgramID != ""
}

// Validate reports a malformed session glob.
func (c *Criteria) Validate() error {
	if c.SessionGlob == "" {
		return nil
	}
	_, err := filepath.Match(c.SessionGlob, "")
	return err
}

// Apply returns the entries that match, preserving order.
func (c *Criteria) Apply(entries []practice.Entry) []practice.Entry {
	if !c.HasFilters() {
		return entries
	}
	var out []practice.Entry
	for _, e := range entries {
		if c.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
