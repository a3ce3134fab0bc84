// Package content provides the immutable base catalog of poses, sessions and
// programs. Overrides and custom sessions are layered on top of it and never
// mutate it.
package content

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/dhkts1/yoga-app-sub002/internal/sequencing"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Pose is a single pose of the catalog.
type Pose struct {
	ID             string              `yaml:"id" json:"id"`
	Name           string              `yaml:"name" json:"name"`
	Category       sequencing.Category `yaml:"category" json:"category"`
	DefaultSeconds int                 `yaml:"default_seconds" json:"defaultSeconds"`
}

// SessionPose is one step of a session: a pose held for a number of seconds.
type SessionPose struct {
	PoseID  string `yaml:"pose" json:"poseId"`
	Seconds int    `yaml:"seconds" json:"duration"`
}

// Session is a base session.
type Session struct {
	ID    string        `yaml:"id" json:"id"`
	Name  string        `yaml:"name" json:"name"`
	Poses []SessionPose `yaml:"poses" json:"poses"`
}

// TotalSeconds sums the pose durations.
func (s Session) TotalSeconds() int {
	total := 0
	for _, p := range s.Poses {
		total += p.Seconds
	}
	return total
}

// Program is an ordered list of sessions.
type Program struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Sessions []string `yaml:"sessions" json:"sessions"`
}

// SequencingConfig overrides the built-in sequencing rules.
type SequencingConfig struct {
	Opposing  [][]sequencing.Category                       `yaml:"opposing"`
	FollowUps map[sequencing.Category][]sequencing.Category `yaml:"follow_ups"`
}

// Catalog is the parsed catalog file.
type Catalog struct {
	Version    string            `yaml:"version"`
	Poses      []Pose            `yaml:"poses"`
	Sessions   []Session         `yaml:"sessions"`
	Programs   []Program         `yaml:"programs"`
	Sequencing *SequencingConfig `yaml:"sequencing,omitempty"`

	poses    map[string]Pose
	sessions map[string]Session
	programs map[string]Program
	rules    sequencing.RuleSet
}

var knownCategories = map[sequencing.Category]bool{
	sequencing.CategoryStanding:    true,
	sequencing.CategoryBalance:     true,
	sequencing.CategoryBackbend:    true,
	sequencing.CategoryForwardBend: true,
	sequencing.CategoryTwist:       true,
	sequencing.CategoryInversion:   true,
	sequencing.CategoryCounterpose: true,
	sequencing.CategoryHipOpener:   true,
	sequencing.CategoryRest:        true,
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads and validates a catalog file. An empty path selects the
// embedded catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &c, nil
}

// Validate checks referential integrity and builds the lookup indices.
func (c *Catalog) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	c.poses = make(map[string]Pose, len(c.Poses))
	for _, p := range c.Poses {
		if p.ID == "" {
			return fmt.Errorf("pose with empty id")
		}
		if _, dup := c.poses[p.ID]; dup {
			return fmt.Errorf("duplicate pose id '%s'", p.ID)
		}
		if !knownCategories[p.Category] {
			return fmt.Errorf("pose '%s': unknown category '%s'", p.ID, p.Category)
		}
		if p.DefaultSeconds <= 0 {
			return fmt.Errorf("pose '%s': default_seconds must be > 0", p.ID)
		}
		c.poses[p.ID] = p
	}

	c.sessions = make(map[string]Session, len(c.Sessions))
	for _, s := range c.Sessions {
		if s.ID == "" {
			return fmt.Errorf("session with empty id")
		}
		if _, dup := c.sessions[s.ID]; dup {
			return fmt.Errorf("duplicate session id '%s'", s.ID)
		}
		if len(s.Poses) == 0 {
			return fmt.Errorf("session '%s' has no poses", s.ID)
		}
		for i, sp := range s.Poses {
			if _, ok := c.poses[sp.PoseID]; !ok {
				return fmt.Errorf("session '%s' pose %d: unknown pose '%s'", s.ID, i, sp.PoseID)
			}
			if sp.Seconds <= 0 {
				return fmt.Errorf("session '%s' pose %d: seconds must be > 0", s.ID, i)
			}
		}
		c.sessions[s.ID] = s
	}

	c.programs = make(map[string]Program, len(c.Programs))
	for _, p := range c.Programs {
		if p.ID == "" {
			return fmt.Errorf("program with empty id")
		}
		if _, dup := c.programs[p.ID]; dup {
			return fmt.Errorf("duplicate program id '%s'", p.ID)
		}
		for _, sid := range p.Sessions {
			if _, ok := c.sessions[sid]; !ok {
				return fmt.Errorf("program '%s': unknown session '%s'", p.ID, sid)
			}
		}
		c.programs[p.ID] = p
	}

	c.rules = sequencing.DefaultRules()
	if c.Sequencing != nil {
		rules, err := c.Sequencing.ruleSet()
		if err != nil {
			return err
		}
		c.rules = rules
	}
	return nil
}

func (s *SequencingConfig) ruleSet() (sequencing.RuleSet, error) {
	rules := sequencing.RuleSet{FollowUps: make(map[sequencing.Category][]sequencing.Category)}
	for _, pair := range s.Opposing {
		if len(pair) != 2 {
			return rules, fmt.Errorf("sequencing.opposing entries must have exactly 2 categories, got %d", len(pair))
		}
		for _, cat := range pair {
			if !knownCategories[cat] {
				return rules, fmt.Errorf("sequencing.opposing: unknown category '%s'", cat)
			}
		}
		rules.Opposing = append(rules.Opposing, sequencing.Pair{pair[0], pair[1]})
	}
	for cat, allowed := range s.FollowUps {
		if !knownCategories[cat] {
			return rules, fmt.Errorf("sequencing.follow_ups: unknown category '%s'", cat)
		}
		for _, a := range allowed {
			if !knownCategories[a] {
				return rules, fmt.Errorf("sequencing.follow_ups.%s: unknown category '%s'", cat, a)
			}
		}
		rules.FollowUps[cat] = append([]sequencing.Category(nil), allowed...)
	}
	return rules, nil
}

// Pose returns the pose with id.
func (c *Catalog) Pose(id string) (Pose, bool) {
	p, ok := c.poses[id]
	return p, ok
}

// Session returns the base session with id. The pose slice is a copy.
func (c *Catalog) Session(id string) (Session, bool) {
	s, ok := c.sessions[id]
	if !ok {
		return Session{}, false
	}
	s.Poses = append([]SessionPose(nil), s.Poses...)
	return s, true
}

// Program returns the program with id.
func (c *Catalog) Program(id string) (Program, bool) {
	p, ok := c.programs[id]
	if !ok {
		return Program{}, false
	}
	p.Sessions = append([]string(nil), p.Sessions...)
	return p, true
}

// CategoryOf implements sequencing.Lookup.
func (c *Catalog) CategoryOf(id string) (sequencing.Category, bool) {
	p, ok := c.poses[id]
	return p.Category, ok
}

// Rules returns the sequencing rules in effect for this catalog.
func (c *Catalog) Rules() sequencing.RuleSet {
	return c.rules
}

var _ sequencing.Lookup = (*Catalog)(nil)
