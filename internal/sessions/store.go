package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/dhkts1/yoga-app-sub002/internal/collection"
	"github.com/dhkts1/yoga-app-sub002/internal/content"
	"github.com/dhkts1/yoga-app-sub002/internal/sequencing"
	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Catalog is what the store needs from the base content.
type Catalog interface {
	sequencing.Lookup
	Rules() sequencing.RuleSet
}

// Store is the validated custom session collection.
type Store struct {
	records *collection.Store[Session]
	catalog Catalog
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	logger *zap.Logger
	backup bool
	now    func() time.Time
}

// WithLogger sets the logger for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBackup controls archiving of a corrupted collection.
func WithBackup(enabled bool) Option {
	return func(o *storeOptions) {
		o.backup = enabled
	}
}

// WithClock overrides the clock used for CreatedAtMs.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		o.now = now
	}
}

// NewStore creates the custom session store.
func NewStore(backend kv.Backend, catalog Catalog, opts ...Option) (*Store, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}

	o := storeOptions{logger: zap.NewNop(), backup: true, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	records, err := collection.New[Session](backend, Key,
		collection.WithLogger(o.logger),
		collection.WithBackup(o.backup),
	)
	if err != nil {
		return nil, err
	}

	return &Store{records: records, catalog: catalog, logger: o.logger, now: o.now}, nil
}

// Records exposes the underlying collection for watching.
func (s *Store) Records() *collection.Store[Session] {
	return s.records
}

// Err returns the persistence error state.
func (s *Store) Err() error {
	return s.records.Err()
}

// Create builds a session with a fresh id and computed duration and adds it.
func (s *Store) Create(ctx context.Context, name string, poses []content.SessionPose) (Session, error) {
	session := Session{
		ID:          uuid.New().String(),
		Name:        name,
		Poses:       append([]content.SessionPose(nil), poses...),
		Duration:    TotalSeconds(poses),
		CreatedAtMs: s.now().UnixMilli(),
	}
	if err := s.Add(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Add validates and appends a session.
func (s *Store) Add(ctx context.Context, session Session) error {
	if err := Validate(session, s.catalog); err != nil {
		return err
	}
	return s.records.Add(ctx, session)
}

// Update merges patch into the session and writes it only if the merged
// session is still valid. When patch replaces poses without a duration, the
// duration is recomputed. Returns false if no such session.
func (s *Store) Update(ctx context.Context, id string, patch collection.Patch) (bool, error) {
	current, ok := s.records.GetByID(ctx, id)
	if !ok {
		// Let the collection report the miss.
		return s.records.Update(ctx, id, patch)
	}

	merged, err := collection.Merge(current, patch)
	if err != nil {
		return false, err
	}

	_, hasPoses := patch["poses"]
	_, hasDuration := patch["duration"]
	if hasPoses && !hasDuration {
		merged.Duration = TotalSeconds(merged.Poses)
		patch = withField(patch, "duration", merged.Duration)
	}

	if err := Validate(merged, s.catalog); err != nil {
		return false, err
	}
	return s.records.Update(ctx, id, patch)
}

// Rename changes the session name.
func (s *Store) Rename(ctx context.Context, id, name string) (bool, error) {
	return s.Update(ctx, id, collection.Patch{"name": name})
}

// Remove deletes the session. Returns false if no such session.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	return s.records.Remove(ctx, id)
}

// Get returns the session with id.
func (s *Store) Get(ctx context.Context, id string) (Session, bool) {
	return s.records.GetByID(ctx, id)
}

// List returns every custom session.
func (s *Store) List(ctx context.Context) []Session {
	return s.records.GetAll(ctx)
}

// IDs returns the ids of every custom session.
func (s *Store) IDs(ctx context.Context) []string {
	all := s.records.GetAll(ctx)
	ids := make([]string, len(all))
	for i, session := range all {
		ids[i] = session.ID
	}
	return ids
}

// CheckSequence runs the sequencing rules over the session's poses.
func (s *Store) CheckSequence(ctx context.Context, id string) (sequencing.Result, error) {
	session, ok := s.records.GetByID(ctx, id)
	if !ok {
		return sequencing.Result{}, fmt.Errorf("%w: %s", collection.ErrRecordNotFound, id)
	}
	return s.catalog.Rules().Validate(session.PoseIDs(), s.catalog), nil
}

func withField(patch collection.Patch, field string, value any) collection.Patch {
	out := make(collection.Patch, len(patch)+1)
	for k, v := range patch {
		out[k] = v
	}
	out[field] = value
	return out
}
