// Package collection provides a CRUD store over an array of uniquely
// identified records persisted in a single cell.
//
// The store is domain-agnostic: it enforces id presence, id uniqueness and id
// immutability, nothing else. Domain shape rules are layered on top by the
// packages that own the record type.
package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dhkts1/yoga-app-sub002/internal/cell"
	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"go.uber.org/zap"
)

// IDField is the JSON field every record stores its id under.
const IDField = "id"

var (
	// ErrInvalidRecord is returned when a record has no id or does not encode
	// to a JSON object.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrDuplicateID is returned by Add when the id is already taken.
	ErrDuplicateID = errors.New("duplicate record id")

	// ErrRecordNotFound is returned by helpers that need an existing record.
	// Update and Remove report a missing id through their boolean result.
	ErrRecordNotFound = errors.New("record not found")
)

// Record is implemented by collection elements. RecordID must return the
// value encoded under IDField.
type Record interface {
	RecordID() string
}

// Patch is a set of top-level fields to overwrite on a record.
type Patch map[string]any

// Store is a collection of records of type R.
type Store[R Record] struct {
	cell   *cell.Cell[[]R]
	logger *zap.Logger
}

// Option configures a Store.
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

// WithBackup controls archiving of corrupted payloads. Enabled by default.
func WithBackup(enabled bool) Option {
	return func(o *options) {
		o.backup = enabled
	}
}

// New creates a collection stored at key.
func New[R Record](backend kv.Backend, key string, opts ...Option) (*Store[R], error) {
	o := options{logger: zap.NewNop(), backup: true}
	for _, opt := range opts {
		opt(&o)
	}

	c, err := cell.New(backend, key, []R{},
		cell.WithValidator(validateRecords[R]),
		cell.WithBackup[[]R](o.backup),
		cell.WithLogger[[]R](o.logger),
	)
	if err != nil {
		return nil, err
	}

	return &Store[R]{cell: c, logger: o.logger}, nil
}

// validateRecords is the shape check for the persisted array: every record
// has an id and ids are unique.
func validateRecords[R Record](records []R) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		id := r.RecordID()
		if id == "" {
			return fmt.Errorf("record at index %d has no id", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("record id %q appears more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Cell exposes the underlying cell for watching and error inspection.
func (s *Store[R]) Cell() *cell.Cell[[]R] {
	return s.cell
}

// Err returns the persistence error state of the collection.
func (s *Store[R]) Err() error {
	return s.cell.Err()
}

// Load re-reads the collection from storage.
func (s *Store[R]) Load(ctx context.Context) []R {
	return s.cell.Load(ctx)
}

// GetAll returns a snapshot of the collection. Records are deep copies:
// mutating them, nested fields included, does not affect the store.
func (s *Store[R]) GetAll(ctx context.Context) []R {
	return s.cell.Get(ctx)
}

// GetByID returns the record with id. An empty id is a caller mistake: it is
// logged and reported as not found.
func (s *Store[R]) GetByID(ctx context.Context, id string) (R, bool) {
	var zero R
	if id == "" {
		s.logger.Warn("lookup with empty record id", zap.String("key", s.cell.Key()))
		return zero, false
	}

	for _, r := range s.cell.Get(ctx) {
		if r.RecordID() == id {
			return r, true
		}
	}
	return zero, false
}

// Add appends r. The append is visible immediately; a persistence failure is
// returned (and kept in Err) but does not undo it.
func (s *Store[R]) Add(ctx context.Context, r R) error {
	if err := checkRecord(r); err != nil {
		return err
	}

	current := s.cell.Get(ctx)
	for _, existing := range current {
		if existing.RecordID() == r.RecordID() {
			return fmt.Errorf("%w: %s", ErrDuplicateID, r.RecordID())
		}
	}

	next := make([]R, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, r)
	return s.cell.Save(ctx, next)
}

// Update shallow-merges patch over the record with id. The id is pinned:
// a different id in patch is ignored. Returns false if no such record.
func (s *Store[R]) Update(ctx context.Context, id string, patch Patch) (bool, error) {
	current := s.cell.Get(ctx)
	idx := indexOf(current, id)
	if idx < 0 {
		s.logger.Warn("update of unknown record", zap.String("key", s.cell.Key()), zap.String("id", id))
		return false, nil
	}

	merged, err := Merge(current[idx], patch)
	if err != nil {
		return false, err
	}

	current[idx] = merged
	return true, s.cell.Save(ctx, current)
}

// Remove deletes the record with id. Returns false if no such record.
func (s *Store[R]) Remove(ctx context.Context, id string) (bool, error) {
	current := s.cell.Get(ctx)
	idx := indexOf(current, id)
	if idx < 0 {
		s.logger.Warn("remove of unknown record", zap.String("key", s.cell.Key()), zap.String("id", id))
		return false, nil
	}

	next := make([]R, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	return true, s.cell.Save(ctx, next)
}

// Replace swaps the whole collection, e.g. for an import. Records are checked
// exactly as Add would check them.
func (s *Store[R]) Replace(ctx context.Context, records []R) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if err := checkRecord(r); err != nil {
			return err
		}
		if _, dup := seen[r.RecordID()]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, r.RecordID())
		}
		seen[r.RecordID()] = struct{}{}
	}
	return s.cell.Save(ctx, records)
}

// Clear removes the whole collection from storage.
func (s *Store[R]) Clear(ctx context.Context) error {
	return s.cell.Remove(ctx)
}

// Merge returns r with the fields in patch overwritten, keeping r's id.
// It is pure and exported so that validating wrappers can inspect the result
// before committing it with Update.
func Merge[R Record](r R, patch Patch) (R, error) {
	var zero R

	obj, err := asObject(r)
	if err != nil {
		return zero, err
	}

	for field, value := range patch {
		if field == IDField {
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return zero, fmt.Errorf("%w: field %q: %v", ErrInvalidRecord, field, err)
		}
		obj[field] = encoded
	}

	pinned, err := json.Marshal(r.RecordID())
	if err != nil {
		return zero, err
	}
	obj[IDField] = pinned

	data, err := json.Marshal(obj)
	if err != nil {
		return zero, err
	}
	var merged R
	if err := json.Unmarshal(data, &merged); err != nil {
		return zero, fmt.Errorf("%w: patch does not fit record: %v", ErrInvalidRecord, err)
	}
	return merged, nil
}

func checkRecord[R Record](r R) error {
	if _, err := asObject(r); err != nil {
		return err
	}
	if r.RecordID() == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	return nil
}

// asObject encodes r and requires the result to be a JSON object.
func asObject[R Record](r R) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidRecord)
	}
	return obj, nil
}

func indexOf[R Record](records []R, id string) int {
	if id == "" {
		return -1
	}
	for i, r := range records {
		if r.RecordID() == id {
			return i
		}
	}
	return -1
}
