// Package cell implements the durable key-value cell: one named storage slot
// holding a JSON-encoded value of type T.
//
// A cell never fails its caller because of what is on disk. Unparsable or
// invalid payloads are archived, cleared and replaced by the default value;
// failed writes leave the in-memory value authoritative and are reported
// through Err. Changes written by other execution contexts arrive through
// Watch and are fanned out to Subscribe callbacks.
package cell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"go.uber.org/zap"
)

var (
	// ErrCorruptedData reports a stored payload that could not be decoded or
	// failed the cell's shape check. The cell has already recovered.
	ErrCorruptedData = errors.New("corrupted data")

	// ErrPersistenceFailure reports a write that did not reach storage. The
	// in-memory value still reflects the write.
	ErrPersistenceFailure = errors.New("persistence failure")
)

// Cell is a single persisted value with corruption recovery and change
// notification. The zero value is not usable; construct with New.
type Cell[T any] struct {
	backend kv.Backend
	key     string
	def     T

	validate func(T) error
	backup   bool
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	value  T
	loaded bool
	err    error

	subMu  sync.Mutex
	subs   map[int]func(T)
	nextID int
}

// Option configures a Cell.
type Option[T any] func(*Cell[T])

// WithValidator installs a shape check run on every decoded payload.
// A payload that fails it is handled as corrupted.
func WithValidator[T any](fn func(T) error) Option[T] {
	return func(c *Cell[T]) {
		c.validate = fn
	}
}

// WithBackup controls whether corrupted payloads are archived under
// kv.CorruptedKey before the slot is cleared. Enabled by default.
func WithBackup[T any](enabled bool) Option[T] {
	return func(c *Cell[T]) {
		c.backup = enabled
	}
}

// WithLogger sets the logger used for recovery diagnostics.
func WithLogger[T any](logger *zap.Logger) Option[T] {
	return func(c *Cell[T]) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the clock used to timestamp backup keys.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cell[T]) {
		c.now = now
	}
}

// New creates a cell for key. Nothing is read until the first Get or Load.
func New[T any](backend kv.Backend, key string, def T, opts ...Option[T]) (*Cell[T], error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if err := kv.ValidateKey(key); err != nil {
		return nil, err
	}

	c := &Cell[T]{
		backend: backend,
		key:     key,
		def:     def,
		backup:  true,
		logger:  zap.NewNop(),
		now:     time.Now,
		subs:    make(map[int]func(T)),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.value = c.defaultValue()
	return c, nil
}

// Key returns the storage key of the cell.
func (c *Cell[T]) Key() string {
	return c.key
}

// Ready reports whether the cell has been hydrated from storage.
func (c *Cell[T]) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Err returns the current error state: nil, ErrCorruptedData or
// ErrPersistenceFailure (both wrapped with detail).
func (c *Cell[T]) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Load reads the slot, replacing the in-memory value. It never fails: an
// absent slot yields the default, and so does a corrupted one after it has
// been archived and cleared.
func (c *Cell[T]) Load(ctx context.Context) T {
	raw, ok, err := c.backend.Get(ctx, c.key)
	if err != nil {
		// Storage unreachable: keep whatever is in memory.
		c.logger.Warn("failed to read cell, keeping in-memory value",
			zap.String("key", c.key), zap.Error(err))
		c.mu.Lock()
		c.loaded = true
		c.err = fmt.Errorf("%w: read %s: %w", ErrPersistenceFailure, c.key, err)
		value := c.value
		c.mu.Unlock()
		return c.copyOf(value)
	}

	var value T
	var loadErr error
	if ok {
		value, loadErr = c.decode(ctx, raw)
	} else {
		value = c.defaultValue()
	}

	c.mu.Lock()
	c.value = value
	c.loaded = true
	c.err = loadErr
	c.mu.Unlock()

	return c.copyOf(value)
}

// Get returns a copy of the in-memory value, hydrating from storage on
// first use. Mutating the result never reaches the cell.
func (c *Cell[T]) Get(ctx context.Context) T {
	c.mu.RLock()
	if c.loaded {
		value := c.value
		c.mu.RUnlock()
		return c.copyOf(value)
	}
	c.mu.RUnlock()

	return c.Load(ctx)
}

// Save makes v the current value and persists it. The in-memory value is
// updated even when persisting fails; the failure is recorded in Err and
// also returned for callers that want to surface it.
func (c *Cell[T]) Save(ctx context.Context, v T) error {
	c.mu.Lock()
	c.value = c.copyOf(v)
	c.loaded = true
	c.mu.Unlock()

	return c.persist(ctx, v)
}

// Update applies fn to the current value and saves the result.
func (c *Cell[T]) Update(ctx context.Context, fn func(T) T) error {
	return c.Save(ctx, fn(c.Get(ctx)))
}

// Remove deletes the slot and resets the in-memory value to the default.
func (c *Cell[T]) Remove(ctx context.Context) error {
	c.mu.Lock()
	c.value = c.defaultValue()
	c.loaded = true
	c.mu.Unlock()

	if err := c.backend.Remove(ctx, c.key); err != nil && !c.notifyOnly(err) {
		return c.fail(fmt.Errorf("%w: remove %s: %w", ErrPersistenceFailure, c.key, err))
	}

	c.mu.Lock()
	c.err = nil
	c.mu.Unlock()
	return nil
}

// Corrupted lists the backup keys holding payloads archived from this cell.
func (c *Cell[T]) Corrupted(ctx context.Context) ([]string, error) {
	return c.backend.Keys(ctx, kv.CorruptedPrefix(c.key))
}

func (c *Cell[T]) persist(ctx context.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return c.fail(fmt.Errorf("%w: encode %s: %w", ErrPersistenceFailure, c.key, err))
	}

	if err := c.backend.Set(ctx, c.key, string(data)); err != nil && !c.notifyOnly(err) {
		return c.fail(fmt.Errorf("%w: write %s: %w", ErrPersistenceFailure, c.key, err))
	}

	c.mu.Lock()
	c.err = nil
	c.mu.Unlock()
	return nil
}

// notifyOnly reports whether err means the write landed and only the change
// notification was lost. Such writes are not persistence failures.
func (c *Cell[T]) notifyOnly(err error) bool {
	if !kv.IsNotifyFailure(err) {
		return false
	}
	c.logger.Warn("stored value but other contexts were not notified",
		zap.String("key", c.key), zap.Error(err))
	return true
}

func (c *Cell[T]) fail(err error) error {
	c.logger.Warn("cell persistence degraded", zap.String("key", c.key), zap.Error(err))

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	return err
}

// decode parses raw and runs the shape check. On failure it recovers the
// slot and returns the default together with the corruption error.
func (c *Cell[T]) decode(ctx context.Context, raw string) (T, error) {
	var value T
	err := json.Unmarshal([]byte(raw), &value)
	if err == nil && c.validate != nil {
		err = c.validate(value)
	}
	if err == nil {
		return value, nil
	}

	return c.defaultValue(), c.quarantine(ctx, raw, err)
}

func (c *Cell[T]) quarantine(ctx context.Context, raw string, cause error) error {
	corruptErr := fmt.Errorf("%w: %s: %w", ErrCorruptedData, c.key, cause)
	c.logger.Warn("corrupted cell payload, falling back to default",
		zap.String("key", c.key), zap.Error(cause))

	if c.backup {
		backupKey := kv.CorruptedKey(c.key, c.now().UnixMilli())
		if err := c.backend.Set(ctx, backupKey, raw); err != nil && !kv.IsNotifyFailure(err) {
			c.logger.Warn("failed to archive corrupted payload",
				zap.String("key", c.key), zap.String("backup_key", backupKey), zap.Error(err))
		} else {
			c.logger.Info("archived corrupted payload",
				zap.String("key", c.key), zap.String("backup_key", backupKey))
		}
	}

	if err := c.backend.Remove(ctx, c.key); err != nil {
		c.logger.Warn("failed to clear corrupted slot",
			zap.String("key", c.key), zap.Error(err))
	}

	return corruptErr
}

// defaultValue returns a deep copy of the default so that callers mutating
// the value they were handed cannot alter later resets.
func (c *Cell[T]) defaultValue() T {
	return c.copyOf(c.def)
}

// copyOf deep-copies v through its JSON encoding, the same form it is
// persisted in. Values that do not round-trip are returned as is.
func (c *Cell[T]) copyOf(v T) T {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var clone T
	if err := json.Unmarshal(data, &clone); err != nil {
		return v
	}
	return clone
}
