package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrQuotaExceeded is returned by Set when the value does not fit in the
	// storage quota, either the configured per-value limit or the server's
	// memory limit.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrNotifyFailure is returned by Set and Remove when the write itself
	// succeeded but other contexts could not be told about it. The stored
	// value is intact.
	ErrNotifyFailure = errors.New("change notification failed")

	// ErrInvalidKey is returned for empty keys or keys containing whitespace
	// control characters.
	ErrInvalidKey = errors.New("invalid storage key")
)

// Backend is the synchronous key-value primitive the state layer persists
// through. Implementations must never deliver a change to the backend that
// performed the write.
type Backend interface {
	// Get returns the raw value at key. ok is false if the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes value at key and notifies other backends.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys lists the keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Subscribe starts delivering changes made by other backends.
	Subscribe(ctx context.Context) (*Subscription, error)

	// Close releases the backend's resources.
	Close() error
}

// Change describes one external write to a key.
// Value is nil when the key was removed.
type Change struct {
	Key    string  `json:"key"`
	Value  *string `json:"value"`
	Origin string  `json:"origin"` // UUID of the backend that made the write
	AtMs   int64   `json:"at_ms"`  // Unix milliseconds at which the write happened
}

// Removed reports whether the change deleted the key.
func (c *Change) Removed() bool {
	return c.Value == nil
}

// Validate checks that the change is well formed.
func (c *Change) Validate() error {
	if err := ValidateKey(c.Key); err != nil {
		return err
	}
	if _, err := uuid.Parse(c.Origin); err != nil {
		return fmt.Errorf("invalid change origin: not a valid UUID")
	}
	return nil
}

// ValidateKey rejects keys the backends cannot address.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return fmt.Errorf("%w: key %q contains whitespace", ErrInvalidKey, key)
	}
	return nil
}

// IsNotifyFailure returns true if err only reports a lost change notification.
func IsNotifyFailure(err error) bool {
	return errors.Is(err, ErrNotifyFailure)
}

// IsQuotaExceeded returns true if err reports an exhausted storage quota.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// Subscription represents an active stream of external changes.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan Change
	errors <-chan error
	cancel func()
	once   sync.Once
}

// NewSubscription assembles a Subscription from the channels a backend's
// delivery goroutine writes to. cancel must stop that goroutine, which in
// turn closes both channels.
func NewSubscription(events <-chan Change, errs <-chan error, cancel func()) *Subscription {
	return &Subscription{
		events: events,
		errors: errs,
		cancel: cancel,
	}
}

// Events returns the channel of change events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan Change {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors - the offending message is skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}
