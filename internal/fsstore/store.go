// Package fsstore implements kv.Backend on top of a plain directory: one file
// per key, written atomically, with change notification driven by fsnotify.
// Several processes pointing at the same directory see each other's writes
// the way browser tabs see each other's local storage writes.
package fsstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

const (
	fileSuffix = ".json"
	tempPrefix = ".tmp-"
)

// Store is a directory-backed kv.Backend.
type Store struct {
	dir   string
	quota int

	mu sync.Mutex
	// own remembers what this store last wrote per key (nil = removed) so
	// that the watcher can drop the echo of its own writes.
	own map[string]*string
}

// Option configures a Store.
type Option func(*Store)

// WithQuota limits the size in bytes of a single stored value.
func WithQuota(bytes int) Option {
	return func(s *Store) {
		s.quota = bytes
	}
}

// New opens (creating if needed) a directory store.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	s := &Store{
		dir: dir,
		own: make(map[string]*string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.quota < 0 {
		return nil, fmt.Errorf("quota must be >= 0, got %d", s.quota)
	}
	return s, nil
}

// Dir returns the directory the store writes into.
func (s *Store) Dir() string {
	return s.dir
}

// Close is a no-op; subscriptions are closed individually.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+fileSuffix)
}

// keyFromPath is the inverse of path. ok is false for files that are not slots.
func keyFromPath(p string) (string, bool) {
	name := filepath.Base(p)
	if strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(name, fileSuffix))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

// Get returns the raw value stored at key.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	if err := kv.ValidateKey(key); err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes value at key via a temp file and rename.
func (s *Store) Set(_ context.Context, key, value string) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	if s.quota > 0 && len(value) > s.quota {
		return fmt.Errorf("%w: %d bytes for %s exceeds limit of %d", kv.ErrQuotaExceeded, len(value), key, s.quota)
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	s.remember(key, &value)
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Remove deletes the file holding key.
func (s *Store) Remove(_ context.Context, key string) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}

	s.remember(key, nil)
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys starting with prefix, sorted.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, ok := keyFromPath(entry.Name())
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) remember(key string, value *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.own[key] = value
}

// isEcho reports whether the current state of key is exactly what this store
// last put there. Once another writer's state is seen the remembered write is
// forgotten, so a later write of the same value by someone else is delivered.
func (s *Store) isEcho(key string, value *string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	own, ok := s.own[key]
	if !ok {
		return false
	}
	if sameValue(own, value) {
		return true
	}
	delete(s.own, key)
	return false
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Subscribe watches the directory and delivers changes made by other
// processes (or other Store values on the same directory).
// Caller must call subscription.Close() when done.
func (s *Store) Subscribe(ctx context.Context) (*kv.Subscription, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	eventsChan := make(chan kv.Change, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer watcher.Close()

		for {
			select {
			case <-subCtx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				change, ok := s.changeFor(event)
				if !ok {
					continue
				}
				select {
				case eventsChan <- change:
				case <-subCtx.Done():
					return
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				select {
				case errorsChan <- fmt.Errorf("watch error: %w", err):
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return kv.NewSubscription(eventsChan, errorsChan, cancelFunc), nil
}

// changeFor turns a filesystem event into a change, re-reading the file so
// that coalesced or reordered events still report the latest state.
func (s *Store) changeFor(event fsnotify.Event) (kv.Change, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return kv.Change{}, false
	}

	key, ok := keyFromPath(event.Name)
	if !ok {
		return kv.Change{}, false
	}

	var value *string
	data, err := os.ReadFile(event.Name)
	switch {
	case err == nil:
		v := string(data)
		value = &v
	case os.IsNotExist(err):
		value = nil
	default:
		return kv.Change{}, false
	}

	if s.isEcho(key, value) {
		return kv.Change{}, false
	}

	return kv.Change{
		Key:    key,
		Value:  value,
		Origin: uuid.NewString(), // the writer is unknown on a filesystem
		AtMs:   time.Now().UnixMilli(),
	}, true
}

var _ kv.Backend = (*Store)(nil)
