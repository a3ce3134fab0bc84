// Package app wires the stores together. Each store is constructed once per
// App and shared by reference; callers never build their own.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dhkts1/yoga-app-sub002/internal/cell"
	"github.com/dhkts1/yoga-app-sub002/internal/config"
	"github.com/dhkts1/yoga-app-sub002/internal/content"
	"github.com/dhkts1/yoga-app-sub002/internal/fsstore"
	"github.com/dhkts1/yoga-app-sub002/internal/override"
	"github.com/dhkts1/yoga-app-sub002/internal/practice"
	"github.com/dhkts1/yoga-app-sub002/internal/sequencing"
	"github.com/dhkts1/yoga-app-sub002/internal/sessions"
	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrUnknownSession is returned when an id names neither a catalog
	// session nor a custom session.
	ErrUnknownSession = errors.New("unknown session")

	// ErrUnknownProgram is returned for a program id the catalog lacks.
	ErrUnknownProgram = errors.New("unknown program")
)

// App holds the process-wide stores.
type App struct {
	Config  *config.Config
	Backend kv.Backend
	Catalog *content.Catalog

	Sessions         *sessions.Store
	SessionOverrides *override.SessionStore
	ProgramOverrides *override.ProgramStore
	History          *practice.History
	Preferences      *practice.PreferenceStore

	logger *zap.Logger
}

// Open connects the configured backend and builds every store.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a, err := New(cfg, backend, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return a, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (kv.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		redisOpts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client, err := kv.NewClient(redisOpts, cfg.Profile, kv.WithQuota(cfg.Storage.QuotaBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		if err := client.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Storage.RedisURL, err)
		}
		return client, nil

	case config.BackendFile:
		store, err := fsstore.New(filepath.Join(cfg.Storage.Dir, cfg.Profile),
			fsstore.WithQuota(cfg.Storage.QuotaBytes))
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
}

// New builds the stores on an existing backend. The App owns the backend
// from here on and closes it in Close.
func New(cfg *config.Config, backend kv.Backend, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backup := *cfg.Storage.BackupCorrupted

	catalog, err := content.Load(cfg.Content.Catalog)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Backend: backend,
		Catalog: catalog,
		logger:  logger,
	}

	if a.Sessions, err = sessions.NewStore(backend, catalog,
		sessions.WithLogger(logger), sessions.WithBackup(backup)); err != nil {
		return nil, err
	}
	if a.SessionOverrides, err = override.NewSessionStore(backend,
		override.WithLogger(logger), override.WithBackup(backup)); err != nil {
		return nil, err
	}
	if a.ProgramOverrides, err = override.NewProgramStore(backend,
		override.WithLogger(logger), override.WithBackup(backup)); err != nil {
		return nil, err
	}
	if a.History, err = practice.NewHistory(backend,
		practice.WithHistoryLogger(logger), practice.WithHistoryBackup(backup)); err != nil {
		return nil, err
	}
	if a.Preferences, err = practice.NewPreferenceStore(backend, logger, backup); err != nil {
		return nil, err
	}

	return a, nil
}

// Close releases the backend.
func (a *App) Close() error {
	return a.Backend.Close()
}

// Draft returns the draft cell named name.
func (a *App) Draft(name string) (*cell.Cell[json.RawMessage], error) {
	return practice.Draft(a.Backend, name, a.logger)
}

// Watch subscribes once to the backend and routes every external change to
// the store that owns its key. onChange, if non-nil, runs after each change
// has been applied. The returned channel closes when ctx ends.
func (a *App) Watch(ctx context.Context, onChange func(kv.Change)) (<-chan struct{}, error) {
	sub, err := a.Backend.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to watch storage: %w", err)
	}

	appliers := []func(context.Context, kv.Change){
		a.Sessions.Records().Cell().Apply,
		a.SessionOverrides.Apply,
		a.ProgramOverrides.Apply,
		a.History.Entries().Cell().Apply,
		a.Preferences.Cell().Apply,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-sub.Events():
				if !ok {
					return
				}
				for _, apply := range appliers {
					apply(ctx, change)
				}
				a.logger.Debug("applied external change",
					zap.String("key", change.Key), zap.String("origin", change.Origin))
				if onChange != nil {
					onChange(change)
				}
			case err, ok := <-sub.Errors():
				if !ok {
					return
				}
				a.logger.Warn("change stream error", zap.Error(err))
			}
		}
	}()

	return done, nil
}

// Errs collects the persistence error state of every store.
func (a *App) Errs() map[string]error {
	errs := make(map[string]error)
	add := func(key string, err error) {
		if err != nil {
			errs[key] = err
		}
	}
	add(sessions.Key, a.Sessions.Err())
	add(override.SessionKey, a.SessionOverrides.Err())
	add(override.ProgramKey, a.ProgramOverrides.Err())
	add(practice.HistoryKey, a.History.Err())
	add(practice.PreferencesKey, a.Preferences.Cell().Err())
	return errs
}

// EffectiveSession returns the poses of a session as they will be practised:
// a catalog session with its overrides applied, or a custom session as
// stored.
func (a *App) EffectiveSession(ctx context.Context, sessionID string) ([]content.SessionPose, error) {
	if base, ok := a.Catalog.Session(sessionID); ok {
		return a.SessionOverrides.Compose(ctx, sessionID, base.Poses), nil
	}
	if custom, ok := a.Sessions.Get(ctx, sessionID); ok {
		return custom.Poses, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
}

// EffectiveProgramSession returns the poses of a catalog session inside a
// program with the program's overrides applied.
func (a *App) EffectiveProgramSession(ctx context.Context, programID, sessionID string) ([]content.SessionPose, error) {
	program, ok := a.Catalog.Program(programID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, programID)
	}
	if !contains(program.Sessions, sessionID) {
		return nil, fmt.Errorf("%w: %s is not part of program %s", ErrUnknownSession, sessionID, programID)
	}

	base, _ := a.Catalog.Session(sessionID)
	return a.ProgramOverrides.Compose(ctx, programID, sessionID, base.Poses), nil
}

// CheckEffectiveSession validates the effective sequence. programID may be
// empty for a standalone session.
func (a *App) CheckEffectiveSession(ctx context.Context, programID, sessionID string) (sequencing.Result, error) {
	var poses []content.SessionPose
	var err error
	if programID == "" {
		poses, err = a.EffectiveSession(ctx, sessionID)
	} else {
		poses, err = a.EffectiveProgramSession(ctx, programID, sessionID)
	}
	if err != nil {
		return sequencing.Result{}, err
	}

	ids := make([]string, len(poses))
	for i, p := range poses {
		ids[i] = p.PoseID
	}
	return a.Catalog.Rules().Validate(ids, a.Catalog), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
