// Package app assembles the progress layer from configuration: the local and
// remote stores, the reconciliation engine, the identity provider, the save
// coordinator, the curriculum and the services built on them.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/blogpad/launchpad/internal/config"
	"github.com/blogpad/launchpad/internal/curriculum"
	"github.com/blogpad/launchpad/internal/guide"
	"github.com/blogpad/launchpad/internal/identity"
	"github.com/blogpad/launchpad/internal/logging"
	"github.com/blogpad/launchpad/internal/notes"
	"github.com/blogpad/launchpad/internal/onboarding"
	"github.com/blogpad/launchpad/internal/progress/debounce"
	"github.com/blogpad/launchpad/internal/progress/local"
	"github.com/blogpad/launchpad/internal/progress/reconcile"
	"github.com/blogpad/launchpad/internal/progress/remote"
	"github.com/blogpad/launchpad/internal/progress/schema"
	"github.com/blogpad/launchpad/internal/stats"
)

// App owns every long-lived component of a launchpad process.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Local  *local.Store
	Remote *remote.Store // nil when running local-only
	Engine *reconcile.Engine
	Auth   *identity.LocalProvider
	Saves  *debounce.Coordinator
	Tasks  *curriculum.Watcher

	Notes      *notes.Service
	Onboarding *onboarding.Service
	Guides     *guide.Service
	Policy     onboarding.Policy

	mu         sync.Mutex
	lastGen    uint64
	onIdentity []func(reconcile.State)

	closers []func()
	closed  bool
}

// New builds the application. A remote store that cannot be reached is kept
// and the engine starts degraded; any other setup failure is returned.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Policy: onboarding.Policy{Enforce: cfg.Onboarding.Enforce},
	}

	a.Local = local.OpenOrMemory(cfg.LocalPath(), logging.Component(logger, "local"))
	a.closers = append(a.closers, func() {
		if err := a.Local.Close(); err != nil {
			logger.Warn("failed to close local store", zap.Error(err))
		}
	})

	var rem reconcile.Remote
	if cfg.Remote.Driver != "" {
		s, err := remote.Open(ctx, remote.Config{
			Driver:  cfg.Remote.Driver,
			DSN:     cfg.Remote.DSN,
			Timeout: cfg.GetRemoteTimeout(),
		}, logging.Component(logger, "remote"))
		switch {
		case err == nil:
		case errors.Is(err, schema.ErrRemoteUnavailable) && s != nil:
			logger.Warn("remote store unreachable, starting degraded",
				zap.String("driver", cfg.Remote.Driver), zap.Error(err))
		default:
			a.Close()
			return nil, fmt.Errorf("failed to open remote store: %w", err)
		}
		a.Remote = s
		rem = s
		a.closers = append(a.closers, func() {
			if err := s.Close(); err != nil {
				logger.Warn("failed to close remote store", zap.Error(err))
			}
		})
	}

	base, err := curriculum.Default()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Tasks, err = curriculum.NewWatcher(cfg.CurriculumDir(), base, logging.Component(logger, "curriculum"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := a.Tasks.Stop(); err != nil {
			logger.Warn("failed to stop curriculum watcher", zap.Error(err))
		}
	})

	a.Engine = reconcile.New(a.Local, rem, logging.Component(logger, "reconcile"))
	a.Saves = debounce.New(debounce.Config{
		Delay:        cfg.GetDebounce(),
		SavedDisplay: cfg.GetSavedDisplay(),
		WriteTimeout: cfg.GetWriteTimeout(),
		Logger:       logging.Component(logger, "saves"),
	})
	// pending edits are dropped before the stores close
	a.closers = append(a.closers, a.Saves.Close)

	a.Notes = notes.NewService(a.Engine, a.Tasks, a.Saves, logging.Component(logger, "notes"))
	a.Onboarding = onboarding.NewService(a.Engine, a.Saves, logging.Component(logger, "onboarding"))
	a.Guides = guide.NewService(a.Engine, a.Tasks, logging.Component(logger, "guide"))

	a.closers = append(a.closers, a.Engine.Subscribe(a.sessionChanged))

	a.Auth = identity.NewLocalProvider(cfg.IdentityPath())
	if err := a.Auth.Open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.Engine.Bind(a.Auth))

	return a, nil
}

// sessionChanged drops the services' views when the identity changed.
func (a *App) sessionChanged(st reconcile.State) {
	a.mu.Lock()
	changed := st.Generation != a.lastGen
	a.lastGen = st.Generation
	fns := append([]func(reconcile.State){}, a.onIdentity...)
	a.mu.Unlock()

	if changed {
		a.Notes.Invalidate()
		a.Onboarding.Invalidate()
		a.Guides.Reset()
	}
	for _, fn := range fns {
		fn(st)
	}
}

// OnSessionChange registers fn for every identity or degraded-state change,
// after the services were invalidated.
func (a *App) OnSessionChange(fn func(reconcile.State)) {
	a.mu.Lock()
	a.onIdentity = append(a.onIdentity, fn)
	a.mu.Unlock()
}

// Catalog returns the curriculum in effect.
func (a *App) Catalog() *curriculum.Catalog {
	return a.Tasks.Catalog()
}

// Progress loads the notes and returns the completion overview. degraded is
// set when the notes came from the local store only.
func (a *App) Progress(ctx context.Context) (stats.Overview, bool, error) {
	v, err := a.Notes.All(ctx)
	if err != nil {
		return stats.Overview{}, false, err
	}
	return stats.Compute(a.Catalog(), v.Notes), v.Degraded, nil
}

// Close waits for in-flight saves and releases every resource. Edits still
// waiting for their debounce delay are dropped.
func (a *App) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
