package app

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blogpad/launchpad/internal/dashboard"
	"github.com/blogpad/launchpad/internal/logging"
	"github.com/blogpad/launchpad/internal/progress/debounce"
	"github.com/blogpad/launchpad/internal/progress/reconcile"
)

// Backend returns the API backend over the app's services.
func (a *App) Backend(events *dashboard.Handler) dashboard.Backend {
	return dashboard.Backend{
		Notes:      a.Notes,
		Onboarding: a.Onboarding,
		Guides:     a.Guides,
		Auth:       a.Auth,
		State:      a.Engine,
		Saves:      a.Saves,
		Catalog:    a.Catalog,
		Policy:     a.Policy,
		Events:     events,
	}
}

// Serve runs the dashboard on port and follows curriculum overrides until
// ctx is cancelled.
func (a *App) Serve(ctx context.Context, port int) error {
	logger := logging.Component(a.Logger, "dashboard")

	server := dashboard.NewServer(&dashboard.Config{
		Port:    port,
		Logger:  logger,
		Welcome: func() []dashboard.Message { return a.welcome(ctx) },
	})
	handler := dashboard.NewHandler(server, logger)
	server.SetAPI(dashboard.NewAPI(a.Backend(handler), logger))

	if err := os.MkdirAll(a.Config.CurriculumDir(), 0755); err != nil {
		return fmt.Errorf("failed to create curriculum directory: %w", err)
	}
	if err := a.Tasks.Start(); err != nil {
		return err
	}

	unsubscribe := a.Saves.Subscribe(handler.OnSaveStatus)
	defer unsubscribe()
	a.OnSessionChange(func(st reconcile.State) {
		handler.OnIdentity(a.Auth.Current(), st.Degraded)
	})

	if err := server.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return server.Stop()
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case c, ok := <-a.Tasks.Reloads():
				if !ok {
					return nil
				}
				handler.OnCurriculumReload(len(c.TaskIDs()), len(c.Guides()))
				if overview, _, err := a.Progress(gctx); err == nil {
					handler.OnProgress(overview)
				}
			case err, ok := <-a.Tasks.Errors():
				if !ok {
					return nil
				}
				logger.Warn("curriculum override rejected", zap.Error(err))
			}
		}
	})

	a.Logger.Info("serving dashboard", zap.String("addr", server.GetAddr()))
	return g.Wait()
}

// welcome is what a freshly connected client receives.
func (a *App) welcome(ctx context.Context) []dashboard.Message {
	var msgs []dashboard.Message
	add := func(typ dashboard.MessageType, data any) {
		msg, err := dashboard.NewMessage(typ, data)
		if err != nil {
			return
		}
		msgs = append(msgs, msg)
	}

	add(dashboard.MessageTypeIdentity, dashboard.NewIdentityData(a.Auth.Current(), a.Engine.State().Degraded))
	add(dashboard.MessageTypeSaveStatus, a.Saves.Snapshot())
	if overview, _, err := a.Progress(ctx); err == nil {
		add(dashboard.MessageTypeProgress, overview)
	}
	if status, err := a.Onboarding.Status(ctx); err == nil {
		add(dashboard.MessageTypeOnboarding, status)
	}
	return msgs
}

var _ dashboard.SaveStatus = (*debounce.Coordinator)(nil)
