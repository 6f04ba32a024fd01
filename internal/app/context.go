package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"surveydesk/internal/config"
	"surveydesk/internal/db"
	"surveydesk/internal/logging"
	"surveydesk/internal/storage"
	"surveydesk/internal/storage/kv"
	"surveydesk/internal/storage/sqlstore"
	"surveydesk/internal/survey"
)

// Runtime bundles the wired storage stack and survey service for one
// workspace.
type Runtime struct {
	Workspace  string
	Config     *config.Config
	Log        *zap.Logger
	Structured *sqlstore.Store
	Flat       kv.Backend
	Gateway    *storage.Gateway
	Service    *survey.Service

	closers []func() error
}

type Options struct {
	// Log overrides the logger built from the config.
	Log *zap.Logger
	// WaitStructured blocks Open until the structured store settles or
	// Storage.WaitTimeout elapses. A store that is still opening keeps
	// opening in the background.
	WaitStructured bool
}

// Open resolves the workspace, builds the logger and storage backends and
// returns a ready service. The caller must Close the runtime.
func Open(ctx context.Context, workspace string, cfg *config.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	rt := &Runtime{Workspace: workspace, Config: cfg, Log: opts.Log}
	if rt.Log == nil {
		log, err := logging.New(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		rt.Log = log
		rt.closers = append(rt.closers, func() error {
			log.Sync()
			return nil
		})
	}

	flat, err := openFlat(ctx, workspace, cfg.Storage)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Flat = flat
	if c, ok := flat.(interface{ Close() error }); ok {
		rt.closers = append(rt.closers, c.Close)
	}
	flatStore := storage.NewFlatStore(storage.NewNamespace(flat, cfg.Storage.Prefix))

	if cfg.Storage.Structured {
		rt.Structured = sqlstore.New(sqlstore.WorkspaceOpener(db.Config{Workspace: workspace}), rt.Log)
		rt.Structured.Start(context.WithoutCancel(ctx))
		rt.closers = append(rt.closers, rt.Structured.Close)
		rt.Gateway = storage.NewGateway(rt.Structured, flatStore, rt.Log)
		if opts.WaitStructured {
			rt.waitStructured(ctx)
		}
	} else {
		rt.Gateway = storage.NewGateway(nil, flatStore, rt.Log)
	}

	rt.Service = survey.New(rt.Gateway, survey.Options{
		Log:            rt.Log,
		SeedSampleData: cfg.Seed.SampleData,
	})
	return rt, nil
}

func (rt *Runtime) waitStructured(ctx context.Context) {
	wait := rt.Config.Storage.WaitTimeout
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	if err := rt.Structured.Wait(ctx); err != nil {
		rt.Log.Warn("structured storage not ready, using flat storage", zap.Error(err))
	}
}

func openFlat(ctx context.Context, workspace string, cfg config.StorageConfig) (kv.Backend, error) {
	switch cfg.Flat {
	case config.FlatMemory:
		return kv.NewMemory(), nil
	case config.FlatRedis:
		r, err := kv.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("flat storage: %w", err)
		}
		return r, nil
	case config.FlatFile, "":
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return nil, err
		}
		f, err := kv.OpenFile(db.FlatPath(workspace))
		if err != nil {
			return nil, fmt.Errorf("flat storage: %w", err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("unknown flat storage %q", cfg.Flat)
}

// Close releases backends in reverse order of acquisition.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
