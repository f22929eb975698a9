package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/jackal/internal/config"
	"github.com/zeusync/jackal/internal/core/ecs"
	"github.com/zeusync/jackal/internal/core/events/bus"
	"github.com/zeusync/jackal/internal/core/observability/log"
	"github.com/zeusync/jackal/internal/core/resource"
	"github.com/zeusync/jackal/internal/core/vfs"
	"github.com/zeusync/jackal/internal/server"
)

// Engine owns the core subsystems and drives the fixed-step main loop. All
// world mutation and payload swaps from hot reload happen on the goroutine
// calling Run or Step.
type Engine struct {
	id     string
	cfg    *config.Config
	logger log.Log
	events bus.EventBus

	registry  *ecs.TypeRegistry
	world     *ecs.World
	fs        *vfs.FileSystem
	resources *resource.Manager
	devtools  *server.Server
}

// New builds the engine described by cfg: it mounts the configured roots,
// starts the file watcher when hot reload is on and prepares the devtools
// server without starting it.
func New(cfg *config.Config, logger log.Log, events bus.EventBus) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if events == nil {
		events = bus.New()
	}

	id := uuid.NewString()
	logger = log.OrNop(logger).With(log.String("engine", id))
	e := &Engine{
		id:     id,
		cfg:    cfg,
		logger: logger,
		events: events,
	}

	e.registry = ecs.NewTypeRegistry(
		ecs.WithCapacity(cfg.Components.Capacity),
		ecs.WithRegistryLogger(logger.Named("ecs")),
	)
	e.world = ecs.NewWorld(e.registry,
		ecs.WithWorldLogger(logger.Named("world")),
		ecs.WithEvents(events),
	)

	e.fs = vfs.New(vfs.WithLogger(logger.Named("vfs")), vfs.WithEvents(events))
	for _, m := range cfg.Mounts {
		if err := mount(e.fs, m); err != nil {
			_ = e.fs.DismountAll()
			return nil, err
		}
	}

	opts := []resource.Option{
		resource.WithLogger(logger.Named("resource")),
		resource.WithEvents(events),
		resource.WithShardCount(cfg.Resources.Shards),
	}
	if cfg.Resources.PreloadLimit > 0 {
		opts = append(opts, resource.WithPreloadLimit(cfg.Resources.PreloadLimit))
	}
	if cfg.Resources.HotReload {
		w, err := resource.NewWatcher(logger)
		if err != nil {
			_ = e.fs.DismountAll()
			return nil, fmt.Errorf("hot reload: %w", err)
		}
		opts = append(opts, resource.WithWatcher(w))
	}
	e.resources = resource.NewManager(e.fs, opts...)

	if cfg.Devtools.Enabled {
		srv, err := server.New(cfg.Devtools.Addr, events, e.fs, e.resources, logger)
		if err != nil {
			_ = e.resources.Close()
			_ = e.fs.DismountAll()
			return nil, err
		}
		e.devtools = srv
	}
	return e, nil
}

func mount(fs *vfs.FileSystem, m config.Mount) error {
	kind, err := vfs.ParseRootKind(m.Type)
	if err != nil {
		return err
	}
	opts := []vfs.MountOption{vfs.WithName(m.EffectiveName())}
	if m.MountPoint != "" {
		opts = append(opts, vfs.WithMountPoint(m.MountPoint))
	}
	switch kind {
	case vfs.DirRoot:
		err = fs.MountDir(m.Path, m.Priority, opts...)
	case vfs.ArchiveRoot:
		err = fs.MountArchive(m.Path, m.Priority, opts...)
	default:
		err = fmt.Errorf("%w: %s roots are not configurable", vfs.ErrInvalidRoot, kind)
	}
	if err != nil {
		return fmt.Errorf("mount %s: %w", m.EffectiveName(), err)
	}
	return nil
}

func (e *Engine) ID() string                   { return e.id }
func (e *Engine) Config() *config.Config       { return e.cfg }
func (e *Engine) Logger() log.Log              { return e.logger }
func (e *Engine) Events() bus.EventBus         { return e.events }
func (e *Engine) Registry() *ecs.TypeRegistry  { return e.registry }
func (e *Engine) World() *ecs.World            { return e.world }
func (e *Engine) FileSystem() *vfs.FileSystem  { return e.fs }
func (e *Engine) Resources() *resource.Manager { return e.resources }
func (e *Engine) Devtools() *server.Server     { return e.devtools }

// RegisterKind registers a resource loader, attaching the default resource
// configured for kind, if any.
func (e *Engine) RegisterKind(kind resource.Kind, load resource.Loader, opts ...resource.KindOption) error {
	if fallback, ok := e.cfg.Resources.Defaults[string(kind)]; ok {
		opts = append([]resource.KindOption{resource.WithDefault(fallback)}, opts...)
	}
	return e.resources.RegisterKind(kind, load, opts...)
}

// Step applies queued hot reloads and advances the world by one tick.
func (e *Engine) Step(ctx context.Context, dt time.Duration) error {
	var errs error
	if n, err := e.resources.ApplyReloads(ctx); err != nil {
		errs = errors.Join(errs, err)
	} else if n > 0 {
		e.logger.Info("applied reloads", log.Int("count", n))
	}
	return errors.Join(errs, e.world.Tick(ctx, dt))
}

// Run starts the devtools server, when enabled, and ticks at the configured
// rate until ctx is cancelled. Tick errors are logged and do not stop the
// loop.
func (e *Engine) Run(ctx context.Context) error {
	if e.devtools != nil {
		if err := e.devtools.Start(ctx); err != nil {
			return err
		}
	}

	interval := e.cfg.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("engine running",
		log.Duration("interval", interval),
		log.Int("mounts", len(e.fs.Mounts())),
	)
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping", log.Uint64("ticks", e.world.Ticks()))
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if err := e.Step(ctx, dt); err != nil && ctx.Err() == nil {
				e.logger.Error("tick failed", log.Uint64("tick", e.world.Ticks()), log.Error(err))
			}
		}
	}
}

// Close stops devtools, despawns every object, unloads every resource and
// dismounts every root.
func (e *Engine) Close() error {
	var errs error
	if e.devtools != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = errors.Join(errs, e.devtools.Stop(ctx))
		cancel()
	}
	errs = errors.Join(errs,
		e.world.Clear(),
		e.resources.Close(),
		e.fs.DismountAll(),
	)
	_ = e.logger.Sync()
	return errs
}
