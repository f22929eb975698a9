package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/zeusync/jackal/internal/core/events/bus"
	"github.com/zeusync/jackal/internal/core/observability/log"
	"github.com/zeusync/jackal/internal/core/vfs"
	"github.com/zeusync/jackal/pkg/concurrent"
)

// Resolver maps logical paths to physical locations. *vfs.FileSystem is the
// production implementation.
type Resolver interface {
	Resolve(logical string) (vfs.Location, error)
}

// Loader turns the bytes at a resolved location into a payload. Loaders
// never see logical paths and never touch the cache.
type Loader func(ctx context.Context, loc vfs.Location) (any, error)

// Unloader frees a payload once its last handle is released.
type Unloader func(payload any) error

type kindSpec struct {
	load     Loader
	unload   Unloader
	fallback string
}

type KindOption func(*kindSpec)

// WithUnloader overrides the default unload, which closes payloads that
// implement io.Closer.
func WithUnloader(u Unloader) KindOption {
	return func(s *kindSpec) {
		s.unload = u
	}
}

// WithDefault names the logical path AcquireOrDefault falls back to.
func WithDefault(logical string) KindOption {
	return func(s *kindSpec) {
		s.fallback = logical
	}
}

// Stats combines cache counters with manager level figures.
type Stats struct {
	CacheStats
	Kinds   int `json:"kinds"`
	Pending int `json:"pending_reloads"`
}

// Manager is the single entry point for obtaining resources: it resolves
// logical paths through the virtual file system and shares loaded payloads
// through the cache. Every Acquire must be paired with one Release.
type Manager struct {
	resolver Resolver
	cache    *Cache
	log      log.Log
	events   bus.Publisher
	watcher  *Watcher

	shardCount   int
	preloadLimit int

	mu     sync.RWMutex
	kinds  map[Kind]*kindSpec
	closed atomic.Bool
}

type Option func(*Manager)

func WithLogger(l log.Log) Option {
	return func(m *Manager) {
		m.log = log.OrNop(l)
	}
}

func WithEvents(p bus.Publisher) Option {
	return func(m *Manager) {
		m.events = p
	}
}

// WithWatcher enables hot reload: host files backing loaded resources are
// watched and their changes applied by ApplyReloads.
func WithWatcher(w *Watcher) Option {
	return func(m *Manager) {
		m.watcher = w
	}
}

func WithShardCount(n int) Option {
	return func(m *Manager) {
		m.shardCount = n
	}
}

// WithPreloadLimit bounds the loads Preload runs at once.
func WithPreloadLimit(n int) Option {
	return func(m *Manager) {
		m.preloadLimit = n
	}
}

func NewManager(resolver Resolver, opts ...Option) *Manager {
	m := &Manager{
		resolver:     resolver,
		log:          log.NewNop(),
		shardCount:   DefaultShardCount,
		preloadLimit: 8,
		kinds:        make(map[Kind]*kindSpec),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cache = NewCache(m.shardCount, CacheHooks{
		Loaded:   m.onLoaded,
		Failed:   m.onFailed,
		Evicted:  m.onEvicted,
		Reloaded: m.onReloaded,
		Unload:   m.unload,
	})
	return m
}

// RegisterKind installs the loader for kind.
func (m *Manager) RegisterKind(kind Kind, load Loader, opts ...KindOption) error {
	if kind == "" || load == nil {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	spec := &kindSpec{load: load}
	for _, opt := range opts {
		opt(spec)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kinds[kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, kind)
	}
	m.kinds[kind] = spec
	return nil
}

func (m *Manager) Kinds() []Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Kind, 0, len(m.kinds))
	for k := range m.kinds {
		out = append(out, k)
	}
	return out
}

func (m *Manager) spec(kind Kind) (*kindSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return s, nil
}

// Acquire returns a handle to the resource at logical interpreted as kind.
// A cached resource is shared without any I/O; otherwise it is loaded once,
// however many callers ask for it concurrently.
//
// Errors: ErrUnknownKind, vfs.ErrInvalidPath, ErrAssetNotFound when no mount
// holds the path, and a *LoadError (matching ErrLoadFailed) when the loader
// fails. A failed load is not cached, so the next Acquire tries again.
func (m *Manager) Acquire(ctx context.Context, logical string, kind Kind) (*Handle, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	spec, err := m.spec(kind)
	if err != nil {
		return nil, err
	}
	loc, err := m.resolver.Resolve(logical)
	if err != nil {
		if errors.Is(err, vfs.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrAssetNotFound, err)
		}
		return nil, err
	}

	key := Key{Physical: loc.Physical, Kind: kind}
	return m.cache.Acquire(ctx, key, loc, func(ctx context.Context) (any, error) {
		return spec.load(ctx, loc)
	})
}

// AcquireOrDefault behaves like Acquire but substitutes the kind's default
// resource when the asset is missing or fails to load.
func (m *Manager) AcquireOrDefault(ctx context.Context, logical string, kind Kind) (*Handle, error) {
	h, err := m.Acquire(ctx, logical, kind)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, ErrAssetNotFound) && !errors.Is(err, ErrLoadFailed) {
		return nil, err
	}
	spec, serr := m.spec(kind)
	if serr != nil || spec.fallback == "" || spec.fallback == logical {
		return nil, err
	}

	m.log.Warn("using default resource",
		log.String("path", logical),
		log.String("kind", string(kind)),
		log.String("default", spec.fallback),
		log.Error(err),
	)
	dh, derr := m.Acquire(ctx, spec.fallback, kind)
	if derr != nil {
		return nil, errors.Join(err, derr)
	}
	return dh, nil
}

// Preload acquires every path concurrently. It either returns one handle per
// path, in order, or releases whatever it acquired and returns the error.
func (m *Manager) Preload(ctx context.Context, kind Kind, logicals ...string) ([]*Handle, error) {
	handles, err := concurrent.Map(ctx, logicals, m.preloadLimit, func(ctx context.Context, logical string) (*Handle, error) {
		return m.Acquire(ctx, logical, kind)
	})
	if err != nil {
		for _, h := range handles {
			if h != nil {
				_ = m.Release(h)
			}
		}
		return nil, err
	}
	return handles, nil
}

// Release gives back one reference. The last release evicts the entry and
// unloads the payload.
func (m *Manager) Release(h *Handle) error {
	return m.cache.Release(h)
}

// Reload loads a cached resource again in place. It reports false when the
// resource is not currently loaded.
func (m *Manager) Reload(ctx context.Context, logical string, kind Kind) (bool, error) {
	spec, err := m.spec(kind)
	if err != nil {
		return false, err
	}
	loc, err := m.resolver.Resolve(logical)
	if err != nil {
		if errors.Is(err, vfs.ErrNotFound) {
			return false, fmt.Errorf("%w: %w", ErrAssetNotFound, err)
		}
		return false, err
	}
	return m.reloadKey(ctx, Key{Physical: loc.Physical, Kind: kind}, spec)
}

func (m *Manager) reloadKey(ctx context.Context, key Key, spec *kindSpec) (bool, error) {
	h, ok := m.cache.Lookup(key)
	if !ok {
		return false, nil
	}
	loc := h.Location()
	return m.cache.Reload(ctx, key, func(ctx context.Context) (any, error) {
		return spec.load(ctx, loc)
	})
}

// ApplyReloads reloads every cached resource whose host file changed since
// the last call. It must run on the thread that owns the payloads, between
// ticks. Failed reloads keep the previous payload.
func (m *Manager) ApplyReloads(ctx context.Context) (int, error) {
	if m.watcher == nil || m.closed.Load() {
		return 0, nil
	}
	var (
		n    int
		errs error
	)
	for _, path := range m.watcher.Drain() {
		for _, key := range m.cache.KeysFor(path) {
			spec, err := m.spec(key.Kind)
			if err != nil {
				errs = errors.Join(errs, err)
				continue
			}
			ok, err := m.reloadKey(ctx, key, spec)
			if err != nil {
				errs = errors.Join(errs, err)
				continue
			}
			if ok {
				n++
			}
		}
	}
	return n, errs
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	kinds := len(m.kinds)
	m.mu.RUnlock()

	s := Stats{CacheStats: m.cache.Stats(), Kinds: kinds}
	if m.watcher != nil {
		s.Pending = m.watcher.Pending()
	}
	return s
}

// Resources lists the cache entries ordered by key.
func (m *Manager) Resources() []Info {
	return m.cache.Snapshot()
}

// Close unloads everything regardless of outstanding handles and stops the
// watcher. Later Acquire calls fail with ErrManagerClosed.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	purged := m.cache.Purge()
	m.log.Info("resource manager closed", log.Int("purged", purged))
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *Manager) unload(key Key, payload any) {
	unload := closePayload
	if spec, err := m.spec(key.Kind); err == nil && spec.unload != nil {
		unload = spec.unload
	}
	if err := unload(payload); err != nil {
		m.log.Warn("unload failed", log.String("key", key.String()), log.Error(err))
	}
}

func closePayload(payload any) error {
	if c, ok := payload.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (m *Manager) onLoaded(h *Handle) {
	m.log.Debug("resource loaded", log.String("key", h.key.String()), log.Int64("refs", h.Refs()))
	if m.watcher != nil {
		if host, ok := h.loc.HostPath(); ok {
			if err := m.watcher.Watch(host); err != nil {
				m.log.Warn("watch failed", log.String("path", host), log.Error(err))
			}
		}
	}
	m.emit(bus.ResourceLoaded, h.key, map[string]any{"version": h.Version()})
}

func (m *Manager) onFailed(key Key, err error) {
	m.log.Warn("resource load failed", log.String("key", key.String()), log.Error(err))
	m.emit(bus.ResourceFailed, key, map[string]any{"error": err.Error()})
}

func (m *Manager) onEvicted(h *Handle) {
	m.log.Debug("resource evicted", log.String("key", h.key.String()))
	m.emit(bus.ResourceEvicted, h.key, nil)
}

func (m *Manager) onReloaded(h *Handle) {
	m.log.Info("resource reloaded", log.String("key", h.key.String()), log.Uint64("version", h.Version()))
	m.emit(bus.ResourceReloaded, h.key, map[string]any{"version": h.Version()})
}

func (m *Manager) emit(typ string, key Key, extra map[string]any) {
	data := map[string]any{
		"key":      key.String(),
		"kind":     string(key.Kind),
		"physical": key.Physical,
	}
	for k, v := range extra {
		data[k] = v
	}
	if err := bus.Emit(m.events, typ, "resource", data); err != nil {
		m.log.Warn("event handler failed", log.String("event", typ), log.Error(err))
	}
}

// BytesLoader reads the whole file.
func BytesLoader(_ context.Context, loc vfs.Location) (any, error) {
	return loc.ReadAll()
}

// TextLoader reads the whole file as a string, e.g. shader source.
func TextLoader(_ context.Context, loc vfs.Location) (any, error) {
	data, err := loc.ReadAll()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
