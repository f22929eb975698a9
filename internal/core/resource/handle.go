package resource

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zeusync/jackal/internal/core/vfs"
)

type State int32

const (
	Unloaded State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handle is a shared, reference counted view of one cached resource. Every
// handle returned by Acquire must be given back with exactly one Release.
type Handle struct {
	key Key
	loc vfs.Location

	// refs is modified under the owning shard lock while the handle is cached.
	refs  atomic.Int64
	state atomic.Int32
	// purged handles were dropped by Purge while still referenced.
	purged atomic.Bool

	mu      sync.RWMutex
	payload any
	err     error
	version uint64
}

func newHandle(key Key, loc vfs.Location) *Handle {
	h := &Handle{key: key, loc: loc}
	h.state.Store(int32(Loading))
	return h
}

func (h *Handle) Key() Key               { return h.key }
func (h *Handle) Kind() Kind             { return h.key.Kind }
func (h *Handle) Location() vfs.Location { return h.loc }
func (h *Handle) State() State           { return State(h.state.Load()) }
func (h *Handle) Refs() int64            { return h.refs.Load() }
func (h *Handle) String() string         { return h.key.String() }

// Version starts at 1 on the first successful load and increases on every
// reload.
func (h *Handle) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Payload returns the loaded resource. A failed handle carries no payload.
func (h *Handle) Payload() (any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch h.State() {
	case Ready:
		return h.payload, nil
	case Failed:
		return nil, fmt.Errorf("%w: %w", ErrHandleFailed, h.err)
	case Loading:
		return nil, fmt.Errorf("%w: %s", ErrHandleNotReady, h.key)
	default:
		return nil, fmt.Errorf("%w: %s", ErrHandleReleased, h.key)
	}
}

// As returns the payload of h typed as T.
func As[T any](h *Handle) (T, error) {
	var zero T
	if h == nil {
		return zero, ErrHandleReleased
	}
	p, err := h.Payload()
	if err != nil {
		return zero, err
	}
	v, ok := p.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %T, want %T", ErrPayloadType, h.key, p, zero)
	}
	return v, nil
}

func (h *Handle) ready(payload any) {
	h.mu.Lock()
	h.payload = payload
	h.err = nil
	h.version++
	h.state.Store(int32(Ready))
	h.mu.Unlock()
}

func (h *Handle) fail(err error) {
	h.mu.Lock()
	h.payload = nil
	h.err = err
	h.state.Store(int32(Failed))
	h.mu.Unlock()
}

// unload detaches the payload and marks the handle Unloaded.
func (h *Handle) unload() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.payload
	h.payload = nil
	h.state.Store(int32(Unloaded))
	return p
}

// swap replaces the payload of a Ready handle. It reports false, leaving the
// handle untouched, when the handle was unloaded meanwhile.
func (h *Handle) swap(payload any) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.State() != Ready {
		return nil, false
	}
	old := h.payload
	h.payload = payload
	h.version++
	return old, true
}
