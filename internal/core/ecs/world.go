package ecs

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/zeusync/jackal/internal/core/events/bus"
	"github.com/zeusync/jackal/internal/core/observability/log"
)

type slot struct {
	obj        *GameObject
	generation uint32
	live       bool
}

// World owns GameObjects and runs systems over them once per tick.
//
// A World is driven from a single goroutine. Spawns, despawns and queued
// commands become visible at the next flush, which Tick performs before any
// system runs, so iteration order is stable across ticks: systems run in
// registration order and objects in spawn order.
type World struct {
	registry *TypeRegistry
	log      log.Log
	events   bus.Publisher

	slots   []slot
	free    []uint32
	order   []uint32
	pending []uint32

	systems     []System
	systemNames map[string]struct{}

	commands  CommandBuffer
	iterating bool
	ticks     uint64
}

type WorldOption func(*World)

func WithWorldLogger(l log.Log) WorldOption {
	return func(w *World) {
		w.log = log.OrNop(l)
	}
}

// WithEvents makes the world publish entity and component events.
func WithEvents(p bus.Publisher) WorldOption {
	return func(w *World) {
		w.events = p
	}
}

func NewWorld(registry *TypeRegistry, opts ...WorldOption) *World {
	w := &World{
		registry:    registry,
		log:         log.NewNop(),
		systemNames: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *World) Registry() *TypeRegistry { return w.registry }

// Commands returns the buffer for structural changes requested mid-tick.
func (w *World) Commands() *CommandBuffer { return &w.commands }

func (w *World) Ticks() uint64 { return w.ticks }

// Spawn creates a GameObject. It can be populated right away but is only
// processed by systems from the next flush on.
func (w *World) Spawn(name string) *GameObject {
	var idx uint32
	if n := len(w.free); n > 0 {
		idx = w.free[n-1]
		w.free = w.free[:n-1]
	} else {
		idx = uint32(len(w.slots))
		w.slots = append(w.slots, slot{})
	}

	s := &w.slots[idx]
	s.generation++
	s.live = true
	s.obj = newGameObject(newEntityID(idx, s.generation), name, w.registry, w)
	s.obj.pending = true
	w.pending = append(w.pending, idx)

	w.emit(bus.EntitySpawned, map[string]any{"entity": s.obj.id.String(), "name": name})
	return s.obj
}

// Despawn schedules the object for destruction at the next flush. Despawning
// an object twice before the flush is a no-op.
func (w *World) Despawn(id EntityID) error {
	obj, ok := w.Object(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	if obj.despawning {
		return nil
	}
	obj.despawning = true
	w.commands.Despawn(id)
	return nil
}

// Object resolves id, rejecting ids whose slot has since been reused.
func (w *World) Object(id EntityID) (*GameObject, bool) {
	idx := id.Index()
	if int(idx) >= len(w.slots) {
		return nil, false
	}
	s := w.slots[idx]
	if !s.live || s.generation != id.Generation() {
		return nil, false
	}
	return s.obj, true
}

// Len counts objects visible to systems.
func (w *World) Len() int { return len(w.order) }

// Objects returns the visible objects in iteration order.
func (w *World) Objects() []*GameObject {
	out := make([]*GameObject, 0, len(w.order))
	for _, idx := range w.order {
		out = append(out, w.slots[idx].obj)
	}
	return out
}

// Query yields visible, active objects matching mask in iteration order.
func (w *World) Query(mask Mask) iter.Seq[*GameObject] {
	return func(yield func(*GameObject) bool) {
		for _, idx := range w.order {
			obj := w.slots[idx].obj
			if !obj.active || !obj.Matches(mask) {
				continue
			}
			if !yield(obj) {
				return
			}
		}
	}
}

// RegisterSystem appends s to the update order.
func (w *World) RegisterSystem(s System) error {
	if s == nil {
		return ErrNilSystem
	}
	if w.iterating {
		return ErrWorldBusy
	}
	if _, exists := w.systemNames[s.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSystem, s.Name())
	}
	if init, ok := s.(Initializer); ok {
		if err := init.Init(w); err != nil {
			return fmt.Errorf("init system %s: %w", s.Name(), err)
		}
	}
	w.systemNames[s.Name()] = struct{}{}
	w.systems = append(w.systems, s)
	w.log.Debug("system registered",
		log.String("system", s.Name()),
		log.Uint64("mask", uint64(s.RequiredMask())),
	)
	return nil
}

func (w *World) Systems() []System {
	out := make([]System, len(w.systems))
	copy(out, w.systems)
	return out
}

// Flush applies queued commands and makes pending spawns visible. Commands
// that no longer apply (stale entity, duplicate component) are reported in
// the joined error; the rest are still applied.
func (w *World) Flush() error {
	if w.iterating {
		return ErrWorldBusy
	}

	var errs error
	removed := false
	for _, cmd := range w.commands.drain() {
		obj, ok := w.Object(cmd.entity)
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("%w: %s", ErrEntityNotFound, cmd.entity))
			continue
		}
		switch cmd.op {
		case attachCommand:
			errs = errors.Join(errs, obj.Attach(cmd.component))
		case detachCommand:
			_, err := obj.Detach(cmd.typ)
			errs = errors.Join(errs, err)
		case despawnCommand:
			w.destroy(obj)
			removed = true
		}
	}

	if removed {
		w.order = w.liveOnly(w.order)
		w.pending = w.liveOnly(w.pending)
	}
	for _, idx := range w.pending {
		w.slots[idx].obj.pending = false
		w.order = append(w.order, idx)
	}
	w.pending = w.pending[:0]
	return errs
}

// Tick flushes pending changes, freezes the type registry and runs every
// system over its matching objects. System errors are joined; a failing
// system does not stop the tick. Cancelling ctx stops it between objects.
func (w *World) Tick(ctx context.Context, dt time.Duration) error {
	if w.iterating {
		return ErrWorldBusy
	}
	errs := w.Flush()
	w.registry.Freeze()

	w.iterating = true
	defer func() { w.iterating = false }()
	w.ticks++

	tc := &TickContext{
		Context:  ctx,
		World:    w,
		Delta:    dt,
		Tick:     w.ticks,
		Commands: &w.commands,
	}
	for _, s := range w.systems {
		mask := s.RequiredMask()
		for _, idx := range w.order {
			if err := ctx.Err(); err != nil {
				return errors.Join(errs, err)
			}
			obj := w.slots[idx].obj
			if !obj.active || !obj.Matches(mask) {
				continue
			}
			if err := s.Update(tc, obj); err != nil {
				errs = errors.Join(errs, fmt.Errorf("system %s on %s: %w", s.Name(), obj.id, err))
			}
		}
	}
	return errs
}

// Clear despawns every object immediately. It is meant for shutdown.
func (w *World) Clear() error {
	if w.iterating {
		return ErrWorldBusy
	}
	w.commands.drain()
	for i := range w.slots {
		if w.slots[i].live {
			w.destroy(w.slots[i].obj)
		}
	}
	w.order = w.order[:0]
	w.pending = w.pending[:0]
	return nil
}

func (w *World) destroy(obj *GameObject) {
	idx := obj.id.Index()
	obj.destroy()
	w.slots[idx].live = false
	w.slots[idx].obj = nil
	w.free = append(w.free, idx)
	w.emit(bus.EntityDespawned, map[string]any{"entity": obj.id.String(), "name": obj.name})
}

func (w *World) liveOnly(indices []uint32) []uint32 {
	out := indices[:0]
	for _, idx := range indices {
		if w.slots[idx].live {
			out = append(out, idx)
		}
	}
	return out
}

func (w *World) emit(typ string, data map[string]any) {
	if err := bus.Emit(w.events, typ, "ecs", data); err != nil {
		w.log.Warn("event handler failed", log.String("event", typ), log.Error(err))
	}
}
