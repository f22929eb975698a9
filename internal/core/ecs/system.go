package ecs

import (
	"context"
	"time"
)

// System processes every active GameObject whose mask is a superset of
// RequiredMask. An empty mask matches every object.
type System interface {
	Name() string
	RequiredMask() Mask
	Update(ctx *TickContext, obj *GameObject) error
}

// Initializer is implemented by systems that need the world once, at registration.
type Initializer interface {
	Init(w *World) error
}

// TickContext is handed to every System.Update call of one tick.
type TickContext struct {
	context.Context

	World    *World
	Delta    time.Duration
	Tick     uint64
	Commands *CommandBuffer
}

// UpdateFunc is the per-object body of a FuncSystem.
type UpdateFunc func(ctx *TickContext, obj *GameObject) error

type funcSystem struct {
	name string
	mask Mask
	fn   UpdateFunc
}

// NewSystem wraps fn as a System requiring the given component types.
func NewSystem(name string, fn UpdateFunc, required ...ComponentType) System {
	return &funcSystem{name: name, mask: MaskOf(required...), fn: fn}
}

func (s *funcSystem) Name() string       { return s.name }
func (s *funcSystem) RequiredMask() Mask { return s.mask }

func (s *funcSystem) Update(ctx *TickContext, obj *GameObject) error {
	return s.fn(ctx, obj)
}
