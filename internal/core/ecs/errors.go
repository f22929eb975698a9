package ecs

import "errors"

var (
	// Registry errors

	ErrTypeCapacityExceeded = errors.New("component type capacity exceeded")
	ErrTypeNotFound         = errors.New("component type not registered")
	ErrRegistryFrozen       = errors.New("component type registry is frozen")
	ErrInvalidKind          = errors.New("invalid component kind")

	// Object errors

	ErrNilComponent       = errors.New("nil component")
	ErrDuplicateComponent = errors.New("component of this type already attached")
	ErrComponentNotFound  = errors.New("component not attached")
	ErrComponentOwned     = errors.New("component is attached to another object")
	ErrObjectDestroyed    = errors.New("game object has been destroyed")

	// World errors

	ErrEntityNotFound  = errors.New("entity not found")
	ErrWorldBusy       = errors.New("world is iterating; defer structural changes to the command buffer")
	ErrNilSystem       = errors.New("nil system")
	ErrDuplicateSystem = errors.New("system already registered")
)
