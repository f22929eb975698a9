package ecs

import (
	"fmt"
	"reflect"

	"github.com/zeusync/jackal/internal/core/events/bus"
)

// EntityID packs a slot index (low 32 bits) and the slot's generation (high
// 32 bits). Generations start at 1, so the zero EntityID is never live.
type EntityID uint64

const InvalidEntity EntityID = 0

func newEntityID(index, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }

func (id EntityID) String() string {
	return fmt.Sprintf("%d.%d", id.Index(), id.Generation())
}

// GameObject is an entity: an identity, the components it exclusively owns
// and the OR of their type masks.
type GameObject struct {
	id         EntityID
	name       string
	active     bool
	mask       Mask
	components map[TypeID]Component

	registry *TypeRegistry
	world    *World

	// pending objects are spawned but not yet visible to systems.
	pending    bool
	despawning bool
	destroyed  bool
}

func newGameObject(id EntityID, name string, registry *TypeRegistry, world *World) *GameObject {
	return &GameObject{
		id:         id,
		name:       name,
		active:     true,
		components: make(map[TypeID]Component),
		registry:   registry,
		world:      world,
	}
}

func (o *GameObject) ID() EntityID     { return o.id }
func (o *GameObject) Name() string     { return o.name }
func (o *GameObject) SetName(n string) { o.name = n }
func (o *GameObject) IsActive() bool   { return o.active }

// SetActive toggles whether systems process the object. It is not a
// structural change and may be called during a tick.
func (o *GameObject) SetActive(active bool) { o.active = active }

// IsDestroyed reports whether the object has been despawned and flushed.
func (o *GameObject) IsDestroyed() bool { return o.destroyed }

// Mask returns the aggregate mask of attached component types.
func (o *GameObject) Mask() Mask { return o.mask }

// Matches reports whether the object carries every type in required.
func (o *GameObject) Matches(required Mask) bool {
	return o.mask&required == required
}

// Attach takes ownership of c. The component's dynamic type must be
// registered with the object's registry.
func (o *GameObject) Attach(c Component) error {
	if isNilComponent(c) {
		return ErrNilComponent
	}
	if err := o.checkMutable(); err != nil {
		return err
	}

	t, err := o.registry.Lookup(reflect.TypeOf(c))
	if err != nil {
		return err
	}
	if _, exists := o.components[t.id]; exists {
		return fmt.Errorf("%w: %s on %s", ErrDuplicateComponent, t.name, o.id)
	}
	if owner := c.Owner(); owner != nil {
		return fmt.Errorf("%w: %s owned by %s", ErrComponentOwned, t.name, owner.id)
	}

	c.bind(o, t)
	if hook, ok := c.(AttachHook); ok {
		if err := hook.OnAttach(o); err != nil {
			c.unbind()
			return fmt.Errorf("attach %s to %s: %w", t.name, o.id, err)
		}
	}
	o.components[t.id] = c
	o.mask |= t.mask

	o.emit(bus.ComponentAttached, t)
	return nil
}

// Detach removes the component of type t and hands ownership back to the caller.
func (o *GameObject) Detach(t ComponentType) (Component, error) {
	if err := o.checkMutable(); err != nil {
		return nil, err
	}
	if !o.owns(t) {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, t)
	}
	return o.detach(t)
}

func (o *GameObject) detach(t ComponentType) (Component, error) {
	c, ok := o.components[t.id]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrComponentNotFound, t.name, o.id)
	}
	delete(o.components, t.id)
	o.mask &^= t.mask
	c.unbind()
	if hook, ok := c.(DetachHook); ok {
		hook.OnDetach(o)
	}

	o.emit(bus.ComponentDetached, t)
	return c, nil
}

// Get returns the attached component of type t without transferring ownership.
func (o *GameObject) Get(t ComponentType) (Component, bool) {
	if !o.owns(t) {
		return nil, false
	}
	c, ok := o.components[t.id]
	return c, ok
}

func (o *GameObject) Has(t ComponentType) bool {
	return o.owns(t) && o.mask.Has(t.id)
}

// owns reports whether t was issued by the object's registry. The zero
// ComponentType and types of other registries never match.
func (o *GameObject) owns(t ComponentType) bool {
	if t.kind == nil {
		return false
	}
	rt, ok := o.registry.ByID(t.id)
	return ok && rt.kind == t.kind && rt.mask == t.mask
}

// Components lists attached components in type id order.
func (o *GameObject) Components() []Component {
	ids := o.mask.IDs()
	out := make([]Component, 0, len(ids))
	for _, id := range ids {
		out = append(out, o.components[id])
	}
	return out
}

func (o *GameObject) Len() int {
	return len(o.components)
}

// checkMutable rejects structural changes while a tick may be reading the
// object. Pending objects are invisible to systems and stay mutable.
func (o *GameObject) checkMutable() error {
	if o.destroyed {
		return fmt.Errorf("%w: %s", ErrObjectDestroyed, o.id)
	}
	if o.world != nil && o.world.iterating && !o.pending {
		return ErrWorldBusy
	}
	return nil
}

// destroy detaches every component, highest type id first.
func (o *GameObject) destroy() {
	ids := o.mask.IDs()
	for i := len(ids) - 1; i >= 0; i-- {
		t, _ := o.registry.ByID(ids[i])
		_, _ = o.detach(t)
	}
	o.destroyed = true
}

func (o *GameObject) emit(typ string, t ComponentType) {
	if o.world == nil {
		return
	}
	o.world.emit(typ, map[string]any{
		"entity":    o.id.String(),
		"component": t.name,
		"type_id":   int(t.id),
	})
}

// Get returns the component of kind T attached to o.
func Get[T Component](o *GameObject) (T, bool) {
	var zero T
	t, err := TypeOf[T](o.registry)
	if err != nil {
		return zero, false
	}
	c, ok := o.components[t.id]
	if !ok {
		return zero, false
	}
	typed, ok := c.(T)
	return typed, ok
}

// Detach removes the component of kind T from o.
func Detach[T Component](o *GameObject) (T, error) {
	var zero T
	t, err := TypeOf[T](o.registry)
	if err != nil {
		return zero, err
	}
	c, err := o.Detach(t)
	if err != nil {
		return zero, err
	}
	return c.(T), nil
}

func isNilComponent(c Component) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
