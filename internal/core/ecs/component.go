package ecs

// Component is a unit of data or behaviour attached to a GameObject.
//
// Every component kind embeds Base, which carries the component's owner and
// ComponentType once attached:
//
//	type Velocity struct {
//		ecs.Base
//		X, Y float64
//	}
type Component interface {
	Owner() *GameObject
	ComponentType() ComponentType

	bind(owner *GameObject, t ComponentType)
	unbind()
}

// AttachHook lets a component veto or react to being attached.
type AttachHook interface {
	OnAttach(owner *GameObject) error
}

// DetachHook is called after a component is removed from its owner, including
// when the owner is despawned.
type DetachHook interface {
	OnDetach(owner *GameObject)
}

// Base implements the bookkeeping half of Component.
type Base struct {
	owner *GameObject
	typ   ComponentType
}

func (b *Base) Owner() *GameObject           { return b.owner }
func (b *Base) ComponentType() ComponentType { return b.typ }

func (b *Base) bind(owner *GameObject, t ComponentType) {
	b.owner = owner
	b.typ = t
}

func (b *Base) unbind() {
	b.owner = nil
}
