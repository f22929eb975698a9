package ecs

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/zeusync/jackal/internal/core/observability/log"
)

// TypeID is the dense, never reused index of a component kind.
type TypeID uint8

// ComponentType is the identity assigned to one distinct component kind.
type ComponentType struct {
	id   TypeID
	mask Mask
	name string
	kind reflect.Type
}

func (t ComponentType) ID() TypeID         { return t.id }
func (t ComponentType) Mask() Mask         { return t.mask }
func (t ComponentType) Name() string       { return t.name }
func (t ComponentType) Kind() reflect.Type { return t.kind }

func (t ComponentType) String() string {
	return fmt.Sprintf("%s#%d", t.name, t.id)
}

// TypeRegistry maps component kinds (their dynamic Go type) to ComponentType
// records. It is constructed explicitly and shared by reference with the
// World and every registration call site.
//
// Registration belongs to the initialization phase. The World freezes its
// registry on the first tick; after that only lookups and re-registration of
// already known kinds succeed.
type TypeRegistry struct {
	mu       sync.RWMutex
	byKind   map[reflect.Type]ComponentType
	types    []ComponentType
	capacity int
	frozen   bool
	log      log.Log
}

type RegistryOption func(*TypeRegistry)

// WithCapacity lowers the number of kinds the registry accepts. Values outside
// 1..MaxComponentTypes are clamped.
func WithCapacity(n int) RegistryOption {
	return func(r *TypeRegistry) {
		switch {
		case n < 1:
			r.capacity = 1
		case n > MaxComponentTypes:
			r.capacity = MaxComponentTypes
		default:
			r.capacity = n
		}
	}
}

func WithRegistryLogger(l log.Log) RegistryOption {
	return func(r *TypeRegistry) {
		r.log = log.OrNop(l)
	}
}

func NewTypeRegistry(opts ...RegistryOption) *TypeRegistry {
	r := &TypeRegistry{
		byKind:   make(map[reflect.Type]ComponentType),
		capacity: MaxComponentTypes,
		log:      log.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register returns the ComponentType for kind, allocating the next id on
// first sight. Re-registering a known kind never allocates.
func (r *TypeRegistry) Register(kind reflect.Type) (ComponentType, error) {
	if kind == nil {
		return ComponentType{}, ErrInvalidKind
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.byKind[kind]; ok {
		return t, nil
	}
	if r.frozen {
		return ComponentType{}, fmt.Errorf("register %s: %w", kind, ErrRegistryFrozen)
	}
	if len(r.types) >= r.capacity {
		return ComponentType{}, fmt.Errorf("register %s: %w (limit %d)", kind, ErrTypeCapacityExceeded, r.capacity)
	}

	id := TypeID(len(r.types))
	t := ComponentType{
		id:   id,
		mask: 1 << id,
		name: kindName(kind),
		kind: kind,
	}
	r.byKind[kind] = t
	r.types = append(r.types, t)

	r.log.Debug("component type registered",
		log.String("type", t.name),
		log.Int("id", int(id)),
	)
	return t, nil
}

// Lookup returns the ComponentType for kind without allocating.
func (r *TypeRegistry) Lookup(kind reflect.Type) (ComponentType, error) {
	r.mu.RLock()
	t, ok := r.byKind[kind]
	r.mu.RUnlock()
	if !ok {
		return ComponentType{}, fmt.Errorf("%w: %v", ErrTypeNotFound, kind)
	}
	return t, nil
}

func (r *TypeRegistry) ByID(id TypeID) (ComponentType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.types) {
		return ComponentType{}, false
	}
	return r.types[id], true
}

// Types returns the registered types in id order.
func (r *TypeRegistry) Types() []ComponentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ComponentType, len(r.types))
	copy(out, r.types)
	return out
}

func (r *TypeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

func (r *TypeRegistry) Capacity() int {
	return r.capacity
}

// Freeze ends the registration phase.
func (r *TypeRegistry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *TypeRegistry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Register registers the component kind T.
func Register[T Component](r *TypeRegistry) (ComponentType, error) {
	return r.Register(reflect.TypeFor[T]())
}

// MustRegister is Register for init-time wiring where failure is a programming error.
func MustRegister[T Component](r *TypeRegistry) ComponentType {
	t, err := Register[T](r)
	if err != nil {
		panic(err)
	}
	return t
}

// TypeOf looks up the ComponentType of T.
func TypeOf[T Component](r *TypeRegistry) (ComponentType, error) {
	return r.Lookup(reflect.TypeFor[T]())
}

func kindName(kind reflect.Type) string {
	for kind.Kind() == reflect.Pointer {
		kind = kind.Elem()
	}
	if kind.Name() == "" {
		return kind.String()
	}
	return kind.Name()
}
